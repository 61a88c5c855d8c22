package recording

import (
	"database/sql"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
)

const createTable = `
CREATE TABLE IF NOT EXISTS hook_records (
	session TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	time    REAL NOT NULL,
	domain  TEXT NOT NULL,
	pos     TEXT NOT NULL,
	item    TEXT NOT NULL,
	detail  TEXT NOT NULL
)`

const insertRecord = `
INSERT INTO hook_records (session, seq, time, domain, pos, item, detail)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// SQLiteRecorder writes every hook firing as a row of an SQLite table.
// Each recorder writes under its own session id, so several runs can share
// a database file.
type SQLiteRecorder struct {
	db      *sql.DB
	insert  *sql.Stmt
	session string
	clock   sim.TimeTeller
	seq     int
	err     error
}

// NewSQLiteRecorder opens or creates the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteRecorder(path string, clock sim.TimeTeller) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create hook_records")
	}

	stmt, err := db.Prepare(insertRecord)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to prepare insert")
	}

	return &SQLiteRecorder{
		db:      db,
		insert:  stmt,
		session: xid.New().String(),
		clock:   clock,
	}, nil
}

// Session returns the id the records are written under.
func (r *SQLiteRecorder) Session() string {
	return r.session
}

// Err returns the first write error, if any.
func (r *SQLiteRecorder) Err() error {
	return r.err
}

// Func writes one hook firing. Write errors are kept and returned by Err.
func (r *SQLiteRecorder) Func(ctx sim.HookCtx) {
	if r.err != nil {
		return
	}

	rec := newRecord(r.clock, ctx)
	r.seq++

	_, err := r.insert.Exec(r.session, r.seq, rec.Time,
		rec.Domain, rec.Pos, rec.Item, rec.Detail)
	if err != nil {
		r.err = errors.Wrap(err, "failed to insert hook record")
	}
}

// Records reads back the records of this session in order.
func (r *SQLiteRecorder) Records() ([]Record, error) {
	rows, err := r.db.Query(`
		SELECT time, domain, pos, item, detail FROM hook_records
		WHERE session = ? ORDER BY seq`, r.session)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query hook records")
	}
	defer rows.Close()

	var recs []Record

	for rows.Next() {
		var rec Record

		err := rows.Scan(&rec.Time, &rec.Domain, &rec.Pos, &rec.Item, &rec.Detail)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan hook record")
		}

		recs = append(recs, rec)
	}

	return recs, errors.Wrap(rows.Err(), "failed to read hook records")
}

// Close releases the database.
func (r *SQLiteRecorder) Close() error {
	r.insert.Close()
	return r.db.Close()
}
