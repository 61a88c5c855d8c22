package report

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// A Record is a message captured by a Collector.
type Record struct {
	Level    slog.Level
	ID       string
	Reporter string
	Msg      string
}

// Collector is a slog handler that keeps every record in memory. Testbenches
// use it to check the messages a run produced.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Enabled always returns true.
func (c *Collector) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores the record.
func (c *Collector) Handle(_ context.Context, r slog.Record) error {
	rec := Record{Level: r.Level, Msg: r.Message}
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "id":
			rec.ID = a.Value.String()
		case "reporter":
			rec.Reporter = a.Value.String()
		}
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, rec)

	return nil
}

// WithAttrs returns the collector itself.
func (c *Collector) WithAttrs([]slog.Attr) slog.Handler { return c }

// WithGroup returns the collector itself.
func (c *Collector) WithGroup(string) slog.Handler { return c }

// Records returns a copy of all captured records.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Record(nil), c.records...)
}

// Messages returns the text of all records with the given id.
func (c *Collector) Messages(id string) []string {
	var msgs []string

	for _, r := range c.Records() {
		if r.ID == id {
			msgs = append(msgs, r.Msg)
		}
	}

	return msgs
}

// Contains reports whether any record with the given id contains substr.
func (c *Collector) Contains(id, substr string) bool {
	for _, m := range c.Messages(id) {
		if strings.Contains(m, substr) {
			return true
		}
	}

	return false
}
