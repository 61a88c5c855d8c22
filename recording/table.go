package recording

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/sim"
)

// TableRecorder keeps records in memory and renders them as a table.
type TableRecorder struct {
	title   string
	clock   sim.TimeTeller
	records []Record
}

// NewTableRecorder creates a recorder. The clock may be nil.
func NewTableRecorder(title string, clock sim.TimeTeller) *TableRecorder {
	return &TableRecorder{title: title, clock: clock}
}

// Func records one hook firing.
func (r *TableRecorder) Func(ctx sim.HookCtx) {
	r.records = append(r.records, newRecord(r.clock, ctx))
}

// Records returns a copy of the records.
func (r *TableRecorder) Records() []Record {
	return append([]Record(nil), r.records...)
}

// Count returns the number of records at the hook position named pos.
func (r *TableRecorder) Count(pos string) int {
	n := 0

	for _, rec := range r.records {
		if rec.Pos == pos {
			n++
		}
	}

	return n
}

// Render returns the records as a table.
func (r *TableRecorder) Render() string {
	t := table.NewWriter()
	t.SetTitle(r.title)
	t.AppendHeader(table.Row{"Time", "Domain", "Position", "Item", "Detail"})

	for _, rec := range r.records {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.3e", rec.Time),
			rec.Domain, rec.Pos, rec.Item, rec.Detail,
		})
	}

	return t.Render()
}
