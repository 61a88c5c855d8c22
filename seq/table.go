package seq

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// String renders the arbitration queue and the lock list.
func (s *Sequencer) String() string {
	arbTable := table.NewWriter()
	arbTable.SetTitle(fmt.Sprintf("%s arbitration queue (%s)",
		s.FullName(), s.arbitration))
	arbTable.AppendHeader(table.Row{
		"#", "Seq ID", "Type", "Request ID", "Priority", "Sequence",
	})

	for i, r := range s.queue {
		arbTable.AppendRow(table.Row{
			i, r.SequenceID, r.Kind, r.RequestID, r.ItemPriority,
			r.Sequence.FullName(),
		})
	}

	lockTable := table.NewWriter()
	lockTable.SetTitle(fmt.Sprintf("%s lock list", s.FullName()))
	lockTable.AppendHeader(table.Row{"#", "Seq ID", "Sequence"})

	for i, l := range s.lockList {
		lockTable.AppendRow(table.Row{
			i, l.sqrSequenceID(s, false), l.FullName(),
		})
	}

	return arbTable.Render() + "\n" + lockTable.Render()
}
