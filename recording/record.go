// Package recording keeps the hook firings of sequencers, sockets and the
// kernel, either in memory or in an SQLite database.
package recording

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/akita/v4/sim"
)

// A Record is one hook firing.
type Record struct {
	Time   float64
	Domain string
	Pos    string
	Item   string
	Detail string
}

func newRecord(clock sim.TimeTeller, ctx sim.HookCtx) Record {
	r := Record{
		Domain: describe(ctx.Domain),
		Item:   describe(ctx.Item),
		Detail: describe(ctx.Detail),
	}

	if clock != nil {
		r.Time = float64(clock.CurrentTime())
	}

	if ctx.Pos != nil {
		r.Pos = ctx.Pos.Name
	}

	return r
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case interface{ FullName() string }:
		return x.FullName()
	case fmt.Stringer:
		return x.String()
	case interface{ Name() string }:
		return x.Name()
	default:
		if reflect.TypeOf(x).Kind() == reflect.Pointer {
			return fmt.Sprintf("%T", x)
		}

		return fmt.Sprintf("%v", x)
	}
}
