package tlm2

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/report"
)

// A ProtocolChecker follows the phases of non-blocking transactions and
// reports calls that break the base protocol. It is a hook; attach it to
// the target and initiator sockets of a path.
type ProtocolChecker struct {
	name       string
	phases     map[*GenericPayload]Phase
	violations int
	completed  int
}

// NewProtocolChecker creates a checker that reports as name.
func NewProtocolChecker(name string) *ProtocolChecker {
	return &ProtocolChecker{
		name:   name,
		phases: make(map[*GenericPayload]Phase),
	}
}

// Func checks one transport call.
func (c *ProtocolChecker) Func(ctx sim.HookCtx) {
	t, ok := ctx.Item.(*GenericPayload)
	if !ok {
		return
	}

	d, ok := ctx.Detail.(TransportDetail)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosNBTransportFw:
		c.check(t, d, true)
	case HookPosNBTransportBw:
		c.check(t, d, false)
	}
}

// Violations returns the number of protocol errors seen.
func (c *ProtocolChecker) Violations() int {
	return c.violations
}

// Outstanding returns the number of transactions that have started but not
// completed.
func (c *ProtocolChecker) Outstanding() int {
	return len(c.phases)
}

// Completed returns the number of transactions that completed.
func (c *ProtocolChecker) Completed() int {
	return c.completed
}

func (c *ProtocolChecker) check(t *GenericPayload, d TransportDetail, fw bool) {
	if fw != (d.PhaseIn == BeginReq || d.PhaseIn == EndResp) {
		c.violate(t, "%s sent on the wrong path", d.PhaseIn)
		return
	}

	cur := c.phases[t]
	if !validNext(cur, d.PhaseIn) {
		c.violate(t, "%s cannot follow %s", d.PhaseIn, cur)
		return
	}

	next := d.PhaseIn

	switch d.Sync {
	case Completed:
		c.finish(t)
		return
	case Updated:
		if !validNext(next, d.PhaseOut) {
			c.violate(t, "%s cannot follow %s", d.PhaseOut, next)
			return
		}

		next = d.PhaseOut
	}

	if next == EndResp {
		c.finish(t)
		return
	}

	c.phases[t] = next
}

func (c *ProtocolChecker) finish(t *GenericPayload) {
	delete(c.phases, t)
	c.completed++
}

func (c *ProtocolChecker) violate(t *GenericPayload, format string, args ...any) {
	c.violations++
	delete(c.phases, t)

	args = append([]any{t.FullName()}, args...)
	report.Errorf(c.name, "TLM2/PROTOCOL", "%s: "+format, args...)
}

func validNext(cur, next Phase) bool {
	switch cur {
	case UninitializedPhase:
		return next == BeginReq
	case BeginReq:
		return next == EndReq || next == BeginResp
	case EndReq:
		return next == BeginResp
	case BeginResp:
		return next == EndResp
	default:
		return false
	}
}
