package event

import (
	"github.com/sarchlab/gouvm/kernel"
)

// A Barrier blocks processes until a threshold number of them are waiting.
type Barrier struct {
	name        string
	sched       *kernel.Scheduler
	threshold   int
	numWaiters  int
	atThreshold bool
	autoReset   bool
	event       *Event[any]
}

// NewBarrier creates a barrier that releases its waiters once threshold
// processes wait. Auto reset is on.
func NewBarrier(name string, s *kernel.Scheduler, threshold int) *Barrier {
	return &Barrier{
		name:      name,
		sched:     s,
		threshold: threshold,
		autoReset: true,
		event:     New[any](name+".barrier_event", s),
	}
}

// WaitFor blocks until the threshold is reached. Without auto reset, a
// barrier that reached its threshold lets every later call pass.
func (b *Barrier) WaitFor() {
	if b.atThreshold {
		return
	}

	b.numWaiters++

	if b.numWaiters >= b.threshold {
		if !b.autoReset {
			b.atThreshold = true
		}

		b.trigger()

		return
	}

	b.event.WaitTrigger()
}

// Reset clears the barrier. With wakeup set, processes that are waiting are
// released, otherwise they keep waiting.
func (b *Barrier) Reset(wakeup bool) {
	b.atThreshold = false

	if b.numWaiters > 0 {
		if wakeup {
			b.event.TriggerDefault()
		} else {
			b.event.Reset(false)
		}
	}

	b.numWaiters = 0
}

// SetAutoReset sets whether the barrier re-arms after releasing waiters.
func (b *Barrier) SetAutoReset(on bool) {
	b.autoReset = on
}

// SetThreshold changes the threshold. Waiters are released if the new
// threshold is already met.
func (b *Barrier) SetThreshold(threshold int) {
	b.threshold = threshold

	if b.threshold <= b.numWaiters {
		b.Reset(true)
	}
}

// Threshold returns the current threshold.
func (b *Barrier) Threshold() int {
	return b.threshold
}

// NumWaiters returns the number of processes waiting.
func (b *Barrier) NumWaiters() int {
	return b.numWaiters
}

// Cancel removes one waiter from the count.
func (b *Barrier) Cancel() {
	b.event.Cancel()
	b.numWaiters = b.event.NumWaiters()
}

func (b *Barrier) trigger() {
	b.event.TriggerDefault()
	b.numWaiters = 0

	b.sched.Fork(b.name+".reset", func() {
		b.sched.Yield()
		b.event.Reset(false)
	})
}
