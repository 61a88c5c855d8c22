package kernel

// A Notifier wakes every waiting process at once. Woken processes re-check
// their own condition, so a Notifier works like a condition variable. The
// generation counter grows on each Notify, which lets a waiter tell if
// anything happened since it last looked.
type Notifier struct {
	sched      *Scheduler
	waiters    []waiter
	generation uint64
}

// NewNotifier creates a notifier bound to s.
func NewNotifier(s *Scheduler) *Notifier {
	return &Notifier{sched: s}
}

// Wait blocks the calling process until the next Notify.
func (n *Notifier) Wait() {
	p := n.sched.mustCurrent()
	n.waiters = append(n.waiters, p.waiter())
	p.block()
}

// WaitChange blocks until the generation differs from gen. It returns the
// new generation.
func (n *Notifier) WaitChange(gen uint64) uint64 {
	for n.generation == gen {
		n.Wait()
	}

	return n.generation
}

// Notify wakes all current waiters.
func (n *Notifier) Notify() {
	n.generation++

	ws := n.waiters
	n.waiters = nil

	for _, w := range ws {
		w.wake()
	}
}

// Generation returns the number of Notify calls so far.
func (n *Notifier) Generation() uint64 {
	return n.generation
}

// NumWaiters returns the number of processes blocked in Wait.
func (n *Notifier) NumWaiters() int {
	num := 0

	for _, w := range n.waiters {
		if w.p.parked && w.p.seq == w.seq {
			num++
		}
	}

	return num
}

// An Event is a level-sensitive flag. Waiting on a set event returns at
// once.
type Event struct {
	n   *Notifier
	set bool
}

// NewEvent creates a cleared event.
func NewEvent(s *Scheduler) *Event {
	return &Event{n: NewNotifier(s)}
}

// Set sets the flag and wakes all waiters.
func (e *Event) Set() {
	e.set = true
	e.n.Notify()
}

// Clear clears the flag.
func (e *Event) Clear() {
	e.set = false
}

// IsSet tells if the flag is set.
func (e *Event) IsSet() bool {
	return e.set
}

// Wait blocks until the flag is set.
func (e *Event) Wait() {
	for !e.set {
		e.n.Wait()
	}
}
