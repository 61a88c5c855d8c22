// Package event provides UVM events and barriers for processes running on a
// kernel.Scheduler.
//
// An Event can be waited on in three ways. Level waits (WaitOn, WaitOff)
// look at the on/off state and return at once if the state already matches.
// Edge waits (WaitTrigger) only return on a Trigger that happens after the
// wait started. Wait is a level wait that turns the event off once all of
// its waiters have resumed, so a trigger from a previous round is never
// seen by a late waiter.
package event

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/kernel"
)

// A Callback is notified around each trigger of an event.
type Callback[T any] interface {
	// PreTrigger runs before the event is triggered. Returning true skips
	// the trigger, including the PostTrigger calls.
	PreTrigger(e *Event[T], data T) bool

	// PostTrigger runs after the event is triggered.
	PostTrigger(e *Event[T], data T)
}

// An Event synchronizes processes and carries the data of its last trigger.
type Event[T any] struct {
	name  string
	sched *kernel.Scheduler

	edge  *kernel.Notifier
	level *kernel.Notifier

	on          bool
	numWaiters  int
	waiting     int
	triggerTime sim.VTimeInSec
	triggerData T
	defaultData T
	callbacks   []Callback[T]
}

// New creates an event that is off.
func New[T any](name string, s *kernel.Scheduler) *Event[T] {
	return &Event[T]{
		name:  name,
		sched: s,
		edge:  kernel.NewNotifier(s),
		level: kernel.NewNotifier(s),
	}
}

// Name returns the name of the event.
func (e *Event[T]) Name() string {
	return e.name
}

// Wait blocks until the event is on. Once every process that was waiting
// has resumed and no new one has started waiting, the event turns off
// again, so a waiter of a later round needs a new trigger.
func (e *Event[T]) Wait() {
	e.waiting++
	e.numWaiters++

	resumed := false
	defer func() {
		if !resumed {
			e.waiting--
		}
	}()

	for !e.on {
		e.level.Wait()
	}

	resumed = true
	e.waiting--

	if e.waiting == 0 {
		e.on = false
		e.level.Notify()
	}
}

// WaitOn blocks until the event has been triggered since its last reset.
// If the event is already on, it returns at once, after a zero-delay yield
// when delta is set.
func (e *Event[T]) WaitOn(delta bool) {
	if e.on {
		if delta {
			e.sched.Yield()
		}

		return
	}

	e.numWaiters++

	for !e.on {
		e.level.Wait()
	}
}

// WaitOff blocks until the event is reset. If the event is already off, it
// returns at once, after a zero-delay yield when delta is set.
func (e *Event[T]) WaitOff(delta bool) {
	if !e.on {
		if delta {
			e.sched.Yield()
		}

		return
	}

	e.numWaiters++

	for e.on {
		e.level.Wait()
	}
}

// WaitTrigger blocks until the next trigger.
func (e *Event[T]) WaitTrigger() {
	e.numWaiters++
	e.edge.Wait()
}

// WaitPTrigger is like WaitTrigger but also returns at once if the event was
// triggered at the current time.
func (e *Event[T]) WaitPTrigger() {
	if e.on && e.triggerTime == e.sched.Now() {
		return
	}

	e.WaitTrigger()
}

// WaitTriggerData waits for the next trigger and returns its data.
func (e *Event[T]) WaitTriggerData() T {
	e.WaitTrigger()
	return e.triggerData
}

// WaitPTriggerData waits like WaitPTrigger and returns the trigger data.
func (e *Event[T]) WaitPTriggerData() T {
	e.WaitPTrigger()
	return e.triggerData
}

// Trigger triggers the event with data, unless a callback asks to skip.
// All processes waiting on the event wake up.
func (e *Event[T]) Trigger(data T) {
	cbs := append([]Callback[T](nil), e.callbacks...)

	skip := false
	for _, cb := range cbs {
		if cb.PreTrigger(e, data) {
			skip = true
		}
	}

	if skip {
		return
	}

	e.numWaiters = 0
	e.on = true
	e.triggerTime = e.sched.Now()
	e.triggerData = data

	e.edge.Notify()
	e.level.Notify()

	for _, cb := range cbs {
		cb.PostTrigger(e, data)
	}
}

// TriggerDefault triggers the event with the default data.
func (e *Event[T]) TriggerDefault() {
	e.Trigger(e.defaultData)
}

// Reset turns the event off and clears the waiter count and trigger data.
// With wakeup set, processes blocked in WaitTrigger are released first.
func (e *Event[T]) Reset(wakeup bool) {
	if wakeup {
		e.edge.Notify()
	}

	var zero T

	e.on = false
	e.numWaiters = 0
	e.triggerTime = 0
	e.triggerData = zero

	e.level.Notify()
}

// Cancel decrements the waiter count.
func (e *Event[T]) Cancel() {
	if e.numWaiters > 0 {
		e.numWaiters--
	}
}

// NumWaiters returns the number of waits since the last trigger or reset.
func (e *Event[T]) NumWaiters() int {
	return e.numWaiters
}

// IsOn tells if the event was triggered since its last reset.
func (e *Event[T]) IsOn() bool {
	return e.on
}

// IsOff is the opposite of IsOn.
func (e *Event[T]) IsOff() bool {
	return !e.on
}

// TriggerTime returns the time of the last trigger.
func (e *Event[T]) TriggerTime() sim.VTimeInSec {
	return e.triggerTime
}

// TriggerData returns the data of the last trigger.
func (e *Event[T]) TriggerData() T {
	return e.triggerData
}

// DefaultData returns the data used by TriggerDefault.
func (e *Event[T]) DefaultData() T {
	return e.defaultData
}

// SetDefaultData sets the data used by TriggerDefault.
func (e *Event[T]) SetDefaultData(data T) {
	e.defaultData = data
}

// AddCallback registers cb. Callbacks added with atEnd set run after the
// existing ones, the others run first.
func (e *Event[T]) AddCallback(cb Callback[T], atEnd bool) {
	for _, c := range e.callbacks {
		if c == cb {
			return
		}
	}

	if atEnd {
		e.callbacks = append(e.callbacks, cb)
		return
	}

	e.callbacks = append([]Callback[T]{cb}, e.callbacks...)
}

// DeleteCallback removes cb.
func (e *Event[T]) DeleteCallback(cb Callback[T]) {
	for i, c := range e.callbacks {
		if c == cb {
			e.callbacks = append(e.callbacks[:i], e.callbacks[i+1:]...)
			return
		}
	}
}
