// Package kernel runs cooperative processes on top of an akita engine.
//
// Each process is a goroutine, but only one of them runs at a time. The
// scheduler hands control to a process and waits until that process blocks,
// yields or returns. Processes made ready at the same virtual time run in the
// order they became ready. Time advances only through akita events, one
// event per distinct wake-up time.
package kernel

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/report"
)

// Hook positions fired by the scheduler.
var (
	HookPosFork   = &sim.HookPos{Name: "Process Fork"}
	HookPosKill   = &sim.HookPos{Name: "Process Kill"}
	HookPosFinish = &sim.HookPos{Name: "Process Finish"}
)

// unwind is the panic value that stops a killed process.
type unwind struct{}

type wakeEvent struct {
	*sim.EventBase
	waiters []waiter
}

// A Scheduler owns a set of cooperative processes.
type Scheduler struct {
	sim.HookableBase

	engine sim.Engine

	ready       []*Process
	slots       map[sim.VTimeInSec]*wakeEvent
	live        []*Process
	current     *Process
	dispatching bool
	yield       chan struct{}
	failure     error
}

// NewScheduler creates a scheduler that advances time with engine.
func NewScheduler(engine sim.Engine) *Scheduler {
	return &Scheduler{
		engine: engine,
		slots:  make(map[sim.VTimeInSec]*wakeEvent),
		yield:  make(chan struct{}),
	}
}

// Engine returns the underlying akita engine.
func (s *Scheduler) Engine() sim.Engine {
	return s.engine
}

// CurrentTime returns the current virtual time. It makes the scheduler a
// sim.TimeTeller.
func (s *Scheduler) CurrentTime() sim.VTimeInSec {
	return s.engine.CurrentTime()
}

// Now is a shorthand for CurrentTime.
func (s *Scheduler) Now() sim.VTimeInSec {
	return s.engine.CurrentTime()
}

// Current returns the running process, or nil when called from outside a
// process.
func (s *Scheduler) Current() *Process {
	return s.current
}

// Self returns the running process. It panics when called from outside a
// process.
func (s *Scheduler) Self() *Process {
	return s.mustCurrent()
}

// Err returns the failure that stopped the scheduler, if any.
func (s *Scheduler) Err() error {
	return s.failure
}

// Fork creates a process that runs fn. The process starts after the
// processes that are already ready.
func (s *Scheduler) Fork(name string, fn func()) *Process {
	p := &Process{
		sched:  s,
		name:   name,
		id:     xid.New().String(),
		parent: s.current,
		status: Waiting,
		wake:   make(chan bool),
	}
	p.done = NewNotifier(s)

	s.live = append(s.live, p)
	go s.body(p, fn)

	s.enqueue(p)

	report.Trace("process forked", "process", name, "time", float64(s.Now()))
	s.invokeHook(HookPosFork, p)

	return p
}

// Run runs the engine until no event is left. It returns the failure of the
// first process that panicked, if any.
func (s *Scheduler) Run() error {
	if len(s.ready) > 0 {
		s.kick()
	}

	if err := s.engine.Run(); err != nil {
		return errors.Wrap(err, "engine failed")
	}

	return s.failure
}

// Handle wakes the processes scheduled for the event time and runs every
// ready process.
func (s *Scheduler) Handle(e sim.Event) error {
	t := e.Time()

	slot, ok := s.slots[t]
	if ok {
		delete(s.slots, t)
	}

	if s.failure != nil {
		return nil
	}

	s.dispatching = true
	defer func() { s.dispatching = false }()

	if ok {
		for _, w := range slot.waiters {
			w.wake()
		}
	}

	s.dispatch()

	return nil
}

// Yield suspends the current process and lets every process that is already
// ready run first. It is the zero-delay wait of the kernel.
func (s *Scheduler) Yield() {
	p := s.mustCurrent()
	s.enqueue(p)
	p.suspend()
}

// Delay suspends the current process for d seconds of virtual time. A zero
// delay is a Yield.
func (s *Scheduler) Delay(d sim.VTimeInSec) {
	if d < 0 {
		panic(fmt.Sprintf("kernel: negative delay %v", d))
	}

	if d == 0 {
		s.Yield()
		return
	}

	p := s.mustCurrent()
	slot := s.at(s.Now() + d)
	slot.waiters = append(slot.waiters, p.waiter())
	p.block()
}

// JoinAny forks one process per function and blocks until the first of them
// returns. The other processes are killed. It returns the index of the
// function that finished first.
func (s *Scheduler) JoinAny(name string, fns ...func()) int {
	if len(fns) == 0 {
		return -1
	}

	winner := -1
	done := NewNotifier(s)
	procs := make([]*Process, len(fns))

	defer func() {
		for _, p := range procs {
			if p != nil {
				p.Kill()
			}
		}
	}()

	for i, fn := range fns {
		i, fn := i, fn
		procs[i] = s.Fork(fmt.Sprintf("%s[%d]", name, i), func() {
			fn()

			if winner < 0 {
				winner = i
				done.Notify()
			}
		})
	}

	for winner < 0 {
		done.Wait()
	}

	return winner
}

// Shutdown kills every process that has not finished and waits for their
// goroutines to exit. It must not be called from inside a process.
func (s *Scheduler) Shutdown() {
	if s.current != nil {
		panic("kernel: Shutdown called from inside a process")
	}

	for _, p := range append([]*Process(nil), s.live...) {
		if p.exited {
			continue
		}

		p.status = Killed
		s.resume(p)
	}

	s.ready = nil
	s.live = nil
}

func (s *Scheduler) mustCurrent() *Process {
	if s.current == nil {
		panic("kernel: blocking call outside of a process")
	}

	return s.current
}

func (s *Scheduler) at(t sim.VTimeInSec) *wakeEvent {
	slot, ok := s.slots[t]
	if !ok {
		slot = &wakeEvent{EventBase: sim.NewEventBase(t, s)}
		s.slots[t] = slot
		s.engine.Schedule(slot)
	}

	return slot
}

// kick makes sure that ready processes get dispatched even when they were
// made ready from outside the scheduler loop.
func (s *Scheduler) kick() {
	if s.dispatching {
		return
	}

	s.at(s.Now())
}

func (s *Scheduler) enqueue(p *Process) {
	if p.queued || p.exited {
		return
	}

	p.queued = true
	s.ready = append(s.ready, p)
	s.kick()
}

func (s *Scheduler) dispatch() {
	for len(s.ready) > 0 && s.failure == nil {
		p := s.ready[0]
		s.ready = s.ready[1:]
		p.queued = false

		if p.exited {
			continue
		}

		s.resume(p)
	}
}

func (s *Scheduler) resume(p *Process) {
	if p.status != Killed {
		p.status = Running
	}

	s.current = p
	p.wake <- p.status == Killed
	<-s.yield
	s.current = nil
}

func (s *Scheduler) body(p *Process, fn func()) {
	defer s.exit(p)

	if killed := <-p.wake; killed {
		return
	}

	fn()
}

func (s *Scheduler) exit(p *Process) {
	if r := recover(); r != nil {
		if _, ok := r.(unwind); !ok {
			s.fail(p, r)
		}
	}

	if p.status != Killed {
		p.status = Finished
	}

	p.exited = true
	s.removeLive(p)
	p.done.Notify()

	report.Trace("process exited",
		"process", p.name, "status", p.status.String(), "time", float64(s.Now()))
	s.invokeHook(HookPosFinish, p)

	s.yield <- struct{}{}
}

func (s *Scheduler) fail(p *Process, r any) {
	if s.failure != nil {
		return
	}

	switch v := r.(type) {
	case *report.FatalError:
		s.failure = errors.Wrapf(v, "process %s", p.name)
	case error:
		s.failure = errors.Wrapf(v, "process %s panicked", p.name)
	default:
		s.failure = errors.Errorf("process %s panicked: %v", p.name, r)
	}
}

func (s *Scheduler) removeLive(p *Process) {
	for i, q := range s.live {
		if q == p {
			s.live = append(s.live[:i], s.live[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) invokeHook(pos *sim.HookPos, p *Process) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{Domain: s, Pos: pos, Item: p})
}
