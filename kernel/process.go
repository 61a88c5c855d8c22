package kernel

import (
	"fmt"

	"github.com/sarchlab/gouvm/report"
)

// Status is the execution state of a process.
type Status int

// The process states. A process is done once it is Finished or Killed.
const (
	Waiting Status = iota
	Running
	Finished
	Killed
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	case Killed:
		return "KILLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// A Process is a cooperative thread of execution.
type Process struct {
	sched  *Scheduler
	name   string
	id     string
	parent *Process
	status Status

	wake   chan bool
	seq    uint64
	parked bool
	queued bool
	exited bool

	done *Notifier
}

// Name returns the name given at fork time.
func (p *Process) Name() string {
	return p.name
}

// ID returns a unique id.
func (p *Process) ID() string {
	return p.id
}

// Parent returns the process that forked p, or nil.
func (p *Process) Parent() *Process {
	return p.parent
}

// Status returns the current state.
func (p *Process) Status() Status {
	return p.status
}

// IsDone tells if the process is finished or killed.
func (p *Process) IsDone() bool {
	return p.status == Finished || p.status == Killed
}

// Kill stops the process. The status changes to Killed at once, so other
// processes can observe it before the killed process gets to unwind. A
// process killing itself stops immediately.
func (p *Process) Kill() {
	if p.IsDone() {
		return
	}

	p.status = Killed
	p.parked = false

	report.Trace("process killed",
		"process", p.name, "time", float64(p.sched.Now()))
	p.sched.invokeHook(HookPosKill, p)

	if p.sched.current == p {
		panic(unwind{})
	}

	p.sched.enqueue(p)
}

// Join blocks the calling process until p is done.
func (p *Process) Join() {
	for !p.exited {
		p.done.Wait()
	}
}

func (p *Process) waiter() waiter {
	return waiter{p: p, seq: p.seq}
}

// block suspends the process until a waiter registered before the call
// wakes it.
func (p *Process) block() {
	if p.status == Killed {
		panic(unwind{})
	}

	p.parked = true
	p.status = Waiting
	p.suspend()
}

func (p *Process) suspend() {
	p.sched.yield <- struct{}{}

	killed := <-p.wake
	p.seq++
	p.parked = false

	if killed {
		panic(unwind{})
	}
}

// A waiter is a handle that wakes a process from one particular block.
type waiter struct {
	p   *Process
	seq uint64
}

// wake makes the process ready. It returns false if the process has moved
// past the block the waiter was created for.
func (w waiter) wake() bool {
	p := w.p
	if !p.parked || p.seq != w.seq || p.status == Killed {
		return false
	}

	p.parked = false
	p.sched.enqueue(p)

	return true
}
