package kernel

type semWaiter struct {
	w waiter
	n int
}

// A Semaphore is a counting semaphore. Blocked requests are served in
// arrival order.
type Semaphore struct {
	sched   *Scheduler
	keys    int
	waiters []*semWaiter
}

// NewSemaphore creates a semaphore holding keys keys.
func NewSemaphore(s *Scheduler, keys int) *Semaphore {
	return &Semaphore{sched: s, keys: keys}
}

// Keys returns the number of keys available.
func (s *Semaphore) Keys() int {
	return s.keys
}

// Get takes n keys, blocking until they are available.
func (s *Semaphore) Get(n int) {
	s.prune()

	if len(s.waiters) == 0 && s.keys >= n {
		s.keys -= n
		return
	}

	p := s.sched.mustCurrent()
	s.waiters = append(s.waiters, &semWaiter{w: p.waiter(), n: n})
	p.block()
}

// TryGet takes n keys if they are available without blocking.
func (s *Semaphore) TryGet(n int) bool {
	s.prune()

	if len(s.waiters) > 0 || s.keys < n {
		return false
	}

	s.keys -= n

	return true
}

// Put returns n keys and serves as many blocked requests as the keys allow.
// Keys are never handed to a process that was killed while waiting.
func (s *Semaphore) Put(n int) {
	s.keys += n

	for {
		s.prune()

		if len(s.waiters) == 0 || s.waiters[0].n > s.keys {
			return
		}

		head := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.keys -= head.n
		head.w.wake()
	}
}

// NumWaiters returns the number of blocked requests.
func (s *Semaphore) NumWaiters() int {
	s.prune()
	return len(s.waiters)
}

func (s *Semaphore) prune() {
	kept := s.waiters[:0]

	for _, w := range s.waiters {
		if w.w.p.status == Killed {
			continue
		}

		kept = append(kept, w)
	}

	s.waiters = kept
}
