package event

import (
	"sort"

	"github.com/sarchlab/gouvm/kernel"
)

// A Pool holds named events and creates them on first use.
type Pool[T any] struct {
	sched  *kernel.Scheduler
	events map[string]*Event[T]
}

// NewPool creates an empty pool.
func NewPool[T any](s *kernel.Scheduler) *Pool[T] {
	return &Pool[T]{sched: s, events: make(map[string]*Event[T])}
}

// Get returns the event named key, creating it if needed.
func (p *Pool[T]) Get(key string) *Event[T] {
	e, ok := p.events[key]
	if !ok {
		e = New[T](key, p.sched)
		p.events[key] = e
	}

	return e
}

// Exists tells if the pool holds an event named key.
func (p *Pool[T]) Exists(key string) bool {
	_, ok := p.events[key]
	return ok
}

// Delete removes the event named key.
func (p *Pool[T]) Delete(key string) {
	delete(p.events, key)
}

// Num returns the number of events.
func (p *Pool[T]) Num() int {
	return len(p.events)
}

// Keys returns the event names in sorted order.
func (p *Pool[T]) Keys() []string {
	keys := make([]string, 0, len(p.events))
	for k := range p.events {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
