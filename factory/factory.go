// Package factory maps type names to constructors so that components can
// create objects, such as default sequences, by name.
package factory

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotRegistered is returned when creating an object of an unknown type.
var ErrNotRegistered = errors.New("type not registered")

// A Constructor creates a new named object.
type Constructor[T any] func(name string) T

// A Registry holds the constructors of one family of types.
type Registry[T any] struct {
	mu           sync.RWMutex
	constructors map[string]Constructor[T]
	overrides    map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		constructors: make(map[string]Constructor[T]),
		overrides:    make(map[string]string),
	}
}

// Register adds a constructor under typeName. Registering the same name
// twice replaces the previous constructor.
func (r *Registry[T]) Register(typeName string, c Constructor[T]) {
	if c == nil {
		panic("factory: nil constructor for " + typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[typeName] = c
}

// SetOverride makes requests for original create objects of typeName
// instead.
func (r *Registry[T]) SetOverride(original, typeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides[original] = typeName
}

// IsRegistered tells if a constructor exists for typeName.
func (r *Registry[T]) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.constructors[typeName]

	return ok
}

// TypeNames returns all registered names in sorted order.
func (r *Registry[T]) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Create builds an object of typeName, following overrides.
func (r *Registry[T]) Create(typeName, name string) (T, error) {
	r.mu.RLock()
	resolved := r.resolve(typeName)
	c, ok := r.constructors[resolved]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrNotRegistered, "cannot create %q", resolved)
	}

	return c(name), nil
}

func (r *Registry[T]) resolve(typeName string) string {
	seen := map[string]bool{}

	for {
		next, ok := r.overrides[typeName]
		if !ok || seen[typeName] {
			return typeName
		}

		seen[typeName] = true
		typeName = next
	}
}
