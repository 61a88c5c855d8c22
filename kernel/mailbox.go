package kernel

// A Mailbox is a FIFO queue between processes. A bound of zero makes it
// unbounded.
type Mailbox[T any] struct {
	bound    int
	items    []T
	notEmpty *Notifier
	notFull  *Notifier
}

// NewMailbox creates a mailbox that holds at most bound items.
func NewMailbox[T any](s *Scheduler, bound int) *Mailbox[T] {
	if bound < 0 {
		panic("kernel: negative mailbox bound")
	}

	return &Mailbox[T]{
		bound:    bound,
		notEmpty: NewNotifier(s),
		notFull:  NewNotifier(s),
	}
}

// Num returns the number of items in the mailbox.
func (m *Mailbox[T]) Num() int {
	return len(m.items)
}

// Put adds v, blocking while the mailbox is full.
func (m *Mailbox[T]) Put(v T) {
	for m.full() {
		m.notFull.Wait()
	}

	m.push(v)
}

// TryPut adds v if there is room.
func (m *Mailbox[T]) TryPut(v T) bool {
	if m.full() {
		return false
	}

	m.push(v)

	return true
}

// Get removes the oldest item, blocking while the mailbox is empty.
func (m *Mailbox[T]) Get() T {
	for len(m.items) == 0 {
		m.notEmpty.Wait()
	}

	return m.pop()
}

// TryGet removes the oldest item if there is one.
func (m *Mailbox[T]) TryGet() (T, bool) {
	if len(m.items) == 0 {
		var zero T
		return zero, false
	}

	return m.pop(), true
}

// Peek returns the oldest item without removing it, blocking while the
// mailbox is empty.
func (m *Mailbox[T]) Peek() T {
	for len(m.items) == 0 {
		m.notEmpty.Wait()
	}

	return m.items[0]
}

// TryPeek returns the oldest item if there is one.
func (m *Mailbox[T]) TryPeek() (T, bool) {
	if len(m.items) == 0 {
		var zero T
		return zero, false
	}

	return m.items[0], true
}

func (m *Mailbox[T]) full() bool {
	return m.bound > 0 && len(m.items) >= m.bound
}

func (m *Mailbox[T]) push(v T) {
	m.items = append(m.items, v)
	m.notEmpty.Notify()
}

func (m *Mailbox[T]) pop() T {
	v := m.items[0]

	var zero T
	m.items[0] = zero
	m.items = m.items[1:]

	m.notFull.Notify()

	return v
}
