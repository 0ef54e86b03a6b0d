package stream

import "sync"

// Single is a hot stream of exactly one outcome: a value followed by Done, or
// a terminal error. The work producing the outcome is already in flight when
// the Single is created; subscribing never re-triggers it, and unsubscribing
// never aborts it. A subscriber that attaches after the outcome is known
// receives it immediately.
type Single[T any] struct {
	mu       sync.Mutex
	resolved bool
	value    T
	err      error
	nextID   int
	waiters  map[int]Subscriber[T]
}

// NewSingle returns a Single plus its resolve and reject functions. Exactly
// one of resolve/reject may be called, exactly once; later calls are no-ops.
// The caller triggers the underlying work before or right after creating the
// Single and wires its completion to resolve (or reject, for sources with an
// error outcome).
func NewSingle[T any]() (s *Single[T], resolve func(T), reject func(error)) {
	s = &Single[T]{waiters: make(map[int]Subscriber[T])}
	return s, s.resolve, s.reject
}

// Subscribe attaches sub. If the outcome is already known it is delivered
// synchronously. The returned CancelFunc detaches sub locally only; the
// underlying work cannot be aborted.
func (s *Single[T]) Subscribe(sub Subscriber[T]) CancelFunc {
	s.mu.Lock()
	if s.resolved {
		v, err := s.value, s.err
		s.mu.Unlock()
		deliver(sub, v, err)
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.waiters[id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}
}

func (s *Single[T]) resolve(v T) {
	s.settle(v, nil)
}

func (s *Single[T]) reject(err error) {
	var zero T
	s.settle(zero, err)
}

func (s *Single[T]) settle(v T, err error) {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return
	}
	s.resolved = true
	s.value = v
	s.err = err
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	// Each waiter independently receives the single outcome.
	for _, sub := range waiters {
		deliver(sub, v, err)
	}
}

func deliver[T any](sub Subscriber[T], v T, err error) {
	if err != nil {
		if sub.Err != nil {
			sub.Err(err)
		}
		return
	}
	if sub.Next != nil {
		sub.Next(v)
	}
	if sub.Done != nil {
		sub.Done()
	}
}
