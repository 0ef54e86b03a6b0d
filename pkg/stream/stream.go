package stream

import "sync"

// CancelFunc unsubscribes from a stream. It is safe to call more than once;
// calls after the first are no-ops.
type CancelFunc func()

// Subscriber receives stream signals. All fields are optional; a nil field
// means the corresponding signal is discarded.
type Subscriber[T any] struct {
	// Next is invoked once per emitted value, in emission order.
	Next func(T)

	// Err is invoked at most once, as a terminal signal. No further
	// signals follow.
	Err func(error)

	// Done is invoked at most once, as a terminal signal. No further
	// signals follow.
	Done func()
}

// Stream is a push-based sequence of values with an optional terminal signal.
type Stream[T any] interface {
	// Subscribe attaches sub and returns a handle that detaches it again.
	// Whether subscribing triggers underlying work depends on the stream:
	// cold streams register with their source per subscription, hot singles
	// merely attach to work that is already running.
	Subscribe(sub Subscriber[T]) CancelFunc
}

// New builds a cold stream from a registration function.
//
// register is invoked once per subscription with an Emitter bound to that
// subscription. It should hook the emitter up to the underlying callback
// source and return the source's deregistration handle, or nil if the source
// has none. The handle is invoked exactly once: either when the subscriber
// unsubscribes or when the emitter delivers a terminal signal.
//
// register may emit synchronously, before it returns.
func New[T any](register func(em *Emitter[T]) CancelFunc) Stream[T] {
	return coldStream[T]{register: register}
}

type coldStream[T any] struct {
	register func(em *Emitter[T]) CancelFunc
}

func (c coldStream[T]) Subscribe(sub Subscriber[T]) CancelFunc {
	em := &Emitter[T]{sub: sub}
	detach := c.register(em)
	em.setDetach(detach)
	return em.stop
}

// Emitter pushes signals from an underlying callback source into a single
// subscription. It is safe for concurrent use; the source may invoke it from
// any goroutine.
type Emitter[T any] struct {
	mu      sync.Mutex
	sub     Subscriber[T]
	stopped bool
	// detach is the source's deregistration handle. detachKnown separates
	// "no handle yet" from "source returned nil".
	detach      CancelFunc
	detachKnown bool
	detachDone  bool
}

// Emit delivers one value to the subscriber. It is a no-op once the
// subscription has stopped.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	next := e.sub.Next
	e.mu.Unlock()

	if next != nil {
		next(v)
	}
}

// Fail delivers a terminal error and stops the subscription.
func (e *Emitter[T]) Fail(err error) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	fail := e.sub.Err
	detach := e.takeDetachLocked()
	e.mu.Unlock()

	if fail != nil {
		fail(err)
	}
	if detach != nil {
		detach()
	}
}

// Close delivers the terminal completion signal and stops the subscription.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	done := e.sub.Done
	detach := e.takeDetachLocked()
	e.mu.Unlock()

	if done != nil {
		done()
	}
	if detach != nil {
		detach()
	}
}

// Stopped reports whether the subscription has terminated or been cancelled.
// Sources without a deregistration handle can poll this to stop delivering.
func (e *Emitter[T]) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// stop cancels the subscription: no further signals are delivered and the
// source's deregistration handle is invoked, if there is one.
func (e *Emitter[T]) stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	detach := e.takeDetachLocked()
	e.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// setDetach records the deregistration handle once register has produced it.
// If the subscription already terminated while register was still running
// (a synchronous Fail/Close), the handle is invoked immediately.
func (e *Emitter[T]) setDetach(detach CancelFunc) {
	e.mu.Lock()
	e.detach = detach
	e.detachKnown = true
	runNow := e.stopped && !e.detachDone
	if runNow {
		e.detachDone = true
	}
	e.mu.Unlock()

	if runNow && detach != nil {
		detach()
	}
}

func (e *Emitter[T]) takeDetachLocked() CancelFunc {
	if !e.detachKnown || e.detachDone {
		return nil
	}
	e.detachDone = true
	return e.detach
}
