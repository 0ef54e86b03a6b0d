package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrNoValue is returned by First when the stream completes without
// emitting anything.
var ErrNoValue = errors.New("stream: completed without a value")

// Collect subscribes to s and accumulates every emitted value until the
// stream terminates or ctx is cancelled. On a terminal error, the values
// collected so far are returned together with that error. On ctx
// cancellation the subscription is cancelled and ctx.Err() is returned.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	var (
		mu  sync.Mutex
		out []T
	)
	done := make(chan error, 1)

	cancel := s.Subscribe(Subscriber[T]{
		Next: func(v T) {
			mu.Lock()
			out = append(out, v)
			mu.Unlock()
		},
		Err:  func(err error) { signal(done, err) },
		Done: func() { signal(done, nil) },
	})
	defer cancel()

	select {
	case err := <-done:
		mu.Lock()
		defer mu.Unlock()
		return out, err
	case <-ctx.Done():
		cancel()
		mu.Lock()
		defer mu.Unlock()
		return out, ctx.Err()
	}
}

// Take subscribes to s, waits for the first n values, then unsubscribes.
// If the stream terminates early, the values seen so far are returned
// (with the terminal error, if any).
func Take[T any](ctx context.Context, s Stream[T], n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}

	var (
		mu  sync.Mutex
		out []T
	)
	done := make(chan error, 1)

	cancel := s.Subscribe(Subscriber[T]{
		Next: func(v T) {
			mu.Lock()
			if len(out) < n {
				out = append(out, v)
				if len(out) == n {
					signal(done, nil)
				}
			}
			mu.Unlock()
		},
		Err:  func(err error) { signal(done, err) },
		Done: func() { signal(done, nil) },
	})
	defer cancel()

	select {
	case err := <-done:
		cancel()
		mu.Lock()
		defer mu.Unlock()
		return out, err
	case <-ctx.Done():
		cancel()
		mu.Lock()
		defer mu.Unlock()
		return out, ctx.Err()
	}
}

// First returns the first value s emits. If s completes without emitting,
// ErrNoValue is returned.
func First[T any](ctx context.Context, s Stream[T]) (T, error) {
	var zero T
	vals, err := Take(ctx, s, 1)
	if err != nil {
		return zero, err
	}
	if len(vals) == 0 {
		return zero, ErrNoValue
	}
	return vals[0], nil
}

// Map returns a stream that emits f applied to each value of s. Terminal
// signals and cancellation pass through unchanged.
func Map[T, U any](s Stream[T], f func(T) U) Stream[U] {
	return mapStream[T, U]{src: s, f: f}
}

type mapStream[T, U any] struct {
	src Stream[T]
	f   func(T) U
}

func (m mapStream[T, U]) Subscribe(sub Subscriber[U]) CancelFunc {
	return m.src.Subscribe(Subscriber[T]{
		Next: func(v T) {
			if sub.Next != nil {
				sub.Next(m.f(v))
			}
		},
		Err:  sub.Err,
		Done: sub.Done,
	})
}

// signal delivers the terminal outcome without blocking. Only the first
// outcome matters; later ones are dropped.
func signal(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
