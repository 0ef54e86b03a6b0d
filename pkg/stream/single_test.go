package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingle_DeliversOutcomeToEveryWaiter(t *testing.T) {
	t.Parallel()

	s, resolve, _ := NewSingle[string]()

	var a, b []string
	doneA, doneB := 0, 0
	s.Subscribe(Subscriber[string]{Next: func(v string) { a = append(a, v) }, Done: func() { doneA++ }})
	s.Subscribe(Subscriber[string]{Next: func(v string) { b = append(b, v) }, Done: func() { doneB++ }})

	resolve("ok")

	require.Equal(t, []string{"ok"}, a)
	require.Equal(t, []string{"ok"}, b)
	require.Equal(t, 1, doneA)
	require.Equal(t, 1, doneB)
}

func TestSingle_LateSubscriberGetsValueImmediately(t *testing.T) {
	t.Parallel()

	s, resolve, _ := NewSingle[int]()
	resolve(7)

	var got []int
	done := 0
	s.Subscribe(Subscriber[int]{Next: func(v int) { got = append(got, v) }, Done: func() { done++ }})

	require.Equal(t, []int{7}, got, "a subscriber attaching after completion still receives the value")
	require.Equal(t, 1, done)
}

func TestSingle_RejectDeliversTerminalError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s, _, reject := NewSingle[int]()

	var errs []error
	done := 0
	s.Subscribe(Subscriber[int]{
		Err:  func(err error) { errs = append(errs, err) },
		Done: func() { done++ },
	})
	reject(boom)

	require.Equal(t, []error{boom}, errs)
	require.Zero(t, done, "no completion follows a rejection")

	// Late subscribers see the same rejection.
	var late []error
	s.Subscribe(Subscriber[int]{Err: func(err error) { late = append(late, err) }})
	require.Equal(t, []error{boom}, late)
}

func TestSingle_OnlyFirstSettleCounts(t *testing.T) {
	t.Parallel()

	s, resolve, reject := NewSingle[int]()

	var got []int
	var errs []error
	s.Subscribe(Subscriber[int]{
		Next: func(v int) { got = append(got, v) },
		Err:  func(err error) { errs = append(errs, err) },
	})

	resolve(1)
	resolve(2)
	reject(errors.New("too late"))

	require.Equal(t, []int{1}, got)
	require.Empty(t, errs)
}

func TestSingle_CancelDetachesLocallyOnly(t *testing.T) {
	t.Parallel()

	s, resolve, _ := NewSingle[int]()

	var detachedSide, attachedSide []int
	cancel := s.Subscribe(Subscriber[int]{Next: func(v int) { detachedSide = append(detachedSide, v) }})
	s.Subscribe(Subscriber[int]{Next: func(v int) { attachedSide = append(attachedSide, v) }})

	cancel()
	resolve(9)

	require.Empty(t, detachedSide, "a cancelled waiter receives nothing")
	require.Equal(t, []int{9}, attachedSide, "the work itself is not aborted by a cancellation")
}
