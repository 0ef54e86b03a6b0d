package brook

import (
	"context"

	"github.com/petrijr/brook/pkg/api"
	"github.com/petrijr/brook/pkg/stream"
)

// Events mirrors the engine's event-query surface as streams. Obtain it via
// (*Pond).Events.
//
// One-shot queries become cold streams that emit the single resolved value
// and complete; each subscription invokes the underlying query once, and
// unsubscribing cancels the in-flight call's context. Open-ended
// subscriptions become cold streams that never complete on their own.
// Chunked queries emit once per chunk and complete after the final chunk,
// but cannot forward cancellation: the engine's chunked-scan primitive has
// no stop mechanism, so unsubscribing stops local delivery only while the
// scan finishes internally.
type Events struct {
	fns api.EventFns
}

// CurrentOffsets returns a stream emitting the per-stream offsets presently
// known, then completing.
func (e *Events) CurrentOffsets() stream.Stream[api.OffsetMap] {
	return oneShot(func(ctx context.Context) (api.OffsetMap, error) {
		return e.fns.CurrentOffsets(ctx)
	})
}

// QueryKnownRange returns a stream emitting all events of the bounded range
// as one slice, then completing.
func (e *Events) QueryKnownRange(q api.RangeQuery) stream.Stream[[]api.Event] {
	return oneShot(func(ctx context.Context) ([]api.Event, error) {
		return e.fns.QueryKnownRange(ctx, q)
	})
}

// QueryAllKnown returns a stream emitting all matching events up to the
// present upper bound, then completing.
func (e *Events) QueryAllKnown(q api.AutoCappedQuery) stream.Stream[api.QueryResponse] {
	return oneShot(func(ctx context.Context) (api.QueryResponse, error) {
		return e.fns.QueryAllKnown(ctx, q)
	})
}

// QueryKnownRangeChunked returns a stream emitting the bounded range in
// chunks of at most chunkSize events, completing after the final chunk.
//
// Cancellation is not forwarded: once the subscription has started the
// engine scan, unsubscribing only stops local delivery — the engine
// completes the full scan internally. This mirrors the engine surface,
// which offers no mid-scan stop.
func (e *Events) QueryKnownRangeChunked(q api.RangeQuery, chunkSize int) stream.Stream[api.EventChunk] {
	return chunked(func(onChunk func(api.EventChunk)) error {
		return e.fns.QueryKnownRangeChunked(q, chunkSize, onChunk)
	})
}

// QueryAllKnownChunked is the chunked form of QueryAllKnown, with the same
// cancellation limitation as QueryKnownRangeChunked.
func (e *Events) QueryAllKnownChunked(q api.AutoCappedQuery, chunkSize int) stream.Stream[api.EventChunk] {
	return chunked(func(onChunk func(api.EventChunk)) error {
		return e.fns.QueryAllKnownChunked(q, chunkSize, onChunk)
	})
}

// Subscribe returns a cold stream of event chunks: all known matching
// events from q.From onward, then live events as they arrive. The stream
// never completes on its own; unsubscribing releases the engine-side
// subscription.
func (e *Events) Subscribe(q api.SubscribeQuery) stream.Stream[api.EventChunk] {
	return stream.New(func(em *stream.Emitter[api.EventChunk]) stream.CancelFunc {
		return stream.CancelFunc(e.fns.Subscribe(q, em.Emit))
	})
}

// ObserveEarliest returns a cold stream of the earliest known matching
// event, re-emitting whenever an earlier one becomes known. Never completes
// on its own, never errors.
func (e *Events) ObserveEarliest(q api.AutoCappedQuery) stream.Stream[api.Event] {
	return stream.New(func(em *stream.Emitter[api.Event]) stream.CancelFunc {
		return stream.CancelFunc(e.fns.ObserveEarliest(q, em.Emit))
	})
}

// ObserveLatest is ObserveEarliest's counterpart for the latest matching
// event.
func (e *Events) ObserveLatest(q api.AutoCappedQuery) stream.Stream[api.Event] {
	return stream.New(func(em *stream.Emitter[api.Event]) stream.CancelFunc {
		return stream.CancelFunc(e.fns.ObserveLatest(q, em.Emit))
	})
}

// ObserveBestMatch returns a cold stream of the event preferred by better
// (true when candidate beats current), re-emitting each time the best
// changes.
func (e *Events) ObserveBestMatch(q api.AutoCappedQuery, better func(candidate, current api.Event) bool) stream.Stream[api.Event] {
	return stream.New(func(em *stream.Emitter[api.Event]) stream.CancelFunc {
		return stream.CancelFunc(e.fns.ObserveBestMatch(q, better, em.Emit))
	})
}

// ObserveUnorderedReduce folds every matching event into an accumulator in
// arrival order and returns a cold stream of accumulator values, starting
// with the fold over all known events.
func ObserveUnorderedReduce[R any](e *Events, q api.AutoCappedQuery, reduce func(acc R, ev api.Event) R, initial R) stream.Stream[R] {
	return stream.New(func(em *stream.Emitter[R]) stream.CancelFunc {
		cancel := e.fns.ObserveUnorderedReduce(q,
			func(acc any, ev api.Event) any {
				r, ok := acc.(R)
				if !ok {
					r = initial
				}
				return reduce(r, ev)
			},
			initial,
			func(acc any) {
				if r, ok := acc.(R); ok {
					em.Emit(r)
				}
			},
		)
		return stream.CancelFunc(cancel)
	})
}

// Emit appends the given tagged events atomically. Like Pond.Emit, the
// returned stream is hot: the emission starts at call time, and the stream
// delivers a single unit value on confirmation — or a terminal error if the
// engine rejects the write.
func (e *Events) Emit(events ...api.TaggedEvent) stream.Stream[struct{}] {
	s, resolve, reject := stream.NewSingle[struct{}]()
	go func() {
		if err := e.fns.Emit(context.Background(), events); err != nil {
			reject(err)
			return
		}
		resolve(struct{}{})
	}()
	return s
}

// oneShot wraps a blocking single-result call as a cold stream: each
// subscription runs the call once; unsubscribing cancels its context.
func oneShot[T any](call func(context.Context) (T, error)) stream.Stream[T] {
	return stream.New(func(em *stream.Emitter[T]) stream.CancelFunc {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer cancel()
			v, err := call(ctx)
			if err != nil {
				em.Fail(err)
				return
			}
			em.Emit(v)
			em.Close()
		}()
		return func() { cancel() }
	})
}

// chunked wraps a run-to-completion chunk scan as a cold stream. The scan
// starts per subscription but cannot be stopped once running.
func chunked(scan func(onChunk func(api.EventChunk)) error) stream.Stream[api.EventChunk] {
	return stream.New(func(em *stream.Emitter[api.EventChunk]) stream.CancelFunc {
		go func() {
			if err := scan(em.Emit); err != nil {
				em.Fail(err)
				return
			}
			em.Close()
		}()
		// No deregistration to forward; cancellation stops local
		// delivery only.
		return nil
	})
}
