// Package brook puts a stream-shaped facade on top of a callback-based,
// event-sourced state-management engine.
//
// The engine (see pkg/api) exposes every observation through callbacks:
// derived-state subjects ("fish") report state updates, event queries
// deliver chunks, effects confirm completion. Brook converts each of those
// operations into a stream with a well-defined lifecycle — subscription,
// emission, completion, error, cancellation — while preserving the engine's
// semantics exactly. No buffering, retry, deduplication, or reordering is
// added on top.
//
// # Core Concepts
//
//  1. Pond
//  2. Fish
//  3. Streams
//  4. Events
//
// # Pond
//
// A Pond wraps one engine instance and mirrors its surface as streams:
//
//	pond, err := brook.Open(ctx, brook.Manifest{AppID: "com.example.app"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pond.Dispose()
//
//	states := brook.Observe(pond, counterFish)
//	cancel := states.Subscribe(stream.Subscriber[int]{
//	    Next: func(n int) { log.Println("count:", n) },
//	})
//	defer cancel()
//
// Ponds can wrap an existing engine (FromEngine), construct a
// default-configured one (Open), or construct one with explicit connection
// and engine options (OpenWithOptions).
//
// # Hot and cold operations
//
// Emit and Run trigger their engine side effect at call time: the returned
// stream is hot, every subscriber (even a late one) receives the single
// completion value, and unsubscribing never aborts the effect. Observation
// streams are cold: each subscription creates its own engine-side
// registration, and unsubscribing releases it.
//
// One deliberate exception: the chunked query wrappers on Events cannot
// forward cancellation — the engine's chunked-scan primitive has no stop
// mechanism, so unsubscribing only stops local delivery while the scan runs
// to its end internally.
//
// # Fish
//
// Fish[S] is a typed derived-state subject: an identity, an initial state,
// and a fold over matching tagged events. The engine caches aggregations by
// identity, so concurrent observers of the same fish share one aggregation.
//
// # Engines
//
// Any api.Engine implementation can be wrapped. The package ships an
// in-process reference engine, either purely in-memory (NewLocalPond, best
// for tests) or persisting its event log in SQLite (NewSQLitePond).
package brook
