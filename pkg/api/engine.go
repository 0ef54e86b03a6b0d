package api

import (
	"context"
	"errors"
	"time"
)

// ErrEngineInit is wrapped by engine construction failures (unreachable
// runtime, invalid manifest, broken persistence).
var ErrEngineInit = errors.New("engine initialization failed")

// ErrDisposed is wrapped by operations invoked after Dispose.
var ErrDisposed = errors.New("engine disposed")

// CancelFunc stops an engine-side subscription: no further callback
// invocations occur (modulo one already in flight) and engine resources are
// released. Safe to call more than once.
type CancelFunc func()

// Info describes the engine instance.
type Info struct {
	NodeID  string
	AppID   string
	Version string
}

// PondState is the engine's process-wide aggregation state.
type PondState struct {
	// ActiveFish lists the IDs of fish with a live aggregation.
	ActiveFish []string
}

// ConnectivityStatus classifies the node's connection to the swarm.
type ConnectivityStatus string

const (
	FullyConnected     ConnectivityStatus = "fully-connected"
	PartiallyConnected ConnectivityStatus = "partially-connected"
	NotConnected       ConnectivityStatus = "not-connected"
)

// Connectivity is a snapshot of the node's swarm connection.
type Connectivity struct {
	Status ConnectivityStatus
	Since  time.Time
}

// ConnectivityParams configures GetNodeConnectivity. The engine keeps
// invoking Callback for the lifetime of the engine; there is no
// deregistration handle.
type ConnectivityParams struct {
	Callback func(Connectivity)
}

// SyncProgress reports how far swarm synchronization has come.
type SyncProgress struct {
	// Synced counts event sources caught up so far; Total is the number
	// of sources the swarm holds history for.
	Synced int
	Total  int
}

// SyncParams configures WaitForSwarmSync. OnProgress fires zero or more
// times, then OnComplete fires exactly once. Neither is invoked again
// afterwards. There is no error path and no deregistration handle.
type SyncParams struct {
	OnProgress func(SyncProgress)
	OnComplete func()
}

// Engine is the callback-based engine surface the brook facade wraps. All
// methods are safe for concurrent use. Callbacks may be invoked from engine
// goroutines; for a single registration they are invoked sequentially, in
// causal order.
type Engine interface {
	// Emit appends one tagged event. The effect is triggered by the call
	// itself; the returned PendingOp resolves once the event is durable
	// locally. It cannot be aborted.
	Emit(tags []Tag, payload any) PendingOp

	// Run executes a conditional effect against the fish's current state.
	// Events enqueued by the effect are appended atomically. Effects are
	// serialized locally. The returned PendingOp resolves once the
	// enqueued events are durable; it cannot be aborted.
	Run(fish FishDef, effect EffectFn) PendingOp

	// Observe feeds onNext the fish's current state and then every
	// strictly newer state, 1:1 with no gaps. Aggregations are cached by
	// fish ID. onErr, if non-nil, receives a terminal failure of the
	// derived-state computation; no further invocations follow it.
	Observe(fish FishDef, onNext func(state any), onErr func(error)) CancelFunc

	// ObserveAll tracks every fish derived (via factory) from events
	// matching seed and feeds onNext one snapshot of all tracked states
	// per update. There is no error callback on this surface.
	ObserveAll(seed TagSelector, factory FishFactory, opts ObserveAllOpts, onNext func(states []any)) CancelFunc

	// ObserveOne waits for the first event matching seed, derives a fish
	// from it, and then behaves like Observe.
	ObserveOne(seed TagSelector, factory FishFactory, onNext func(state any), onErr func(error)) CancelFunc

	// KeepRunning re-runs effect against the fish's state every time the
	// state changes, until autoCancel (if non-nil) returns true or the
	// returned handle is invoked.
	KeepRunning(fish FishDef, effect EffectFn, autoCancel func(state any) bool) CancelFunc

	// Events exposes the event-query surface.
	Events() EventFns

	// Dispose shuts the engine down. Idempotent. Live subscriptions stop
	// receiving callbacks.
	Dispose()

	// Info returns static information about this engine instance.
	Info() Info

	// GetPondState feeds onNext the current aggregation state and every
	// later change. No deregistration handle; delivery stops at Dispose.
	GetPondState(onNext func(PondState))

	// GetNodeConnectivity behaves like GetPondState for swarm
	// connectivity.
	GetNodeConnectivity(params ConnectivityParams)

	// WaitForSwarmSync reports progress of catching up with peer-held
	// event history and signals completion exactly once. If sync already
	// completed, recorded progress is replayed and OnComplete fires
	// immediately.
	WaitForSwarmSync(params SyncParams)
}

// EventFns is the engine's event-query surface.
//
// One-shot queries take a context and block until resolved, like awaiting a
// promise. Chunked queries deliberately take no context: the underlying
// primitive has no stop mechanism, so once started a chunked scan always
// runs to its end.
type EventFns interface {
	// CurrentOffsets returns the per-stream offsets presently known.
	CurrentOffsets(ctx context.Context) (OffsetMap, error)

	// QueryKnownRange returns all events in the bounded range, ordered
	// per q.Order.
	QueryKnownRange(ctx context.Context, q RangeQuery) ([]Event, error)

	// QueryKnownRangeChunked delivers the bounded range in chunks of at
	// most chunkSize events and returns after the final chunk. The scan
	// cannot be stopped once started.
	QueryKnownRangeChunked(q RangeQuery, chunkSize int, onChunk func(EventChunk)) error

	// QueryAllKnown returns all matching events up to the present upper
	// bound, which is included in the response.
	QueryAllKnown(ctx context.Context, q AutoCappedQuery) (QueryResponse, error)

	// QueryAllKnownChunked is the chunked form of QueryAllKnown. The scan
	// cannot be stopped once started.
	QueryAllKnownChunked(q AutoCappedQuery, chunkSize int, onChunk func(EventChunk)) error

	// Subscribe delivers all known matching events from q.From onward,
	// then live events as they arrive. Never ends on its own.
	Subscribe(q SubscribeQuery, onChunk func(EventChunk)) CancelFunc

	// ObserveEarliest feeds onNext the earliest known matching event, and
	// again whenever an earlier one becomes known.
	ObserveEarliest(q AutoCappedQuery, onNext func(Event)) CancelFunc

	// ObserveLatest feeds onNext the latest known matching event, and
	// again whenever a later one arrives.
	ObserveLatest(q AutoCappedQuery, onNext func(Event)) CancelFunc

	// ObserveBestMatch keeps the event preferred by better (true when
	// candidate beats current) and feeds onNext each time the best
	// changes.
	ObserveBestMatch(q AutoCappedQuery, better func(candidate, current Event) bool, onNext func(Event)) CancelFunc

	// ObserveUnorderedReduce folds every matching event into an
	// accumulator, in arrival order (no ordering guarantee across
	// sources), feeding onNext each new accumulator value.
	ObserveUnorderedReduce(q AutoCappedQuery, reduce func(acc any, ev Event) any, initial any, onNext func(acc any)) CancelFunc

	// Emit appends the given tagged events atomically.
	Emit(ctx context.Context, events []TaggedEvent) error
}
