// Package engine provides an in-process reference implementation of the
// api.Engine boundary: an append-only tagged event log with cached fish
// aggregations, live event subscriptions, and optional write-through
// persistence of the log via an eventlog.Store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/brook/internal/eventlog"
	"github.com/petrijr/brook/pkg/api"
)

// Config describes how to construct an Engine.
type Config struct {
	Manifest api.Manifest

	// Store, if non-nil, receives every appended event and is replayed on
	// startup. Nil means the log lives in memory only.
	Store eventlog.Store

	// Conn is validated at construction. The in-process engine holds no
	// real runtime connection, so OnConnectionLost is never invoked.
	Conn    api.ConnectionOptions
	Options api.EngineOptions
}

// Engine is the in-process engine. Use New to construct one.
type Engine struct {
	mu sync.Mutex

	manifest api.Manifest
	nodeID   string
	streamID string
	logger   *slog.Logger
	reporter func(err error, fishID string)
	store    eventlog.Store

	log     []api.Event
	offsets api.OffsetMap
	lamport uint64

	aggs       map[string]*aggregation
	pendingOne map[int]*oneWatcher
	allWatch   map[int]*allWatcher
	liveSubs   map[int]*liveSub
	stateFns   []func(api.PondState)
	connFns    []func(api.Connectivity)
	nextID     int

	conn     api.Connectivity
	syncLog  []api.SyncProgress
	disposed bool

	// Dispatch queue. Callbacks are never invoked while mu is held; the
	// active dispatcher drains tasks in order, which keeps delivery order
	// identical to append order even across re-entrant emissions.
	tasks       []func()
	dispatching bool

	// effectMu serializes conditional effects (Run, KeepRunning): each
	// effect sees a state that reflects every earlier local effect.
	effectMu sync.Mutex
}

var _ api.Engine = (*Engine)(nil)

// New constructs an Engine, replaying cfg.Store (if any) to rebuild the
// event log. Construction failures wrap api.ErrEngineInit.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Manifest.AppID == "" {
		return nil, fmt.Errorf("%w: manifest app id is required", api.ErrEngineInit)
	}
	if cfg.Conn.Port < 0 || cfg.Conn.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %d", api.ErrEngineInit, cfg.Conn.Port)
	}

	logger := cfg.Options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		manifest:   cfg.Manifest,
		nodeID:     uuid.NewString(),
		streamID:   uuid.NewString(),
		logger:     logger,
		store:      cfg.Store,
		offsets:    make(api.OffsetMap),
		aggs:       make(map[string]*aggregation),
		pendingOne: make(map[int]*oneWatcher),
		allWatch:   make(map[int]*allWatcher),
		liveSubs:   make(map[int]*liveSub),
		conn: api.Connectivity{
			Status: api.FullyConnected,
			Since:  time.Now(),
		},
	}

	e.reporter = cfg.Options.FishErrorReporter
	if e.reporter == nil {
		e.reporter = func(err error, fishID string) {
			logger.Error("fish state computation failed",
				slog.String("fish_id", fishID),
				slog.Any("error", err),
			)
		}
	}

	if cfg.Store != nil {
		if err := e.replay(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrEngineInit, err)
		}
	}

	return e, nil
}

// replay loads the durable log and records sync progress snapshots, one per
// event source caught up. WaitForSwarmSync hands these out later.
func (e *Engine) replay(ctx context.Context) error {
	recs, err := e.store.List(ctx)
	if err != nil {
		return err
	}

	perStream := make(map[string]int)
	var order []string
	for _, r := range recs {
		payload, err := eventlog.DecodePayload(r.Payload)
		if err != nil {
			return err
		}
		tags := make([]api.Tag, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = api.Tag(t)
		}
		e.log = append(e.log, api.Event{
			ID:        r.ID,
			Lamport:   r.Lamport,
			Stream:    r.Stream,
			Offset:    r.Offset,
			Timestamp: time.Unix(0, r.UnixNanos),
			Tags:      tags,
			Payload:   payload,
		})
		if cur, ok := e.offsets[r.Stream]; !ok || r.Offset > cur {
			e.offsets[r.Stream] = r.Offset
		}
		if r.Lamport > e.lamport {
			e.lamport = r.Lamport
		}
		if _, seen := perStream[r.Stream]; !seen {
			order = append(order, r.Stream)
		}
		perStream[r.Stream]++
	}

	for i := range order {
		e.syncLog = append(e.syncLog, api.SyncProgress{
			Synced: i + 1,
			Total:  len(order),
		})
	}

	return nil
}

// draft is an event that has not been assigned log coordinates yet.
type draft struct {
	tags    []api.Tag
	payload any
}

// append assigns log coordinates to the drafts, persists them, updates every
// aggregation and live subscription, and queues the resulting callback
// deliveries. The returned op resolves once the batch's deliveries ran.
func (e *Engine) append(drafts []draft) *pendingOp {
	op := newPendingOp()

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		e.logger.Warn("emit on disposed engine dropped")
		// A disposed engine never confirms the work.
		return op
	}

	now := time.Now()
	events := make([]api.Event, len(drafts))
	recs := make([]eventlog.Record, 0, len(drafts))
	for i, d := range drafts {
		e.lamport++
		e.offsets[e.streamID]++
		ev := api.Event{
			ID:        uuid.NewString(),
			Lamport:   e.lamport,
			Stream:    e.streamID,
			Offset:    e.offsets[e.streamID],
			Timestamp: now,
			Tags:      d.tags,
			Payload:   d.payload,
		}
		events[i] = ev
		e.log = append(e.log, ev)

		if e.store != nil {
			payload, err := eventlog.EncodePayload(d.payload)
			if err != nil {
				e.logger.Error("event payload not persistable",
					slog.String("event_id", ev.ID),
					slog.Any("error", err),
				)
				continue
			}
			tags := make([]string, len(d.tags))
			for j, t := range d.tags {
				tags[j] = string(t)
			}
			recs = append(recs, eventlog.Record{
				ID:        ev.ID,
				Lamport:   ev.Lamport,
				Stream:    ev.Stream,
				Offset:    ev.Offset,
				UnixNanos: now.UnixNano(),
				Tags:      tags,
				Payload:   payload,
			})
		}
	}

	if e.store != nil && len(recs) > 0 {
		if err := e.store.Append(context.Background(), recs); err != nil {
			e.logger.Error("event log write-through failed", slog.Any("error", err))
		}
	}

	for _, ev := range events {
		e.routeLocked(ev)
	}
	e.enqueueLocked(op.resolve)
	e.drainLocked()
	e.mu.Unlock()

	return op
}

// enqueueLocked queues callback work. Caller must hold mu.
func (e *Engine) enqueueLocked(fns ...func()) {
	e.tasks = append(e.tasks, fns...)
}

// drainLocked runs queued tasks in order with mu released. Caller must hold
// mu; it is held again on return. If another goroutine is already draining,
// the queued work is left for it.
func (e *Engine) drainLocked() {
	if e.dispatching {
		return
	}
	e.dispatching = true
	for len(e.tasks) > 0 {
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()
		task()
		e.mu.Lock()
	}
	e.dispatching = false
}

func (e *Engine) nextIDLocked() int {
	e.nextID++
	return e.nextID
}

// Emit appends one tagged event. See api.Engine.
func (e *Engine) Emit(tags []api.Tag, payload any) api.PendingOp {
	return e.append([]draft{{tags: tags, payload: payload}})
}

// Run executes a conditional effect against the fish's current state. See
// api.Engine.
func (e *Engine) Run(fish api.FishDef, effect api.EffectFn) api.PendingOp {
	e.effectMu.Lock()
	defer e.effectMu.Unlock()

	e.mu.Lock()
	state := e.currentStateLocked(fish)
	e.mu.Unlock()

	var drafts []draft
	effect(state, func(tags []api.Tag, payload any) {
		drafts = append(drafts, draft{tags: tags, payload: payload})
	})

	if len(drafts) == 0 {
		op := newPendingOp()
		op.resolve()
		return op
	}
	return e.append(drafts)
}

// currentStateLocked computes the fish's present state: the cached
// aggregation if one is live, otherwise a one-off fold over the log.
func (e *Engine) currentStateLocked(fish api.FishDef) any {
	if agg, ok := e.aggs[fish.ID]; ok && agg.failed == nil {
		return agg.state
	}
	state := fish.Initial
	for _, ev := range e.log {
		if !fish.Where.Matches(ev.Tags) {
			continue
		}
		next, err := e.fold(fish, state, ev)
		if err != nil {
			// The effect still runs, against the last good state.
			break
		}
		state = next
	}
	return state
}

// fold applies one event to a fish state, converting a panic in the fold
// function into an error reported through the configured reporter.
func (e *Engine) fold(fish api.FishDef, state any, ev api.Event) (next any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fish %s: OnEvent panic: %v", fish.ID, r)
			e.reporter(err, fish.ID)
		}
	}()
	return fish.OnEvent(state, ev), nil
}

// Dispose shuts the engine down. See api.Engine.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.conn = api.Connectivity{Status: api.NotConnected, Since: time.Now()}

	// Connectivity watchers learn about the shutdown; everything else
	// simply stops receiving callbacks.
	conn := e.conn
	for _, fn := range e.connFns {
		fn := fn
		e.enqueueLocked(func() { fn(conn) })
	}

	e.aggs = make(map[string]*aggregation)
	e.pendingOne = make(map[int]*oneWatcher)
	e.allWatch = make(map[int]*allWatcher)
	e.liveSubs = make(map[int]*liveSub)
	e.stateFns = nil
	e.connFns = nil

	e.drainLocked()
	e.mu.Unlock()
}

// Info returns static information about this engine instance.
func (e *Engine) Info() api.Info {
	return api.Info{
		NodeID:  e.nodeID,
		AppID:   e.manifest.AppID,
		Version: e.manifest.Version,
	}
}

// GetPondState feeds onNext the current aggregation state and every later
// change. See api.Engine.
func (e *Engine) GetPondState(onNext func(api.PondState)) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.stateFns = append(e.stateFns, onNext)
	state := e.pondStateLocked()
	e.enqueueLocked(func() { onNext(state) })
	e.drainLocked()
	e.mu.Unlock()
}

func (e *Engine) pondStateLocked() api.PondState {
	ids := make([]string, 0, len(e.aggs))
	for id := range e.aggs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return api.PondState{ActiveFish: ids}
}

// notifyPondStateLocked queues a state update for every registered watcher.
func (e *Engine) notifyPondStateLocked() {
	if len(e.stateFns) == 0 {
		return
	}
	state := e.pondStateLocked()
	for _, fn := range e.stateFns {
		fn := fn
		e.enqueueLocked(func() { fn(state) })
	}
}

// GetNodeConnectivity feeds the callback the current connectivity and every
// later change. See api.Engine.
func (e *Engine) GetNodeConnectivity(params api.ConnectivityParams) {
	if params.Callback == nil {
		return
	}
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.connFns = append(e.connFns, params.Callback)
	conn := e.conn
	e.enqueueLocked(func() { params.Callback(conn) })
	e.drainLocked()
	e.mu.Unlock()
}

// WaitForSwarmSync replays the recorded startup progress and signals
// completion. The in-process engine finishes catching up during New, so the
// signals fire as soon as the dispatch queue reaches them.
func (e *Engine) WaitForSwarmSync(params api.SyncParams) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	for _, p := range e.syncLog {
		p := p
		if params.OnProgress != nil {
			e.enqueueLocked(func() { params.OnProgress(p) })
		}
	}
	if params.OnComplete != nil {
		e.enqueueLocked(params.OnComplete)
	}
	e.drainLocked()
	e.mu.Unlock()
}
