package engine

import (
	"sync"
	"time"

	"github.com/petrijr/brook/pkg/api"
)

// pendingOp is the engine's PendingOp implementation: resolved exactly once,
// no payload.
type pendingOp struct {
	mu   sync.Mutex
	done bool
	fns  []func()
}

func newPendingOp() *pendingOp {
	return &pendingOp{}
}

func (p *pendingOp) WhenDone(fn func()) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		fn()
		return
	}
	p.fns = append(p.fns, fn)
	p.mu.Unlock()
}

func (p *pendingOp) resolve() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	fns := p.fns
	p.fns = nil
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// aggregation is one cached fish aggregation, shared by every observer of
// the same fish ID.
type aggregation struct {
	def    api.FishDef
	state  any
	failed error
	subs   map[int]*fishSub
}

type fishSub struct {
	onNext  func(any)
	onErr   func(error)
	stopped bool
}

// oneWatcher waits for the first seed event, then attaches to the derived
// fish's aggregation.
type oneWatcher struct {
	seed    api.TagSelector
	factory api.FishFactory
	onNext  func(any)
	onErr   func(error)

	// Set once attached.
	sub   *fishSub
	aggID string
	subID int
}

// allWatcher tracks every fish derived from seed-matching events and emits
// array snapshots of their states.
type allWatcher struct {
	seed    api.TagSelector
	factory api.FishFactory
	opts    api.ObserveAllOpts
	onNext  func([]any)
	stopped bool

	fish []*allFish
	have map[string]bool
}

type allFish struct {
	def      api.FishDef
	state    any
	failed   bool
	seededAt time.Time
}

// ensureAggLocked returns the cached aggregation for the fish's ID, creating
// it (with a full replay of the log) on first use. Caller must hold mu.
func (e *Engine) ensureAggLocked(fish api.FishDef) *aggregation {
	if agg, ok := e.aggs[fish.ID]; ok {
		return agg
	}
	agg := &aggregation{
		def:   fish,
		state: fish.Initial,
		subs:  make(map[int]*fishSub),
	}
	for _, ev := range e.log {
		if !fish.Where.Matches(ev.Tags) {
			continue
		}
		next, err := e.fold(fish, agg.state, ev)
		if err != nil {
			agg.failed = err
			break
		}
		agg.state = next
	}
	e.aggs[fish.ID] = agg
	e.notifyPondStateLocked()
	return agg
}

// attachLocked adds a subscriber to the aggregation and queues the initial
// delivery (current state, or the terminal error for a failed aggregation).
// Caller must hold mu.
func (e *Engine) attachLocked(agg *aggregation, onNext func(any), onErr func(error)) (*fishSub, int) {
	sub := &fishSub{onNext: onNext, onErr: onErr}
	id := e.nextIDLocked()
	agg.subs[id] = sub

	if agg.failed != nil {
		err := agg.failed
		e.enqueueLocked(e.deliverErr(sub, err))
	} else {
		e.enqueueLocked(e.deliverState(sub, agg.state))
	}
	return sub, id
}

// detachLocked removes a subscriber, dropping the aggregation when its last
// observer leaves. Caller must hold mu.
func (e *Engine) detachLocked(aggID string, subID int, sub *fishSub) {
	sub.stopped = true
	agg, ok := e.aggs[aggID]
	if !ok {
		return
	}
	delete(agg.subs, subID)
	if len(agg.subs) == 0 {
		delete(e.aggs, aggID)
		e.notifyPondStateLocked()
	}
}

func (e *Engine) deliverState(sub *fishSub, state any) func() {
	return func() {
		e.mu.Lock()
		stopped := sub.stopped
		e.mu.Unlock()
		if stopped || sub.onNext == nil {
			return
		}
		sub.onNext(state)
	}
}

func (e *Engine) deliverErr(sub *fishSub, err error) func() {
	return func() {
		e.mu.Lock()
		stopped := sub.stopped
		sub.stopped = true
		e.mu.Unlock()
		if stopped || sub.onErr == nil {
			return
		}
		sub.onErr(err)
	}
}

// Observe feeds onNext the fish's current state and every later state. See
// api.Engine.
func (e *Engine) Observe(fish api.FishDef, onNext func(any), onErr func(error)) api.CancelFunc {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return func() {}
	}
	agg := e.ensureAggLocked(fish)
	sub, id := e.attachLocked(agg, onNext, onErr)
	e.drainLocked()
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		e.detachLocked(fish.ID, id, sub)
		e.drainLocked()
		e.mu.Unlock()
	}
}

// ObserveOne waits for the first seed event, then observes the fish derived
// from it. See api.Engine.
func (e *Engine) ObserveOne(seed api.TagSelector, factory api.FishFactory, onNext func(any), onErr func(error)) api.CancelFunc {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return func() {}
	}

	w := &oneWatcher{seed: seed, factory: factory, onNext: onNext, onErr: onErr}
	id := e.nextIDLocked()

	if def := e.firstSeedFishLocked(seed, factory); def != nil {
		agg := e.ensureAggLocked(*def)
		w.sub, w.subID = e.attachLocked(agg, onNext, onErr)
		w.aggID = def.ID
	} else {
		e.pendingOne[id] = w
	}
	e.drainLocked()
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		if w.sub != nil {
			e.detachLocked(w.aggID, w.subID, w.sub)
		} else {
			delete(e.pendingOne, id)
		}
		e.drainLocked()
		e.mu.Unlock()
	}
}

// firstSeedFishLocked scans the known log for the first seed event that
// yields a fish. Caller must hold mu.
func (e *Engine) firstSeedFishLocked(seed api.TagSelector, factory api.FishFactory) *api.FishDef {
	for _, ev := range e.log {
		if !seed.Matches(ev.Tags) {
			continue
		}
		if def := factory(ev); def != nil {
			return def
		}
	}
	return nil
}

// ObserveAll tracks every fish derived from seed-matching events. See
// api.Engine.
func (e *Engine) ObserveAll(seed api.TagSelector, factory api.FishFactory, opts api.ObserveAllOpts, onNext func([]any)) api.CancelFunc {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return func() {}
	}

	w := &allWatcher{
		seed:    seed,
		factory: factory,
		opts:    opts,
		onNext:  onNext,
		have:    make(map[string]bool),
	}
	for _, ev := range e.log {
		if seed.Matches(ev.Tags) {
			e.seedAllFishLocked(w, ev)
		}
	}
	id := e.nextIDLocked()
	e.allWatch[id] = w
	e.enqueueLocked(e.deliverSnapshot(w, w.snapshot()))
	e.drainLocked()
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		w.stopped = true
		delete(e.allWatch, id)
		e.drainLocked()
		e.mu.Unlock()
	}
}

// seedAllFishLocked derives a fish from a seed event and folds the full known
// log into its state. Returns true if a new fish was added. Caller must hold
// mu.
func (e *Engine) seedAllFishLocked(w *allWatcher, seedEv api.Event) bool {
	def := w.factory(seedEv)
	if def == nil || w.have[def.ID] {
		return false
	}
	f := &allFish{def: *def, state: def.Initial, seededAt: seedEv.Timestamp}
	for _, ev := range e.log {
		if !def.Where.Matches(ev.Tags) {
			continue
		}
		next, err := e.fold(*def, f.state, ev)
		if err != nil {
			// No error channel on this surface: the fish freezes at its
			// last good state and stops folding.
			f.failed = true
			break
		}
		f.state = next
	}
	w.have[def.ID] = true
	w.fish = append(w.fish, f)
	return true
}

func (w *allWatcher) snapshot() []any {
	out := make([]any, 0, len(w.fish))
	for _, f := range w.fish {
		if w.opts.ExpireAfterSeed > 0 && time.Since(f.seededAt) > w.opts.ExpireAfterSeed {
			continue
		}
		out = append(out, f.state)
	}
	return out
}

func (e *Engine) deliverSnapshot(w *allWatcher, states []any) func() {
	return func() {
		e.mu.Lock()
		stopped := w.stopped
		e.mu.Unlock()
		if stopped || w.onNext == nil {
			return
		}
		w.onNext(states)
	}
}

// KeepRunning re-runs effect on every state change until autoCancel says
// stop or the returned handle is invoked. See api.Engine.
func (e *Engine) KeepRunning(fish api.FishDef, effect api.EffectFn, autoCancel func(any) bool) api.CancelFunc {
	type runner struct {
		mu      sync.Mutex
		cancel  api.CancelFunc
		stopped bool
	}
	r := &runner{}

	stop := func() {
		r.mu.Lock()
		r.stopped = true
		c := r.cancel
		r.mu.Unlock()
		if c != nil {
			c()
		}
	}

	inner := e.Observe(fish, func(state any) {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		if autoCancel != nil && autoCancel(state) {
			stop()
			return
		}
		e.Run(fish, effect)
	}, nil)

	r.mu.Lock()
	r.cancel = inner
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		// autoCancel fired during the initial delivery, before the
		// observation handle was known.
		inner()
	}
	return stop
}

// routeLocked feeds one freshly appended event to every aggregation, seed
// watcher, and live subscription, queueing the resulting deliveries. Caller
// must hold mu.
func (e *Engine) routeLocked(ev api.Event) {
	// Cached aggregations first; watchers attached below replay the full
	// log themselves, including ev.
	for _, agg := range e.aggs {
		if agg.failed != nil || !agg.def.Where.Matches(ev.Tags) {
			continue
		}
		next, err := e.fold(agg.def, agg.state, ev)
		if err != nil {
			agg.failed = err
			for _, sub := range agg.subs {
				e.enqueueLocked(e.deliverErr(sub, err))
			}
			continue
		}
		agg.state = next
		for _, sub := range agg.subs {
			e.enqueueLocked(e.deliverState(sub, next))
		}
	}

	for id, w := range e.pendingOne {
		if !w.seed.Matches(ev.Tags) {
			continue
		}
		def := w.factory(ev)
		if def == nil {
			continue
		}
		agg := e.ensureAggLocked(*def)
		w.sub, w.subID = e.attachLocked(agg, w.onNext, w.onErr)
		w.aggID = def.ID
		delete(e.pendingOne, id)
	}

	for _, w := range e.allWatch {
		seeded := w.seed.Matches(ev.Tags) && e.seedAllFishLocked(w, ev)
		changed := seeded
		newest := len(w.fish) - 1
		for i, f := range w.fish {
			if f.failed || !f.def.Where.Matches(ev.Tags) {
				continue
			}
			if seeded && i == newest {
				// The new fish already folded ev during its replay.
				continue
			}
			next, err := e.fold(f.def, f.state, ev)
			if err != nil {
				f.failed = true
				continue
			}
			f.state = next
			changed = true
		}
		if changed {
			e.enqueueLocked(e.deliverSnapshot(w, w.snapshot()))
		}
	}

	e.routeLiveLocked(ev)
}
