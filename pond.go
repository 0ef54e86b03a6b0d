package brook

import (
	"github.com/petrijr/brook/pkg/api"
	"github.com/petrijr/brook/pkg/stream"
)

// Pond is the stream-shaped facade over one engine instance. It holds no
// mutable state of its own; every operation dispatches to the engine, and
// all subscriptions funnel through the engine's own concurrency.
//
// Obtain a Pond via FromEngine, Open, or OpenWithOptions.
type Pond struct {
	eng    api.Engine
	events *Events
}

// Emit appends one tagged event. The emission is triggered by this call,
// not by subscribing: the returned stream is hot, emits a single unit value
// once the engine confirms the event is durable, then completes. Every
// subscriber — including one attaching after completion — receives the
// value; unsubscribing does not abort the emission.
func (p *Pond) Emit(tags []api.Tag, payload any) stream.Stream[struct{}] {
	return fromPending(p.eng.Emit(tags, payload))
}

// Run executes a conditional effect against the fish's current state.
// Events the effect enqueues are appended atomically; effects are
// serialized by the engine. The returned stream follows the same hot
// single-value contract as Emit.
func Run[S any](p *Pond, fish Fish[S], effect func(state S, enqueue api.Enqueue)) stream.Stream[struct{}] {
	op := p.eng.Run(fish.def(), func(state any, enqueue api.Enqueue) {
		effect(fish.stateOf(state), enqueue)
	})
	return fromPending(op)
}

// Observe returns a cold stream of the fish's states: the current state on
// subscription, then every strictly newer state, in order, 1:1 with the
// engine's updates. Aggregations are cached by fish ID, so concurrent
// subscriptions to same-ID fish share one aggregation. A failure of the
// derived-state computation terminates the stream with an error.
// Unsubscribing releases the engine-side registration.
func Observe[S any](p *Pond, fish Fish[S]) stream.Stream[S] {
	def := fish.def()
	return stream.New(func(em *stream.Emitter[S]) stream.CancelFunc {
		cancel := p.eng.Observe(def,
			func(state any) { em.Emit(fish.stateOf(state)) },
			func(err error) { em.Fail(err) },
		)
		return stream.CancelFunc(cancel)
	})
}

// ObserveAll tracks every fish derived (via factory) from events matching
// seed and returns a cold stream of state snapshots, one slice per update
// covering all currently tracked fish. This surface has no error channel:
// the stream emits or stays open, it never errors.
func ObserveAll[S any](p *Pond, seed api.TagSelector, factory func(seed api.Event) *Fish[S], opts api.ObserveAllOpts) stream.Stream[[]S] {
	return stream.New(func(em *stream.Emitter[[]S]) stream.CancelFunc {
		cancel := p.eng.ObserveAll(seed, liftFactory(factory), opts, func(states []any) {
			em.Emit(typedStates[S](states))
		})
		return stream.CancelFunc(cancel)
	})
}

// ObserveOne waits for the first event matching seed, derives a fish from
// it, and then behaves like Observe: a cold stream of that fish's states
// with an error channel.
func ObserveOne[S any](p *Pond, seed api.TagSelector, factory func(seed api.Event) *Fish[S]) stream.Stream[S] {
	return stream.New(func(em *stream.Emitter[S]) stream.CancelFunc {
		cancel := p.eng.ObserveOne(seed, liftFactory(factory),
			func(state any) {
				if s, ok := state.(S); ok {
					em.Emit(s)
				}
			},
			func(err error) { em.Fail(err) },
		)
		return stream.CancelFunc(cancel)
	})
}

// KeepRunning re-runs effect against the fish's state on every state change
// until autoCancel returns true or the returned handle is invoked. The
// engine already hands out a cancellation handle here, so no stream
// wrapping applies.
func KeepRunning[S any](p *Pond, fish Fish[S], effect func(state S, enqueue api.Enqueue), autoCancel func(state S) bool) api.CancelFunc {
	var auto func(any) bool
	if autoCancel != nil {
		auto = func(state any) bool { return autoCancel(fish.stateOf(state)) }
	}
	return p.eng.KeepRunning(fish.def(), func(state any, enqueue api.Enqueue) {
		effect(fish.stateOf(state), enqueue)
	}, auto)
}

// Events exposes the event-query surface of the wrapped engine.
func (p *Pond) Events() *Events {
	return p.events
}

// Dispose shuts the wrapped engine down. Direct passthrough.
func (p *Pond) Dispose() {
	p.eng.Dispose()
}

// Info returns static information about the wrapped engine. Direct
// passthrough.
func (p *Pond) Info() api.Info {
	return p.eng.Info()
}

// State returns a cold stream of the engine's process-wide aggregation
// state: the current value on subscription, then every change. The engine
// registration has no deregistration handle, so unsubscribing stops local
// delivery only.
func (p *Pond) State() stream.Stream[api.PondState] {
	return stream.New(func(em *stream.Emitter[api.PondState]) stream.CancelFunc {
		p.eng.GetPondState(em.Emit)
		return nil
	})
}

// NodeConnectivity returns a cold stream of the node's swarm connectivity,
// with the same local-stop-only cancellation as State.
func (p *Pond) NodeConnectivity() stream.Stream[api.Connectivity] {
	return stream.New(func(em *stream.Emitter[api.Connectivity]) stream.CancelFunc {
		p.eng.GetNodeConnectivity(api.ConnectivityParams{Callback: em.Emit})
		return nil
	})
}

// WaitForSwarmSync returns a cold stream reporting the engine's catch-up
// with peer-held event history: one emission per progress update, then
// completion exactly once when sync finishes. The stream never errors.
func (p *Pond) WaitForSwarmSync() stream.Stream[api.SyncProgress] {
	return stream.New(func(em *stream.Emitter[api.SyncProgress]) stream.CancelFunc {
		p.eng.WaitForSwarmSync(api.SyncParams{
			OnProgress: em.Emit,
			OnComplete: em.Close,
		})
		return nil
	})
}

// fromPending adapts a pending engine operation into a hot single-value
// stream: one unit emission on confirmation, then completion.
func fromPending(op api.PendingOp) stream.Stream[struct{}] {
	s, resolve, _ := stream.NewSingle[struct{}]()
	op.WhenDone(func() { resolve(struct{}{}) })
	return s
}

func liftFactory[S any](factory func(api.Event) *Fish[S]) api.FishFactory {
	return func(seed api.Event) *api.FishDef {
		fish := factory(seed)
		if fish == nil {
			return nil
		}
		def := fish.def()
		return &def
	}
}

func typedStates[S any](states []any) []S {
	out := make([]S, 0, len(states))
	for _, st := range states {
		if s, ok := st.(S); ok {
			out = append(out, s)
		}
	}
	return out
}
