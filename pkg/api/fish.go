package api

// FishDef describes a derived-state subject at the engine boundary: an
// identity, an initial state, a fold over matching events, and the selector
// choosing those events. State is untyped here; the facade layers typed
// access on top.
//
// The engine caches aggregations by ID: two observations of defs sharing an
// ID share one underlying aggregation (and the def the engine saw first).
type FishDef struct {
	ID      string
	Initial any

	// OnEvent folds one matching event into the state and returns the new
	// state. It must not mutate ev.
	OnEvent func(state any, ev Event) any

	// Where selects the events the fish is fed.
	Where TagSelector
}

// FishFactory derives a fish from a seed event. Returning nil skips the seed.
type FishFactory func(seed Event) *FishDef

// Enqueue stages an event for emission from within an effect. Staged events
// are appended atomically when the effect returns.
type Enqueue func(tags []Tag, payload any)

// EffectFn is a conditional state effect: it inspects the subject's current
// state and may enqueue new events. The engine serializes effects locally, so
// the state an effect sees already reflects every earlier local effect.
type EffectFn func(state any, enqueue Enqueue)

// PendingOp is an asynchronous unit of work (an emission or an effect) that
// the engine resolves exactly once, with no payload. There is no error
// outcome and no way to abort it.
type PendingOp interface {
	// WhenDone registers fn to run once the operation has completed. If it
	// already has, fn runs immediately. Multiple callbacks may be
	// registered; each runs exactly once.
	WhenDone(fn func())
}
