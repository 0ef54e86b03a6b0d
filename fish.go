package brook

import "github.com/petrijr/brook/pkg/api"

// Fish is a typed derived-state subject: an identity, an initial state of
// type S, and a fold over matching tagged events. Fish sharing an ID share
// one engine-side aggregation, so the fold and selector of two same-ID fish
// should agree.
type Fish[S any] struct {
	ID      string
	Initial S

	// OnEvent folds one matching event into the state. It must be pure:
	// no mutation of ev, no calls back into the engine.
	OnEvent func(state S, ev api.Event) S

	// Where selects the events the fish is fed.
	Where api.TagSelector
}

// def lowers the typed fish to the untyped engine boundary.
func (f Fish[S]) def() api.FishDef {
	return api.FishDef{
		ID:      f.ID,
		Initial: f.Initial,
		Where:   f.Where,
		OnEvent: func(state any, ev api.Event) any {
			return f.OnEvent(f.stateOf(state), ev)
		},
	}
}

// stateOf recovers the typed state from the engine's untyped one. The
// engine only ever hands back states this fish produced, so the assertion
// holds; the initial state covers the nil the engine may pass on the very
// first fold.
func (f Fish[S]) stateOf(state any) S {
	if s, ok := state.(S); ok {
		return s
	}
	return f.Initial
}
