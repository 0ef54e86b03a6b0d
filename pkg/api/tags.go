package api

// Tag is a label attached to an event, used for selection and subscription.
type Tag string

// TaggedEvent pairs a payload with the tags it should be emitted under.
type TaggedEvent struct {
	Tags    []Tag
	Payload any
}

// TagSelector describes which events a subscription or query targets.
// It matches an event when the event carries every tag of at least one
// alternative (an OR of ANDs). The zero selector matches nothing.
type TagSelector struct {
	Alternatives [][]Tag
}

// Where returns a selector requiring all of the given tags.
func Where(tags ...Tag) TagSelector {
	return TagSelector{Alternatives: [][]Tag{tags}}
}

// Or extends the selector with another all-of alternative.
func (s TagSelector) Or(tags ...Tag) TagSelector {
	alts := make([][]Tag, 0, len(s.Alternatives)+1)
	alts = append(alts, s.Alternatives...)
	alts = append(alts, tags)
	return TagSelector{Alternatives: alts}
}

// Matches reports whether an event carrying the given tags satisfies the
// selector.
func (s TagSelector) Matches(tags []Tag) bool {
	for _, alt := range s.Alternatives {
		if containsAll(tags, alt) {
			return true
		}
	}
	return false
}

func containsAll(have, want []Tag) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
