package api

import "time"

// Event is a single tagged event as stored in and delivered by the engine.
type Event struct {
	// ID uniquely identifies the event.
	ID string

	// Lamport is the engine's logical clock value for the event. Within
	// one subscription, delivered events are strictly ordered by it.
	Lamport uint64

	// Stream identifies the event's source stream; Offset is the event's
	// position within that stream.
	Stream string
	Offset int64

	Timestamp time.Time
	Tags      []Tag
	Payload   any
}

// OffsetMap maps a stream ID to the highest offset known for that stream.
type OffsetMap map[string]int64

// Copy returns an independent copy of the map.
func (m OffsetMap) Copy() OffsetMap {
	out := make(OffsetMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EventChunk is one batch of events delivered by a chunked or subscribing
// query, together with the offsets reached after applying the chunk.
type EventChunk struct {
	Events     []Event
	UpperBound OffsetMap
}

// EventOrder selects the delivery order for bounded queries.
type EventOrder string

const (
	// OrderAsc delivers events in ascending lamport order.
	OrderAsc EventOrder = "asc"
	// OrderDesc delivers events in descending lamport order.
	OrderDesc EventOrder = "desc"
)

// RangeQuery selects events between two known offset boundaries.
// A nil From means "from the beginning"; To is required.
type RangeQuery struct {
	From     OffsetMap
	To       OffsetMap
	Selector TagSelector
	Order    EventOrder
}

// AutoCappedQuery selects all matching events from From up to whatever the
// engine presently knows; the engine caps the upper bound itself.
type AutoCappedQuery struct {
	From     OffsetMap
	Selector TagSelector
	Order    EventOrder
}

// SubscribeQuery selects events for an open-ended subscription: everything
// known from From onward, then live events as they arrive.
type SubscribeQuery struct {
	From     OffsetMap
	Selector TagSelector
}

// QueryResponse is the result of an auto-capped query: the matching events
// and the upper bound the engine capped the query at.
type QueryResponse struct {
	Events     []Event
	UpperBound OffsetMap
}
