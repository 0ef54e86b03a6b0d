package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrijr/brook/pkg/api"
)

// Events returns the engine's event-query surface.
func (e *Engine) Events() api.EventFns {
	return eventFns{e: e}
}

type eventFns struct {
	e *Engine
}

var _ api.EventFns = eventFns{}

func (f eventFns) CurrentOffsets(ctx context.Context) (api.OffsetMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if f.e.disposed {
		return nil, fmt.Errorf("current offsets: %w", api.ErrDisposed)
	}
	return f.e.offsets.Copy(), nil
}

func (f eventFns) QueryKnownRange(ctx context.Context, q api.RangeQuery) ([]api.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.To == nil {
		return nil, errors.New("range query requires an upper bound")
	}
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if f.e.disposed {
		return nil, fmt.Errorf("query known range: %w", api.ErrDisposed)
	}
	return f.e.selectLocked(q.Selector, q.From, q.To, q.Order), nil
}

func (f eventFns) QueryKnownRangeChunked(q api.RangeQuery, chunkSize int, onChunk func(api.EventChunk)) error {
	if q.To == nil {
		return errors.New("range query requires an upper bound")
	}
	if chunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	f.e.mu.Lock()
	if f.e.disposed {
		f.e.mu.Unlock()
		return fmt.Errorf("query known range chunked: %w", api.ErrDisposed)
	}
	events := f.e.selectLocked(q.Selector, q.From, q.To, q.Order)
	f.e.mu.Unlock()

	// The scan has no stop mechanism: every chunk is delivered even if the
	// caller lost interest after the first one.
	deliverChunks(events, q.From, chunkSize, onChunk)
	return nil
}

func (f eventFns) QueryAllKnown(ctx context.Context, q api.AutoCappedQuery) (api.QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return api.QueryResponse{}, err
	}
	f.e.mu.Lock()
	defer f.e.mu.Unlock()
	if f.e.disposed {
		return api.QueryResponse{}, fmt.Errorf("query all known: %w", api.ErrDisposed)
	}
	upper := f.e.offsets.Copy()
	return api.QueryResponse{
		Events:     f.e.selectLocked(q.Selector, q.From, upper, q.Order),
		UpperBound: upper,
	}, nil
}

func (f eventFns) QueryAllKnownChunked(q api.AutoCappedQuery, chunkSize int, onChunk func(api.EventChunk)) error {
	if chunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	f.e.mu.Lock()
	if f.e.disposed {
		f.e.mu.Unlock()
		return fmt.Errorf("query all known chunked: %w", api.ErrDisposed)
	}
	upper := f.e.offsets.Copy()
	events := f.e.selectLocked(q.Selector, q.From, upper, q.Order)
	f.e.mu.Unlock()

	deliverChunks(events, q.From, chunkSize, onChunk)
	return nil
}

func (f eventFns) Subscribe(q api.SubscribeQuery, onChunk func(api.EventChunk)) api.CancelFunc {
	e := f.e
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return func() {}
	}

	sub := &liveSub{
		kind:    subKindChunks,
		sel:     q.Selector,
		onChunk: onChunk,
		bounds:  copyOrEmpty(q.From),
	}
	known := e.selectLocked(q.Selector, q.From, e.offsets, api.OrderAsc)
	for _, ev := range known {
		sub.bounds[ev.Stream] = ev.Offset
	}
	if len(known) > 0 {
		chunk := api.EventChunk{Events: known, UpperBound: sub.bounds.Copy()}
		e.enqueueLocked(e.deliverChunk(sub, chunk))
	}
	id := e.nextIDLocked()
	e.liveSubs[id] = sub
	e.drainLocked()
	e.mu.Unlock()

	return e.cancelLive(id, sub)
}

func (f eventFns) ObserveEarliest(q api.AutoCappedQuery, onNext func(api.Event)) api.CancelFunc {
	return f.observeReduced(q, onNext, func(candidate, current api.Event) bool {
		return candidate.Lamport < current.Lamport
	})
}

func (f eventFns) ObserveLatest(q api.AutoCappedQuery, onNext func(api.Event)) api.CancelFunc {
	return f.observeReduced(q, onNext, func(candidate, current api.Event) bool {
		return candidate.Lamport > current.Lamport
	})
}

func (f eventFns) ObserveBestMatch(q api.AutoCappedQuery, better func(candidate, current api.Event) bool, onNext func(api.Event)) api.CancelFunc {
	return f.observeReduced(q, onNext, better)
}

// observeReduced keeps the preferred event under the given ordering and
// emits whenever it changes.
func (f eventFns) observeReduced(q api.AutoCappedQuery, onNext func(api.Event), better func(candidate, current api.Event) bool) api.CancelFunc {
	e := f.e
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return func() {}
	}

	sub := &liveSub{
		kind:    subKindBest,
		sel:     q.Selector,
		onEvent: onNext,
		better:  better,
	}
	for _, ev := range e.selectLocked(q.Selector, q.From, e.offsets, api.OrderAsc) {
		if sub.best == nil || better(ev, *sub.best) {
			ev := ev
			sub.best = &ev
		}
	}
	if sub.best != nil {
		e.enqueueLocked(e.deliverEvent(sub, *sub.best))
	}
	id := e.nextIDLocked()
	e.liveSubs[id] = sub
	e.drainLocked()
	e.mu.Unlock()

	return e.cancelLive(id, sub)
}

func (f eventFns) ObserveUnorderedReduce(q api.AutoCappedQuery, reduce func(any, api.Event) any, initial any, onNext func(any)) api.CancelFunc {
	e := f.e
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return func() {}
	}

	sub := &liveSub{
		kind:   subKindReduce,
		sel:    q.Selector,
		onAcc:  onNext,
		reduce: reduce,
		acc:    initial,
	}
	for _, ev := range e.selectLocked(q.Selector, q.From, e.offsets, api.OrderAsc) {
		sub.acc = reduce(sub.acc, ev)
	}
	e.enqueueLocked(e.deliverAcc(sub, sub.acc))
	id := e.nextIDLocked()
	e.liveSubs[id] = sub
	e.drainLocked()
	e.mu.Unlock()

	return e.cancelLive(id, sub)
}

func (f eventFns) Emit(ctx context.Context, events []api.TaggedEvent) error {
	f.e.mu.Lock()
	disposed := f.e.disposed
	f.e.mu.Unlock()
	if disposed {
		return fmt.Errorf("emit: %w", api.ErrDisposed)
	}

	drafts := make([]draft, len(events))
	for i, te := range events {
		drafts[i] = draft{tags: te.Tags, payload: te.Payload}
	}
	op := f.e.append(drafts)

	done := make(chan struct{})
	op.WhenDone(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- live subscription plumbing ---

type subKind int

const (
	subKindChunks subKind = iota
	subKindBest
	subKindReduce
)

type liveSub struct {
	kind    subKind
	sel     api.TagSelector
	stopped bool

	// chunks
	onChunk func(api.EventChunk)
	bounds  api.OffsetMap

	// best (earliest / latest / best-match)
	onEvent func(api.Event)
	better  func(candidate, current api.Event) bool
	best    *api.Event

	// reduce
	onAcc  func(any)
	reduce func(any, api.Event) any
	acc    any
}

// routeLiveLocked feeds one appended event to every live subscription.
// Caller must hold mu.
func (e *Engine) routeLiveLocked(ev api.Event) {
	for _, sub := range e.liveSubs {
		if !sub.sel.Matches(ev.Tags) {
			continue
		}
		switch sub.kind {
		case subKindChunks:
			sub.bounds[ev.Stream] = ev.Offset
			chunk := api.EventChunk{Events: []api.Event{ev}, UpperBound: sub.bounds.Copy()}
			e.enqueueLocked(e.deliverChunk(sub, chunk))
		case subKindBest:
			if sub.best == nil || sub.better(ev, *sub.best) {
				ev := ev
				sub.best = &ev
				e.enqueueLocked(e.deliverEvent(sub, ev))
			}
		case subKindReduce:
			sub.acc = sub.reduce(sub.acc, ev)
			e.enqueueLocked(e.deliverAcc(sub, sub.acc))
		}
	}
}

func (e *Engine) cancelLive(id int, sub *liveSub) api.CancelFunc {
	return func() {
		e.mu.Lock()
		sub.stopped = true
		delete(e.liveSubs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) deliverChunk(sub *liveSub, chunk api.EventChunk) func() {
	return func() {
		e.mu.Lock()
		stopped := sub.stopped
		e.mu.Unlock()
		if stopped || sub.onChunk == nil {
			return
		}
		sub.onChunk(chunk)
	}
}

func (e *Engine) deliverEvent(sub *liveSub, ev api.Event) func() {
	return func() {
		e.mu.Lock()
		stopped := sub.stopped
		e.mu.Unlock()
		if stopped || sub.onEvent == nil {
			return
		}
		sub.onEvent(ev)
	}
}

func (e *Engine) deliverAcc(sub *liveSub, acc any) func() {
	return func() {
		e.mu.Lock()
		stopped := sub.stopped
		e.mu.Unlock()
		if stopped || sub.onAcc == nil {
			return
		}
		sub.onAcc(acc)
	}
}

// selectLocked returns the log events matching sel with from < offset <= to
// per stream. Streams absent from to are excluded; a nil from means "from
// the beginning". Caller must hold mu.
func (e *Engine) selectLocked(sel api.TagSelector, from, to api.OffsetMap, order api.EventOrder) []api.Event {
	var out []api.Event
	for _, ev := range e.log {
		upper, ok := to[ev.Stream]
		if !ok || ev.Offset > upper {
			continue
		}
		if from != nil && ev.Offset <= from[ev.Stream] {
			continue
		}
		if !sel.Matches(ev.Tags) {
			continue
		}
		out = append(out, ev)
	}
	if order == api.OrderDesc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// deliverChunks splits events into fixed-size chunks with cumulative offset
// bounds and delivers them synchronously.
func deliverChunks(events []api.Event, from api.OffsetMap, chunkSize int, onChunk func(api.EventChunk)) {
	bounds := copyOrEmpty(from)
	for start := 0; start < len(events); start += chunkSize {
		end := start + chunkSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]
		for _, ev := range chunk {
			bounds[ev.Stream] = ev.Offset
		}
		onChunk(api.EventChunk{Events: chunk, UpperBound: bounds.Copy()})
	}
}

func copyOrEmpty(m api.OffsetMap) api.OffsetMap {
	if m == nil {
		return make(api.OffsetMap)
	}
	return m.Copy()
}
