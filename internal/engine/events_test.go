package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/brook/pkg/api"
)

// seedLog appends n events tagged "evt" carrying their 1-based index.
func seedLog(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		awaitOp(t, e.Emit([]api.Tag{"evt"}, i))
	}
}

func payloads(events []api.Event) []any {
	out := make([]any, len(events))
	for i, ev := range events {
		out[i] = ev.Payload
	}
	return out
}

func TestCurrentOffsets(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	ctx := context.Background()

	offsets, err := fns.CurrentOffsets(ctx)
	require.NoError(t, err)
	require.Empty(t, offsets)

	seedLog(t, e, 3)

	offsets, err = fns.CurrentOffsets(ctx)
	require.NoError(t, err)
	require.Len(t, offsets, 1, "the local engine writes a single stream")
	for _, off := range offsets {
		require.Equal(t, int64(3), off)
	}

	// The returned map is a copy.
	for k := range offsets {
		offsets[k] = 99
	}
	again, err := fns.CurrentOffsets(ctx)
	require.NoError(t, err)
	for _, off := range again {
		require.Equal(t, int64(3), off)
	}
}

func TestQueryKnownRange_BoundsAndOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	ctx := context.Background()

	seedLog(t, e, 5)
	upper, err := fns.CurrentOffsets(ctx)
	require.NoError(t, err)

	_, err = fns.QueryKnownRange(ctx, api.RangeQuery{Selector: api.Where("evt")})
	require.Error(t, err, "a range query without an upper bound must fail")

	events, err := fns.QueryKnownRange(ctx, api.RangeQuery{
		To:       upper,
		Selector: api.Where("evt"),
	})
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3, 4, 5}, payloads(events))

	events, err = fns.QueryKnownRange(ctx, api.RangeQuery{
		To:       upper,
		Selector: api.Where("evt"),
		Order:    api.OrderDesc,
	})
	require.NoError(t, err)
	require.Equal(t, []any{5, 4, 3, 2, 1}, payloads(events))

	// From is exclusive, To inclusive.
	from := make(api.OffsetMap)
	for k := range upper {
		from[k] = 2
	}
	events, err = fns.QueryKnownRange(ctx, api.RangeQuery{
		From:     from,
		To:       upper,
		Selector: api.Where("evt"),
	})
	require.NoError(t, err)
	require.Equal(t, []any{3, 4, 5}, payloads(events))
}

func TestQueryKnownRange_EventsAfterUpperBoundExcluded(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	ctx := context.Background()

	seedLog(t, e, 2)
	upper, err := fns.CurrentOffsets(ctx)
	require.NoError(t, err)

	seedLog(t, e, 2)

	events, err := fns.QueryKnownRange(ctx, api.RangeQuery{
		To:       upper,
		Selector: api.Where("evt"),
	})
	require.NoError(t, err)
	require.Equal(t, []any{1, 2}, payloads(events), "events past the captured bound stay out")
}

func TestQueryAllKnown_IncludesUpperBound(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	ctx := context.Background()

	seedLog(t, e, 4)

	resp, err := fns.QueryAllKnown(ctx, api.AutoCappedQuery{Selector: api.Where("evt")})
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3, 4}, payloads(resp.Events))
	require.Len(t, resp.UpperBound, 1)
	for _, off := range resp.UpperBound {
		require.Equal(t, int64(4), off)
	}
}

func TestQueryAllKnownChunked_SplitsIntoChunks(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()

	seedLog(t, e, 5)

	var chunks []api.EventChunk
	err := fns.QueryAllKnownChunked(api.AutoCappedQuery{Selector: api.Where("evt")}, 2, func(c api.EventChunk) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)

	require.Len(t, chunks, 3, "five events in chunks of two: 2+2+1")
	require.Equal(t, []any{1, 2}, payloads(chunks[0].Events))
	require.Equal(t, []any{3, 4}, payloads(chunks[1].Events))
	require.Equal(t, []any{5}, payloads(chunks[2].Events))

	// Each chunk's bound covers everything delivered so far.
	for _, off := range chunks[1].UpperBound {
		require.Equal(t, int64(4), off)
	}
	for _, off := range chunks[2].UpperBound {
		require.Equal(t, int64(5), off)
	}

	err = fns.QueryAllKnownChunked(api.AutoCappedQuery{Selector: api.Where("evt")}, 0, func(api.EventChunk) {})
	require.Error(t, err, "non-positive chunk size is rejected")
}

func TestQueryKnownRangeChunked_RunsToCompletion(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	ctx := context.Background()

	seedLog(t, e, 4)
	upper, err := fns.CurrentOffsets(ctx)
	require.NoError(t, err)

	// The scan has no stop mechanism: every chunk arrives even when the
	// callback stops caring after the first one.
	var delivered int
	err = fns.QueryKnownRangeChunked(api.RangeQuery{To: upper, Selector: api.Where("evt")}, 1, func(api.EventChunk) {
		delivered++
	})
	require.NoError(t, err)
	require.Equal(t, 4, delivered)
}

func TestSubscribe_KnownThenLive(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()

	seedLog(t, e, 2)

	var (
		mu     sync.Mutex
		chunks []api.EventChunk
	)
	cancel := fns.Subscribe(api.SubscribeQuery{Selector: api.Where("evt")}, func(c api.EventChunk) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	})

	mu.Lock()
	require.Len(t, chunks, 1, "known events arrive as one initial chunk")
	require.Equal(t, []any{1, 2}, payloads(chunks[0].Events))
	mu.Unlock()

	awaitOp(t, e.Emit([]api.Tag{"evt"}, 3))
	awaitOp(t, e.Emit([]api.Tag{"other"}, 99))

	mu.Lock()
	require.Len(t, chunks, 2, "live events arrive one chunk each; non-matching ones do not")
	require.Equal(t, []any{3}, payloads(chunks[1].Events))
	mu.Unlock()

	cancel()
	awaitOp(t, e.Emit([]api.Tag{"evt"}, 4))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, chunks, 2, "nothing after cancellation")
}

func TestSubscribe_FromSkipsOldEvents(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	ctx := context.Background()

	seedLog(t, e, 2)
	from, err := fns.CurrentOffsets(ctx)
	require.NoError(t, err)
	seedLog(t, e, 2)

	var (
		mu     sync.Mutex
		chunks []api.EventChunk
	)
	cancel := fns.Subscribe(api.SubscribeQuery{From: from, Selector: api.Where("evt")}, func(c api.EventChunk) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	})
	defer cancel()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, chunks, 1)
	require.Equal(t, []any{3, 4}, payloads(chunks[0].Events))
}

func TestObserveEarliestAndLatest(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()

	seedLog(t, e, 3)

	var (
		mu       sync.Mutex
		earliest []any
		latest   []any
	)
	c1 := fns.ObserveEarliest(api.AutoCappedQuery{Selector: api.Where("evt")}, func(ev api.Event) {
		mu.Lock()
		earliest = append(earliest, ev.Payload)
		mu.Unlock()
	})
	defer c1()
	c2 := fns.ObserveLatest(api.AutoCappedQuery{Selector: api.Where("evt")}, func(ev api.Event) {
		mu.Lock()
		latest = append(latest, ev.Payload)
		mu.Unlock()
	})
	defer c2()

	awaitOp(t, e.Emit([]api.Tag{"evt"}, 4))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []any{1}, earliest, "new events never displace the earliest")
	require.Equal(t, []any{3, 4}, latest, "each newer event re-emits")
}

func TestObserveBestMatch(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()

	awaitOp(t, e.Emit([]api.Tag{"bid"}, 10))
	awaitOp(t, e.Emit([]api.Tag{"bid"}, 5))

	var (
		mu   sync.Mutex
		best []any
	)
	highest := func(candidate, current api.Event) bool {
		return candidate.Payload.(int) > current.Payload.(int)
	}
	cancel := fns.ObserveBestMatch(api.AutoCappedQuery{Selector: api.Where("bid")}, highest, func(ev api.Event) {
		mu.Lock()
		best = append(best, ev.Payload)
		mu.Unlock()
	})
	defer cancel()

	awaitOp(t, e.Emit([]api.Tag{"bid"}, 7))
	awaitOp(t, e.Emit([]api.Tag{"bid"}, 20))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []any{10, 20}, best, "only improvements re-emit")
}

func TestObserveUnorderedReduce(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()

	seedLog(t, e, 2)

	var (
		mu   sync.Mutex
		accs []any
	)
	sum := func(acc any, ev api.Event) any {
		return acc.(int) + ev.Payload.(int)
	}
	cancel := fns.ObserveUnorderedReduce(api.AutoCappedQuery{Selector: api.Where("evt")}, sum, 0, func(acc any) {
		mu.Lock()
		accs = append(accs, acc)
		mu.Unlock()
	})
	defer cancel()

	mu.Lock()
	require.Equal(t, []any{3}, accs, "known events fold into the first emission")
	mu.Unlock()

	awaitOp(t, e.Emit([]api.Tag{"evt"}, 3))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []any{3, 6}, accs)
}

func TestEventsEmit_ResolvesAndRoutes(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := fns.Emit(ctx, []api.TaggedEvent{
		{Tags: []api.Tag{"evt"}, Payload: 1},
		{Tags: []api.Tag{"evt"}, Payload: 2},
	})
	require.NoError(t, err)

	resp, err := fns.QueryAllKnown(ctx, api.AutoCappedQuery{Selector: api.Where("evt")})
	require.NoError(t, err)
	require.Equal(t, []any{1, 2}, payloads(resp.Events), "the batch was appended in order")
}

func TestEventFns_DisposedEngine(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	fns := e.Events()
	e.Dispose()

	ctx := context.Background()

	_, err := fns.CurrentOffsets(ctx)
	require.ErrorIs(t, err, api.ErrDisposed)

	_, err = fns.QueryAllKnown(ctx, api.AutoCappedQuery{Selector: api.Where("evt")})
	require.ErrorIs(t, err, api.ErrDisposed)

	err = fns.Emit(ctx, []api.TaggedEvent{{Tags: []api.Tag{"evt"}}})
	require.ErrorIs(t, err, api.ErrDisposed)
}
