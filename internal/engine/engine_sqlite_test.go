package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/brook/internal/eventlog"
	"github.com/petrijr/brook/pkg/api"
)

func newSQLiteEngine(t *testing.T, db *sql.DB) *Engine {
	t.Helper()

	store, err := eventlog.NewSQLiteStore(db)
	require.NoError(t, err)

	e, err := New(context.Background(), Config{
		Manifest: api.Manifest{AppID: "com.example.durable", Version: "1.0.0"},
		Store:    store,
	})
	require.NoError(t, err)
	t.Cleanup(e.Dispose)
	return e
}

func TestSQLiteEngine_StateSurvivesRestart(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "pond.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	// --- Phase 1: emit some events, then simulate a crash.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	e1 := newSQLiteEngine(t, db1)
	awaitOp(t, e1.Emit([]api.Tag{"counter"}, map[string]any{"n": 1}))
	awaitOp(t, e1.Emit([]api.Tag{"counter"}, map[string]any{"n": 2}))
	e1.Dispose()
	require.NoError(t, db1.Close())

	// --- Phase 2: a fresh engine on the same database replays the log.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	e2 := newSQLiteEngine(t, db2)

	var got []int
	cancel := e2.Observe(counterFish(), func(state any) {
		got = append(got, state.(int))
	}, nil)
	defer cancel()

	require.Equal(t, []int{2}, got, "the replayed log yields the pre-restart state")

	// New emissions continue the replayed stream's offsets.
	fns := e2.Events()
	awaitOp(t, e2.Emit([]api.Tag{"counter"}, map[string]any{"n": 3}))

	offsets, err := fns.CurrentOffsets(context.Background())
	require.NoError(t, err)
	var total int64
	for _, off := range offsets {
		total += off
	}
	require.Equal(t, int64(3), total)
}

func TestSQLiteEngine_ReplayedPayloadsQueryable(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "pond.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	e1 := newSQLiteEngine(t, db1)
	awaitOp(t, e1.Emit([]api.Tag{"note"}, "remember me"))
	e1.Dispose()
	require.NoError(t, db1.Close())

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()
	e2 := newSQLiteEngine(t, db2)

	resp, err := e2.Events().QueryAllKnown(context.Background(), api.AutoCappedQuery{Selector: api.Where("note")})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	require.Equal(t, "remember me", resp.Events[0].Payload)
	require.Equal(t, []api.Tag{"note"}, resp.Events[0].Tags)
}

func TestWaitForSwarmSync_FreshEngineCompletesImmediately(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	var (
		mu       sync.Mutex
		progress []api.SyncProgress
		complete int
	)
	e.WaitForSwarmSync(api.SyncParams{
		OnProgress: func(p api.SyncProgress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
		OnComplete: func() {
			mu.Lock()
			complete++
			mu.Unlock()
		},
	})

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, progress, "nothing to catch up on a fresh in-memory engine")
	require.Equal(t, 1, complete, "completion fires exactly once regardless")
}

func TestWaitForSwarmSync_ReplaysRecordedProgress(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "pond.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	e1 := newSQLiteEngine(t, db1)
	awaitOp(t, e1.Emit([]api.Tag{"evt"}, 1))
	e1.Dispose()
	require.NoError(t, db1.Close())

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()
	e2 := newSQLiteEngine(t, db2)

	var (
		mu       sync.Mutex
		progress []api.SyncProgress
		complete int
	)
	e2.WaitForSwarmSync(api.SyncParams{
		OnProgress: func(p api.SyncProgress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
		OnComplete: func() {
			mu.Lock()
			complete++
			mu.Unlock()
		},
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []api.SyncProgress{{Synced: 1, Total: 1}}, progress,
		"one replayed source shows up as one progress step")
	require.Equal(t, 1, complete)
}
