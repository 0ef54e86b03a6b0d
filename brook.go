package brook

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/petrijr/brook/internal/engine"
	"github.com/petrijr/brook/internal/eventlog"
	"github.com/petrijr/brook/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine            = api.Engine
	EventFns          = api.EventFns
	Tag               = api.Tag
	TagSelector       = api.TagSelector
	TaggedEvent       = api.TaggedEvent
	Event             = api.Event
	EventChunk        = api.EventChunk
	OffsetMap         = api.OffsetMap
	EventOrder        = api.EventOrder
	RangeQuery        = api.RangeQuery
	AutoCappedQuery   = api.AutoCappedQuery
	SubscribeQuery    = api.SubscribeQuery
	QueryResponse     = api.QueryResponse
	FishDef           = api.FishDef
	Enqueue           = api.Enqueue
	PendingOp         = api.PendingOp
	CancelFunc        = api.CancelFunc
	Manifest          = api.Manifest
	ConnectionOptions = api.ConnectionOptions
	EngineOptions     = api.EngineOptions
	ObserveAllOpts    = api.ObserveAllOpts
	Info              = api.Info
	PondState         = api.PondState
	Connectivity      = api.Connectivity
	SyncProgress      = api.SyncProgress
)

// Re-export common selector and error values for convenience.

var (
	Where         = api.Where
	ErrEngineInit = api.ErrEngineInit
	ErrDisposed   = api.ErrDisposed
)

const (
	OrderAsc  = api.OrderAsc
	OrderDesc = api.OrderDesc

	FullyConnected     = api.FullyConnected
	PartiallyConnected = api.PartiallyConnected
	NotConnected       = api.NotConnected
)

// Engine constructors
// These wrap the internal/engine package so external callers never need to
// import internal packages.

// NewInMemoryEngine returns an in-process Engine whose event log lives
// purely in memory. Best for tests and local development.
func NewInMemoryEngine(ctx context.Context, manifest Manifest) (Engine, error) {
	return engine.New(ctx, engine.Config{Manifest: manifest})
}

// NewSQLiteEngine returns an in-process Engine that persists its event log
// in the given SQLite database and replays it on startup.
func NewSQLiteEngine(ctx context.Context, db *sql.DB, manifest Manifest) (Engine, error) {
	store, err := eventlog.NewSQLiteStore(db)
	if err != nil {
		return nil, initError(err)
	}
	return engine.New(ctx, engine.Config{Manifest: manifest, Store: store})
}

// Facade constructors

// FromEngine wraps an existing engine instance. It always succeeds and has
// no side effect beyond capturing the handle.
func FromEngine(eng Engine) *Pond {
	return &Pond{eng: eng, events: &Events{fns: eng.Events()}}
}

// Open constructs a default-configured engine for the given application
// manifest and wraps it. The error wraps ErrEngineInit if the engine's
// startup fails.
func Open(ctx context.Context, manifest Manifest) (*Pond, error) {
	eng, err := engine.New(ctx, engine.Config{Manifest: manifest})
	if err != nil {
		return nil, err
	}
	return FromEngine(eng), nil
}

func initError(err error) error {
	return fmt.Errorf("%w: %v", api.ErrEngineInit, err)
}

// OpenWithOptions is Open with explicit connection parameters and engine
// behaviour options.
func OpenWithOptions(ctx context.Context, manifest Manifest, conn ConnectionOptions, opts EngineOptions) (*Pond, error) {
	eng, err := engine.New(ctx, engine.Config{
		Manifest: manifest,
		Conn:     conn,
		Options:  opts,
	})
	if err != nil {
		return nil, err
	}
	return FromEngine(eng), nil
}
