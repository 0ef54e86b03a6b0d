package api

import (
	"log/slog"
	"time"
)

// Manifest identifies the application to the engine.
type Manifest struct {
	AppID       string
	DisplayName string
	Version     string
}

// ConnectionOptions configures how a newly constructed engine reaches its
// local runtime.
type ConnectionOptions struct {
	Host string
	Port int

	// OnConnectionLost is invoked if the engine loses its runtime
	// connection for good. Optional.
	OnConnectionLost func()
}

// EngineOptions configures engine behaviour.
type EngineOptions struct {
	// FishErrorReporter receives failures of derived-state computations
	// (a fish's OnEvent panicking, for example). If nil, failures are
	// logged via Logger.
	FishErrorReporter func(err error, fishID string)

	// Logger is used for the engine's own diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// ObserveAllOpts tunes ObserveAll.
type ObserveAllOpts struct {
	// ExpireAfterSeed drops fish whose seed event is older than the given
	// window from emitted snapshots. Zero disables expiry.
	ExpireAfterSeed time.Duration
}
