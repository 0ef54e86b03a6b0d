package brook

import (
	"context"

	"github.com/petrijr/brook/pkg/api"
)

// LocalPond bundles an in-memory engine with its reactive facade to provide
// a simple local pond for development and tests.
//
// Typical usage:
//
//	local := brook.MustNewLocalPond()
//	defer local.Dispose()
//
//	cancel := brook.Observe(local.Pond, counterFish).Subscribe(...)
//	defer cancel()
type LocalPond struct {
	// Pond is the reactive facade over Engine.
	Pond *Pond

	// Engine is the underlying in-memory engine, exposed for direct
	// callback-level access and inspection in tests.
	Engine api.Engine
}

// NewLocalPond constructs a LocalPond backed by an in-memory engine with a
// default manifest. Events are not persisted beyond the process.
func NewLocalPond() (*LocalPond, error) {
	eng, err := NewInMemoryEngine(context.Background(), api.Manifest{
		AppID:       "com.example.local",
		DisplayName: "Local Pond",
		Version:     "0.0.1",
	})
	if err != nil {
		return nil, err
	}

	return &LocalPond{
		Pond:   FromEngine(eng),
		Engine: eng,
	}, nil
}

// MustNewLocalPond is like NewLocalPond but panics on error. Intended for
// tests and examples where construction cannot reasonably fail.
func MustNewLocalPond() *LocalPond {
	local, err := NewLocalPond()
	if err != nil {
		panic(err)
	}
	return local
}

// Dispose shuts the underlying engine down. Idempotent.
func (l *LocalPond) Dispose() {
	l.Engine.Dispose()
}
