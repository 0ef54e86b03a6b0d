package brook

import (
	"context"
	"database/sql"

	"github.com/petrijr/brook/pkg/api"
)

// NewSQLitePond constructs a durable pond persisting its event log in the
// provided *sql.DB. Previously appended events are replayed during
// construction, so fish observed afterwards resume from their last state.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:pond.db?_journal=WAL")
//	pond, err := brook.NewSQLitePond(ctx, db, manifest)
//	defer pond.Dispose()
func NewSQLitePond(ctx context.Context, db *sql.DB, manifest api.Manifest) (*Pond, error) {
	eng, err := NewSQLiteEngine(ctx, db, manifest)
	if err != nil {
		return nil, err
	}
	return FromEngine(eng), nil
}
