package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			lamport INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			stream TEXT NOT NULL,
			pos INTEGER NOT NULL,
			at INTEGER NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			payload BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream, pos);
	`)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (lamport, id, stream, pos, at, tags, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		tags, err := json.Marshal(r.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.Lamport, r.ID, r.Stream, r.Offset, r.UnixNanos, string(tags), r.Payload,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lamport, id, stream, pos, at, tags, payload
		FROM events
		ORDER BY lamport ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			tags string
		)
		if err := rows.Scan(&r.Lamport, &r.ID, &r.Stream, &r.Offset, &r.UnixNanos, &tags, &r.Payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
