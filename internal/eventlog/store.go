// Package eventlog provides append-only stores for the engine's event log.
package eventlog

import (
	"context"
	"sync"
)

// Record is one durable event-log entry. Payload and Tags are JSON-encoded
// by the codec in this package.
type Record struct {
	ID        string
	Lamport   uint64
	Stream    string
	Offset    int64
	UnixNanos int64
	Tags      []string
	Payload   []byte
}

// Store is an append-only event log.
type Store interface {
	// Append persists the records. Records are pre-ordered by lamport.
	Append(ctx context.Context, recs []Record) error

	// List returns every record in ascending lamport order.
	List(ctx context.Context) ([]Record, error)
}

// MemoryStore is a goroutine-safe, non-durable Store backed by a slice.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Append(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs = append(s.recs, recs...)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out, nil
}
