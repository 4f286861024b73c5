package sprite

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrMetadataMissing is returned by TouchMetadata when a record exists
// without its paired metadata. Callers decide whether to recreate the
// metadata; the store never does so silently.
var ErrMetadataMissing = errors.New("sprite record has no metadata")

// Record is one persisted sprite sheet keyed by the caller-supplied cache
// key. The key must encode every parameter affecting the output (video
// identity, interval, tile height); the store cannot detect staleness.
type Record struct {
	Key  string
	PNG  []byte
	Meta Meta
}

// Metadata tracks usage of a record and drives age-based eviction.
type Metadata struct {
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Store is the persistence abstraction for sprite records and their usage
// metadata. Implementations serialize access with their own transactional
// semantics; the cache opens a Store fresh per operation and closes it after.
type Store interface {
	// GetRecord returns the record for key, or ok=false if absent.
	GetRecord(ctx context.Context, key string) (Record, bool, error)

	// PutRecord stores rec and its metadata, replacing any previous entry
	// and updating the lastUsedAt index.
	PutRecord(ctx context.Context, rec Record, meta Metadata) error

	// DeleteRecord removes the record, its metadata, and its index entry.
	// Deleting an absent key is a no-op.
	DeleteRecord(ctx context.Context, key string) error

	// TouchMetadata sets lastUsedAt for key. Returns ErrMetadataMissing if
	// the record exists but its metadata is gone.
	TouchMetadata(ctx context.Context, key string, usedAt time.Time) error

	// ListMetadata returns all metadata entries ordered by lastUsedAt
	// ascending.
	ListMetadata(ctx context.Context) ([]Metadata, error)

	// PruneOlderThan deletes every record whose lastUsedAt is strictly
	// before cutoff, using the lastUsedAt index, and reports how many were
	// removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// StoreOpener opens a Store for a single operation. The per-operation
// open/close trades a small overhead for simplicity: no connection is held
// across calls and the store's own transactional semantics are the only
// synchronization.
type StoreOpener func(ctx context.Context) (Store, error)

// MemoryStore is an in-memory Store used in tests and as the fallback when
// no persistent backend is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	meta    map[string]Metadata
}

// NewMemoryStore returns a new empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		meta:    make(map[string]Metadata),
	}
}

// Opener returns a StoreOpener that hands out this store. Close is a no-op
// so the shared instance survives per-operation closes.
func (s *MemoryStore) Opener() StoreOpener {
	return func(ctx context.Context) (Store, error) { return s, nil }
}

// GetRecord implements Store.GetRecord.
func (s *MemoryStore) GetRecord(ctx context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

// PutRecord implements Store.PutRecord.
func (s *MemoryStore) PutRecord(ctx context.Context, rec Record, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
	meta.Key = rec.Key
	s.meta[rec.Key] = meta
	return nil
}

// DeleteRecord implements Store.DeleteRecord.
func (s *MemoryStore) DeleteRecord(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	delete(s.meta, key)
	return nil
}

// TouchMetadata implements Store.TouchMetadata.
func (s *MemoryStore) TouchMetadata(ctx context.Context, key string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[key]
	if !ok {
		return ErrMetadataMissing
	}
	m.LastUsedAt = usedAt
	s.meta[key] = m
	return nil
}

// ListMetadata implements Store.ListMetadata.
func (s *MemoryStore) ListMetadata(ctx context.Context) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Metadata, 0, len(s.meta))
	for _, m := range s.meta {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.Before(out[j].LastUsedAt) })
	return out, nil
}

// PruneOlderThan implements Store.PruneOlderThan.
func (s *MemoryStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, m := range s.meta {
		if m.LastUsedAt.Before(cutoff) {
			delete(s.meta, key)
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error { return nil }
