package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Record is the per-key counter for the current window.
type Record struct {
	Key     string
	Count   int
	ResetAt time.Time
}

// Store holds rate limit records. Implementations must make each method
// atomic on its own; the limiter does not hold a lock across calls.
type Store interface {
	// Get returns the record for key and whether it exists.
	Get(ctx context.Context, key string) (Record, bool, error)
	// SetIfAbsentOrExpired resets the record to {0, now+window} when it is
	// missing or now is past ResetAt, and returns the resulting record.
	SetIfAbsentOrExpired(ctx context.Context, key string, now time.Time, window time.Duration) (Record, error)
	// Increment bumps the count and returns the updated record.
	Increment(ctx context.Context, key string) (Record, error)
}

// Sweeper is implemented by stores that need explicit expiry.
type Sweeper interface {
	Len(ctx context.Context) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore keeps records in process memory. State is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *MemoryStore) SetIfAbsentOrExpired(_ context.Context, key string, now time.Time, window time.Duration) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || now.After(rec.ResetAt) {
		rec = Record{Key: key, Count: 0, ResetAt: now.Add(window)}
		s.records[key] = rec
	}
	return rec, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[key]
	rec.Key = key
	rec.Count++
	s.records[key] = rec
	return rec, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, rec := range s.records {
		if now.After(rec.ResetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}
