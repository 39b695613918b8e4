package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in a map guarded by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	lanes   map[string]string
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		lanes:   make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) recordLocked(key string) *Record {
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{Key: key, Status: StatusIdle, UpdatedAt: s.now().UTC()}
		s.records[key] = rec
	}
	return rec
}

func (s *MemoryStore) mutate(key string, fn func(*Record) error) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(key)
	if err := fn(rec); err != nil {
		return err
	}
	rec.UpdatedAt = s.now().UTC()
	return nil
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.recordLocked(key), nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	return s.mutate(key, func(r *Record) error {
		r.Offset = 0
		r.Status = StatusIdle
		return nil
	})
}

// SetTotal implements Store.
func (s *MemoryStore) SetTotal(_ context.Context, key string, total int) error {
	if total < 0 {
		return fmt.Errorf("total must be >= 0, got %d", total)
	}
	return s.mutate(key, func(r *Record) error {
		if r.Offset == 0 {
			r.Total = total
		}
		return nil
	})
}

// Advance implements Store.
func (s *MemoryStore) Advance(_ context.Context, key string) error {
	return s.mutate(key, func(r *Record) error {
		if r.Offset < r.Total {
			r.Offset++
		}
		return nil
	})
}

// Wrap implements Store.
func (s *MemoryStore) Wrap(_ context.Context, key string) error {
	return s.mutate(key, func(r *Record) error {
		r.Offset = 0
		return nil
	})
}

// Seek implements Store.
func (s *MemoryStore) Seek(_ context.Context, key string, offset int) error {
	return s.mutate(key, func(r *Record) error {
		if offset < 0 || offset > r.Total {
			return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, offset, r.Total)
		}
		r.Offset = offset
		return nil
	})
}

// SetStatus implements Store.
func (s *MemoryStore) SetStatus(_ context.Context, key string, status Status) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.mutate(key, func(r *Record) error {
		r.Status = status
		return nil
	})
}

// DetectCollectionChange implements Store.
func (s *MemoryStore) DetectCollectionChange(_ context.Context, lane, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, seen := s.lanes[lane]
	s.lanes[lane] = key
	rec := s.recordLocked(key)
	rec.LastCollectionKey = key
	return seen && previous != key, nil
}

// Records implements Store.
func (s *MemoryStore) Records(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ClearAll implements Store.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	s.lanes = make(map[string]string)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
