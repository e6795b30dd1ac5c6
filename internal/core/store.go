package core

import (
	"context"
	"sync"
)

// Store persists onboarding records.
//
// List returns records matching spec in insertion order. GetByID returns
// (nil, nil) when the id is unknown. Save inserts or replaces by ID and
// returns the stored record.
type Store interface {
	List(ctx context.Context, spec FilterSpec) ([]Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, r Record) (Record, error)
}

// MemoryStore is an in-process Store. It keeps insertion order and hands out
// deep copies so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore, optionally seeded.
func NewMemoryStore(seed ...Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]Record)}
	for _, r := range seed {
		s.put(r)
	}
	return s
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, spec FilterSpec) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec = spec.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		if spec.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	c := r.Clone()
	return &c, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, r Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if r.ID == "" {
		return Record{}, ValidationErrorf("record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(r)
	return r.Clone(), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *MemoryStore) put(r Record) {
	if _, exists := s.records[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = r.Clone()
}
