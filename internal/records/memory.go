package records

import (
	"context"
	"sort"
	"sync"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*domain.Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with records.
func NewMemoryStore(seed ...*domain.Record) *MemoryStore {
	s := &MemoryStore{rows: make(map[string]*domain.Record, len(seed))}
	for _, r := range seed {
		c := *r
		s.rows[r.Key()] = &c
	}
	return s
}

// FindByCriteria implements Store.
func (s *MemoryStore) FindByCriteria(_ context.Context, filter domain.RecordFilter) ([]*domain.Record, error) {
	s.mu.RLock()
	out := make([]*domain.Record, 0)
	for _, r := range s.rows {
		if filter.Matches(r) {
			c := *r
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, entityType, entityID string) (*domain.Record, error) {
	key := (&domain.Record{EntityType: entityType, EntityID: entityID}).Key()
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[key]
	if !ok {
		return nil, domain.NotFoundf("record %s", key)
	}
	c := *r
	return &c, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, record *domain.Record) error {
	c := *record
	s.mu.Lock()
	s.rows[record.Key()] = &c
	s.mu.Unlock()
	return nil
}

// SaveAll implements Store.
func (s *MemoryStore) SaveAll(ctx context.Context, records []*domain.Record) error {
	for _, r := range records {
		if err := s.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
