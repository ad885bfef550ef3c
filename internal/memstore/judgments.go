package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// JudgmentStore is an in-memory database.JudgmentRepository keyed by judgment key.
type JudgmentStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.PendingJudgment
	byKey  map[domain.JudgmentKey]int64
}

// NewJudgmentStore creates an empty store.
func NewJudgmentStore() *JudgmentStore {
	return &JudgmentStore{
		byID:  make(map[int64]*domain.PendingJudgment),
		byKey: make(map[domain.JudgmentKey]int64),
	}
}

var _ database.JudgmentRepository = (*JudgmentStore)(nil)

func cloneJudgment(j *domain.PendingJudgment) *domain.PendingJudgment {
	c := *j
	c.BlacklistKeywords = append(domain.StringList(nil), j.BlacklistKeywords...)
	return &c
}

// Upsert implements database.JudgmentRepository.
func (s *JudgmentStore) Upsert(_ context.Context, j *domain.PendingJudgment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	key := j.Key()
	if id, ok := s.byKey[key]; ok {
		prev := s.byID[id]
		j.ID = id
		j.CreatedAt = prev.CreatedAt
		if !now.After(prev.UpdatedAt) {
			now = prev.UpdatedAt.Add(time.Nanosecond)
		}
	} else {
		s.nextID++
		j.ID = s.nextID
		j.CreatedAt = now
		s.byKey[key] = j.ID
	}
	j.UpdatedAt = now
	s.byID[j.ID] = cloneJudgment(j)
	return nil
}

// GetByID implements database.JudgmentRepository.
func (s *JudgmentStore) GetByID(_ context.Context, id int64) (*domain.PendingJudgment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, domain.NotFoundf("judgment %d", id)
	}
	return cloneJudgment(j), nil
}

func (s *JudgmentStore) module(moduleType string) []*domain.PendingJudgment {
	s.mu.RLock()
	out := make([]*domain.PendingJudgment, 0)
	for _, j := range s.byID {
		if moduleType == "" || j.ModuleType == moduleType {
			out = append(out, cloneJudgment(j))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out
}

// List implements database.JudgmentRepository. Newest first.
func (s *JudgmentStore) List(_ context.Context, moduleType string, limit, offset int) ([]*domain.PendingJudgment, error) {
	return window(s.module(moduleType), limit, offset), nil
}

// Count implements database.JudgmentRepository.
func (s *JudgmentStore) Count(_ context.Context, moduleType string) (int, error) {
	return len(s.module(moduleType)), nil
}

// CountByEntityType implements database.JudgmentRepository.
func (s *JudgmentStore) CountByEntityType(_ context.Context, moduleType string) (map[string]int, error) {
	out := make(map[string]int)
	for _, j := range s.module(moduleType) {
		out[j.EntityType]++
	}
	return out, nil
}

// Stats implements database.JudgmentRepository.
func (s *JudgmentStore) Stats(_ context.Context, moduleType string) (*domain.JudgmentStats, error) {
	stats := &domain.JudgmentStats{ModuleType: moduleType, BlacklistKeywords: []string{}}
	seen := make(map[string]bool)
	for _, j := range s.module(moduleType) {
		stats.Total++
		if j.FilteredByBlacklist {
			stats.FilteredByBlacklist++
		}
		if j.SuggestedRiskLevel == domain.RiskHigh {
			stats.HighRisk++
		}
		for _, kw := range j.BlacklistKeywords {
			if !seen[kw] {
				seen[kw] = true
				stats.BlacklistKeywords = append(stats.BlacklistKeywords, kw)
			}
		}
	}
	sort.Strings(stats.BlacklistKeywords)
	return stats, nil
}

// Delete implements database.JudgmentRepository.
func (s *JudgmentStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return domain.NotFoundf("judgment %d", id)
	}
	delete(s.byKey, j.Key())
	delete(s.byID, id)
	return nil
}

// DeleteIfUnchanged implements database.JudgmentRepository.
func (s *JudgmentStore) DeleteIfUnchanged(_ context.Context, id int64, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok || !j.UpdatedAt.Equal(updatedAt) {
		return false, nil
	}
	delete(s.byKey, j.Key())
	delete(s.byID, id)
	return true, nil
}

// DeleteExpired implements database.JudgmentRepository.
func (s *JudgmentStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.byID {
		if j.ExpiresAt.Before(now) {
			delete(s.byKey, j.Key())
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}
