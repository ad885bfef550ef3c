// Package memstore provides in-memory repositories for running without Postgres and for tests.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// PresetStore is an in-memory database.PresetRepository.
type PresetStore struct {
	mu   sync.RWMutex
	rows map[string]*domain.Preset
}

// NewPresetStore creates an empty store.
func NewPresetStore() *PresetStore {
	return &PresetStore{rows: make(map[string]*domain.Preset)}
}

var _ database.PresetRepository = (*PresetStore)(nil)

func clonePreset(p *domain.Preset) *domain.Preset {
	c := *p
	c.Parameters = p.Parameters.Clone()
	return &c
}

// Create implements database.PresetRepository.
func (s *PresetStore) Create(_ context.Context, preset *domain.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[preset.ID] = clonePreset(preset)
	return nil
}

// GetByID implements database.PresetRepository.
func (s *PresetStore) GetByID(_ context.Context, id string) (*domain.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, domain.NotFoundf("preset %s", id)
	}
	return clonePreset(p), nil
}

// Update implements database.PresetRepository.
func (s *PresetStore) Update(_ context.Context, preset *domain.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[preset.ID]; !ok {
		return domain.NotFoundf("preset %s", preset.ID)
	}
	s.rows[preset.ID] = clonePreset(preset)
	return nil
}

// Delete implements database.PresetRepository.
func (s *PresetStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.NotFoundf("preset %s", id)
	}
	delete(s.rows, id)
	return nil
}

func (s *PresetStore) matching(params database.ListPresetsParams) []*domain.Preset {
	s.mu.RLock()
	out := make([]*domain.Preset, 0, len(s.rows))
	for _, p := range s.rows {
		if params.CrawlerNames != nil && !slices.Contains(params.CrawlerNames, p.CrawlerName) {
			continue
		}
		if params.CountryCode != "" && p.CountryCode != params.CountryCode {
			continue
		}
		if params.Enabled != nil && p.Enabled != *params.Enabled {
			continue
		}
		out = append(out, clonePreset(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// List implements database.PresetRepository.
func (s *PresetStore) List(_ context.Context, params database.ListPresetsParams) ([]*domain.Preset, error) {
	return window(s.matching(params), params.Limit, params.Offset), nil
}

// Count implements database.PresetRepository.
func (s *PresetStore) Count(_ context.Context, params database.ListPresetsParams) (int, error) {
	return len(s.matching(params)), nil
}

// window applies limit/offset; limit <= 0 means no limit.
func window[T any](rows []T, limit, offset int) []T {
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
