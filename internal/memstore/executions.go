package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// ExecutionStore is an in-memory database.ExecutionRepository. The RUNNING
// check-and-set happens under the store mutex.
type ExecutionStore struct {
	mu      sync.RWMutex
	rows    map[string]*domain.ExecutionRecord
	running map[string]string // task id -> execution id
}

// NewExecutionStore creates an empty store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		rows:    make(map[string]*domain.ExecutionRecord),
		running: make(map[string]string),
	}
}

var _ database.ExecutionRepository = (*ExecutionStore)(nil)

func cloneExecution(r *domain.ExecutionRecord) *domain.ExecutionRecord {
	c := *r
	c.Params = r.Params.Clone()
	return &c
}

// CreateRunning implements database.ExecutionRepository.
func (s *ExecutionStore) CreateRunning(_ context.Context, rec *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[rec.TaskID]; busy {
		return domain.ErrConcurrencyConflict
	}
	rec.Status = domain.ExecutionRunning
	s.rows[rec.ID] = cloneExecution(rec)
	s.running[rec.TaskID] = rec.ID
	return nil
}

// Finish implements database.ExecutionRepository.
func (s *ExecutionStore) Finish(_ context.Context, rec *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[rec.ID]
	if !ok || existing.Status != domain.ExecutionRunning {
		return domain.NotFoundf("running execution %s", rec.ID)
	}
	s.rows[rec.ID] = cloneExecution(rec)
	if s.running[rec.TaskID] == rec.ID {
		delete(s.running, rec.TaskID)
	}
	return nil
}

// GetByID implements database.ExecutionRepository.
func (s *ExecutionStore) GetByID(_ context.Context, id string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, domain.NotFoundf("execution %s", id)
	}
	return cloneExecution(r), nil
}

// ListRunning implements database.ExecutionRepository.
func (s *ExecutionStore) ListRunning(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	return s.List(ctx, domain.ExecutionFilter{Status: domain.ExecutionRunning}, 0, 0)
}

func matchesExecution(f domain.ExecutionFilter, r *domain.ExecutionRecord) bool {
	if f.CrawlerName != "" && r.CrawlerName != f.CrawlerName {
		return false
	}
	if f.TaskID != "" && r.TaskID != f.TaskID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.From != nil && r.StartedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.StartedAt.Before(*f.To) {
		return false
	}
	return true
}

func (s *ExecutionStore) matching(f domain.ExecutionFilter) []*domain.ExecutionRecord {
	s.mu.RLock()
	out := make([]*domain.ExecutionRecord, 0)
	for _, r := range s.rows {
		if matchesExecution(f, r) {
			out = append(out, cloneExecution(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// List implements database.ExecutionRepository. Newest first.
func (s *ExecutionStore) List(
	_ context.Context, filter domain.ExecutionFilter, limit, offset int,
) ([]*domain.ExecutionRecord, error) {
	return window(s.matching(filter), limit, offset), nil
}

// Count implements database.ExecutionRepository.
func (s *ExecutionStore) Count(_ context.Context, filter domain.ExecutionFilter) (int, error) {
	return len(s.matching(filter)), nil
}

// Counts implements database.ExecutionRepository.
func (s *ExecutionStore) Counts(_ context.Context, filter domain.ExecutionFilter) (domain.ExecutionCounts, error) {
	var (
		c          domain.ExecutionCounts
		durations  int64
		numWithDur int
	)
	for _, r := range s.matching(filter) {
		c.Total++
		switch r.Status {
		case domain.ExecutionSuccess:
			c.Success++
		case domain.ExecutionNoNewData:
			c.NoNewData++
		case domain.ExecutionFailed:
			c.Failed++
		case domain.ExecutionCancelled:
			c.Cancelled++
		case domain.ExecutionRunning:
			c.Running++
		}
		c.TotalSaved += int64(r.SavedCount)
		c.TotalSkipped += int64(r.SkippedCount)
		if r.DurationMs != nil {
			durations += *r.DurationMs
			numWithDur++
		}
	}
	if numWithDur > 0 {
		c.AvgDurationMs = float64(durations) / float64(numWithDur)
	}
	return c, nil
}

// CountByCrawler implements database.ExecutionRepository.
func (s *ExecutionStore) CountByCrawler(_ context.Context, filter domain.ExecutionFilter) (map[string]int, error) {
	out := make(map[string]int)
	for _, r := range s.matching(filter) {
		out[r.CrawlerName]++
	}
	return out, nil
}

// CancelStale implements database.ExecutionRepository.
func (s *ExecutionStore) CancelStale(_ context.Context, cutoff time.Time, server, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for taskID, id := range s.running {
		r := s.rows[id]
		owned := server != "" && r.ExecutionServer == server
		if !owned && !r.StartedAt.Before(cutoff) {
			continue
		}
		msg := reason
		dur := now.Sub(r.StartedAt).Milliseconds()
		r.Status = domain.ExecutionCancelled
		r.CompletedAt = &now
		r.DurationMs = &dur
		r.ErrorMessage = &msg
		delete(s.running, taskID)
		n++
	}
	return n, nil
}
