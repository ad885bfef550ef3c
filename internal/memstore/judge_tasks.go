package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// JudgeTaskStore is an in-memory database.JudgeTaskRepository.
type JudgeTaskStore struct {
	mu   sync.RWMutex
	rows map[string]*domain.AIJudgeTask
}

// NewJudgeTaskStore creates an empty store.
func NewJudgeTaskStore() *JudgeTaskStore {
	return &JudgeTaskStore{rows: make(map[string]*domain.AIJudgeTask)}
}

var _ database.JudgeTaskRepository = (*JudgeTaskStore)(nil)

func cloneJudgeTask(t *domain.AIJudgeTask) *domain.AIJudgeTask {
	c := *t
	c.FilterParams.EntityTypes = append([]string(nil), t.FilterParams.EntityTypes...)
	return &c
}

// Create implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) Create(_ context.Context, task *domain.AIJudgeTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[task.TaskID] = cloneJudgeTask(task)
	return nil
}

// GetByID implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) GetByID(_ context.Context, id string) (*domain.AIJudgeTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, domain.NotFoundf("judge task %s", id)
	}
	return cloneJudgeTask(t), nil
}

// List implements database.JudgeTaskRepository. Newest first.
func (s *JudgeTaskStore) List(_ context.Context, limit, offset int) ([]*domain.AIJudgeTask, error) {
	s.mu.RLock()
	out := make([]*domain.AIJudgeTask, 0, len(s.rows))
	for _, t := range s.rows {
		out = append(out, cloneJudgeTask(t))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return window(out, limit, offset), nil
}

// Count implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// update applies fn to the task when its status is one of from.
func (s *JudgeTaskStore) update(id string, fn func(*domain.AIJudgeTask), from ...domain.JudgeTaskStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return false, domain.NotFoundf("judge task %s", id)
	}
	for _, st := range from {
		if t.Status == st {
			fn(t)
			t.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// MarkRunning implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) MarkRunning(_ context.Context, id string, total int, at time.Time) (bool, error) {
	return s.update(id, func(t *domain.AIJudgeTask) {
		t.Status = domain.JudgeRunning
		t.TotalCount = total
		t.StartTime = &at
	}, domain.JudgePending)
}

// AddProgress implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) AddProgress(_ context.Context, id string, d domain.BatchProgress) (bool, error) {
	return s.update(id, func(t *domain.AIJudgeTask) {
		t.ProcessedCount += d.Processed
		t.RelatedCount += d.Related
		t.UnrelatedCount += d.Unrelated
		t.FailedCount += d.Failed
		t.BlacklistedCount += d.Blacklisted
	}, domain.JudgeRunning)
}

// Finish implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) Finish(
	_ context.Context, id string, status domain.JudgeTaskStatus, errMsg *string, at time.Time,
) (bool, error) {
	return s.update(id, func(t *domain.AIJudgeTask) {
		t.Status = status
		t.ErrorMessage = errMsg
		t.EndTime = &at
	}, domain.JudgePending, domain.JudgeRunning)
}

// Cancel implements database.JudgeTaskRepository.
func (s *JudgeTaskStore) Cancel(_ context.Context, id string, at time.Time) (bool, error) {
	return s.update(id, func(t *domain.AIJudgeTask) {
		t.Status = domain.JudgeCancelled
		t.EndTime = &at
	}, domain.JudgePending, domain.JudgeRunning)
}
