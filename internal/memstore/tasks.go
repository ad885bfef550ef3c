package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// TaskStore is an in-memory database.TaskRepository.
type TaskStore struct {
	mu   sync.RWMutex
	rows map[string]*domain.ScheduledTask
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{rows: make(map[string]*domain.ScheduledTask)}
}

var _ database.TaskRepository = (*TaskStore)(nil)

func cloneTask(t *domain.ScheduledTask) *domain.ScheduledTask {
	c := *t
	c.Parameters = t.Parameters.Clone()
	return &c
}

// Save implements database.TaskRepository.
func (s *TaskStore) Save(_ context.Context, task *domain.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.rows[task.ID]; ok {
		task.CreatedAt = existing.CreatedAt
	} else if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.rows[task.ID] = cloneTask(task)
	return nil
}

// GetByID implements database.TaskRepository.
func (s *TaskStore) GetByID(_ context.Context, id string) (*domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, domain.NotFoundf("task %s", id)
	}
	return cloneTask(t), nil
}

// List implements database.TaskRepository.
func (s *TaskStore) List(_ context.Context) ([]*domain.ScheduledTask, error) {
	s.mu.RLock()
	out := make([]*domain.ScheduledTask, 0, len(s.rows))
	for _, t := range s.rows {
		out = append(out, cloneTask(t))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateState implements database.TaskRepository.
func (s *TaskStore) UpdateState(_ context.Context, id string, state domain.TaskState, pausedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return domain.NotFoundf("task %s", id)
	}
	t.State = state
	t.PausedAt = pausedAt
	t.UpdatedAt = time.Now()
	return nil
}

// UpdateCron implements database.TaskRepository.
func (s *TaskStore) UpdateCron(_ context.Context, id, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return domain.NotFoundf("task %s", id)
	}
	t.CronExpression = cronExpr
	t.UpdatedAt = time.Now()
	return nil
}

// Delete implements database.TaskRepository.
func (s *TaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.NotFoundf("task %s", id)
	}
	delete(s.rows, id)
	return nil
}
