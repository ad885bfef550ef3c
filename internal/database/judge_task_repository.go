package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

const judgeTaskColumns = `task_id, task_type, module_type, status, filter_params, total_count, processed_count,
	related_count, unrelated_count, failed_count, blacklisted_count, error_message,
	created_at, start_time, end_time, updated_at`

// JudgeTaskRepo handles database operations for async judgment tasks.
type JudgeTaskRepo struct {
	db *sqlx.DB
}

var _ JudgeTaskRepository = (*JudgeTaskRepo)(nil)

// NewJudgeTaskRepository creates a new judge task repository.
func NewJudgeTaskRepository(db *sqlx.DB) *JudgeTaskRepo {
	return &JudgeTaskRepo{db: db}
}

// Create inserts a task.
func (r *JudgeTaskRepo) Create(ctx context.Context, task *domain.AIJudgeTask) error {
	query := `
		INSERT INTO ai_judge_tasks (task_id, task_type, module_type, status, filter_params, total_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		task.TaskID,
		task.TaskType,
		task.ModuleType,
		task.Status,
		task.FilterParams,
		task.TotalCount,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create judge task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by its ID.
func (r *JudgeTaskRepo) GetByID(ctx context.Context, id string) (*domain.AIJudgeTask, error) {
	var task domain.AIJudgeTask
	query := `SELECT ` + judgeTaskColumns + ` FROM ai_judge_tasks WHERE task_id = $1`
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("judge task %s", id)
		}
		return nil, fmt.Errorf("failed to get judge task: %w", err)
	}
	return &task, nil
}

// List returns tasks newest first.
func (r *JudgeTaskRepo) List(ctx context.Context, limit, offset int) ([]*domain.AIJudgeTask, error) {
	w := &where{}
	query := `SELECT ` + judgeTaskColumns + ` FROM ai_judge_tasks ORDER BY created_at DESC, task_id` +
		w.paginate(limit, offset)

	tasks := make([]*domain.AIJudgeTask, 0)
	if err := r.db.SelectContext(ctx, &tasks, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list judge tasks: %w", err)
	}
	return tasks, nil
}

// Count returns the number of tasks.
func (r *JudgeTaskRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM ai_judge_tasks`); err != nil {
		return 0, fmt.Errorf("failed to count judge tasks: %w", err)
	}
	return count, nil
}

// transition runs a conditional UPDATE whose last placeholder is the task id
// and whose status guard is $1. When no row changes it tells a missing task
// apart from one in another state.
func (r *JudgeTaskRepo) transition(
	ctx context.Context, id string, from []domain.JudgeTaskStatus, set string, args ...any,
) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	args = append([]any{pq.Array(statuses)}, args...)
	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE ai_judge_tasks SET %s, updated_at = NOW() WHERE status = ANY($1) AND task_id = $%d`,
		set, len(args),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update judge task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read updated count: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err = r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM ai_judge_tasks WHERE task_id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check judge task: %w", err)
	}
	if !exists {
		return false, domain.NotFoundf("judge task %s", id)
	}
	return false, nil
}

// MarkRunning moves a PENDING task to RUNNING.
func (r *JudgeTaskRepo) MarkRunning(ctx context.Context, id string, total int, at time.Time) (bool, error) {
	return r.transition(ctx, id,
		[]domain.JudgeTaskStatus{domain.JudgePending},
		`status = 'RUNNING', total_count = $2, start_time = $3`,
		total, at,
	)
}

// AddProgress adds a batch's counters to a RUNNING task.
func (r *JudgeTaskRepo) AddProgress(ctx context.Context, id string, d domain.BatchProgress) (bool, error) {
	return r.transition(ctx, id,
		[]domain.JudgeTaskStatus{domain.JudgeRunning},
		`processed_count = processed_count + $2,
		 related_count = related_count + $3,
		 unrelated_count = unrelated_count + $4,
		 failed_count = failed_count + $5,
		 blacklisted_count = blacklisted_count + $6`,
		d.Processed, d.Related, d.Unrelated, d.Failed, d.Blacklisted,
	)
}

// Finish moves a PENDING or RUNNING task to a final status.
func (r *JudgeTaskRepo) Finish(
	ctx context.Context, id string, status domain.JudgeTaskStatus, errMsg *string, at time.Time,
) (bool, error) {
	return r.transition(ctx, id,
		[]domain.JudgeTaskStatus{domain.JudgePending, domain.JudgeRunning},
		`status = $2, error_message = $3, end_time = $4`,
		status, errMsg, at,
	)
}

// Cancel moves a PENDING or RUNNING task to CANCELLED.
func (r *JudgeTaskRepo) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.transition(ctx, id,
		[]domain.JudgeTaskStatus{domain.JudgePending, domain.JudgeRunning},
		`status = 'CANCELLED', end_time = $2`,
		at,
	)
}
