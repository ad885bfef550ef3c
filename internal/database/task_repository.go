package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

const taskColumns = `id, preset_id, crawler_name, parameters, cron_expression, state, created_at, updated_at, paused_at`

// TaskRepo handles database operations for scheduled tasks.
type TaskRepo struct {
	db *sqlx.DB
}

var _ TaskRepository = (*TaskRepo)(nil)

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// Save inserts or replaces a task, keeping the original created_at.
func (r *TaskRepo) Save(ctx context.Context, task *domain.ScheduledTask) error {
	query := `
		INSERT INTO scheduled_tasks (id, preset_id, crawler_name, parameters, cron_expression, state, paused_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET preset_id = EXCLUDED.preset_id,
		    crawler_name = EXCLUDED.crawler_name,
		    parameters = EXCLUDED.parameters,
		    cron_expression = EXCLUDED.cron_expression,
		    state = EXCLUDED.state,
		    paused_at = EXCLUDED.paused_at,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		task.ID,
		task.PresetID,
		task.CrawlerName,
		task.Parameters,
		task.CronExpression,
		task.State,
		task.PausedAt,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by its ID.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE id = $1`
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("task %s", id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// List returns every task ordered by ID.
func (r *TaskRepo) List(ctx context.Context) ([]*domain.ScheduledTask, error) {
	tasks := make([]*domain.ScheduledTask, 0)
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks ORDER BY id`
	if err := r.db.SelectContext(ctx, &tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateState sets the scheduling state and pause time.
func (r *TaskRepo) UpdateState(ctx context.Context, id string, state domain.TaskState, pausedAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET state = $1, paused_at = $2, updated_at = NOW() WHERE id = $3`,
		state, pausedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task state: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("task %s", id))
}

// UpdateCron replaces a task's cron expression.
func (r *TaskRepo) UpdateCron(ctx context.Context, id, cronExpr string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET cron_expression = $1, updated_at = NOW() WHERE id = $2`,
		cronExpr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task cron: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("task %s", id))
}

// Delete removes a task.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("task %s", id))
}
