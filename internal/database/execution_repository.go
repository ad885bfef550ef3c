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

const executionColumns = `id, task_id, crawler_name, batch_no, status, started_at, completed_at, duration_ms,
	saved_count, skipped_count, error_message, triggered_by, manual, params, execution_server`

// ExecutionRepo handles database operations for crawl executions.
type ExecutionRepo struct {
	db *sqlx.DB
}

var _ ExecutionRepository = (*ExecutionRepo)(nil)

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

// CreateRunning inserts a RUNNING execution. The partial unique index on
// (task_id) WHERE status = 'RUNNING' rejects a second concurrent run.
func (r *ExecutionRepo) CreateRunning(ctx context.Context, rec *domain.ExecutionRecord) error {
	rec.Status = domain.ExecutionRunning
	query := `
		INSERT INTO crawl_executions (
			id, task_id, crawler_name, batch_no, status, started_at,
			triggered_by, manual, params, execution_server
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.TaskID,
		rec.CrawlerName,
		rec.BatchNo,
		rec.Status,
		rec.StartedAt,
		rec.TriggeredBy,
		rec.Manual,
		rec.Params,
		rec.ExecutionServer,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", rec.TaskID, domain.ErrConcurrencyConflict)
		}
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// Finish writes the final status of a RUNNING execution.
func (r *ExecutionRepo) Finish(ctx context.Context, rec *domain.ExecutionRecord) error {
	query := `
		UPDATE crawl_executions
		SET status = $1,
		    completed_at = $2,
		    duration_ms = $3,
		    saved_count = $4,
		    skipped_count = $5,
		    error_message = $6
		WHERE id = $7 AND status = 'RUNNING'
	`
	result, err := r.db.ExecContext(ctx, query,
		rec.Status,
		rec.CompletedAt,
		rec.DurationMs,
		rec.SavedCount,
		rec.SkippedCount,
		rec.ErrorMessage,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("running execution %s", rec.ID))
}

// GetByID retrieves an execution by its ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	query := `SELECT ` + executionColumns + ` FROM crawl_executions WHERE id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("execution %s", id)
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &rec, nil
}

// ListRunning returns every RUNNING execution.
func (r *ExecutionRepo) ListRunning(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	return r.List(ctx, domain.ExecutionFilter{Status: domain.ExecutionRunning}, 0, 0)
}

func executionWhere(f domain.ExecutionFilter) *where {
	w := &where{}
	if f.CrawlerName != "" {
		w.add("crawler_name = ?", f.CrawlerName)
	}
	if f.TaskID != "" {
		w.add("task_id = ?", f.TaskID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.From != nil {
		w.add("started_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("started_at < ?", *f.To)
	}
	return w
}

// List returns executions newest first.
func (r *ExecutionRepo) List(
	ctx context.Context, filter domain.ExecutionFilter, limit, offset int,
) ([]*domain.ExecutionRecord, error) {
	w := executionWhere(filter)
	query := `SELECT ` + executionColumns + ` FROM crawl_executions` + w.String() +
		` ORDER BY started_at DESC, id DESC` + w.paginate(limit, offset)

	records := make([]*domain.ExecutionRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return records, nil
}

// Count returns the number of executions matching filter.
func (r *ExecutionRepo) Count(ctx context.Context, filter domain.ExecutionFilter) (int, error) {
	w := executionWhere(filter)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM crawl_executions`+w.String(), w.args...); err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}

type executionCountsRow struct {
	Total         int             `db:"total"`
	Success       int             `db:"success"`
	NoNewData     int             `db:"no_new_data"`
	Failed        int             `db:"failed"`
	Cancelled     int             `db:"cancelled"`
	Running       int             `db:"running"`
	AvgDurationMs sql.NullFloat64 `db:"avg_duration_ms"`
	TotalSaved    int64           `db:"total_saved"`
	TotalSkipped  int64           `db:"total_skipped"`
}

// Counts aggregates executions matching filter in one query.
func (r *ExecutionRepo) Counts(ctx context.Context, filter domain.ExecutionFilter) (domain.ExecutionCounts, error) {
	w := executionWhere(filter)
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'SUCCESS') AS success,
			COUNT(*) FILTER (WHERE status = 'NO_NEW_DATA') AS no_new_data,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled,
			COUNT(*) FILTER (WHERE status = 'RUNNING') AS running,
			AVG(duration_ms)::float8 AS avg_duration_ms,
			COALESCE(SUM(saved_count), 0) AS total_saved,
			COALESCE(SUM(skipped_count), 0) AS total_skipped
		FROM crawl_executions` + w.String()

	var row executionCountsRow
	if err := r.db.GetContext(ctx, &row, query, w.args...); err != nil {
		return domain.ExecutionCounts{}, fmt.Errorf("failed to aggregate executions: %w", err)
	}
	return domain.ExecutionCounts{
		Total:         row.Total,
		Success:       row.Success,
		NoNewData:     row.NoNewData,
		Failed:        row.Failed,
		Cancelled:     row.Cancelled,
		Running:       row.Running,
		AvgDurationMs: row.AvgDurationMs.Float64,
		TotalSaved:    row.TotalSaved,
		TotalSkipped:  row.TotalSkipped,
	}, nil
}

// CountByCrawler groups matching executions by crawler name.
func (r *ExecutionRepo) CountByCrawler(ctx context.Context, filter domain.ExecutionFilter) (map[string]int, error) {
	w := executionWhere(filter)
	query := `SELECT crawler_name, COUNT(*) AS count FROM crawl_executions` + w.String() + ` GROUP BY crawler_name`

	var rows []struct {
		CrawlerName string `db:"crawler_name"`
		Count       int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to count executions by crawler: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.CrawlerName] = row.Count
	}
	return out, nil
}

// CancelStale cancels RUNNING executions started before cutoff or recorded by
// server, typically left behind by a process that died mid-run.
func (r *ExecutionRepo) CancelStale(ctx context.Context, cutoff time.Time, server, reason string) (int, error) {
	query := `
		UPDATE crawl_executions
		SET status = 'CANCELLED',
		    completed_at = NOW(),
		    duration_ms = (EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000)::BIGINT,
		    error_message = $1
		WHERE status = 'RUNNING'
		  AND (started_at < $2 OR ($3::text <> '' AND execution_server = $3::text))
	`
	result, err := r.db.ExecContext(ctx, query, reason, cutoff, server)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel stale executions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cancelled count: %w", err)
	}
	return int(n), nil
}
