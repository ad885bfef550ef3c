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

const judgmentColumns = `id, module_type, entity_type, entity_id, judge_result, suggested_risk_level,
	suggested_remark, blacklist_keywords, filtered_by_blacklist, created_at, updated_at, expires_at`

// JudgmentRepo handles database operations for pending judgments.
type JudgmentRepo struct {
	db *sqlx.DB
}

var _ JudgmentRepository = (*JudgmentRepo)(nil)

// NewJudgmentRepository creates a new judgment repository.
func NewJudgmentRepository(db *sqlx.DB) *JudgmentRepo {
	return &JudgmentRepo{db: db}
}

// Upsert inserts a judgment or replaces the one with the same key. The row
// keeps its id and created_at across replacements.
func (r *JudgmentRepo) Upsert(ctx context.Context, j *domain.PendingJudgment) error {
	query := `
		INSERT INTO pending_judgments (
			module_type, entity_type, entity_id, judge_result, suggested_risk_level,
			suggested_remark, blacklist_keywords, filtered_by_blacklist, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (module_type, entity_type, entity_id) DO UPDATE
		SET judge_result = EXCLUDED.judge_result,
		    suggested_risk_level = EXCLUDED.suggested_risk_level,
		    suggested_remark = EXCLUDED.suggested_remark,
		    blacklist_keywords = EXCLUDED.blacklist_keywords,
		    filtered_by_blacklist = EXCLUDED.filtered_by_blacklist,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		j.ModuleType,
		j.EntityType,
		j.EntityID,
		j.JudgeResult,
		j.SuggestedRiskLevel,
		j.SuggestedRemark,
		j.BlacklistKeywords,
		j.FilteredByBlacklist,
		j.ExpiresAt,
	).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert judgment: %w", err)
	}
	return nil
}

// GetByID retrieves a judgment by its ID.
func (r *JudgmentRepo) GetByID(ctx context.Context, id int64) (*domain.PendingJudgment, error) {
	var j domain.PendingJudgment
	query := `SELECT ` + judgmentColumns + ` FROM pending_judgments WHERE id = $1`
	if err := r.db.GetContext(ctx, &j, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("judgment %d", id)
		}
		return nil, fmt.Errorf("failed to get judgment: %w", err)
	}
	return &j, nil
}

func moduleWhere(moduleType string) *where {
	w := &where{}
	if moduleType != "" {
		w.add("module_type = ?", moduleType)
	}
	return w
}

// List returns a module's judgments newest first. An empty module lists all.
func (r *JudgmentRepo) List(
	ctx context.Context, moduleType string, limit, offset int,
) ([]*domain.PendingJudgment, error) {
	w := moduleWhere(moduleType)
	query := `SELECT ` + judgmentColumns + ` FROM pending_judgments` + w.String() +
		` ORDER BY id DESC` + w.paginate(limit, offset)

	judgments := make([]*domain.PendingJudgment, 0)
	if err := r.db.SelectContext(ctx, &judgments, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list judgments: %w", err)
	}
	return judgments, nil
}

// Count returns the number of judgments in a module.
func (r *JudgmentRepo) Count(ctx context.Context, moduleType string) (int, error) {
	w := moduleWhere(moduleType)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM pending_judgments`+w.String(), w.args...); err != nil {
		return 0, fmt.Errorf("failed to count judgments: %w", err)
	}
	return count, nil
}

// CountByEntityType groups a module's judgments by record type.
func (r *JudgmentRepo) CountByEntityType(ctx context.Context, moduleType string) (map[string]int, error) {
	w := moduleWhere(moduleType)
	query := `SELECT entity_type, COUNT(*) AS count FROM pending_judgments` + w.String() + ` GROUP BY entity_type`

	var rows []struct {
		EntityType string `db:"entity_type"`
		Count      int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to count judgments by entity type: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.EntityType] = row.Count
	}
	return out, nil
}

// Stats summarizes a module's judgments and collects the distinct suggested
// blacklist keywords.
func (r *JudgmentRepo) Stats(ctx context.Context, moduleType string) (*domain.JudgmentStats, error) {
	w := moduleWhere(moduleType)
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE filtered_by_blacklist) AS filtered,
			COUNT(*) FILTER (WHERE suggested_risk_level = 'HIGH') AS high_risk
		FROM pending_judgments` + w.String()

	var row struct {
		Total    int `db:"total"`
		Filtered int `db:"filtered"`
		HighRisk int `db:"high_risk"`
	}
	if err := r.db.GetContext(ctx, &row, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate judgments: %w", err)
	}

	keywords := make(pq.StringArray, 0)
	kwQuery := `
		SELECT COALESCE(array_agg(DISTINCT kw ORDER BY kw), '{}')
		FROM pending_judgments, jsonb_array_elements_text(blacklist_keywords) AS kw` + w.String()
	if err := r.db.GetContext(ctx, &keywords, kwQuery, w.args...); err != nil {
		return nil, fmt.Errorf("failed to collect judgment keywords: %w", err)
	}

	return &domain.JudgmentStats{
		ModuleType:          moduleType,
		Total:               row.Total,
		FilteredByBlacklist: row.Filtered,
		HighRisk:            row.HighRisk,
		BlacklistKeywords:   []string(keywords),
	}, nil
}

// Delete removes a judgment.
func (r *JudgmentRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_judgments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete judgment: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("judgment %d", id))
}

// DeleteIfUnchanged removes a judgment unless a newer upsert replaced it.
func (r *JudgmentRepo) DeleteIfUnchanged(ctx context.Context, id int64, updatedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_judgments WHERE id = $1 AND updated_at = $2`, id, updatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to delete judgment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read deleted count: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes judgments whose expiry is before now.
func (r *JudgmentRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_judgments WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired judgments: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted count: %w", err)
	}
	return int(n), nil
}
