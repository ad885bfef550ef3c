package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

const presetColumns = `id, crawler_name, name, country_code, parameters, cron_expression, description,
	enabled, priority, timeout_minutes, created_by, updated_by, created_at, updated_at`

// PresetRepo handles database operations for crawler presets.
type PresetRepo struct {
	db *sqlx.DB
}

var _ PresetRepository = (*PresetRepo)(nil)

// NewPresetRepository creates a new preset repository.
func NewPresetRepository(db *sqlx.DB) *PresetRepo {
	return &PresetRepo{db: db}
}

// Create inserts a preset.
func (r *PresetRepo) Create(ctx context.Context, preset *domain.Preset) error {
	query := `
		INSERT INTO crawler_presets (` + presetColumns + `)
		VALUES (:id, :crawler_name, :name, :country_code, :parameters, :cron_expression, :description,
			:enabled, :priority, :timeout_minutes, :created_by, :updated_by, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, preset); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("preset %s already exists: %w", preset.ID, err)
		}
		return fmt.Errorf("failed to create preset: %w", err)
	}
	return nil
}

// GetByID retrieves a preset by its ID.
func (r *PresetRepo) GetByID(ctx context.Context, id string) (*domain.Preset, error) {
	var preset domain.Preset
	query := `SELECT ` + presetColumns + ` FROM crawler_presets WHERE id = $1`
	if err := r.db.GetContext(ctx, &preset, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("preset %s", id)
		}
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	return &preset, nil
}

// Update replaces every mutable column of a preset.
func (r *PresetRepo) Update(ctx context.Context, preset *domain.Preset) error {
	query := `
		UPDATE crawler_presets
		SET crawler_name = :crawler_name,
		    name = :name,
		    country_code = :country_code,
		    parameters = :parameters,
		    cron_expression = :cron_expression,
		    description = :description,
		    enabled = :enabled,
		    priority = :priority,
		    timeout_minutes = :timeout_minutes,
		    updated_by = :updated_by,
		    updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, preset)
	if err != nil {
		return fmt.Errorf("failed to update preset: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("preset %s", preset.ID))
}

// Delete removes a preset.
func (r *PresetRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM crawler_presets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	return execRequireRows(result, nil, domain.NotFoundf("preset %s", id))
}

func presetWhere(params ListPresetsParams) *where {
	w := &where{}
	if params.CrawlerNames != nil {
		w.add("crawler_name = ANY(?)", pq.Array(params.CrawlerNames))
	}
	if params.CountryCode != "" {
		w.add("country_code = ?", params.CountryCode)
	}
	if params.Enabled != nil {
		w.add("enabled = ?", *params.Enabled)
	}
	return w
}

// List returns presets newest first.
func (r *PresetRepo) List(ctx context.Context, params ListPresetsParams) ([]*domain.Preset, error) {
	w := presetWhere(params)
	query := `SELECT ` + presetColumns + ` FROM crawler_presets` + w.String() +
		` ORDER BY created_at DESC, id` + w.paginate(params.Limit, params.Offset)

	presets := make([]*domain.Preset, 0)
	if err := r.db.SelectContext(ctx, &presets, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	return presets, nil
}

// Count returns the number of presets matching params.
func (r *PresetRepo) Count(ctx context.Context, params ListPresetsParams) (int, error) {
	w := presetWhere(params)
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM crawler_presets`+w.String(), w.args...); err != nil {
		return 0, fmt.Errorf("failed to count presets: %w", err)
	}
	return count, nil
}
