// Package preset manages named, reusable crawler parameter sets and keeps their schedules in sync.
package preset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
)

// TaskScheduler is the part of the scheduler presets drive. A preset's task shares the preset id.
type TaskScheduler interface {
	Get(ctx context.Context, id string) (*domain.TaskView, error)
	Schedule(ctx context.Context, task *domain.ScheduledTask) error
	Reschedule(ctx context.Context, id, cronExpr string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// CreateRequest describes a new preset. Nil pointers take the defaults.
type CreateRequest struct {
	CrawlerName    string        `json:"crawler_name"`
	Name           string        `json:"name"`
	Parameters     domain.Params `json:"parameters"`
	CronExpression string        `json:"cron_expression"`
	Description    string        `json:"description"`
	Enabled        *bool         `json:"enabled"`
	Priority       *int          `json:"priority"`
	TimeoutMinutes *int          `json:"timeout_minutes"`
	CreatedBy      string        `json:"created_by"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Name           *string       `json:"name"`
	Parameters     domain.Params `json:"parameters"`
	CronExpression *string       `json:"cron_expression"`
	Description    *string       `json:"description"`
	Enabled        *bool         `json:"enabled"`
	Priority       *int          `json:"priority"`
	TimeoutMinutes *int          `json:"timeout_minutes"`
	UpdatedBy      string        `json:"updated_by"`
}

// Service is the preset store.
type Service struct {
	repo      database.PresetRepository
	crawlers  *registry.CrawlerRegistry
	scheduler TaskScheduler
	log       logger.Logger
	now       func() time.Time
}

// NewService creates a preset service. The scheduler hook may be attached later with SetScheduler.
func NewService(repo database.PresetRepository, crawlers *registry.CrawlerRegistry, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{repo: repo, crawlers: crawlers, log: log, now: time.Now}
}

// SetScheduler attaches the scheduler that preset schedules are synced to.
func (s *Service) SetScheduler(sched TaskScheduler) {
	s.scheduler = sched
}

// Create validates and stores a new preset. Nothing is stored when validation fails.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Preset, error) {
	def, err := s.crawlers.Get(req.CrawlerName)
	if err != nil {
		return nil, err
	}

	verr := &domain.ValidationError{}
	if strings.TrimSpace(req.Name) == "" {
		verr.Add("name", "is required")
	}
	checkCron(verr, req.CronExpression)
	checkLimits(verr, req.Priority, req.TimeoutMinutes)
	mergeParamErrors(verr, s.crawlers.Validate(req.CrawlerName, req.Parameters))
	if err = verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Preset{
		ID:             uuid.New().String(),
		CrawlerName:    req.CrawlerName,
		Name:           strings.TrimSpace(req.Name),
		CountryCode:    def.CountryCode,
		Parameters:     req.Parameters.Clone(),
		CronExpression: strings.TrimSpace(req.CronExpression),
		Description:    req.Description,
		Enabled:        boolOr(req.Enabled, true),
		Priority:       intOr(req.Priority, domain.DefaultPresetPriority),
		TimeoutMinutes: intOr(req.TimeoutMinutes, domain.DefaultPresetTimeout),
		CreatedBy:      req.CreatedBy,
		UpdatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create preset: %w", err)
	}

	if err = s.syncSchedule(ctx, p, "", false); err != nil {
		if delErr := s.repo.Delete(ctx, p.ID); delErr != nil {
			s.log.Error("Failed to roll back preset", logger.String("preset_id", p.ID), logger.Error(delErr))
		}
		return nil, err
	}

	s.log.Info("Preset created",
		logger.String("preset_id", p.ID),
		logger.String("crawler", p.CrawlerName),
		logger.String("name", p.Name),
	)
	return p, nil
}

// Update applies a partial update. Parameters are revalidated against the crawler schema.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*domain.Preset, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previousCron := p.CronExpression
	previousEnabled := p.Enabled

	verr := &domain.ValidationError{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			verr.Add("name", "is required")
		}
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.CronExpression != nil {
		p.CronExpression = strings.TrimSpace(*req.CronExpression)
		checkCron(verr, p.CronExpression)
	}
	checkLimits(verr, req.Priority, req.TimeoutMinutes)
	if req.Parameters != nil {
		p.Parameters = req.Parameters.Clone()
		mergeParamErrors(verr, s.crawlers.Validate(p.CrawlerName, p.Parameters))
	}
	if err = verr.OrNil(); err != nil {
		return nil, err
	}

	if req.Description != nil {
		p.Description = *req.Description
	}
	p.Enabled = boolOr(req.Enabled, p.Enabled)
	p.Priority = intOr(req.Priority, p.Priority)
	p.TimeoutMinutes = intOr(req.TimeoutMinutes, p.TimeoutMinutes)
	p.UpdatedBy = req.UpdatedBy
	p.UpdatedAt = s.now()

	if err = s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update preset: %w", err)
	}
	if err = s.syncSchedule(ctx, p, previousCron, p.Enabled != previousEnabled); err != nil {
		return nil, err
	}

	s.log.Info("Preset updated", logger.String("preset_id", p.ID))
	return p, nil
}

// Copy duplicates a preset under a new name. The copy starts disabled and unscheduled.
func (s *Service) Copy(ctx context.Context, id, newName, operator string) (*domain.Preset, error) {
	src, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		newName = src.Name + " (copy)"
	}

	now := s.now()
	cp := *src
	cp.ID = uuid.New().String()
	cp.Name = newName
	cp.Parameters = src.Parameters.Clone()
	cp.Enabled = false
	cp.Description = "copied from " + src.Name
	cp.CreatedBy = operator
	cp.UpdatedBy = operator
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if err = s.repo.Create(ctx, &cp); err != nil {
		return nil, fmt.Errorf("copy preset: %w", err)
	}
	s.log.Info("Preset copied", logger.String("source_id", id), logger.String("preset_id", cp.ID))
	return &cp, nil
}

// Delete detaches the preset's schedule and hard-deletes the preset.
// Execution history keeps its own parameter snapshots.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.detach(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	s.log.Info("Preset deleted", logger.String("preset_id", id))
	return nil
}

// Get returns one preset.
func (s *Service) Get(ctx context.Context, id string) (*domain.Preset, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of presets.
func (s *Service) List(ctx context.Context, filter domain.PresetFilter) (domain.Page[*domain.Preset], error) {
	params := database.ListPresetsParams{
		CountryCode: filter.CountryCode,
		Enabled:     filter.Enabled,
	}
	switch {
	case filter.CrawlerName != "":
		params.CrawlerNames = []string{filter.CrawlerName}
	case filter.CrawlerType != "":
		params.CrawlerNames = []string{}
		for _, def := range s.crawlers.ListByType(filter.CrawlerType) {
			params.CrawlerNames = append(params.CrawlerNames, def.Name)
		}
	}

	total, err := s.repo.Count(ctx, params)
	if err != nil {
		return domain.Page[*domain.Preset]{}, fmt.Errorf("count presets: %w", err)
	}
	req := filter.PageRequest.Normalize()
	params.Limit = req.Size
	params.Offset = req.Offset()
	items, err := s.repo.List(ctx, params)
	if err != nil {
		return domain.Page[*domain.Preset]{}, fmt.Errorf("list presets: %w", err)
	}
	return domain.NewPage(items, total, req), nil
}

// ListByCrawler returns every preset of one crawler.
func (s *Service) ListByCrawler(ctx context.Context, crawlerName string) ([]*domain.Preset, error) {
	return s.repo.List(ctx, database.ListPresetsParams{CrawlerNames: []string{crawlerName}})
}

// Validate is a dry-run check of params against a crawler schema.
func (s *Service) Validate(crawlerName string, params domain.Params) bool {
	return s.crawlers.Validate(crawlerName, params) == nil
}

// ValidateDetailed returns the field errors, or nil when params are valid.
func (s *Service) ValidateDetailed(crawlerName string, params domain.Params) error {
	return s.crawlers.Validate(crawlerName, params)
}

// syncSchedule makes the preset's task match its cron expression. The task is
// only paused or resumed when the enabled flag itself changed, so a task paused
// through the task API stays paused across unrelated preset edits.
func (s *Service) syncSchedule(ctx context.Context, p *domain.Preset, previousCron string, enabledChanged bool) error {
	if s.scheduler == nil {
		return nil
	}
	if p.CronExpression == "" {
		return s.detach(ctx, p.ID)
	}

	view, err := s.scheduler.Get(ctx, p.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("look up schedule: %w", err)
	}

	if view == nil {
		if !p.Enabled {
			return nil
		}
		id := p.ID
		task := &domain.ScheduledTask{
			ID:             p.ID,
			PresetID:       &id,
			CrawlerName:    p.CrawlerName,
			CronExpression: p.CronExpression,
			State:          domain.TaskActive,
		}
		if err = s.scheduler.Schedule(ctx, task); err != nil {
			return fmt.Errorf("schedule preset: %w", err)
		}
		return nil
	}

	if p.CronExpression != previousCron || p.CronExpression != view.CronExpression {
		if err = s.scheduler.Reschedule(ctx, p.ID, p.CronExpression); err != nil {
			return fmt.Errorf("reschedule preset: %w", err)
		}
	}
	if !enabledChanged {
		return nil
	}
	switch {
	case p.Enabled && view.State == domain.TaskPaused:
		err = s.scheduler.Resume(ctx, p.ID)
	case !p.Enabled && view.State == domain.TaskActive:
		err = s.scheduler.Pause(ctx, p.ID)
	}
	if err != nil {
		return fmt.Errorf("sync preset schedule state: %w", err)
	}
	return nil
}

func (s *Service) detach(ctx context.Context, id string) error {
	if s.scheduler == nil {
		return nil
	}
	if err := s.scheduler.Remove(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("remove schedule: %w", err)
	}
	return nil
}

func checkCron(verr *domain.ValidationError, expr string) {
	if strings.TrimSpace(expr) == "" {
		return
	}
	if err := scheduler.ValidateCron(expr); err != nil {
		verr.Add("cron_expression", "%v", err)
	}
}

func checkLimits(verr *domain.ValidationError, priority, timeout *int) {
	if priority != nil && (*priority < 1 || *priority > 10) {
		verr.Add("priority", "must be between 1 and 10")
	}
	if timeout != nil && *timeout < 1 {
		verr.Add("timeout_minutes", "must be positive")
	}
}

// mergeParamErrors folds a schema validation result into verr.
func mergeParamErrors(verr *domain.ValidationError, err error) {
	if err == nil {
		return
	}
	var fields *domain.ValidationError
	if errors.As(err, &fields) {
		verr.Fields = append(verr.Fields, fields.Fields...)
		return
	}
	verr.Add("parameters", "%v", err)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
