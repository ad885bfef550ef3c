// Package judgment reviews staged classification suggestions. Confirming a
// judgment applies it to the record; rejecting discards it.
package judgment

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/records"
)

// Service manages pending judgments.
type Service struct {
	judgments database.JudgmentRepository
	records   records.Store
	log       logger.Logger
	now       func() time.Time
}

// NewService creates a Service.
func NewService(judgments database.JudgmentRepository, recs records.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		judgments: judgments,
		records:   recs,
		log:       log.With(logger.String("component", "judgment")),
		now:       time.Now,
	}
}

// List returns a module's pending judgments newest first.
func (s *Service) List(
	ctx context.Context, moduleType string, req domain.PageRequest,
) (domain.Page[*domain.PendingJudgment], error) {
	req = req.Normalize()
	total, err := s.judgments.Count(ctx, moduleType)
	if err != nil {
		return domain.Page[*domain.PendingJudgment]{}, fmt.Errorf("failed to count judgments: %w", err)
	}
	items, err := s.judgments.List(ctx, moduleType, req.Size, req.Offset())
	if err != nil {
		return domain.Page[*domain.PendingJudgment]{}, fmt.Errorf("failed to list judgments: %w", err)
	}
	return domain.NewPage(items, total, req), nil
}

// PendingCount is the number of judgments awaiting review in a module.
func (s *Service) PendingCount(ctx context.Context, moduleType string) (int, error) {
	return s.judgments.Count(ctx, moduleType)
}

// CountByEntityType breaks the pending count down by record type.
func (s *Service) CountByEntityType(ctx context.Context, moduleType string) (map[string]int, error) {
	return s.judgments.CountByEntityType(ctx, moduleType)
}

// Get returns one judgment.
func (s *Service) Get(ctx context.Context, id int64) (*domain.PendingJudgment, error) {
	return s.judgments.GetByID(ctx, id)
}

// Statistics summarizes a module's pending judgments.
func (s *Service) Statistics(ctx context.Context, moduleType string) (*domain.JudgmentStats, error) {
	return s.judgments.Stats(ctx, moduleType)
}

// Confirm writes the suggested risk level and remark to the record, then
// removes the judgment. A suggestion re-staged for the same key while the
// record was being written stays pending.
func (s *Service) Confirm(ctx context.Context, id int64, operator string) error {
	j, err := s.judgments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	rec, err := s.records.Get(ctx, j.EntityType, j.EntityID)
	if err != nil {
		return fmt.Errorf("judgment %d: %w", id, err)
	}

	previous := rec.RiskLevel
	rec.RiskLevel = j.SuggestedRiskLevel
	rec.Remark = j.SuggestedRemark
	if err = s.records.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to apply judgment %d: %w", id, err)
	}
	removed, err := s.judgments.DeleteIfUnchanged(ctx, id, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to remove confirmed judgment %d: %w", id, err)
	}
	if !removed {
		s.log.Warn("Judgment re-staged during confirm, newer suggestion kept",
			logger.Int64("judgment_id", id),
			logger.String("entity_id", j.EntityID),
		)
	}

	s.log.Info("Judgment confirmed",
		logger.Int64("judgment_id", id),
		logger.String("entity_type", j.EntityType),
		logger.String("entity_id", j.EntityID),
		logger.String("from_risk", string(previous)),
		logger.String("to_risk", string(j.SuggestedRiskLevel)),
		logger.String("operator", operator),
	)
	return nil
}

// BatchConfirm confirms each id independently and reports per-id failures.
func (s *Service) BatchConfirm(ctx context.Context, ids []int64, operator string) domain.BatchResult {
	result := domain.BatchResult{Total: len(ids), Errors: []string{}}
	for _, id := range ids {
		if err := s.Confirm(ctx, id, operator); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%d: %v", id, err))
			continue
		}
		result.Success++
	}
	s.log.Info("Batch confirm complete",
		logger.Int("total", result.Total),
		logger.Int("success", result.Success),
		logger.Int("failed", result.Failed),
		logger.String("operator", operator),
	)
	return result
}

// Reject discards a judgment without touching the record.
func (s *Service) Reject(ctx context.Context, id int64, operator string) error {
	j, err := s.judgments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err = s.judgments.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to reject judgment %d: %w", id, err)
	}
	s.log.Info("Judgment rejected",
		logger.Int64("judgment_id", id),
		logger.String("entity_type", j.EntityType),
		logger.String("entity_id", j.EntityID),
		logger.String("operator", operator),
	)
	return nil
}

// CleanupExpired deletes judgments past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.judgments.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired judgments: %w", err)
	}
	return n, nil
}
