// Package pipeline filters candidate records through the keyword blacklist and
// the classifier, and stages the suggested risk changes for review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/classify"
	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/records"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
)

// Defaults applied by New.
const (
	DefaultBatchSize     = 100
	DefaultConcurrency   = 4
	DefaultBatchInterval = time.Second
	DefaultJudgmentTTL   = 30 * 24 * time.Hour
)

// Config tunes classification throughput and staging.
type Config struct {
	BatchSize     int
	Concurrency   int
	BatchInterval time.Duration
	JudgmentTTL   time.Duration
	// ModuleType is used when Stage is called without one.
	ModuleType string
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	// A negative interval disables the pause between batches.
	switch {
	case c.BatchInterval == 0:
		c.BatchInterval = DefaultBatchInterval
	case c.BatchInterval < 0:
		c.BatchInterval = 0
	}
	if c.JudgmentTTL <= 0 {
		c.JudgmentTTL = DefaultJudgmentTTL
	}
	if c.ModuleType == "" {
		c.ModuleType = domain.ModuleDeviceData
	}
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Records    records.Store
	Blacklist  *blacklist.Service
	Classifier classify.Classifier
	Judgments  database.JudgmentRepository
	Tasks      database.JudgeTaskRepository
	Metrics    *telemetry.Metrics
	Logger     logger.Logger
}

// Pipeline runs previews, direct executes, staging and async judge tasks.
type Pipeline struct {
	records    records.Store
	blacklist  *blacklist.Service
	classifier classify.Classifier
	judgments  database.JudgmentRepository
	tasks      database.JudgeTaskRepository
	metrics    *telemetry.Metrics
	log        logger.Logger
	cfg        Config
	now        func() time.Time

	// Async task workers run on baseCtx and are tracked by wg.
	baseCtx  context.Context
	stopAll  context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	cfg.setDefaults()
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = classify.Unavailable{}
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	return &Pipeline{
		records:    deps.Records,
		blacklist:  deps.Blacklist,
		classifier: classifier,
		judgments:  deps.Judgments,
		tasks:      deps.Tasks,
		metrics:    deps.Metrics,
		log:        log.With(logger.String("component", "pipeline")),
		cfg:        cfg,
		now:        time.Now,
		baseCtx:    baseCtx,
		stopAll:    stopAll,
	}
}

// Preview classifies the candidates selected by filter without writing anything.
// The blacklist is read once, so keywords added meanwhile apply from the next preview.
func (p *Pipeline) Preview(ctx context.Context, filter domain.RecordFilter) (*domain.AuditResult, error) {
	filter = filter.Normalize()
	candidates, err := p.records.FindByCriteria(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	result := &domain.AuditResult{Total: len(candidates), Items: make([]*domain.AuditItem, 0, len(candidates))}
	for _, res := range p.judgeBatch(ctx, p.blacklist.Snapshot(), candidates) {
		if res.err != nil {
			result.Failed++
			continue
		}
		tally(result, res.item)
		result.Items = append(result.Items, res.item)
	}
	if err = ctx.Err(); err != nil {
		return nil, fmt.Errorf("preview interrupted: %w", err)
	}

	p.log.Info("Preview complete",
		logger.Int("total", result.Total),
		logger.Int("blacklist_filtered", result.BlacklistFiltered),
		logger.Int("ai_kept", result.AIKept),
		logger.Int("ai_downgraded", result.AIDowngraded),
		logger.Int("failed", result.Failed),
	)
	return result, nil
}

func tally(result *domain.AuditResult, item *domain.AuditItem) {
	switch {
	case item.BlacklistMatched:
		result.BlacklistFiltered++
	case item.IsRelated():
		result.AIJudged++
		result.AIKept++
	default:
		result.AIJudged++
		result.AIDowngraded++
	}
}

// Execute applies preview items directly. Related items are kept as they are;
// every other item is saved as LOW with its remark. newBlacklist keywords are
// added to the store and take effect for later previews.
func (p *Pipeline) Execute(
	ctx context.Context, items []*domain.AuditItem, newBlacklist []string,
) (*domain.ExecuteResult, error) {
	result := &domain.ExecuteResult{}
	downgrades := make([]*domain.Record, 0, len(items))

	for _, item := range items {
		if item.IsRelated() {
			result.Kept++
			continue
		}
		rec, err := p.records.Get(ctx, item.EntityType, item.EntityID)
		if err != nil {
			result.Failed++
			p.log.Warn("Failed to load record for downgrade",
				logger.String("entity_type", item.EntityType),
				logger.String("entity_id", item.EntityID),
				logger.Error(err),
			)
			continue
		}
		rec.RiskLevel = domain.RiskLow
		rec.Remark = item.Remark
		downgrades = append(downgrades, rec)
	}

	if err := p.records.SaveAll(ctx, downgrades); err != nil {
		result.Failed += len(downgrades)
		p.log.Error("Failed to save downgraded records", logger.Int("count", len(downgrades)), logger.Error(err))
	} else {
		result.Downgraded = len(downgrades)
	}

	if len(newBlacklist) > 0 {
		added, err := p.blacklist.Add(ctx, newBlacklist...)
		if err != nil {
			return result, fmt.Errorf("failed to update blacklist: %w", err)
		}
		result.KeywordsAdded = added
	}

	p.log.Info("Execute complete",
		logger.Int("kept", result.Kept),
		logger.Int("downgraded", result.Downgraded),
		logger.Int("failed", result.Failed),
		logger.Int("keywords_added", result.KeywordsAdded),
	)
	return result, nil
}

// Stage upserts one pending judgment per item, keyed by module, entity type and
// entity id. Re-staging an item replaces its suggestion and extends its expiry.
func (p *Pipeline) Stage(ctx context.Context, moduleType string, items []*domain.AuditItem) (int, error) {
	if moduleType == "" {
		moduleType = p.cfg.ModuleType
	}
	now := p.now()
	saved := 0
	var errs []error
	for _, item := range items {
		j := &domain.PendingJudgment{
			ModuleType:          moduleType,
			EntityType:          item.EntityType,
			EntityID:            item.EntityID,
			JudgeResult:         domain.DetailOf(item),
			SuggestedRiskLevel:  item.SuggestedRiskLevel,
			SuggestedRemark:     item.Remark,
			BlacklistKeywords:   append(domain.StringList{}, item.SuggestedBlacklist...),
			FilteredByBlacklist: item.BlacklistMatched,
			ExpiresAt:           now.Add(p.cfg.JudgmentTTL),
		}
		if err := p.judgments.Upsert(ctx, j); err != nil {
			errs = append(errs, fmt.Errorf("stage %s:%s: %w", item.EntityType, item.EntityID, err))
			continue
		}
		saved++
	}
	p.metrics.Staged(saved)

	if len(errs) > 0 {
		return saved, fmt.Errorf("failed to stage %d of %d judgments: %w", len(errs), len(items), errors.Join(errs...))
	}
	return saved, nil
}
