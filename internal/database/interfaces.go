package database

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// ListPresetsParams filters preset listings. CrawlerNames is resolved from the
// crawler type by the caller; a nil slice matches every crawler.
type ListPresetsParams struct {
	CrawlerNames []string
	CountryCode  string
	Enabled      *bool
	Limit        int
	Offset       int
}

// PresetRepository stores presets.
type PresetRepository interface {
	Create(ctx context.Context, preset *domain.Preset) error
	GetByID(ctx context.Context, id string) (*domain.Preset, error)
	Update(ctx context.Context, preset *domain.Preset) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params ListPresetsParams) ([]*domain.Preset, error)
	Count(ctx context.Context, params ListPresetsParams) (int, error)
}

// TaskRepository stores scheduled tasks.
type TaskRepository interface {
	Save(ctx context.Context, task *domain.ScheduledTask) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledTask, error)
	List(ctx context.Context) ([]*domain.ScheduledTask, error)
	UpdateState(ctx context.Context, id string, state domain.TaskState, pausedAt *time.Time) error
	UpdateCron(ctx context.Context, id, cronExpr string) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores the append-only execution history.
type ExecutionRepository interface {
	// CreateRunning inserts a RUNNING record. It returns domain.ErrConcurrencyConflict
	// when the task already has a RUNNING record.
	CreateRunning(ctx context.Context, rec *domain.ExecutionRecord) error
	// Finish moves a RUNNING record to its final status.
	Finish(ctx context.Context, rec *domain.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListRunning(ctx context.Context) ([]*domain.ExecutionRecord, error)
	List(ctx context.Context, filter domain.ExecutionFilter, limit, offset int) ([]*domain.ExecutionRecord, error)
	Count(ctx context.Context, filter domain.ExecutionFilter) (int, error)
	Counts(ctx context.Context, filter domain.ExecutionFilter) (domain.ExecutionCounts, error)
	CountByCrawler(ctx context.Context, filter domain.ExecutionFilter) (map[string]int, error)
	// CancelStale marks RUNNING records started before cutoff, or owned by server,
	// as CANCELLED. An empty server matches no owner.
	CancelStale(ctx context.Context, cutoff time.Time, server, reason string) (int, error)
}

// JudgmentRepository stages pending judgments.
type JudgmentRepository interface {
	// Upsert inserts or replaces the row for the judgment key.
	Upsert(ctx context.Context, j *domain.PendingJudgment) error
	GetByID(ctx context.Context, id int64) (*domain.PendingJudgment, error)
	List(ctx context.Context, moduleType string, limit, offset int) ([]*domain.PendingJudgment, error)
	Count(ctx context.Context, moduleType string) (int, error)
	CountByEntityType(ctx context.Context, moduleType string) (map[string]int, error)
	Stats(ctx context.Context, moduleType string) (*domain.JudgmentStats, error)
	Delete(ctx context.Context, id int64) error
	// DeleteIfUnchanged deletes the row only while its updated_at still equals
	// updatedAt. It reports false when the row was re-staged or is gone.
	DeleteIfUnchanged(ctx context.Context, id int64, updatedAt time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// JudgeTaskRepository tracks asynchronous judgment runs. The conditional
// updates return false when the task is not in the expected state.
type JudgeTaskRepository interface {
	Create(ctx context.Context, task *domain.AIJudgeTask) error
	GetByID(ctx context.Context, id string) (*domain.AIJudgeTask, error)
	List(ctx context.Context, limit, offset int) ([]*domain.AIJudgeTask, error)
	Count(ctx context.Context) (int, error)
	// MarkRunning moves a PENDING task to RUNNING.
	MarkRunning(ctx context.Context, id string, total int, at time.Time) (bool, error)
	// AddProgress adds a batch's counters to a RUNNING task.
	AddProgress(ctx context.Context, id string, delta domain.BatchProgress) (bool, error)
	// Finish moves a PENDING or RUNNING task to COMPLETED or FAILED.
	Finish(ctx context.Context, id string, status domain.JudgeTaskStatus, errMsg *string, at time.Time) (bool, error)
	// Cancel moves a PENDING or RUNNING task to CANCELLED.
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
}

// KeywordRepository stores blacklist keywords.
type KeywordRepository interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, keywords ...string) (int, error)
	Remove(ctx context.Context, keyword string) (bool, error)
}
