package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

// errStopped ends a task interrupted by Shutdown.
var errStopped = errors.New("judge task interrupted by shutdown")

// Submit records a PENDING judge task for filter and processes it in the background.
func (p *Pipeline) Submit(ctx context.Context, filter domain.RecordFilter) (*domain.AIJudgeTask, error) {
	if p.baseCtx.Err() != nil {
		return nil, errStopped
	}
	now := p.now()
	task := &domain.AIJudgeTask{
		TaskID:       uuid.New().String(),
		TaskType:     domain.JudgeTaskTypeRecords,
		ModuleType:   p.cfg.ModuleType,
		Status:       domain.JudgePending,
		FilterParams: filter.Normalize(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create judge task: %w", err)
	}

	p.log.Info("Judge task submitted",
		logger.String("task_id", task.TaskID),
		logger.Int("limit", task.FilterParams.Limit),
		logger.Bool("judge_all", task.FilterParams.JudgeAll),
	)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(p.baseCtx, task.TaskID, task.FilterParams)
	}()
	return task, nil
}

// Progress returns the current state of a judge task.
func (p *Pipeline) Progress(ctx context.Context, taskID string) (*domain.AIJudgeTask, error) {
	return p.tasks.GetByID(ctx, taskID)
}

// Cancel stops a PENDING or RUNNING task before its next batch. Cancelling a
// CANCELLED task is a no-op; COMPLETED and FAILED tasks return ErrAlreadyFinished.
func (p *Pipeline) Cancel(ctx context.Context, taskID string) (*domain.AIJudgeTask, error) {
	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.JudgeCancelled {
		return task, nil
	}
	if !task.Status.Finished() {
		ok, cancelErr := p.tasks.Cancel(ctx, taskID, p.now())
		if cancelErr != nil {
			return nil, fmt.Errorf("failed to cancel judge task: %w", cancelErr)
		}
		if task, err = p.tasks.GetByID(ctx, taskID); err != nil {
			return nil, err
		}
		if ok {
			p.log.Info("Judge task cancelled",
				logger.String("task_id", taskID),
				logger.Int("processed", task.ProcessedCount),
				logger.Int("total", task.TotalCount),
			)
			return task, nil
		}
	}
	if task.Status == domain.JudgeCancelled {
		return task, nil
	}
	return nil, fmt.Errorf("judge task %s is %s: %w", taskID, task.Status, domain.ErrAlreadyFinished)
}

// List returns judge tasks newest first.
func (p *Pipeline) List(ctx context.Context, req domain.PageRequest) (domain.Page[*domain.AIJudgeTask], error) {
	req = req.Normalize()
	total, err := p.tasks.Count(ctx)
	if err != nil {
		return domain.Page[*domain.AIJudgeTask]{}, fmt.Errorf("failed to count judge tasks: %w", err)
	}
	tasks, err := p.tasks.List(ctx, req.Size, req.Offset())
	if err != nil {
		return domain.Page[*domain.AIJudgeTask]{}, fmt.Errorf("failed to list judge tasks: %w", err)
	}
	return domain.NewPage(tasks, total, req), nil
}

// Shutdown stops async workers before their next batch and waits for them.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(p.stopAll)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("judge tasks still running: %w", ctx.Err())
	}
}

// run processes one task batch by batch. Cancellation is observed before each
// batch. A batch that finished classifying is always staged, but its progress
// only counts while the task is still RUNNING.
func (p *Pipeline) run(ctx context.Context, taskID string, filter domain.RecordFilter) {
	log := p.log.With(logger.String("task_id", taskID))

	candidates, err := p.records.FindByCriteria(ctx, filter)
	if err != nil {
		p.fail(taskID, log, fmt.Errorf("failed to load candidates: %w", err))
		return
	}
	started, err := p.tasks.MarkRunning(ctx, taskID, len(candidates), p.now())
	if err != nil {
		p.fail(taskID, log, fmt.Errorf("failed to start judge task: %w", err))
		return
	}
	if !started {
		log.Info("Judge task no longer pending, not starting")
		return
	}
	log.Info("Judge task started", logger.Int("total", len(candidates)), logger.Int("batch_size", p.cfg.BatchSize))

	matcher := p.blacklist.Snapshot()
	for start := 0; start < len(candidates); start += p.cfg.BatchSize {
		if start > 0 && !p.pause(ctx) {
			p.fail(taskID, log, errStopped)
			return
		}
		if ctx.Err() != nil {
			p.fail(taskID, log, errStopped)
			return
		}
		if p.cancelled(ctx, taskID, log) {
			return
		}

		end := min(start+p.cfg.BatchSize, len(candidates))
		delta, stageErr := p.processBatch(ctx, matcher, candidates[start:end], log)
		if stageErr != nil {
			p.fail(taskID, log, stageErr)
			return
		}
		ok, progressErr := p.tasks.AddProgress(context.WithoutCancel(ctx), taskID, delta)
		if progressErr != nil {
			p.fail(taskID, log, fmt.Errorf("failed to record progress: %w", progressErr))
			return
		}
		if !ok {
			log.Info("Judge task stopped while a batch was in flight", logger.Int("batch_start", start))
			return
		}
	}

	finished, err := p.tasks.Finish(context.WithoutCancel(ctx), taskID, domain.JudgeCompleted, nil, p.now())
	if err != nil {
		log.Error("Failed to complete judge task", logger.Error(err))
		return
	}
	if finished {
		log.Info("Judge task completed", logger.Int("total", len(candidates)))
	}
}

// processBatch judges and stages one batch and returns its counter delta.
func (p *Pipeline) processBatch(
	ctx context.Context, matcher *blacklist.Matcher, batch []*domain.Record, log logger.Logger,
) (domain.BatchProgress, error) {
	delta := domain.BatchProgress{Processed: len(batch)}
	items := make([]*domain.AuditItem, 0, len(batch))

	for _, res := range p.judgeBatch(ctx, matcher, batch) {
		switch {
		case res.err != nil:
			delta.Failed++
			continue
		case res.item.BlacklistMatched:
			delta.Blacklisted++
		case res.item.IsRelated():
			delta.Related++
		default:
			delta.Unrelated++
		}
		items = append(items, res.item)
	}

	if _, err := p.Stage(context.WithoutCancel(ctx), p.cfg.ModuleType, items); err != nil {
		return delta, err
	}

	p.metrics.JudgeItems("related", delta.Related)
	p.metrics.JudgeItems("unrelated", delta.Unrelated)
	p.metrics.JudgeItems("blacklisted", delta.Blacklisted)
	p.metrics.JudgeItems("failed", delta.Failed)
	log.Debug("Judge batch staged",
		logger.Int("processed", delta.Processed),
		logger.Int("staged", len(items)),
		logger.Int("failed", delta.Failed),
	)
	return delta, nil
}

// cancelled reports whether the task was cancelled by an operator.
func (p *Pipeline) cancelled(ctx context.Context, taskID string, log logger.Logger) bool {
	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		log.Warn("Failed to check judge task status", logger.Error(err))
		return false
	}
	if task.Status == domain.JudgeCancelled {
		log.Info("Judge task cancelled, stopping",
			logger.Int("processed", task.ProcessedCount),
			logger.Int("total", task.TotalCount),
		)
		return true
	}
	return false
}

// pause waits BatchInterval between batches. It returns false when ctx ends.
func (p *Pipeline) pause(ctx context.Context) bool {
	if p.cfg.BatchInterval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(p.cfg.BatchInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Pipeline) fail(taskID string, log logger.Logger, cause error) {
	msg := cause.Error()
	if _, err := p.tasks.Finish(context.Background(), taskID, domain.JudgeFailed, &msg, p.now()); err != nil {
		log.Error("Failed to mark judge task failed", logger.Error(err))
	}
	log.Error("Judge task failed", logger.Error(cause))
}
