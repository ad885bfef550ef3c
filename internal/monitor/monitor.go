// Package monitor answers read-only questions about execution history and live task state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
)

const recentExecutions = 10

// Monitor computes every aggregate from the execution and task stores and never
// goes through the scheduler. Next firings are derived from the persisted cron expression.
type Monitor struct {
	executions database.ExecutionRepository
	tasks      database.TaskRepository
	crawlers   *registry.CrawlerRegistry
	now        func() time.Time
}

// New creates a Monitor.
func New(
	executions database.ExecutionRepository,
	tasks database.TaskRepository,
	crawlers *registry.CrawlerRegistry,
) *Monitor {
	return &Monitor{
		executions: executions,
		tasks:      tasks,
		crawlers:   crawlers,
		now:        time.Now,
	}
}

// RunningTasks returns every RUNNING execution.
func (m *Monitor) RunningTasks(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	running, err := m.executions.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list running executions: %w", err)
	}
	if running == nil {
		running = []*domain.ExecutionRecord{}
	}
	return running, nil
}

// Execution returns one execution record.
func (m *Monitor) Execution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return m.executions.GetByID(ctx, id)
}

// History returns a page of executions, newest first.
func (m *Monitor) History(
	ctx context.Context,
	filter domain.ExecutionFilter,
	page domain.PageRequest,
) (domain.Page[*domain.ExecutionRecord], error) {
	page = page.Normalize()
	total, err := m.executions.Count(ctx, filter)
	if err != nil {
		return domain.Page[*domain.ExecutionRecord]{}, fmt.Errorf("failed to count executions: %w", err)
	}
	items, err := m.executions.List(ctx, filter, page.Size, page.Offset())
	if err != nil {
		return domain.Page[*domain.ExecutionRecord]{}, fmt.Errorf("failed to list executions: %w", err)
	}
	return domain.NewPage(items, total, page), nil
}

// TaskStatistics aggregates one task. SuccessRuns includes NoNewDataRuns.
func (m *Monitor) TaskStatistics(ctx context.Context, taskID string) (*domain.TaskStats, error) {
	filter := domain.ExecutionFilter{TaskID: taskID}
	counts, err := m.executions.Counts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate task executions: %w", err)
	}
	recent, err := m.executions.List(ctx, filter, recentExecutions, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent executions: %w", err)
	}
	if recent == nil {
		recent = []*domain.ExecutionRecord{}
	}

	stats := &domain.TaskStats{
		TaskID:        taskID,
		TotalRuns:     counts.Total,
		SuccessRuns:   counts.Success + counts.NoNewData,
		NoNewDataRuns: counts.NoNewData,
		FailedRuns:    counts.Failed,
		SuccessRate:   counts.SuccessRate(),
		AvgDurationMs: counts.AvgDurationMs,
		TotalSaved:    counts.TotalSaved,
		TotalSkipped:  counts.TotalSkipped,
		Recent:        recent,
	}
	if len(recent) > 0 {
		stats.LastRun = recent[0]
	}

	found, err := m.fillScheduleState(ctx, stats)
	if err != nil {
		return nil, err
	}
	if !found && counts.Total == 0 {
		return nil, domain.NotFoundf("task %s", taskID)
	}
	return stats, nil
}

func (m *Monitor) fillScheduleState(ctx context.Context, stats *domain.TaskStats) (bool, error) {
	task, err := m.tasks.GetByID(ctx, stats.TaskID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read task: %w", err)
	}
	stats.Paused = task.State == domain.TaskPaused
	if task.State != domain.TaskActive {
		return true, nil
	}
	sched, err := scheduler.ParseCron(task.CronExpression)
	if err != nil {
		// A stored expression that no longer parses has no timer.
		return true, nil
	}
	next := sched.Next(m.now())
	stats.Scheduled = true
	stats.NextRun = &next
	return true, nil
}

// SystemOverview summarizes tasks and executions. Today starts at local midnight.
func (m *Monitor) SystemOverview(ctx context.Context) (*domain.SystemOverview, error) {
	tasks, err := m.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	now := m.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayAgo := now.Add(-24 * time.Hour)

	all, err := m.executions.Counts(ctx, domain.ExecutionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate executions: %w", err)
	}
	today, err := m.executions.Counts(ctx, domain.ExecutionFilter{From: &midnight})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate today's executions: %w", err)
	}
	lastDay, err := m.executions.Counts(ctx, domain.ExecutionFilter{From: &dayAgo})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate last 24h executions: %w", err)
	}
	byCrawler, err := m.executions.CountByCrawler(ctx, domain.ExecutionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count executions by crawler: %w", err)
	}
	if byCrawler == nil {
		byCrawler = map[string]int{}
	}

	overview := &domain.SystemOverview{
		TotalTasks:         len(tasks),
		TotalRuns:          all.Total,
		RunningCount:       all.Running,
		RunsToday:          today.Total,
		SuccessRate:        all.SuccessRate(),
		FailureRateLast24h: lastDay.FailureRate(),
		ByStatus: map[domain.ExecutionStatus]int{
			domain.ExecutionRunning:   all.Running,
			domain.ExecutionSuccess:   all.Success,
			domain.ExecutionNoNewData: all.NoNewData,
			domain.ExecutionFailed:    all.Failed,
			domain.ExecutionCancelled: all.Cancelled,
		},
		ByCrawler: byCrawler,
	}
	for _, t := range tasks {
		if t.State == domain.TaskPaused {
			overview.PausedTasks++
		} else {
			overview.ActiveTasks++
		}
	}
	return overview, nil
}

// CrawlerStatistics aggregates one crawler's history.
func (m *Monitor) CrawlerStatistics(ctx context.Context, crawlerName string) (*domain.CrawlerStatistics, error) {
	if _, err := m.crawlers.Get(crawlerName); err != nil {
		return nil, err
	}
	filter := domain.ExecutionFilter{CrawlerName: crawlerName}
	counts, err := m.executions.Counts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate crawler executions: %w", err)
	}
	last, err := m.executions.List(ctx, filter, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read last execution: %w", err)
	}

	stats := &domain.CrawlerStatistics{
		CrawlerName:   crawlerName,
		Enabled:       m.crawlers.IsEnabled(crawlerName),
		TotalRuns:     counts.Total,
		SuccessRuns:   counts.Success + counts.NoNewData,
		FailedRuns:    counts.Failed,
		SuccessRate:   counts.SuccessRate(),
		AvgDurationMs: counts.AvgDurationMs,
		TotalSaved:    counts.TotalSaved,
	}
	if len(last) > 0 {
		stats.LastRun = last[0]
	}
	return stats, nil
}
