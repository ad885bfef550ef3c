package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/memstore"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
)

type run struct {
	id      string
	task    string
	crawler string
	status  domain.ExecutionStatus
	ago     time.Duration
	saved   int
	skipped int
}

func seed(t *testing.T, store *memstore.ExecutionStore, runs ...run) {
	t.Helper()
	ctx := context.Background()
	for _, r := range runs {
		started := time.Now().Add(-r.ago)
		rec := &domain.ExecutionRecord{ID: r.id, TaskID: r.task, CrawlerName: r.crawler, StartedAt: started}
		require.NoError(t, store.CreateRunning(ctx, rec))
		if r.status == domain.ExecutionRunning {
			continue
		}
		done := started.Add(time.Second)
		dur := int64(1000)
		rec.Status = r.status
		rec.CompletedAt = &done
		rec.DurationMs = &dur
		rec.SavedCount = r.saved
		rec.SkippedCount = r.skipped
		require.NoError(t, store.Finish(ctx, rec))
	}
}

func newMonitor(t *testing.T) (*monitor.Monitor, *memstore.ExecutionStore, *memstore.TaskStore) {
	t.Helper()
	crawlers := registry.NewCrawlerRegistry(registry.NewSchemaRegistry(), logger.NewNop())
	require.NoError(t, registry.RegisterBuiltin(crawlers))
	executions := memstore.NewExecutionStore()
	tasks := memstore.NewTaskStore()
	return monitor.New(executions, tasks, crawlers), executions, tasks
}

func TestTaskStatistics_NoNewDataCountsAsSuccess(t *testing.T) {
	t.Parallel()

	m, executions, tasks := newMonitor(t)
	require.NoError(t, tasks.Save(context.Background(), &domain.ScheduledTask{
		ID: "t1", CrawlerName: "US_510K", CronExpression: "@daily", State: domain.TaskPaused,
	}))
	seed(t, executions,
		run{"e1", "t1", "US_510K", domain.ExecutionSuccess, 3 * time.Hour, 10, 2},
		run{"e2", "t1", "US_510K", domain.ExecutionNoNewData, 2 * time.Hour, 0, 50},
		run{"e3", "t1", "US_510K", domain.ExecutionFailed, time.Hour, 0, 0},
		run{"e4", "t1", "US_510K", domain.ExecutionFailed, 30 * time.Minute, 0, 0},
		run{"other", "t2", "US_510K", domain.ExecutionSuccess, time.Hour, 1, 0},
	)

	stats, err := m.TaskStatistics(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRuns)
	assert.Equal(t, 2, stats.SuccessRuns)
	assert.Equal(t, 1, stats.NoNewDataRuns)
	assert.Equal(t, 2, stats.FailedRuns)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 1000, stats.AvgDurationMs, 1e-9)
	assert.EqualValues(t, 10, stats.TotalSaved)
	assert.EqualValues(t, 52, stats.TotalSkipped)
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, "e4", stats.LastRun.ID)
	assert.Len(t, stats.Recent, 4)
	assert.True(t, stats.Paused)
}

func TestTaskStatistics_ActiveTaskReadsNextRunFromCron(t *testing.T) {
	t.Parallel()

	m, executions, tasks := newMonitor(t)
	require.NoError(t, tasks.Save(context.Background(), &domain.ScheduledTask{
		ID: "t1", CrawlerName: "US_510K", CronExpression: "0 3 * * *", State: domain.TaskActive,
	}))
	seed(t, executions, run{"e1", "t1", "US_510K", domain.ExecutionSuccess, time.Hour, 1, 0})

	before := time.Now()
	stats, err := m.TaskStatistics(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, stats.Scheduled)
	assert.False(t, stats.Paused)
	require.NotNil(t, stats.NextRun)
	assert.True(t, stats.NextRun.After(before))
	assert.Equal(t, 3, stats.NextRun.Hour())
	assert.Zero(t, stats.NextRun.Minute())
}

func TestTaskStatistics_UnknownTask(t *testing.T) {
	t.Parallel()

	m, _, _ := newMonitor(t)
	_, err := m.TaskStatistics(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTaskStatistics_DeletedTaskKeepsHistory(t *testing.T) {
	t.Parallel()

	m, executions, _ := newMonitor(t)
	seed(t, executions, run{"e1", "gone", "US_510K", domain.ExecutionSuccess, time.Hour, 1, 0})

	stats, err := m.TaskStatistics(context.Background(), "gone")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.False(t, stats.Scheduled)
}

func TestHistory_FiltersAndPages(t *testing.T) {
	t.Parallel()

	m, executions, _ := newMonitor(t)
	seed(t, executions,
		run{"e1", "t1", "US_510K", domain.ExecutionSuccess, 5 * time.Hour, 1, 0},
		run{"e2", "t1", "US_510K", domain.ExecutionFailed, 4 * time.Hour, 0, 0},
		run{"e3", "t2", "EU_Recall", domain.ExecutionFailed, 3 * time.Hour, 0, 0},
		run{"e4", "t1", "US_510K", domain.ExecutionFailed, 2 * time.Hour, 0, 0},
	)
	ctx := context.Background()

	page, err := m.History(ctx,
		domain.ExecutionFilter{CrawlerName: "US_510K", Status: domain.ExecutionFailed},
		domain.PageRequest{Page: 1, Size: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "e4", page.Items[0].ID)

	from := time.Now().Add(-3*time.Hour - time.Minute)
	page, err = m.History(ctx, domain.ExecutionFilter{From: &from}, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, domain.DefaultPageSize, page.Size)
}

func TestRunningTasks(t *testing.T) {
	t.Parallel()

	m, executions, _ := newMonitor(t)
	running, err := m.RunningTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, running)
	assert.Empty(t, running)

	seed(t, executions,
		run{"e1", "t1", "US_510K", domain.ExecutionRunning, time.Minute, 0, 0},
		run{"e2", "t2", "US_510K", domain.ExecutionSuccess, time.Hour, 0, 0},
	)
	running, err = m.RunningTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "e1", running[0].ID)
}

func TestSystemOverview(t *testing.T) {
	t.Parallel()

	m, executions, tasks := newMonitor(t)
	ctx := context.Background()
	require.NoError(t, tasks.Save(ctx, &domain.ScheduledTask{ID: "t1", CronExpression: "@daily", State: domain.TaskActive}))
	require.NoError(t, tasks.Save(ctx, &domain.ScheduledTask{ID: "t2", CronExpression: "@daily", State: domain.TaskPaused}))
	seed(t, executions,
		run{"old", "t1", "US_510K", domain.ExecutionFailed, 72 * time.Hour, 0, 0},
		run{"e1", "t1", "US_510K", domain.ExecutionNoNewData, 2 * time.Hour, 0, 5},
		run{"e2", "t2", "EU_Recall", domain.ExecutionFailed, time.Hour, 0, 0},
		run{"e3", "t3", "EU_Recall", domain.ExecutionSuccess, 30 * time.Minute, 4, 0},
		run{"e4", "t1", "US_510K", domain.ExecutionRunning, time.Minute, 0, 0},
	)

	o, err := m.SystemOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, o.TotalTasks)
	assert.Equal(t, 1, o.ActiveTasks)
	assert.Equal(t, 1, o.PausedTasks)
	assert.Equal(t, 5, o.TotalRuns)
	assert.Equal(t, 1, o.RunningCount)
	assert.InDelta(t, 0.5, o.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, o.FailureRateLast24h, 1e-9)
	assert.Equal(t, 2, o.ByStatus[domain.ExecutionFailed])
	assert.Equal(t, 3, o.ByCrawler["US_510K"])
	assert.Equal(t, 2, o.ByCrawler["EU_Recall"])
}

func TestCrawlerStatistics(t *testing.T) {
	t.Parallel()

	m, executions, _ := newMonitor(t)
	seed(t, executions,
		run{"e1", "t1", "EU_Recall", domain.ExecutionSuccess, 2 * time.Hour, 3, 0},
		run{"e2", "t1", "EU_Recall", domain.ExecutionNoNewData, time.Hour, 0, 9},
	)

	stats, err := m.CrawlerStatistics(context.Background(), "EU_Recall")
	require.NoError(t, err)
	assert.True(t, stats.Enabled)
	assert.Equal(t, 2, stats.SuccessRuns)
	assert.InDelta(t, 1.0, stats.SuccessRate, 1e-9)
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, "e2", stats.LastRun.ID)

	_, err = m.CrawlerStatistics(context.Background(), "XX")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
