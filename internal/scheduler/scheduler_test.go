package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/executor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/memstore"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
	"github.com/jonesrussell/north-cloud/regwatch/internal/source"
)

const (
	crawler     = "EU_Recall"
	everySecond = "* * * * * *"
	daily       = "0 3 * * *"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []executor.Request
}

func (f *fakeRunner) Start(_ context.Context, req executor.Request) (*domain.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return &domain.ExecutionRecord{ID: "exec", TaskID: req.TaskID, Status: domain.ExecutionRunning}, nil
}

func (f *fakeRunner) requests() []executor.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Request(nil), f.reqs...)
}

type fakePresets map[string]*domain.Preset

func (f fakePresets) Get(_ context.Context, id string) (*domain.Preset, error) {
	p, ok := f[id]
	if !ok {
		return nil, domain.NotFoundf("preset %s", id)
	}
	return p, nil
}

type fixture struct {
	sched    *scheduler.Scheduler
	tasks    *memstore.TaskStore
	crawlers *registry.CrawlerRegistry
	runner   *fakeRunner
}

func newRegistry(t *testing.T) *registry.CrawlerRegistry {
	t.Helper()
	crawlers := registry.NewCrawlerRegistry(registry.NewSchemaRegistry(), logger.NewNop())
	require.NoError(t, registry.RegisterBuiltin(crawlers))
	return crawlers
}

func newFixture(t *testing.T, presets scheduler.PresetSource, seed ...*domain.ScheduledTask) *fixture {
	t.Helper()
	return newFixtureWith(t, newRegistry(t), presets, seed...)
}

func newFixtureWith(
	t *testing.T,
	crawlers *registry.CrawlerRegistry,
	presets scheduler.PresetSource,
	seed ...*domain.ScheduledTask,
) *fixture {
	t.Helper()
	tasks := memstore.NewTaskStore()
	for _, task := range seed {
		require.NoError(t, tasks.Save(context.Background(), task))
	}
	runner := &fakeRunner{}
	sched := scheduler.New(tasks, crawlers, presets, runner, logger.NewNop(), nil)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	return &fixture{sched: sched, tasks: tasks, crawlers: crawlers, runner: runner}
}

func inlineTask(id, cronExpr string) *domain.ScheduledTask {
	return &domain.ScheduledTask{
		ID:             id,
		CrawlerName:    crawler,
		Parameters:     domain.Params{"searchKeywords": []string{"stent"}},
		CronExpression: cronExpr,
		State:          domain.TaskActive,
	}
}

func TestStart_ArmsOnlyActiveTasks(t *testing.T) {
	t.Parallel()

	paused := inlineTask("paused", daily)
	paused.State = domain.TaskPaused
	f := newFixture(t, nil, inlineTask("active", daily), paused)
	ctx := context.Background()

	n, err := f.sched.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	views, err := f.sched.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "active", views[0].ID)
	assert.True(t, views[0].Scheduled)
	require.NotNil(t, views[0].NextRun)
	assert.False(t, views[1].Scheduled)
	assert.Nil(t, views[1].NextRun)
}

func TestSchedule_FiresWithTaskParameters(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	require.NoError(t, f.sched.Schedule(context.Background(), inlineTask("t1", everySecond)))

	require.Eventually(t, func() bool { return len(f.runner.requests()) > 0 }, 3*time.Second, 20*time.Millisecond)
	req := f.runner.requests()[0]
	assert.Equal(t, "t1", req.TaskID)
	assert.Equal(t, crawler, req.CrawlerName)
	assert.Equal(t, domain.TriggeredBySchedule, req.TriggeredBy)
	assert.False(t, req.Manual)
	assert.Equal(t, []string{"stent"}, req.Params["searchKeywords"])
}

func TestSchedule_RejectsBadCron(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	err := f.sched.Schedule(context.Background(), inlineTask("t1", "not a cron"))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("cron_expression"))
	_, getErr := f.tasks.GetByID(context.Background(), "t1")
	require.ErrorIs(t, getErr, domain.ErrNotFound)
}

func TestPauseResume(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, inlineTask("t1", daily))
	ctx := context.Background()

	require.NoError(t, f.sched.Pause(ctx, "t1"))
	scheduled, err := f.sched.IsScheduled(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, scheduled)
	paused, err := f.sched.IsPaused(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, paused)

	require.ErrorIs(t, f.sched.Pause(ctx, "t1"), domain.ErrInvalidTransition)

	before := time.Now()
	require.NoError(t, f.sched.Resume(ctx, "t1"))
	next, err := f.sched.NextRun(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.After(before))

	task, err := f.tasks.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskActive, task.State)
	assert.Nil(t, task.PausedAt)

	require.ErrorIs(t, f.sched.Resume(ctx, "t1"), domain.ErrInvalidTransition)
	// Nothing ran while paused and nothing was replayed.
	assert.Empty(t, f.runner.requests())
}

func TestPausedTaskDoesNotFire(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, inlineTask("t1", everySecond))
	require.NoError(t, f.sched.Pause(context.Background(), "t1"))

	time.Sleep(1500 * time.Millisecond)
	assert.Empty(t, f.runner.requests())
}

func TestReschedule_OnlyTouchesOneTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, inlineTask("t1", daily), inlineTask("t2", daily))
	ctx := context.Background()

	before, err := f.sched.NextRun(ctx, "t2")
	require.NoError(t, err)

	require.NoError(t, f.sched.Reschedule(ctx, "t1", "0 0 1 1 *"))

	next1, err := f.sched.NextRun(ctx, "t1")
	require.NoError(t, err)
	want, err := scheduler.NextAfter("0 0 1 1 *", time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, *next1)

	next2, err := f.sched.NextRun(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, *before, *next2)

	n, err := f.sched.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	task, err := f.tasks.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "0 0 1 1 *", task.CronExpression)
}

func TestReschedule_PausedStaysUnarmed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, inlineTask("t1", daily))
	ctx := context.Background()
	require.NoError(t, f.sched.Pause(ctx, "t1"))
	require.NoError(t, f.sched.Reschedule(ctx, "t1", everySecond))

	scheduled, err := f.sched.IsScheduled(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, scheduled)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, inlineTask("t1", daily))
	ctx := context.Background()

	require.NoError(t, f.sched.Remove(ctx, "t1"))
	_, err := f.sched.Get(ctx, "t1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	n, err := f.sched.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTrigger_RunsPausedTaskWithPresetParams(t *testing.T) {
	t.Parallel()

	presetID := "p1"
	presets := fakePresets{presetID: {
		ID:          presetID,
		CrawlerName: "KR_Recall",
		Parameters:  domain.Params{"searchKeywords": []string{"implant"}},
		Enabled:     false,
	}}
	task := &domain.ScheduledTask{ID: presetID, PresetID: &presetID, CronExpression: daily, State: domain.TaskPaused}
	f := newFixture(t, presets, task)

	rec, err := f.sched.Trigger(context.Background(), presetID, "alice")
	require.NoError(t, err)
	assert.Equal(t, presetID, rec.TaskID)

	reqs := f.runner.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "KR_Recall", reqs[0].CrawlerName)
	assert.Equal(t, "alice", reqs[0].TriggeredBy)
	assert.True(t, reqs[0].Manual)
	assert.Equal(t, []string{"implant"}, reqs[0].Params["searchKeywords"])
}

func TestFiring_SkipsDisabledCrawlerAndPreset(t *testing.T) {
	t.Parallel()

	presetID := "p1"
	presets := fakePresets{presetID: {ID: presetID, CrawlerName: "KR_Recall", Enabled: false}}
	crawlers := newRegistry(t)
	require.True(t, crawlers.Disable(crawler))
	f := newFixtureWith(t, crawlers, presets,
		inlineTask("inline", everySecond),
		&domain.ScheduledTask{ID: presetID, PresetID: &presetID, CronExpression: everySecond, State: domain.TaskActive},
	)

	time.Sleep(1500 * time.Millisecond)
	assert.Empty(t, f.runner.requests())
}

func TestTrigger_ConcurrentRejectedByExecutor(t *testing.T) {
	t.Parallel()

	crawlers := newRegistry(t)
	release := make(chan struct{})
	src := source.Func(func(ctx context.Context, _ string, _ domain.Params) (source.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return source.Result{Saved: 1}, nil
	})
	exec := executor.New(crawlers, memstore.NewExecutionStore(), src, logger.NewNop())
	tasks := memstore.NewTaskStore()
	require.NoError(t, tasks.Save(context.Background(), inlineTask("t1", daily)))

	sched := scheduler.New(tasks, crawlers, nil, exec, logger.NewNop(), nil)
	require.NoError(t, sched.Start(context.Background()))
	defer func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
		_ = exec.Shutdown(ctx)
	}()

	_, err := sched.Trigger(context.Background(), "t1", "alice")
	require.NoError(t, err)
	_, err = sched.Trigger(context.Background(), "t1", "bob")
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestCommandsRequireStart(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(memstore.NewTaskStore(), nil, nil, &fakeRunner{}, nil, nil)
	_, err := sched.Count(context.Background())
	require.ErrorIs(t, err, scheduler.ErrNotRunning)
}
