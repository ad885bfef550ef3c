package preset_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/memstore"
	"github.com/jonesrussell/north-cloud/regwatch/internal/preset"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
)

// fakeScheduler records the calls presets make.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks map[string]*domain.ScheduledTask
	calls []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: make(map[string]*domain.ScheduledTask)}
}

func (f *fakeScheduler) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeScheduler) Get(_ context.Context, id string) (*domain.TaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.NotFoundf("task %s", id)
	}
	return &domain.TaskView{ScheduledTask: *t, Scheduled: t.State == domain.TaskActive}, nil
}

func (f *fakeScheduler) Schedule(_ context.Context, task *domain.ScheduledTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("schedule")
	c := *task
	f.tasks[task.ID] = &c
	return nil
}

func (f *fakeScheduler) Reschedule(_ context.Context, id, cronExpr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reschedule")
	f.tasks[id].CronExpression = cronExpr
	return nil
}

func (f *fakeScheduler) Pause(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause")
	f.tasks[id].State = domain.TaskPaused
	return nil
}

func (f *fakeScheduler) Resume(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resume")
	f.tasks[id].State = domain.TaskActive
	return nil
}

func (f *fakeScheduler) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return domain.NotFoundf("task %s", id)
	}
	f.record("remove")
	delete(f.tasks, id)
	return nil
}

type fixture struct {
	svc   *preset.Service
	repo  *memstore.PresetStore
	sched *fakeScheduler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	crawlers := registry.NewCrawlerRegistry(registry.NewSchemaRegistry(), nil)
	require.NoError(t, registry.RegisterBuiltin(crawlers))
	repo := memstore.NewPresetStore()
	svc := preset.NewService(repo, crawlers, nil)
	sched := newFakeScheduler()
	svc.SetScheduler(sched)
	return fixture{svc: svc, repo: repo, sched: sched}
}

func countAll(t *testing.T, repo *memstore.PresetStore) int {
	t.Helper()
	n, err := repo.Count(context.Background(), database.ListPresetsParams{})
	require.NoError(t, err)
	return n
}

func TestCreate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p, err := f.svc.Create(context.Background(), preset.CreateRequest{
		CrawlerName: "US_510K",
		Name:        "skin analyzers",
		Parameters:  domain.Params{"deviceNames": []string{"Skin Analyzer"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "US", p.CountryCode)
	assert.True(t, p.Enabled)
	assert.Equal(t, domain.DefaultPresetPriority, p.Priority)
	assert.Equal(t, domain.DefaultPresetTimeout, p.TimeoutMinutes)
	assert.Empty(t, f.sched.calls, "no cron, no schedule")
}

func TestCreate_InvalidParamsAreNeverPersisted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), preset.CreateRequest{
		CrawlerName:    "US_510K",
		Name:           "bad",
		Parameters:     domain.Params{"batchSize": 0, "dateFrom": "yesterday"},
		CronExpression: "0 2 * * *",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("batchSize"))
	assert.True(t, verr.Has("dateFrom"))
	assert.Zero(t, countAll(t, f.repo))
	assert.Empty(t, f.sched.calls)
}

func TestCreate_RejectsUnknownCrawlerAndBadCron(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, preset.CreateRequest{CrawlerName: "XX_None", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Create(ctx, preset.CreateRequest{CrawlerName: "EU_Recall", Name: "", CronExpression: "nope"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("name"))
	assert.True(t, verr.Has("cron_expression"))
	assert.Zero(t, countAll(t, f.repo))
}

func TestCreate_WithCronAttachesSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p, err := f.svc.Create(context.Background(), preset.CreateRequest{
		CrawlerName: "KR_Recall", Name: "nightly", CronExpression: "0 3 * * *",
	})
	require.NoError(t, err)
	require.Contains(t, f.sched.tasks, p.ID)
	task := f.sched.tasks[p.ID]
	assert.Equal(t, "0 3 * * *", task.CronExpression)
	require.NotNil(t, task.PresetID)
	assert.Equal(t, p.ID, *task.PresetID)
}

func TestUpdate_SyncsSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, preset.CreateRequest{
		CrawlerName: "KR_Recall", Name: "nightly", CronExpression: "0 3 * * *",
	})
	require.NoError(t, err)

	newCron := "0 4 * * *"
	disabled := false
	_, err = f.svc.Update(ctx, p.ID, preset.UpdateRequest{CronExpression: &newCron, Enabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, []string{"schedule", "reschedule", "pause"}, f.sched.calls)
	assert.Equal(t, domain.TaskPaused, f.sched.tasks[p.ID].State)

	enabled := true
	_, err = f.svc.Update(ctx, p.ID, preset.UpdateRequest{Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskActive, f.sched.tasks[p.ID].State)

	cleared := ""
	_, err = f.svc.Update(ctx, p.ID, preset.UpdateRequest{CronExpression: &cleared})
	require.NoError(t, err)
	assert.NotContains(t, f.sched.tasks, p.ID)
}

func TestUpdate_KeepsOperatorPause(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, preset.CreateRequest{
		CrawlerName: "KR_Recall", Name: "nightly", CronExpression: "0 3 * * *",
	})
	require.NoError(t, err)
	require.NoError(t, f.sched.Pause(ctx, p.ID))

	note := "just a note"
	_, err = f.svc.Update(ctx, p.ID, preset.UpdateRequest{Description: &note})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPaused, f.sched.tasks[p.ID].State)

	stillEnabled := true
	_, err = f.svc.Update(ctx, p.ID, preset.UpdateRequest{Enabled: &stillEnabled})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPaused, f.sched.tasks[p.ID].State)
	assert.Equal(t, []string{"schedule", "pause"}, f.sched.calls)
}

func TestUpdate_RevalidatesParameters(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, preset.CreateRequest{CrawlerName: "EU_Recall", Name: "eu"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, p.ID, preset.UpdateRequest{Parameters: domain.Params{"maxRecords": "lots"}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	stored, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Parameters)
}

func TestCopy_IsDisabledAndUnscheduled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.svc.Create(ctx, preset.CreateRequest{
		CrawlerName: "US_Recall", Name: "recalls", CronExpression: "@daily",
		Parameters: domain.Params{"brandNames": []string{"Acme"}},
	})
	require.NoError(t, err)

	cp, err := f.svc.Copy(ctx, src.ID, "recalls v2", "ops")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.False(t, cp.Enabled)
	assert.Equal(t, "copied from recalls", cp.Description)
	assert.Equal(t, src.Parameters, cp.Parameters)
	assert.NotContains(t, f.sched.tasks, cp.ID)

	_, err = f.svc.Copy(ctx, "missing", "x", "ops")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_DetachesSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, preset.CreateRequest{CrawlerName: "US_Event", Name: "events", CronExpression: "@hourly"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, p.ID))
	assert.NotContains(t, f.sched.tasks, p.ID)
	_, err = f.svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, p.ID), domain.ErrNotFound)
}

func TestList_FiltersByType(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []string{"US_Recall", "EU_Recall", "US_510K"} {
		_, err := f.svc.Create(ctx, preset.CreateRequest{CrawlerName: c, Name: c})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, domain.PresetFilter{CrawlerType: "RECALL"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = f.svc.List(ctx, domain.PresetFilter{CrawlerType: "NOPE"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	page, err = f.svc.List(ctx, domain.PresetFilter{CountryCode: "US", PageRequest: domain.PageRequest{Size: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.True(t, f.svc.Validate("US_510K", domain.Params{"deviceNames": []string{"x"}}))
	assert.False(t, f.svc.Validate("US_510K", domain.Params{"batchSize": -1}))
	assert.False(t, f.svc.Validate("XX_Unknown", domain.Params{}))
	assert.Error(t, f.svc.ValidateDetailed("US_510K", domain.Params{"batchSize": -1}))
}
