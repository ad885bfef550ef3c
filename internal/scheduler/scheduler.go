// Package scheduler keeps live cron schedules for crawl tasks. A single actor
// goroutine owns the timer table; every mutation is sent to it as a command.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/executor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
)

// ErrNotRunning is returned for commands sent before Start or after Stop.
var ErrNotRunning = errors.New("scheduler is not running")

// Firing outcomes recorded in metrics.
const (
	firingStarted  = "started"
	firingSkipped  = "skipped"
	firingRejected = "rejected"
	firingError    = "error"
)

// Runner starts one execution without waiting for the crawl.
type Runner interface {
	Start(ctx context.Context, req executor.Request) (*domain.ExecutionRecord, error)
}

// PresetSource resolves the preset a task is attached to.
type PresetSource interface {
	Get(ctx context.Context, id string) (*domain.Preset, error)
}

type armed struct {
	entryID  cron.EntryID
	schedule cron.Schedule
}

type command struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// Scheduler arms one cron timer per ACTIVE task.
type Scheduler struct {
	repo     database.TaskRepository
	crawlers *registry.CrawlerRegistry
	presets  PresetSource
	runner   Runner
	log      logger.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	cron    *cron.Cron
	entries map[string]armed // owned by the actor goroutine

	commands chan command
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// fireCtx bounds firings; cancelled by Stop.
	fireCtx    context.Context
	fireCancel context.CancelFunc
}

// New creates a Scheduler. presets may be nil when only inline tasks are used.
func New(
	repo database.TaskRepository,
	crawlers *registry.CrawlerRegistry,
	presets PresetSource,
	runner Runner,
	log logger.Logger,
	metrics *telemetry.Metrics,
) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		repo:     repo,
		crawlers: crawlers,
		presets:  presets,
		runner:   runner,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		entries:  make(map[string]armed),
		commands: make(chan command),
	}
}

// Start loads persisted tasks, arms the ACTIVE ones and starts the actor.
func (s *Scheduler) Start(ctx context.Context) error {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled tasks: %w", err)
	}

	s.fireCtx, s.fireCancel = context.WithCancel(context.Background())
	for _, task := range tasks {
		if task.State != domain.TaskActive {
			continue
		}
		if armErr := s.arm(task); armErr != nil {
			s.log.Error("Failed to arm task",
				logger.String("task_id", task.ID),
				logger.String("cron_expression", task.CronExpression),
				logger.Error(armErr),
			)
		}
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop()
	s.cron.Start()

	s.log.Info("Scheduler started",
		logger.Int("total_tasks", len(tasks)),
		logger.Int("armed_tasks", len(s.entries)),
	)
	return nil
}

// Stop stops the actor and waits for running cron callbacks to return.
// Crawls already handed to the runner are not cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.fireCancel()
	})

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.commands:
			cmd.reply <- cmd.fn(cmd.ctx)
		case <-s.stop:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for its result.
func (s *Scheduler) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.stop == nil {
		return ErrNotRunning
	}
	cmd := command{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.reply
}

// arm replaces any timer of the task with one for its current cron expression.
// Only the actor (or Start, before the actor exists) may call it.
func (s *Scheduler) arm(task *domain.ScheduledTask) error {
	sched, err := ParseCron(task.CronExpression)
	if err != nil {
		return err
	}
	s.disarm(task.ID)

	id := task.ID
	entryID := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
	s.entries[id] = armed{entryID: entryID, schedule: sched}
	s.metrics.SetScheduledTasks(len(s.entries))
	return nil
}

func (s *Scheduler) disarm(id string) {
	if a, ok := s.entries[id]; ok {
		s.cron.Remove(a.entryID)
		delete(s.entries, id)
		s.metrics.SetScheduledTasks(len(s.entries))
	}
}

// Schedule persists task and arms it when ACTIVE. An existing timer for the
// same id is replaced.
func (s *Scheduler) Schedule(ctx context.Context, task *domain.ScheduledTask) error {
	if err := ValidateCron(task.CronExpression); err != nil {
		verr := &domain.ValidationError{}
		verr.Add("cron_expression", "%v", err)
		return verr
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.State == "" {
		task.State = domain.TaskActive
	}

	return s.do(ctx, func(ctx context.Context) error {
		if err := s.repo.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		if task.State != domain.TaskActive {
			s.disarm(task.ID)
			return nil
		}
		if err := s.arm(task); err != nil {
			return err
		}
		s.log.Info("Task scheduled",
			logger.String("task_id", task.ID),
			logger.String("cron_expression", task.CronExpression),
		)
		return nil
	})
}

// Reschedule changes the cron expression of one task. Only that task's timer
// is re-registered; a PAUSED task stays unarmed.
func (s *Scheduler) Reschedule(ctx context.Context, id, cronExpr string) error {
	if err := ValidateCron(cronExpr); err != nil {
		verr := &domain.ValidationError{}
		verr.Add("cron_expression", "%v", err)
		return verr
	}

	return s.do(ctx, func(ctx context.Context) error {
		task, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err = s.repo.UpdateCron(ctx, id, cronExpr); err != nil {
			return fmt.Errorf("failed to update cron: %w", err)
		}
		task.CronExpression = cronExpr
		if task.State == domain.TaskActive {
			if err = s.arm(task); err != nil {
				return err
			}
		}
		s.log.Info("Task rescheduled",
			logger.String("task_id", id),
			logger.String("cron_expression", cronExpr),
		)
		return nil
	})
}

// Pause stops future firings. Execution history is untouched.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	return s.do(ctx, func(ctx context.Context) error {
		task, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err = ValidateStateTransition(task.State, domain.TaskPaused); err != nil {
			return err
		}
		now := s.now()
		if err = s.repo.UpdateState(ctx, id, domain.TaskPaused, &now); err != nil {
			return fmt.Errorf("failed to pause task: %w", err)
		}
		s.disarm(id)
		s.log.Info("Task paused", logger.String("task_id", id))
		return nil
	})
}

// Resume re-arms a PAUSED task from now. Firings missed while paused are not replayed.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	return s.do(ctx, func(ctx context.Context) error {
		task, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err = ValidateStateTransition(task.State, domain.TaskActive); err != nil {
			return err
		}
		if err = s.repo.UpdateState(ctx, id, domain.TaskActive, nil); err != nil {
			return fmt.Errorf("failed to resume task: %w", err)
		}
		task.State = domain.TaskActive
		if err = s.arm(task); err != nil {
			return err
		}
		s.log.Info("Task resumed", logger.String("task_id", id))
		return nil
	})
}

// Remove disarms and deletes the task. Its execution history stays.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.disarm(id)
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.log.Info("Task removed", logger.String("task_id", id))
		return nil
	})
}

// Trigger runs the task once now, whatever its state. It returns the RUNNING
// record; a task that is already running is rejected with ErrConcurrencyConflict.
func (s *Scheduler) Trigger(ctx context.Context, id, triggeredBy string) (*domain.ExecutionRecord, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req, err := s.request(ctx, task)
	if err != nil {
		return nil, err
	}
	req.TriggeredBy = triggeredBy
	req.Manual = true
	return s.runner.Start(ctx, req)
}

// request builds the execution request. Preset parameters are read at
// trigger time and snapshotted into the execution record.
func (s *Scheduler) request(ctx context.Context, task *domain.ScheduledTask) (executor.Request, error) {
	req := executor.Request{
		TaskID:      task.ID,
		CrawlerName: task.CrawlerName,
		Params:      task.Parameters.Clone(),
		TriggeredBy: domain.TriggeredBySchedule,
	}
	if task.PresetID == nil || s.presets == nil {
		return req, nil
	}
	p, err := s.presets.Get(ctx, *task.PresetID)
	if err != nil {
		return executor.Request{}, fmt.Errorf("task %s preset: %w", task.ID, err)
	}
	req.CrawlerName = p.CrawlerName
	req.Params = p.Parameters.Clone()
	return req, nil
}

// fire runs on a cron goroutine.
func (s *Scheduler) fire(id string) {
	ctx := s.fireCtx
	log := s.log.With(logger.String("task_id", id))

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.metrics.Firing(firingError)
		log.Error("Scheduled firing could not load task", logger.Error(err))
		return
	}
	if task.State != domain.TaskActive {
		s.metrics.Firing(firingSkipped)
		log.Debug("Skipping firing of paused task")
		return
	}

	if task.PresetID != nil && s.presets != nil {
		p, getErr := s.presets.Get(ctx, *task.PresetID)
		if getErr != nil {
			s.metrics.Firing(firingError)
			log.Error("Scheduled firing could not load preset", logger.Error(getErr))
			return
		}
		if !p.Enabled {
			s.metrics.Firing(firingSkipped)
			log.Info("Skipping firing, preset disabled", logger.String("preset_id", p.ID))
			return
		}
	}

	req, err := s.request(ctx, task)
	if err != nil {
		s.metrics.Firing(firingError)
		log.Error("Scheduled firing could not build request", logger.Error(err))
		return
	}
	if !s.crawlers.IsEnabled(req.CrawlerName) {
		s.metrics.Firing(firingSkipped)
		log.Info("Skipping firing, crawler disabled", logger.String("crawler", req.CrawlerName))
		return
	}

	rec, err := s.runner.Start(ctx, req)
	switch {
	case errors.Is(err, domain.ErrConcurrencyConflict):
		s.metrics.Firing(firingRejected)
		log.Warn("Skipping firing, previous run still in progress")
	case err != nil:
		s.metrics.Firing(firingError)
		log.Error("Scheduled firing failed to start", logger.Error(err))
	default:
		s.metrics.Firing(firingStarted)
		log.Debug("Scheduled firing started", logger.String("execution_id", rec.ID))
	}
}

// Get returns a task with its timer state.
func (s *Scheduler) Get(ctx context.Context, id string) (*domain.TaskView, error) {
	var view *domain.TaskView
	err := s.do(ctx, func(ctx context.Context) error {
		task, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		view = s.view(task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// List returns every persisted task with its timer state, ordered by id.
func (s *Scheduler) List(ctx context.Context) ([]domain.TaskView, error) {
	var views []domain.TaskView
	err := s.do(ctx, func(ctx context.Context) error {
		tasks, err := s.repo.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		views = make([]domain.TaskView, 0, len(tasks))
		for _, t := range tasks {
			views = append(views, *s.view(t))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views, nil
}

func (s *Scheduler) view(task *domain.ScheduledTask) *domain.TaskView {
	v := &domain.TaskView{ScheduledTask: *task}
	if a, ok := s.entries[task.ID]; ok {
		next := a.schedule.Next(s.now())
		v.Scheduled = true
		v.NextRun = &next
	}
	return v
}

// IsScheduled reports whether the task has an armed timer.
func (s *Scheduler) IsScheduled(ctx context.Context, id string) (bool, error) {
	var scheduled bool
	err := s.do(ctx, func(context.Context) error {
		_, scheduled = s.entries[id]
		return nil
	})
	return scheduled, err
}

// IsPaused reports whether the task is persisted as PAUSED.
func (s *Scheduler) IsPaused(ctx context.Context, id string) (bool, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return task.State == domain.TaskPaused, nil
}

// NextRun returns the next firing of an armed task, or nil.
func (s *Scheduler) NextRun(ctx context.Context, id string) (*time.Time, error) {
	var next *time.Time
	err := s.do(ctx, func(context.Context) error {
		if a, ok := s.entries[id]; ok {
			t := a.schedule.Next(s.now())
			next = &t
		}
		return nil
	})
	return next, err
}

// Count returns the number of armed timers.
func (s *Scheduler) Count(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func(context.Context) error {
		n = len(s.entries)
		return nil
	})
	return n, err
}
