package judgment

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
)

const janitorJobTimeout = 5 * time.Minute

// JanitorConfig holds the janitor's cron expressions.
type JanitorConfig struct {
	CleanupCron string
	ReportCron  string
	Location    *time.Location
}

// Janitor deletes expired judgments and logs the daily pending report.
type Janitor struct {
	service *Service
	log     logger.Logger
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewJanitor registers the cleanup and report jobs. Start runs them.
func NewJanitor(service *Service, cfg JanitorConfig, log logger.Logger) (*Janitor, error) {
	if cfg.CleanupCron == "" {
		cfg.CleanupCron = "0 2 * * *"
	}
	if cfg.ReportCron == "" {
		cfg.ReportCron = "0 8 * * *"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Janitor{
		service: service,
		log:     log.With(logger.String("component", "judgment_janitor")),
		cron:    cron.New(cron.WithLocation(cfg.Location), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:     ctx,
		cancel:  cancel,
	}

	jobs := []struct {
		expr string
		run  func(context.Context)
	}{
		{cfg.CleanupCron, j.Cleanup},
		{cfg.ReportCron, j.Report},
	}
	for _, job := range jobs {
		sched, err := scheduler.ParseCron(job.expr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("janitor: %w", err)
		}
		run := job.run
		j.cron.Schedule(sched, cron.FuncJob(func() {
			jobCtx, jobCancel := context.WithTimeout(j.ctx, janitorJobTimeout)
			defer jobCancel()
			run(jobCtx)
		}))
	}
	return j, nil
}

// Start begins running the jobs.
func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info("Judgment janitor started")
}

// Stop halts the jobs and waits for a running one, up to ctx.
func (j *Janitor) Stop(ctx context.Context) {
	j.cancel()
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
	j.log.Info("Judgment janitor stopped")
}

// Cleanup deletes expired judgments. Errors are logged.
func (j *Janitor) Cleanup(ctx context.Context) {
	n, err := j.service.CleanupExpired(ctx)
	if err != nil {
		j.log.Error("Expired judgment cleanup failed", logger.Error(err))
		return
	}
	j.log.Info("Expired judgments cleaned up", logger.Int("deleted", n))
}

// Report logs the pending count of every module.
func (j *Janitor) Report(ctx context.Context) {
	for _, module := range domain.ReportModules {
		n, err := j.service.PendingCount(ctx, module)
		if err != nil {
			j.log.Error("Pending judgment report failed", logger.String("module_type", module), logger.Error(err))
			continue
		}
		j.log.Info("Pending judgments", logger.String("module_type", module), logger.Int("pending", n))
	}
}
