// Package bootstrap wires the regwatch services together and manages their lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/regwatch/internal/api"
	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/jonesrussell/north-cloud/regwatch/internal/executor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/judgment"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/pipeline"
	"github.com/jonesrussell/north-cloud/regwatch/internal/preset"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
)

const startupTimeout = 30 * time.Second

// App is a fully wired regwatch service.
type App struct {
	cfg *config.Config
	log logger.Logger

	db    *sqlx.DB
	redis *redis.Client
	es    *es.Client

	telemetry *telemetry.Provider
	stores    *Stores
	crawlers  *registry.CrawlerRegistry
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	pipeline  *pipeline.Pipeline
	janitor   *judgment.Janitor
	services  api.Services
}

// New connects the backing stores and builds every service. Nothing runs until Run.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	a := &App{cfg: cfg, log: log, telemetry: telemetry.NewProvider()}
	var err error
	if a.db, err = SetupDatabase(cfg, log); err != nil {
		return nil, err
	}
	if a.redis, err = SetupRedis(ctx, cfg, log); err != nil {
		a.closeClients()
		return nil, err
	}
	if a.es, err = SetupElasticsearch(cfg, log); err != nil {
		a.closeClients()
		return nil, err
	}
	a.stores = NewStores(cfg, a.db, a.redis, a.es, log)

	if err = a.buildServices(ctx); err != nil {
		a.closeClients()
		return nil, err
	}
	return a, nil
}

func (a *App) buildServices(ctx context.Context) error {
	cfg := a.cfg
	metrics := a.telemetry.Metrics

	a.crawlers = registry.NewCrawlerRegistry(registry.NewSchemaRegistry(), a.log.With(logger.String("component", "registry")))
	if err := registry.RegisterBuiltin(a.crawlers); err != nil {
		return fmt.Errorf("register crawlers: %w", err)
	}

	a.executor = executor.New(a.crawlers, a.stores.Executions, SetupSource(cfg.Source, a.log),
		a.log.With(logger.String("component", "executor")),
		executor.WithMetrics(metrics),
		executor.WithTracer(a.telemetry.Tracer),
	)

	presets := preset.NewService(a.stores.Presets, a.crawlers, a.log)
	a.scheduler = scheduler.New(a.stores.Tasks, a.crawlers, presets, a.executor,
		a.log.With(logger.String("component", "scheduler")), metrics)
	presets.SetScheduler(a.scheduler)

	keywords := blacklist.NewService(a.stores.Keywords, a.log)
	if err := keywords.Reload(ctx); err != nil {
		return fmt.Errorf("load blacklist: %w", err)
	}
	if len(cfg.Blacklist.Seed) > 0 {
		if _, err := keywords.Add(ctx, cfg.Blacklist.Seed...); err != nil {
			return fmt.Errorf("seed blacklist: %w", err)
		}
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		Records:    a.stores.Records,
		Blacklist:  keywords,
		Classifier: SetupClassifier(cfg.Classifier, metrics, a.log),
		Judgments:  a.stores.Judgments,
		Tasks:      a.stores.JudgeTasks,
		Metrics:    metrics,
		Logger:     a.log,
	}, pipeline.Config{
		BatchSize:     cfg.Pipeline.BatchSize,
		Concurrency:   cfg.Pipeline.Concurrency,
		BatchInterval: cfg.Pipeline.BatchInterval,
		JudgmentTTL:   cfg.Pipeline.JudgmentTTL,
	})

	judgments := judgment.NewService(a.stores.Judgments, a.stores.Records, a.log)
	location := time.Local
	if cfg.Scheduler.Location != "" {
		loc, err := time.LoadLocation(cfg.Scheduler.Location)
		if err != nil {
			return fmt.Errorf("scheduler location: %w", err)
		}
		location = loc
	}
	janitor, err := judgment.NewJanitor(judgments, judgment.JanitorConfig{
		CleanupCron: cfg.Pipeline.CleanupCron,
		ReportCron:  cfg.Pipeline.ReportCron,
		Location:    location,
	}, a.log)
	if err != nil {
		return err
	}
	a.janitor = janitor

	a.services = api.Services{
		Crawlers:  a.crawlers,
		Presets:   presets,
		Scheduler: a.scheduler,
		Executor:  a.executor,
		Monitor:   monitor.New(a.stores.Executions, a.stores.Tasks, a.crawlers),
		Pipeline:  a.pipeline,
		Judgments: judgments,
		Blacklist: keywords,
	}
	return nil
}

// Crawlers returns the crawler registry.
func (a *App) Crawlers() *registry.CrawlerRegistry {
	return a.crawlers
}

// healthChecks pings every configured backing store. Only the database is critical.
func (a *App) healthChecks() map[string]api.HealthCheck {
	checks := make(map[string]api.HealthCheck)
	if a.db != nil {
		checks["database"] = api.HealthCheck{Ping: a.db.PingContext, Critical: true}
	}
	if a.redis != nil {
		checks["redis"] = api.HealthCheck{Ping: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}}
	}
	if a.es != nil {
		checks["elasticsearch"] = api.HealthCheck{Ping: func(ctx context.Context) error {
			res, err := a.es.Ping(a.es.Ping.WithContext(ctx))
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.IsError() {
				return fmt.Errorf("elasticsearch ping: %s", res.Status())
			}
			return nil
		}}
	}
	return checks
}

// Run recovers stale executions, starts the scheduler, the janitor and the HTTP
// server, and blocks until ctx is cancelled. Shutdown runs in reverse order.
func (a *App) Run(ctx context.Context) error {
	if n, err := a.executor.RecoverStale(ctx, a.cfg.Scheduler.StaleAfter); err != nil {
		a.log.Error("Failed to recover stale executions", logger.Error(err))
	} else if n > 0 {
		a.log.Warn("Recovered stale executions", logger.Int("count", n))
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.janitor.Start()

	router := api.NewRouter(a.services, api.RouterConfig{
		ServiceName: a.cfg.Service.Name,
		Version:     a.cfg.Service.Version,
		Debug:       a.cfg.Service.Debug,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Metrics:     a.telemetry.Handler(),
		Checks:      a.healthChecks(),
	}, a.log)
	srv := api.NewHTTPServer(a.cfg.Server, router)

	a.log.Info("Starting HTTP server", logger.Int("port", a.cfg.Server.Port))
	serveErr := api.Run(ctx, srv, a.cfg.Server.ShutdownTimeout, a.log)

	shutdownErr := a.shutdown()
	return errors.Join(serveErr, shutdownErr)
}

// shutdown stops producers before the workers they feed, then closes the clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.janitor.Stop(ctx)
	if err := a.pipeline.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline shutdown: %w", err))
	}
	if err := a.executor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor shutdown: %w", err))
	}
	a.closeClients()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.log.Info("Shutdown complete")
	return nil
}

func (a *App) closeClients() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Failed to close database", logger.Error(err))
		}
	}
}
