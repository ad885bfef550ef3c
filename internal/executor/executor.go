// Package executor runs crawl tasks and records their execution history.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/source"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
)

const (
	batchNoLength = 8
	staleReason   = "execution abandoned by a stopped process"
)

// Request describes one run.
type Request struct {
	TaskID      string
	CrawlerName string
	Params      domain.Params
	TriggeredBy string
	Manual      bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records execution metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer sets the tracer used for crawl spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithServer overrides the host name written to execution_server.
func WithServer(name string) Option {
	return func(e *Executor) { e.server = name }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor runs crawls and appends execution records.
type Executor struct {
	crawlers *registry.CrawlerRegistry
	repo     database.ExecutionRepository
	source   source.Source
	log      logger.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	server   string

	// base outlives request contexts; Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an Executor.
func New(
	crawlers *registry.CrawlerRegistry,
	repo database.ExecutionRepository,
	src source.Source,
	log logger.Logger,
	opts ...Option,
) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	base, cancel := context.WithCancel(context.Background())
	e := &Executor{
		crawlers: crawlers,
		repo:     repo,
		source:   src,
		log:      log,
		tracer:   telemetry.Tracer(),
		now:      time.Now,
		server:   hostname,
		base:     base,
		cancel:   cancel,
		inflight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a crawl synchronously. Crawl failures are recorded on the
// returned record, not returned as errors; errors mean the run never started.
func (e *Executor) Run(ctx context.Context, req Request) (*domain.ExecutionRecord, error) {
	rec, err := e.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	e.execute(ctx, rec)
	return rec, nil
}

// Start writes the RUNNING record and crawls on its own goroutine. The returned
// record is a snapshot in RUNNING state.
func (e *Executor) Start(ctx context.Context, req Request) (*domain.ExecutionRecord, error) {
	rec, err := e.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *rec
	snapshot.Params = rec.Params.Clone()

	runCtx, cancel := context.WithCancel(e.base)
	e.mu.Lock()
	e.inflight[rec.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.inflight, rec.ID)
			e.mu.Unlock()
			cancel()
		}()
		e.execute(runCtx, rec)
	}()

	return &snapshot, nil
}

// begin validates the request and atomically claims the task.
func (e *Executor) begin(ctx context.Context, req Request) (*domain.ExecutionRecord, error) {
	if _, err := e.crawlers.Get(req.CrawlerName); err != nil {
		return nil, err
	}
	if !e.crawlers.IsEnabled(req.CrawlerName) {
		return nil, fmt.Errorf("%s: %w", req.CrawlerName, domain.ErrCrawlerDisabled)
	}
	params, err := e.crawlers.Resolve(req.CrawlerName, req.Params)
	if err != nil {
		return nil, err
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = req.CrawlerName
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = domain.TriggeredBySchedule
	}

	id := uuid.New().String()
	rec := &domain.ExecutionRecord{
		ID:              id,
		TaskID:          taskID,
		CrawlerName:     req.CrawlerName,
		BatchNo:         strings.ToUpper(id[:batchNoLength]),
		Status:          domain.ExecutionRunning,
		StartedAt:       e.now(),
		TriggeredBy:     triggeredBy,
		Manual:          req.Manual,
		Params:          params,
		ExecutionServer: e.server,
	}

	if createErr := e.repo.CreateRunning(ctx, rec); createErr != nil {
		if errors.Is(createErr, domain.ErrConcurrencyConflict) {
			e.metrics.ConcurrencyRejected()
			e.log.Warn("Task already running, trigger rejected",
				logger.String("task_id", taskID),
				logger.String("crawler", req.CrawlerName),
			)
			return nil, fmt.Errorf("task %s: %w", taskID, createErr)
		}
		return nil, fmt.Errorf("failed to create execution record: %w", createErr)
	}
	e.metrics.ExecutionStarted()

	e.log.Info("Execution started",
		logger.String("execution_id", rec.ID),
		logger.String("task_id", taskID),
		logger.String("crawler", req.CrawlerName),
		logger.String("triggered_by", triggeredBy),
	)
	return rec, nil
}

func (e *Executor) execute(ctx context.Context, rec *domain.ExecutionRecord) {
	spanCtx, span := e.tracer.Start(ctx, "executor.crawl",
		trace.WithAttributes(
			attribute.String("crawler", rec.CrawlerName),
			attribute.String("task_id", rec.TaskID),
			attribute.String("execution_id", rec.ID),
		),
	)
	res, crawlErr := e.source.Crawl(spanCtx, rec.CrawlerName, rec.Params.Clone())
	outcome := Interpret(ctx, res, crawlErr)
	if _, failed := outcome.(Failed); failed {
		span.RecordError(crawlErr)
		span.SetStatus(codes.Error, "crawl failed")
	}
	span.End()

	outcome.apply(rec)
	completed := e.now()
	durationMs := completed.Sub(rec.StartedAt).Milliseconds()
	rec.CompletedAt = &completed
	rec.DurationMs = &durationMs

	// The record must be finished even when the run was cancelled.
	if err := e.repo.Finish(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Error("Failed to finish execution record",
			logger.String("execution_id", rec.ID),
			logger.String("task_id", rec.TaskID),
			logger.Error(err),
		)
	}
	e.metrics.ExecutionFinished(rec.CrawlerName, string(rec.Status), completed.Sub(rec.StartedAt))

	fields := []logger.Field{
		logger.String("execution_id", rec.ID),
		logger.String("task_id", rec.TaskID),
		logger.String("crawler", rec.CrawlerName),
		logger.String("status", string(rec.Status)),
		logger.Int("saved_count", rec.SavedCount),
		logger.Int("skipped_count", rec.SkippedCount),
		logger.Int64("duration_ms", durationMs),
	}
	switch o := outcome.(type) {
	case Failed:
		e.log.Error("Execution failed", append(fields, logger.Error(o.Err))...)
	case Cancelled:
		e.log.Warn("Execution cancelled", fields...)
	default:
		e.log.Info("Execution finished", fields...)
	}
}

// RetryFailed starts the task of a FAILED execution again with its parameter snapshot.
func (e *Executor) RetryFailed(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	prev, err := e.repo.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if prev.Status != domain.ExecutionFailed {
		return nil, fmt.Errorf("execution %s is %s: %w", executionID, prev.Status, domain.ErrInvalidTransition)
	}
	return e.Start(ctx, Request{
		TaskID:      prev.TaskID,
		CrawlerName: prev.CrawlerName,
		Params:      prev.Params,
		TriggeredBy: domain.TriggeredByRetry,
		Manual:      true,
	})
}

// RecoverStale cancels RUNNING records started more than olderThan ago, and every
// RUNNING record this host wrote whatever its age. It runs at startup, before any
// trigger, so records of a dead process cannot block their task.
func (e *Executor) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := e.repo.CancelStale(ctx, e.now().Add(-olderThan), e.server, staleReason)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale executions: %w", err)
	}
	if n > 0 {
		e.log.Warn("Cancelled stale executions", logger.Int("count", n))
	}
	return n, nil
}

// InFlight returns the number of runs started by Start that have not finished.
func (e *Executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// Shutdown cancels in-flight crawls and waits for their records to be finished.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}
