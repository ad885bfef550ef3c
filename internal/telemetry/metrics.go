// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for regwatch.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all regwatch metrics.
	MetricsNamespace = "regwatch"

	subsystemExecutor  = "executor"
	subsystemScheduler = "scheduler"
	subsystemPipeline  = "pipeline"
)

// Metrics holds every regwatch collector. All methods are safe on a nil receiver.
type Metrics struct {
	// Executor metrics
	ExecutionsTotal          *prometheus.CounterVec
	ExecutionDurationSeconds *prometheus.HistogramVec
	ExecutionsRunning        prometheus.Gauge
	ConcurrencyRejections    prometheus.Counter

	// Scheduler metrics
	FiringsTotal   *prometheus.CounterVec
	ScheduledTasks prometheus.Gauge

	// Pipeline metrics
	ClassifierCalls     *prometheus.CounterVec
	ClassifierDuration  prometheus.Histogram
	BlacklistHits       prometheus.Counter
	JudgmentsStaged     prometheus.Counter
	JudgeItemsProcessed *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg, or the default registerer when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}
	m.initExecutorMetrics(factory)
	m.initSchedulerMetrics(factory)
	m.initPipelineMetrics(factory)
	return m
}

func (m *Metrics) initExecutorMetrics(factory promauto.Factory) {
	m.ExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemExecutor,
			Name:      "executions_total",
			Help:      "Finished executions by crawler and status",
		},
		[]string{"crawler", "status"},
	)

	m.ExecutionDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemExecutor,
			Name:      "execution_duration_seconds",
			Help:      "Duration of crawl executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
		},
		[]string{"crawler"},
	)

	m.ExecutionsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemExecutor,
			Name:      "executions_running",
			Help:      "Executions currently running in this process",
		},
	)

	m.ConcurrencyRejections = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemExecutor,
			Name:      "concurrency_rejections_total",
			Help:      "Triggers rejected because the task was already running",
		},
	)
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.FiringsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "firings_total",
			Help:      "Cron firings by outcome (started, skipped, rejected, error)",
		},
		[]string{"outcome"},
	)

	m.ScheduledTasks = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "scheduled_tasks",
			Help:      "Tasks with an armed timer",
		},
	)
}

func (m *Metrics) initPipelineMetrics(factory promauto.Factory) {
	m.ClassifierCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "classifier_calls_total",
			Help:      "Classifier calls by outcome (related, unrelated, error)",
		},
		[]string{"outcome"},
	)

	m.ClassifierDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "classifier_duration_seconds",
			Help:      "Latency of classifier calls",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.BlacklistHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "blacklist_hits_total",
			Help:      "Candidates filtered by the keyword blacklist",
		},
	)

	m.JudgmentsStaged = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "judgments_staged_total",
			Help:      "Pending judgments upserted",
		},
	)

	m.JudgeItemsProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemPipeline,
			Name:      "judge_task_items_total",
			Help:      "Items processed by async judge tasks by result",
		},
		[]string{"result"},
	)
}

// ExecutionStarted bumps the running gauge.
func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.ExecutionsRunning.Inc()
}

// ExecutionFinished records a finished run.
func (m *Metrics) ExecutionFinished(crawler, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsRunning.Dec()
	m.ExecutionsTotal.WithLabelValues(crawler, status).Inc()
	m.ExecutionDurationSeconds.WithLabelValues(crawler).Observe(d.Seconds())
}

// ConcurrencyRejected counts a rejected trigger.
func (m *Metrics) ConcurrencyRejected() {
	if m == nil {
		return
	}
	m.ConcurrencyRejections.Inc()
}

// Firing counts a cron firing outcome.
func (m *Metrics) Firing(outcome string) {
	if m == nil {
		return
	}
	m.FiringsTotal.WithLabelValues(outcome).Inc()
}

// SetScheduledTasks sets the armed timer gauge.
func (m *Metrics) SetScheduledTasks(n int) {
	if m == nil {
		return
	}
	m.ScheduledTasks.Set(float64(n))
}

// ClassifierCall records one classifier call.
func (m *Metrics) ClassifierCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierCalls.WithLabelValues(outcome).Inc()
	m.ClassifierDuration.Observe(d.Seconds())
}

// BlacklistHit counts a blacklisted candidate.
func (m *Metrics) BlacklistHit() {
	if m == nil {
		return
	}
	m.BlacklistHits.Inc()
}

// Staged counts upserted judgments.
func (m *Metrics) Staged(n int) {
	if m == nil {
		return
	}
	m.JudgmentsStaged.Add(float64(n))
}

// JudgeItems counts async judge task items by result.
func (m *Metrics) JudgeItems(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.JudgeItemsProcessed.WithLabelValues(result).Add(float64(n))
}
