package classify

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/regwatch/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
)

// GuardConfig bounds calls to a paid provider.
type GuardConfig struct {
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	Retry             retry.Config
	Breaker           circuitbreaker.Config
}

// Guarded wraps a Classifier with a token bucket, bounded retry and a circuit
// breaker. Every attempt waits for a token; an open breaker stops retries.
type Guarded struct {
	next    Classifier
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	retry   retry.Config
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	log     logger.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Classifier, cfg GuardConfig, metrics *telemetry.Metrics, log logger.Logger) *Guarded {
	if log == nil {
		log = logger.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	breakerCfg := cfg.Breaker
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
			log.Warn("Classifier circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}
	}

	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: circuitbreaker.New(breakerCfg),
		retry:   cfg.Retry,
		metrics: metrics,
		tracer:  telemetry.Tracer(),
		log:     log,
	}
}

// Classify implements Classifier.
func (g *Guarded) Classify(ctx context.Context, text string) (Verdict, error) {
	ctx, span := g.tracer.Start(ctx, "classifier.classify")
	defer span.End()

	start := time.Now()
	var v Verdict
	err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
		if waitErr := g.limiter.Wait(ctx); waitErr != nil {
			return retry.Permanent(fmt.Errorf("classifier rate limit: %w", waitErr))
		}
		return g.breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			v, callErr = g.next.Classify(ctx, text)
			return callErr
		})
	})

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "classify failed")
		g.metrics.ClassifierCall("error", time.Since(start))
		return Verdict{}, err
	case v.Related:
		g.metrics.ClassifierCall("related", time.Since(start))
	default:
		g.metrics.ClassifierCall("unrelated", time.Since(start))
	}
	return v, nil
}

// BreakerState exposes the breaker state for health reporting.
func (g *Guarded) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}
