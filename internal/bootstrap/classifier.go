package bootstrap

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/regwatch/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/regwatch/internal/classify"
	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
)

// SetupClassifier builds the guarded provider, or a classifier that fails every
// call when none is configured.
func SetupClassifier(cfg config.ClassifierConfig, metrics *telemetry.Metrics, log logger.Logger) classify.Classifier {
	if cfg.Provider != config.ClassifierAnthropic {
		log.Warn("No classifier configured, AI judgment calls will fail")
		return classify.Unavailable{}
	}

	provider := classify.NewAnthropic(classify.AnthropicConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Topic:     cfg.Topic,
		Timeout:   cfg.Timeout,
	})

	policy := retry.DefaultConfig()
	policy.MaxAttempts = cfg.MaxRetries
	// Provider errors that must not be retried are marked permanent by the adapter.
	policy.IsRetryable = func(err error) bool { return !errors.Is(err, context.Canceled) }

	log.Info("Classifier configured",
		logger.String("provider", cfg.Provider),
		logger.String("model", cfg.Model),
		logger.Float64("requests_per_second", cfg.RequestsPerSecond),
	)
	return classify.NewGuarded(provider, classify.GuardConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Retry:             policy,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         cfg.BreakerCooldown,
		},
	}, metrics, log.With(logger.String("component", "classifier")))
}
