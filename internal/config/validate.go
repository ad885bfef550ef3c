package config

import (
	"fmt"
	"time"
)

// ValidationError reports one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

func validatePositive(field string, n int) error {
	if n <= 0 {
		return &ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if c.Database.Enabled() {
		if err := validatePort("database.port", c.Database.Port); err != nil {
			return err
		}
		if c.Database.User == "" {
			return &ValidationError{Field: "database.user", Message: "is required"}
		}
		if c.Database.Database == "" {
			return &ValidationError{Field: "database.database", Message: "is required"}
		}
	}
	if err := validatePositive("pipeline.batch_size", c.Pipeline.BatchSize); err != nil {
		return err
	}
	if err := validatePositive("pipeline.concurrency", c.Pipeline.Concurrency); err != nil {
		return err
	}
	switch c.Blacklist.Store {
	case BlacklistStoreMemory, BlacklistStorePostgres, BlacklistStoreRedis:
	default:
		return &ValidationError{Field: "blacklist.store", Message: "must be one of: memory, postgres, redis"}
	}
	if c.Blacklist.Store == BlacklistStorePostgres && !c.Database.Enabled() {
		return &ValidationError{Field: "blacklist.store", Message: "postgres store requires database.host"}
	}
	if c.Blacklist.Store == BlacklistStoreRedis && !c.Redis.Enabled {
		return &ValidationError{Field: "blacklist.store", Message: "redis store requires redis.enabled"}
	}
	switch c.Classifier.Provider {
	case ClassifierAnthropic:
		if c.Classifier.APIKey == "" {
			return &ValidationError{Field: "classifier.api_key", Message: "is required for the anthropic provider"}
		}
	case ClassifierNone:
	default:
		return &ValidationError{Field: "classifier.provider", Message: "must be one of: anthropic, none"}
	}
	if c.Scheduler.Location != "" {
		if _, err := time.LoadLocation(c.Scheduler.Location); err != nil {
			return &ValidationError{Field: "scheduler.location", Message: err.Error()}
		}
	}
	return nil
}
