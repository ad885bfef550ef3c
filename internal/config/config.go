package config

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

// Blacklist keyword store backends.
const (
	BlacklistStoreMemory   = "memory"
	BlacklistStorePostgres = "postgres"
	BlacklistStoreRedis    = "redis"
)

// Classifier providers.
const (
	ClassifierAnthropic = "anthropic"
	ClassifierNone      = "none"
)

// Config is the root configuration of the regwatch service.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Logging       logger.Config       `yaml:"logging"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Source        SourceConfig        `yaml:"source"`
	Blacklist     BlacklistConfig     `yaml:"blacklist"`
}

// ServiceConfig identifies the running process.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Debug   bool   `env:"APP_DEBUG" yaml:"debug"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `env:"REGWATCH_PORT"    yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `env:"CORS_ORIGINS"     yaml:"cors_origins"`
}

// DatabaseConfig configures PostgreSQL. An empty host selects in-memory repositories.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig configures the optional Redis connection.
type RedisConfig struct {
	Enabled   bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address   string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password  string `env:"REDIS_PASSWORD" yaml:"password"`
	DB        int    `env:"REDIS_DB"       yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ElasticsearchConfig configures the candidate record store. An empty URL selects memory.
type ElasticsearchConfig struct {
	URL      string `env:"ELASTICSEARCH_URL"      yaml:"url"`
	Username string `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password string `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	Index    string `yaml:"index"`
}

// SchedulerConfig configures cron scheduling and stale execution recovery.
type SchedulerConfig struct {
	// Location is the IANA zone of the janitor's cron jobs; empty means local time.
	Location   string        `env:"SCHEDULER_TIMEZONE" yaml:"location"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// PipelineConfig configures the classification pipeline and judgment janitor.
type PipelineConfig struct {
	BatchSize     int           `env:"PIPELINE_BATCH_SIZE"  yaml:"batch_size"`
	Concurrency   int           `env:"PIPELINE_CONCURRENCY" yaml:"concurrency"`
	BatchInterval time.Duration `yaml:"batch_interval"`
	JudgmentTTL   time.Duration `yaml:"judgment_ttl"`
	CleanupCron   string        `yaml:"cleanup_cron"`
	ReportCron    string        `yaml:"report_cron"`
}

// ClassifierConfig configures the external classifier and its guards.
type ClassifierConfig struct {
	Provider          string        `env:"CLASSIFIER_PROVIDER" yaml:"provider"`
	APIKey            string        `env:"ANTHROPIC_API_KEY"   yaml:"api_key"`
	BaseURL           string        `env:"ANTHROPIC_BASE_URL"  yaml:"base_url"`
	Model             string        `env:"CLASSIFIER_MODEL"    yaml:"model"`
	MaxTokens         int64         `yaml:"max_tokens"`
	Topic             string        `yaml:"topic"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	BreakerFailures   int           `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

// SourceConfig points crawls at the remote crawl worker.
type SourceConfig struct {
	WorkerURL string        `env:"CRAWL_WORKER_URL" yaml:"worker_url"`
	Timeout   time.Duration `yaml:"timeout"`
	// Endpoints overrides WorkerURL per crawler name.
	Endpoints map[string]string `yaml:"endpoints"`
}

// BlacklistConfig selects the keyword store and optional seed keywords.
type BlacklistConfig struct {
	Store string   `env:"BLACKLIST_STORE" yaml:"store"`
	Seed  []string `yaml:"seed"`
}

// SetDefaults fills every unset value.
func (c *Config) SetDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "regwatch"
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8070
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "regwatch"
	}

	if c.Elasticsearch.Index == "" {
		c.Elasticsearch.Index = "regwatch_records"
	}

	if c.Scheduler.StaleAfter == 0 {
		c.Scheduler.StaleAfter = time.Hour
	}

	c.Pipeline.setDefaults()
	c.Classifier.setDefaults()

	if c.Source.Timeout == 0 {
		c.Source.Timeout = 2 * time.Hour
	}

	if c.Blacklist.Store == "" {
		c.Blacklist.Store = BlacklistStoreMemory
		if c.Database.Enabled() {
			c.Blacklist.Store = BlacklistStorePostgres
		}
	}

	c.Logging.Service = c.Service.Name
	if c.Service.Debug {
		c.Logging.Development = true
		if c.Logging.Level == "" {
			c.Logging.Level = "debug"
		}
	}
	c.Logging.SetDefaults()
}

func (c *PipelineConfig) setDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = time.Second
	}
	if c.JudgmentTTL == 0 {
		c.JudgmentTTL = 30 * 24 * time.Hour
	}
	if c.CleanupCron == "" {
		c.CleanupCron = "0 2 * * *"
	}
	if c.ReportCron == "" {
		c.ReportCron = "0 8 * * *"
	}
}

func (c *ClassifierConfig) setDefaults() {
	if c.Provider == "" {
		c.Provider = ClassifierNone
		if c.APIKey != "" {
			c.Provider = ClassifierAnthropic
		}
	}
	if c.Model == "" {
		c.Model = "claude-3-5-haiku-latest"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	if c.Topic == "" {
		c.Topic = "skin analysis and skin testing devices"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}
