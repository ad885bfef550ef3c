package bootstrap

import (
	"context"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/memstore"
	"github.com/jonesrussell/north-cloud/regwatch/internal/records"
)

// Stores holds the repositories every service is built on.
type Stores struct {
	Presets    database.PresetRepository
	Tasks      database.TaskRepository
	Executions database.ExecutionRepository
	Judgments  database.JudgmentRepository
	JudgeTasks database.JudgeTaskRepository
	Keywords   database.KeywordRepository
	Records    records.Store
}

// SetupDatabase connects to PostgreSQL. It returns nil when no host is configured.
func SetupDatabase(cfg *config.Config, log logger.Logger) (*sqlx.DB, error) {
	if !cfg.Database.Enabled() {
		log.Warn("No database configured, using in-memory repositories")
		return nil, nil
	}
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	log.Info("Connected to database",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.Database),
	)
	return db, nil
}

// SetupRedis connects to Redis when enabled.
func SetupRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Address, err)
	}
	log.Info("Connected to Redis", logger.String("address", cfg.Redis.Address))
	return client, nil
}

// SetupElasticsearch creates the record store client. It returns nil when no URL is configured.
func SetupElasticsearch(cfg *config.Config, log logger.Logger) (*es.Client, error) {
	if cfg.Elasticsearch.URL == "" {
		log.Warn("No Elasticsearch URL configured, using an in-memory record store")
		return nil, nil
	}
	client, err := es.NewClient(es.Config{
		Addresses: []string{cfg.Elasticsearch.URL},
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	log.Info("Elasticsearch client created",
		logger.String("url", cfg.Elasticsearch.URL),
		logger.String("index", cfg.Elasticsearch.Index),
	)
	return client, nil
}

// NewStores picks PostgreSQL repositories when db is set and in-memory ones otherwise.
// The keyword store follows blacklist.store.
func NewStores(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, esClient *es.Client, log logger.Logger) *Stores {
	s := &Stores{}
	if db != nil {
		s.Presets = database.NewPresetRepository(db)
		s.Tasks = database.NewTaskRepository(db)
		s.Executions = database.NewExecutionRepository(db)
		s.Judgments = database.NewJudgmentRepository(db)
		s.JudgeTasks = database.NewJudgeTaskRepository(db)
	} else {
		s.Presets = memstore.NewPresetStore()
		s.Tasks = memstore.NewTaskStore()
		s.Executions = memstore.NewExecutionStore()
		s.Judgments = memstore.NewJudgmentStore()
		s.JudgeTasks = memstore.NewJudgeTaskStore()
	}

	switch cfg.Blacklist.Store {
	case config.BlacklistStorePostgres:
		s.Keywords = database.NewKeywordRepository(db)
	case config.BlacklistStoreRedis:
		s.Keywords = blacklist.NewRedisStore(rdb, cfg.Redis.KeyPrefix+":blacklist")
	default:
		s.Keywords = memstore.NewKeywordStore()
	}

	if esClient != nil {
		s.Records = records.NewESStore(esClient, cfg.Elasticsearch.Index, log)
	} else {
		s.Records = records.NewMemoryStore()
	}
	return s
}
