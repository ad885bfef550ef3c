package bootstrap

import (
	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/source"
)

// SetupSource routes each crawler to its configured worker endpoint, falling
// back to the shared worker URL.
func SetupSource(cfg config.SourceConfig, log logger.Logger) *source.Registry {
	var fallback source.Source
	if cfg.WorkerURL != "" {
		fallback = source.NewHTTPSource(cfg.WorkerURL, cfg.Timeout)
	}
	reg := source.NewRegistry(fallback)
	for crawler, url := range cfg.Endpoints {
		reg.Register(crawler, source.NewHTTPSource(url, cfg.Timeout))
	}

	if fallback == nil && len(cfg.Endpoints) == 0 {
		log.Warn("No crawl worker configured, executions will fail")
	} else {
		log.Info("Crawl source configured",
			logger.String("worker_url", cfg.WorkerURL),
			logger.Int("endpoints", len(cfg.Endpoints)),
		)
	}
	return reg
}
