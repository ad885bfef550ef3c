package registry

import (
	"sort"
	"sync"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

// CrawlerRegistry is the catalogue of known crawlers and their enabled flags.
type CrawlerRegistry struct {
	schemas *SchemaRegistry
	log     logger.Logger

	mu       sync.RWMutex
	crawlers map[string]*domain.CrawlerDefinition
}

// NewCrawlerRegistry creates an empty catalogue validating against schemas.
func NewCrawlerRegistry(schemas *SchemaRegistry, log logger.Logger) *CrawlerRegistry {
	if log == nil {
		log = logger.NewNop()
	}
	return &CrawlerRegistry{
		schemas:  schemas,
		log:      log,
		crawlers: make(map[string]*domain.CrawlerDefinition),
	}
}

// Schemas returns the schema registry the catalogue validates against.
func (r *CrawlerRegistry) Schemas() *SchemaRegistry {
	return r.schemas
}

// Register adds def and its schema. Idempotent per name: an existing definition is returned untouched.
func (r *CrawlerRegistry) Register(def domain.CrawlerDefinition) (domain.CrawlerDefinition, error) {
	r.mu.RLock()
	existing, ok := r.crawlers[def.Name]
	r.mu.RUnlock()
	if ok {
		return *existing, nil
	}

	if err := r.schemas.Register(def.Name, def.Schema); err != nil {
		return domain.CrawlerDefinition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok = r.crawlers[def.Name]; ok {
		return *existing, nil
	}
	stored := def
	r.crawlers[def.Name] = &stored
	r.log.Debug("Registered crawler",
		logger.String("crawler", def.Name),
		logger.String("country", def.CountryCode),
		logger.String("type", def.CrawlerType),
	)
	return stored, nil
}

// Get returns a copy of the named definition.
func (r *CrawlerRegistry) Get(name string) (domain.CrawlerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.crawlers[name]
	if !ok {
		return domain.CrawlerDefinition{}, domain.NotFoundf("crawler %s", name)
	}
	return *def, nil
}

// Exists reports whether name is registered.
func (r *CrawlerRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.crawlers[name]
	return ok
}

// IsEnabled is false for unknown and disabled crawlers.
func (r *CrawlerRegistry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.crawlers[name]
	return ok && def.Enabled
}

// Enable turns a crawler on. Returns false when name is unknown.
func (r *CrawlerRegistry) Enable(name string) bool {
	return r.setEnabled(name, true)
}

// Disable turns a crawler off. Running executions are not touched; future triggers are refused.
func (r *CrawlerRegistry) Disable(name string) bool {
	return r.setEnabled(name, false)
}

func (r *CrawlerRegistry) setEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	def, ok := r.crawlers[name]
	if ok {
		def.Enabled = enabled
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("Crawler not found", logger.String("crawler", name))
		return false
	}
	r.log.Info("Crawler enabled flag changed",
		logger.String("crawler", name),
		logger.Bool("enabled", enabled),
	)
	return true
}

// Validate checks params against the named crawler's schema.
func (r *CrawlerRegistry) Validate(name string, params domain.Params) error {
	if !r.Exists(name) {
		return domain.NotFoundf("crawler %s", name)
	}
	return r.schemas.Validate(name, params)
}

// Resolve applies schema defaults and validates.
func (r *CrawlerRegistry) Resolve(name string, params domain.Params) (domain.Params, error) {
	if !r.Exists(name) {
		return nil, domain.NotFoundf("crawler %s", name)
	}
	return r.schemas.Resolve(name, params)
}

// List returns every definition sorted by name.
func (r *CrawlerRegistry) List() []domain.CrawlerDefinition {
	return r.filter(func(*domain.CrawlerDefinition) bool { return true })
}

// ListByCountry returns the definitions of one country.
func (r *CrawlerRegistry) ListByCountry(country string) []domain.CrawlerDefinition {
	return r.filter(func(d *domain.CrawlerDefinition) bool { return d.CountryCode == country })
}

// ListByType returns the definitions of one crawler type.
func (r *CrawlerRegistry) ListByType(crawlerType string) []domain.CrawlerDefinition {
	return r.filter(func(d *domain.CrawlerDefinition) bool { return d.CrawlerType == crawlerType })
}

func (r *CrawlerRegistry) filter(keep func(*domain.CrawlerDefinition) bool) []domain.CrawlerDefinition {
	r.mu.RLock()
	out := make([]domain.CrawlerDefinition, 0, len(r.crawlers))
	for _, d := range r.crawlers {
		if keep(d) {
			out = append(out, *d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Statistics counts the catalogue by state, country and type.
func (r *CrawlerRegistry) Statistics() domain.CrawlerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.CrawlerStats{
		Total:     len(r.crawlers),
		ByCountry: make(map[string]int),
		ByType:    make(map[string]int),
	}
	for _, d := range r.crawlers {
		if d.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.ByCountry[d.CountryCode]++
		stats.ByType[d.CrawlerType]++
	}
	return stats
}
