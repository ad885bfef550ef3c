// Package source adapts the site-specific crawl workers to a single crawl contract.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

//go:generate mockgen -destination=../../testutils/mocks/source/mock_source.go -package=source github.com/jonesrussell/north-cloud/regwatch/internal/source Source

// Result is the outcome of a crawl that stored at least one new record.
type Result struct {
	Saved   int `json:"saved_count"`
	Skipped int `json:"skipped_count"`
}

// AllDuplicateError reports a crawl that succeeded but found only records already stored.
// It is a condition, not a failure.
type AllDuplicateError struct {
	Crawler string
	Count   int
}

func (e *AllDuplicateError) Error() string {
	return fmt.Sprintf("%s: all %d candidate records were duplicates", e.Crawler, e.Count)
}

// AsAllDuplicate extracts an AllDuplicateError from err.
func AsAllDuplicate(err error) (*AllDuplicateError, bool) {
	var dup *AllDuplicateError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

// Source runs one crawl. Implementations must be safe for concurrent use.
type Source interface {
	Crawl(ctx context.Context, crawlerName string, params domain.Params) (Result, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, crawlerName string, params domain.Params) (Result, error)

// Crawl implements Source.
func (f Func) Crawl(ctx context.Context, crawlerName string, params domain.Params) (Result, error) {
	return f(ctx, crawlerName, params)
}

// ErrNoSource is returned when no source serves a crawler.
var ErrNoSource = errors.New("no crawl source configured")

// Registry routes crawls to per-crawler sources, falling back to a default.
type Registry struct {
	mu       sync.RWMutex
	sources  map[string]Source
	fallback Source
}

// NewRegistry creates a router with an optional fallback source.
func NewRegistry(fallback Source) *Registry {
	return &Registry{sources: make(map[string]Source), fallback: fallback}
}

// Register routes crawlerName to src.
func (r *Registry) Register(crawlerName string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[crawlerName] = src
}

// Crawl implements Source.
func (r *Registry) Crawl(ctx context.Context, crawlerName string, params domain.Params) (Result, error) {
	r.mu.RLock()
	src, ok := r.sources[crawlerName]
	if !ok {
		src = r.fallback
	}
	r.mu.RUnlock()

	if src == nil {
		return Result{}, fmt.Errorf("%s: %w", crawlerName, ErrNoSource)
	}
	return src.Crawl(ctx, crawlerName, params)
}
