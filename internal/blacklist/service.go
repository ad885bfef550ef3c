package blacklist

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

// Service owns the keyword store and the live matcher. Readers take a
// snapshot; writes rebuild and swap it, so running previews keep the set
// they started with.
type Service struct {
	store   database.KeywordRepository
	log     logger.Logger
	current atomic.Pointer[Matcher]
}

// NewService creates a Service with an empty matcher. Call Reload to load the store.
func NewService(store database.KeywordRepository, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{store: store, log: log}
	s.current.Store(NewMatcher(nil))
	return s
}

// Snapshot returns the matcher in effect now.
func (s *Service) Snapshot() *Matcher {
	return s.current.Load()
}

// Reload rebuilds the matcher from the store.
func (s *Service) Reload(ctx context.Context) error {
	keywords, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load blacklist keywords: %w", err)
	}
	m := NewMatcher(keywords)
	s.current.Store(m)
	s.log.Debug("Blacklist reloaded", logger.Int("keywords", m.Len()))
	return nil
}

// List returns the stored keywords.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// Add stores keywords and swaps in a new matcher. It returns how many were new.
func (s *Service) Add(ctx context.Context, keywords ...string) (int, error) {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}
	added, err := s.store.Add(ctx, cleaned...)
	if err != nil {
		return 0, fmt.Errorf("failed to add blacklist keywords: %w", err)
	}
	if added > 0 {
		if err = s.Reload(ctx); err != nil {
			return added, err
		}
		s.log.Info("Blacklist keywords added", logger.Int("added", added), logger.Strings("keywords", cleaned))
	}
	return added, nil
}

// Remove deletes a keyword and swaps in a new matcher.
func (s *Service) Remove(ctx context.Context, keyword string) (bool, error) {
	removed, err := s.store.Remove(ctx, strings.TrimSpace(keyword))
	if err != nil {
		return false, fmt.Errorf("failed to remove blacklist keyword: %w", err)
	}
	if removed {
		if err = s.Reload(ctx); err != nil {
			return true, err
		}
		s.log.Info("Blacklist keyword removed", logger.String("keyword", keyword))
	}
	return removed, nil
}
