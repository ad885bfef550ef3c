package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jonesrussell/north-cloud/regwatch/internal/database"
)

// KeywordStore is an in-memory database.KeywordRepository. Keywords are unique case-insensitively.
type KeywordStore struct {
	mu    sync.RWMutex
	words map[string]string // lower -> original
}

// NewKeywordStore creates a store seeded with keywords.
func NewKeywordStore(seed ...string) *KeywordStore {
	s := &KeywordStore{words: make(map[string]string)}
	_, _ = s.Add(context.Background(), seed...)
	return s
}

var _ database.KeywordRepository = (*KeywordStore)(nil)

// List implements database.KeywordRepository.
func (s *KeywordStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.words))
	for _, w := range s.words {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// Add implements database.KeywordRepository.
func (s *KeywordStore) Add(_ context.Context, keywords ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := s.words[key]; ok {
			continue
		}
		s.words[key] = kw
		added++
	}
	return added, nil
}

// Remove implements database.KeywordRepository.
func (s *KeywordStore) Remove(_ context.Context, keyword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(keyword))
	if _, ok := s.words[key]; !ok {
		return false, nil
	}
	delete(s.words, key)
	return true, nil
}
