// Package blacklist pre-filters candidate records by keyword before any paid
// classification. Matching is case-insensitive and ignores diacritics.
package blacklist

import (
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case and strips combining marks.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Matcher is an immutable keyword set compiled into an Aho-Corasick automaton.
// The automaton keeps per-scan state, so scans are serialized.
type Matcher struct {
	mu         sync.Mutex
	ac         *ahocorasick.Matcher
	keywords   []string
	normalized []string
}

// NewMatcher compiles keywords. Blank keywords and normalized duplicates are dropped.
func NewMatcher(keywords []string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		n := Normalize(kw)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		m.keywords = append(m.keywords, strings.TrimSpace(kw))
		m.normalized = append(m.normalized, n)
	}
	if len(m.normalized) > 0 {
		m.ac = ahocorasick.NewStringMatcher(m.normalized)
	}
	return m
}

// Match returns the first configured keyword found in text, in configuration order.
func (m *Matcher) Match(text string) (string, bool) {
	if m == nil || m.ac == nil {
		return "", false
	}
	in := []byte(Normalize(text))

	m.mu.Lock()
	hits := m.ac.Match(in)
	m.mu.Unlock()

	if len(hits) == 0 {
		return "", false
	}
	first := hits[0]
	for _, h := range hits[1:] {
		if h < first {
			first = h
		}
	}
	return m.keywords[first], true
}

// Keywords returns the configured keywords.
func (m *Matcher) Keywords() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keywords...)
}

// Len is the number of distinct keywords.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keywords)
}
