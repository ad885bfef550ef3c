package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

// minKeywordLength is the shortest manufacturer name suggested as a keyword.
const minKeywordLength = 3

// companySuffixes are stripped from the end of manufacturer names, longest first.
var companySuffixes = []string{
	"股份有限公司", "有限公司", "Corporation", "Company", "集团", "公司",
	"L.L.C.", "GmbH", "Corp.", "Corp", "Inc.", "Inc", "LLC", "Ltd.", "Ltd", "Co.", "Co", "AG",
}

// protectedBrands are never suggested for the blacklist, even when a record is unrelated.
var protectedBrands = []string{
	"VISIA", "Canfield", "OBSERV", "DermaFlash", "Neutrogena",
	"SkinCeuticals", "Dermalogica", "JANUS", "Callegari", "SkinAnalyzer",
}

// CleanManufacturer strips company suffixes and trailing punctuation. It
// returns "" when fewer than three characters remain.
func CleanManufacturer(name string) string {
	name = strings.TrimSpace(name)
	for changed := true; changed; {
		changed = false
		for _, suffix := range companySuffixes {
			trimmed, ok := trimSuffixWord(name, suffix)
			if ok {
				name = strings.TrimRight(strings.TrimSpace(trimmed), " ,.")
				changed = true
				break
			}
		}
	}
	if len([]rune(name)) < minKeywordLength {
		return ""
	}
	return name
}

// trimSuffixWord removes suffix when it is a whole trailing word. CJK suffixes
// attach without a separator.
func trimSuffixWord(name, suffix string) (string, bool) {
	if !strings.HasSuffix(name, suffix) || len(name) == len(suffix) {
		return name, false
	}
	rest := name[:len(name)-len(suffix)]
	if isASCII(suffix) {
		last := rest[len(rest)-1]
		if last != ' ' && last != ',' {
			return name, false
		}
	}
	return rest, true
}

func isASCII(s string) bool {
	for i := range len(s) {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// IsProtectedBrand reports whether name contains a protected brand.
func IsProtectedBrand(name string) bool {
	lower := strings.ToLower(name)
	for _, brand := range protectedBrands {
		if strings.Contains(lower, strings.ToLower(brand)) {
			return true
		}
	}
	return false
}

// SuggestKeywords proposes blacklist keywords for an unrelated record.
func SuggestKeywords(manufacturer string) []string {
	cleaned := CleanManufacturer(manufacturer)
	if cleaned == "" || IsProtectedBrand(cleaned) {
		return nil
	}
	return []string{cleaned}
}

// Remark renders the note written to a downgraded or kept record.
func Remark(item *domain.AuditItem) string {
	var b strings.Builder
	if item.Related != nil {
		verdict := "unrelated"
		if *item.Related {
			verdict = "related"
		}
		confidence := 0.0
		if item.Confidence != nil {
			confidence = *item.Confidence * 100
		}
		fmt.Fprintf(&b, "AI judgment: %s, confidence %.1f%%", verdict, confidence)
	}
	if len(item.SuggestedBlacklist) > 0 {
		writeSep(&b)
		b.WriteString("suggested blacklist: " + strings.Join(item.SuggestedBlacklist, ", "))
	}
	if item.BlacklistMatched {
		writeSep(&b)
		b.WriteString("blacklist match: " + item.MatchedKeyword)
	}
	return b.String()
}

func writeSep(b *strings.Builder) {
	if b.Len() > 0 {
		b.WriteString(", ")
	}
}

// classifierInput is the text the classifier judges.
func classifierInput(r *domain.Record) string {
	var b strings.Builder
	for _, field := range []struct{ label, value string }{
		{"Device name", r.DeviceName},
		{"Manufacturer", r.Manufacturer},
		{"Description", r.Description},
		{"Record type", r.EntityType},
		{"Country", r.Country},
	} {
		if v := strings.TrimSpace(field.value); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", field.label, v)
		}
	}
	return b.String()
}

// judgeOne filters r through the blacklist and, when it passes, classifies it.
// A blacklisted record never reaches the classifier.
func (p *Pipeline) judgeOne(ctx context.Context, m *blacklist.Matcher, r *domain.Record) (*domain.AuditItem, error) {
	item := &domain.AuditItem{
		EntityType:   r.EntityType,
		EntityID:     r.EntityID,
		DeviceName:   r.DeviceName,
		Manufacturer: r.Manufacturer,
	}

	if kw, ok := m.Match(r.SearchText()); ok {
		p.metrics.BlacklistHit()
		item.BlacklistMatched = true
		item.MatchedKeyword = kw
		item.SuggestedRiskLevel = domain.RiskLow
		item.Remark = Remark(item)
		return item, nil
	}

	verdict, err := p.classifier.Classify(ctx, classifierInput(r))
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", r.Key(), err)
	}

	related := verdict.Related
	confidence := verdict.Confidence
	item.Related = &related
	item.Confidence = &confidence
	item.Category = verdict.Category
	item.Reason = verdict.Reason
	if related {
		item.SuggestedRiskLevel = domain.RiskHigh
	} else {
		item.SuggestedRiskLevel = domain.RiskLow
		item.SuggestedBlacklist = SuggestKeywords(r.Manufacturer)
	}
	item.Remark = Remark(item)
	return item, nil
}

// judged is the result of one record, kept at the record's input position.
type judged struct {
	record *domain.Record
	item   *domain.AuditItem
	err    error
}

type job struct {
	index  int
	record *domain.Record
}

// judgeBatch classifies records on a bounded worker pool. Results keep the
// input order regardless of completion order.
func (p *Pipeline) judgeBatch(ctx context.Context, m *blacklist.Matcher, records []*domain.Record) []judged {
	results := make([]judged, len(records))
	if len(records) == 0 {
		return results
	}

	workers := min(p.cfg.Concurrency, len(records))
	jobs := make(chan job, len(records))
	for i, r := range records {
		jobs <- job{index: i, record: r}
	}
	close(jobs)

	startTime := time.Now()
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results[j.index] = judged{record: j.record, err: ctx.Err()}
					continue
				}
				item, err := p.judgeOne(ctx, m, j.record)
				results[j.index] = judged{record: j.record, item: item, err: err}
			}
		}()
	}
	wg.Wait()

	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			p.log.Warn("Failed to judge record",
				logger.String("entity_type", res.record.EntityType),
				logger.String("entity_id", res.record.EntityID),
				logger.Error(res.err),
			)
		}
	}
	p.log.Debug("Batch judged",
		logger.Int("batch_size", len(records)),
		logger.Int("concurrency", workers),
		logger.Int("failed", failed),
		logger.Duration("duration", time.Since(startTime)),
	)
	return results
}
