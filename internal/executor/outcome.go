package executor

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/source"
)

const maxErrorSummary = 500

// Outcome is the interpreted result of one crawl. Exactly one of the variants
// below is produced for every finished run.
type Outcome interface {
	Status() domain.ExecutionStatus
	apply(rec *domain.ExecutionRecord)
}

// Saved is a crawl that returned counts.
type Saved struct {
	Saved   int
	Skipped int
}

// NoNewData is a crawl whose candidates were all duplicates of stored records.
type NoNewData struct {
	Duplicates int
}

// Failed is a crawl that raised an unexpected error.
type Failed struct {
	Err error
}

// Cancelled is a crawl interrupted by shutdown.
type Cancelled struct {
	Err error
}

func (Saved) Status() domain.ExecutionStatus     { return domain.ExecutionSuccess }
func (NoNewData) Status() domain.ExecutionStatus { return domain.ExecutionNoNewData }
func (Failed) Status() domain.ExecutionStatus    { return domain.ExecutionFailed }
func (Cancelled) Status() domain.ExecutionStatus { return domain.ExecutionCancelled }

func (o Saved) apply(rec *domain.ExecutionRecord) {
	rec.Status = domain.ExecutionSuccess
	rec.SavedCount = o.Saved
	rec.SkippedCount = o.Skipped
}

func (o NoNewData) apply(rec *domain.ExecutionRecord) {
	rec.Status = domain.ExecutionNoNewData
	rec.SavedCount = 0
	rec.SkippedCount = o.Duplicates
}

func (o Failed) apply(rec *domain.ExecutionRecord) {
	rec.Status = domain.ExecutionFailed
	msg := summarize(o.Err)
	rec.ErrorMessage = &msg
}

func (o Cancelled) apply(rec *domain.ExecutionRecord) {
	rec.Status = domain.ExecutionCancelled
	msg := summarize(o.Err)
	rec.ErrorMessage = &msg
}

// Interpret maps a crawl result to an Outcome. The all-duplicate condition is
// told apart from failure here and nowhere else.
func Interpret(ctx context.Context, res source.Result, err error) Outcome {
	if err == nil {
		return Saved{Saved: res.Saved, Skipped: res.Skipped}
	}
	if dup, ok := source.AsAllDuplicate(err); ok {
		return NoNewData{Duplicates: dup.Count}
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return Cancelled{Err: err}
	}
	return Failed{Err: err}
}

// summarize reduces an error to its first line.
func summarize(err error) string {
	if err == nil {
		return ""
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorSummary {
		cut := maxErrorSummary
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
