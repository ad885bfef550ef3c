// Package classify judges whether a candidate record is related to the monitored topic.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=../../testutils/mocks/classify/mock_classifier.go -package=classify github.com/jonesrussell/north-cloud/regwatch/internal/classify Classifier

// Verdict is one classification.
type Verdict struct {
	Related    bool    `json:"related"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Reason     string  `json:"reason"`
}

// Classifier must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, text string) (Verdict, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, text string) (Verdict, error) {
	return f(ctx, text)
}

var (
	// ErrUnavailable is returned when no classifier provider is configured.
	ErrUnavailable = errors.New("no classifier configured")
	// ErrMalformedReply is returned when a provider reply holds no usable verdict.
	ErrMalformedReply = errors.New("malformed classifier reply")
)

// Unavailable fails every call. Each call is counted as a per-item failure.
type Unavailable struct{}

// Classify implements Classifier.
func (Unavailable) Classify(context.Context, string) (Verdict, error) {
	return Verdict{}, ErrUnavailable
}

type rawVerdict struct {
	Related    *bool    `json:"related"`
	Confidence *float64 `json:"confidence"`
	Category   string   `json:"category"`
	Reason     string   `json:"reason"`
}

// ParseVerdict extracts the JSON object from a model reply. Text around the
// object is ignored. Confidence given as a percentage is scaled to [0,1].
func ParseVerdict(reply string) (Verdict, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if raw.Related == nil {
		return Verdict{}, fmt.Errorf("%w: missing related", ErrMalformedReply)
	}

	v := Verdict{
		Related:  *raw.Related,
		Category: strings.TrimSpace(raw.Category),
		Reason:   strings.TrimSpace(raw.Reason),
	}
	if raw.Confidence != nil {
		c := *raw.Confidence
		if c > 1 && c <= 100 {
			c /= 100
		}
		v.Confidence = min(max(c, 0), 1)
	}
	return v, nil
}
