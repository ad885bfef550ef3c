package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
)

const systemPromptTemplate = `You screen regulatory records (device filings, recalls, adverse events, guidance, customs rulings).
Decide whether the record concerns %s.
Reply with a single JSON object and nothing else:
{"related": true|false, "confidence": number between 0 and 1, "category": short label, "reason": one sentence}`

// AnthropicConfig configures the Messages API adapter.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Topic     string
	Timeout   time.Duration
}

// Anthropic classifies with the Anthropic Messages API. Retries are left to
// the Guarded wrapper, so the SDK's own retries are disabled.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
}

// NewAnthropic creates the adapter.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		system:    fmt.Sprintf(systemPromptTemplate, cfg.Topic),
	}
}

// Classify implements Classifier.
func (a *Anthropic) Classify(ctx context.Context, text string) (Verdict, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: a.system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			wrapped := fmt.Errorf("anthropic status %d: %w", apiErr.StatusCode, err)
			if apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError &&
				apiErr.StatusCode != http.StatusTooManyRequests {
				return Verdict{}, retry.Permanent(wrapped)
			}
			return Verdict{}, wrapped
		}
		return Verdict{}, fmt.Errorf("anthropic request: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	v, err := ParseVerdict(reply.String())
	if err != nil {
		return Verdict{}, retry.Permanent(err)
	}
	return v, nil
}
