package classify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/regwatch/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/regwatch/internal/classify"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/telemetry"
	classifymocks "github.com/jonesrussell/north-cloud/regwatch/testutils/mocks/classify"
)

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    classify.Verdict
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"related": true, "confidence": 0.92, "category": "skin analyzer", "reason": "imaging device"}`,
			want:  classify.Verdict{Related: true, Confidence: 0.92, Category: "skin analyzer", Reason: "imaging device"},
		},
		{
			name:  "wrapped in prose and fences",
			reply: "Here you go:\n```json\n{\"related\": false, \"confidence\": 0.8}\n```",
			want:  classify.Verdict{Related: false, Confidence: 0.8},
		},
		{
			name:  "percentage confidence",
			reply: `{"related": true, "confidence": 85}`,
			want:  classify.Verdict{Related: true, Confidence: 0.85},
		},
		{
			name:  "confidence clamped",
			reply: `{"related": false, "confidence": -2}`,
			want:  classify.Verdict{Related: false, Confidence: 0},
		},
		{name: "missing related", reply: `{"confidence": 0.5}`, wantErr: true},
		{name: "no object", reply: "I cannot decide", wantErr: true},
		{name: "broken json", reply: `{"related": tru}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := classify.ParseVerdict(tt.reply)
			if tt.wantErr {
				require.ErrorIs(t, err, classify.ErrMalformedReply)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Related, got.Related)
			assert.InDelta(t, tt.want.Confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.want.Category, got.Category)
			assert.Equal(t, tt.want.Reason, got.Reason)
		})
	}
}

func messagesResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "test-model",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func TestAnthropic_Classify(t *testing.T) {
	t.Parallel()

	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messagesResponse(`{"related": true, "confidence": 0.9, "category": "analyzer"}`))
	}))
	defer server.Close()

	c := classify.NewAnthropic(classify.AnthropicConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Model:     "test-model",
		MaxTokens: 256,
		Topic:     "skin analysis devices",
	})

	v, err := c.Classify(context.Background(), "VISIA skin analysis system")
	require.NoError(t, err)
	assert.True(t, v.Related)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)
	assert.Equal(t, "analyzer", v.Category)

	assert.Equal(t, "test-model", body["model"])
	assert.Contains(t, body["system"].([]any)[0].(map[string]any)["text"], "skin analysis devices")
}

func TestAnthropic_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	c := classify.NewAnthropic(classify.AnthropicConfig{APIKey: "k", BaseURL: server.URL, Model: "m", MaxTokens: 10})
	g := classify.NewGuarded(c, classify.GuardConfig{
		Retry: retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	}, nil, logger.NewNop())

	_, err := g.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestGuarded_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	next := classifymocks.NewMockClassifier(ctrl)
	gomock.InOrder(
		next.EXPECT().Classify(gomock.Any(), "text").Return(classify.Verdict{}, errors.New("anthropic status 529: overloaded")),
		next.EXPECT().Classify(gomock.Any(), "text").Return(classify.Verdict{Related: true, Confidence: 0.7}, nil),
	)

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	g := classify.NewGuarded(next, classify.GuardConfig{
		Retry: retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	}, metrics, logger.NewNop())

	v, err := g.Classify(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, v.Related)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ClassifierCalls.WithLabelValues("related")), 0)
}

func TestGuarded_BreakerOpensAndShortCircuits(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	next := classifymocks.NewMockClassifier(ctrl)
	next.EXPECT().Classify(gomock.Any(), gomock.Any()).
		Return(classify.Verdict{}, errors.New("boom")).
		Times(2)

	g := classify.NewGuarded(next, classify.GuardConfig{
		Retry:   retry.Config{MaxAttempts: 1},
		Breaker: circuitbreaker.Config{FailureThreshold: 2, Cooldown: time.Hour},
	}, nil, logger.NewNop())

	for range 2 {
		_, err := g.Classify(context.Background(), "x")
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, g.BreakerState())

	_, err := g.Classify(context.Background(), "x")
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestGuarded_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	next := classify.Func(func(context.Context, string) (classify.Verdict, error) {
		calls.Add(1)
		return classify.Verdict{}, nil
	})
	g := classify.NewGuarded(next, classify.GuardConfig{RequestsPerSecond: 0.001, Burst: 1}, nil, logger.NewNop())

	_, err := g.Classify(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Classify(ctx, "second")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	_, err := classify.Unavailable{}.Classify(context.Background(), "x")
	require.ErrorIs(t, err, classify.ErrUnavailable)
}
