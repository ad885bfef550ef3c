package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
)

const (
	crawlPath        = "/api/v1/crawl"
	maxErrorBodySize = 4 << 10

	statusNoNewData = "NO_NEW_DATA"
)

type crawlRequest struct {
	Crawler string        `json:"crawler"`
	Params  domain.Params `json:"params"`
}

type crawlResponse struct {
	Status         string `json:"status"`
	SavedCount     int    `json:"saved_count"`
	SkippedCount   int    `json:"skipped_count"`
	DuplicateCount int    `json:"duplicate_count"`
	Error          string `json:"error,omitempty"`
}

// HTTPSource posts crawl requests to a remote crawl worker.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
}

// NewHTTPSource creates a source for the worker at baseURL. A zero timeout means no client timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.DefaultConfig(),
	}
}

// WithRetry replaces the retry policy.
func (s *HTTPSource) WithRetry(cfg retry.Config) *HTTPSource {
	s.retry = cfg
	return s
}

// Crawl implements Source. Connection failures and throttled or unavailable answers are retried.
func (s *HTTPSource) Crawl(ctx context.Context, crawlerName string, params domain.Params) (Result, error) {
	body, err := json.Marshal(crawlRequest{Crawler: crawlerName, Params: params})
	if err != nil {
		return Result{}, fmt.Errorf("marshal crawl request: %w", err)
	}

	var out crawlResponse
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.post(ctx, body, &out)
	})
	if err != nil {
		return Result{}, err
	}

	if out.Status == statusNoNewData {
		count := out.DuplicateCount
		if count == 0 {
			count = out.SkippedCount
		}
		return Result{}, &AllDuplicateError{Crawler: crawlerName, Count: count}
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("crawl %s: %s", crawlerName, out.Error)
	}
	return Result{Saved: out.SavedCount, Skipped: out.SkippedCount}, nil
}

func (s *HTTPSource) post(ctx context.Context, body []byte, out *crawlResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+crawlPath, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crawl request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		err = fmt.Errorf("crawl worker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode crawl response: %w", err))
	}
	return nil
}
