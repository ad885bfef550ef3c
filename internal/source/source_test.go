package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/retry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/source"
	sourcemocks "github.com/jonesrussell/north-cloud/regwatch/testutils/mocks/source"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func worker(t *testing.T, handler http.HandlerFunc) *source.HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return source.NewHTTPSource(srv.URL, 5*time.Second).WithRetry(fastRetry())
}

func TestHTTPSource_Saved(t *testing.T) {
	t.Parallel()

	src := worker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/crawl", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "US_510K", body["crawler"])
		_, _ = w.Write([]byte(`{"status":"SUCCESS","saved_count":12,"skipped_count":3}`))
	})

	res, err := src.Crawl(context.Background(), "US_510K", domain.Params{"maxRecords": 15})
	require.NoError(t, err)
	assert.Equal(t, source.Result{Saved: 12, Skipped: 3}, res)
}

func TestHTTPSource_AllDuplicate(t *testing.T) {
	t.Parallel()

	src := worker(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"NO_NEW_DATA","saved_count":0,"skipped_count":50}`))
	})

	_, err := src.Crawl(context.Background(), "EU_Recall", nil)
	dup, ok := source.AsAllDuplicate(err)
	require.True(t, ok, "expected all-duplicate condition, got %v", err)
	assert.Equal(t, 50, dup.Count)
	assert.Equal(t, "EU_Recall", dup.Crawler)
}

func TestHTTPSource_RetriesUnavailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	src := worker(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"SUCCESS","saved_count":1}`))
	})

	res, err := src.Crawl(context.Background(), "KR_Recall", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_BadRequestIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	src := worker(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown crawler", http.StatusBadRequest)
	})

	_, err := src.Crawl(context.Background(), "XX", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
	_, dup := source.AsAllDuplicate(err)
	assert.False(t, dup)
}

func TestHTTPSource_WorkerError(t *testing.T) {
	t.Parallel()

	src := worker(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILED","error":"upstream timeout on page 3"}`))
	})

	_, err := src.Crawl(context.Background(), "US_Event", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream timeout on page 3")
}

func TestRegistry_Routes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	specific := sourcemocks.NewMockSource(ctrl)
	fallback := sourcemocks.NewMockSource(ctrl)

	specific.EXPECT().Crawl(gomock.Any(), "US_510K", gomock.Any()).Return(source.Result{Saved: 1}, nil)
	fallback.EXPECT().Crawl(gomock.Any(), "EU_Recall", gomock.Any()).Return(source.Result{Saved: 2}, nil)

	reg := source.NewRegistry(fallback)
	reg.Register("US_510K", specific)

	res, err := reg.Crawl(context.Background(), "US_510K", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)

	res, err = reg.Crawl(context.Background(), "EU_Recall", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
}

func TestRegistry_NoSource(t *testing.T) {
	t.Parallel()

	_, err := source.NewRegistry(nil).Crawl(context.Background(), "US_510K", nil)
	assert.True(t, errors.Is(err, source.ErrNoSource))
}
