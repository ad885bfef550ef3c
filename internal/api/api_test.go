package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regwatch/internal/api"
	"github.com/jonesrussell/north-cloud/regwatch/internal/blacklist"
	"github.com/jonesrussell/north-cloud/regwatch/internal/classify"
	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/executor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/judgment"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/jonesrussell/north-cloud/regwatch/internal/memstore"
	"github.com/jonesrussell/north-cloud/regwatch/internal/monitor"
	"github.com/jonesrussell/north-cloud/regwatch/internal/pipeline"
	"github.com/jonesrussell/north-cloud/regwatch/internal/preset"
	"github.com/jonesrussell/north-cloud/regwatch/internal/records"
	"github.com/jonesrussell/north-cloud/regwatch/internal/registry"
	"github.com/jonesrussell/north-cloud/regwatch/internal/scheduler"
	"github.com/jonesrussell/north-cloud/regwatch/internal/source"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
}

func newTestServer(t *testing.T, checks map[string]api.HealthCheck) *testServer {
	t.Helper()
	log := logger.NewNop()
	ctx := context.Background()

	crawlers := registry.NewCrawlerRegistry(registry.NewSchemaRegistry(), log)
	require.NoError(t, registry.RegisterBuiltin(crawlers))

	crawl := source.Func(func(_ context.Context, crawlerName string, _ domain.Params) (source.Result, error) {
		if crawlerName == "KR_Recall" {
			return source.Result{}, &source.AllDuplicateError{Crawler: crawlerName, Count: 50}
		}
		return source.Result{Saved: 3}, nil
	})
	executions := memstore.NewExecutionStore()
	exec := executor.New(crawlers, executions, crawl, log)

	tasks := memstore.NewTaskStore()
	presets := preset.NewService(memstore.NewPresetStore(), crawlers, log)
	sched := scheduler.New(tasks, crawlers, presets, exec, log, nil)
	presets.SetScheduler(sched)
	require.NoError(t, sched.Start(ctx))

	keywords := blacklist.NewService(memstore.NewKeywordStore("InvalidSyn"), log)
	require.NoError(t, keywords.Reload(ctx))

	recs := records.NewMemoryStore(
		&domain.Record{EntityType: "DEVICE_510K", EntityID: "1", DeviceName: "Skin analyzer", Manufacturer: "Canfield", RiskLevel: domain.RiskMedium},
		&domain.Record{EntityType: "DEVICE_510K", EntityID: "2", DeviceName: "Dental implant", Manufacturer: "Acme Dental Co., Ltd.", RiskLevel: domain.RiskMedium},
		&domain.Record{EntityType: "DEVICE_510K", EntityID: "3", DeviceName: "InvalidSyn probe", Manufacturer: "Other", RiskLevel: domain.RiskMedium},
	)
	judgments := memstore.NewJudgmentStore()
	pipe := pipeline.New(pipeline.Deps{
		Records:   recs,
		Blacklist: keywords,
		Classifier: classify.Func(func(_ context.Context, text string) (classify.Verdict, error) {
			return classify.Verdict{Related: strings.Contains(text, "Skin"), Confidence: 0.9}, nil
		}),
		Judgments: judgments,
		Tasks:     memstore.NewJudgeTaskStore(),
		Logger:    log,
	}, pipeline.Config{BatchInterval: -1})

	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(stopCtx)
		_ = pipe.Shutdown(stopCtx)
		_ = exec.Shutdown(stopCtx)
	})

	router := api.NewRouter(api.Services{
		Crawlers:  crawlers,
		Presets:   presets,
		Scheduler: sched,
		Executor:  exec,
		Monitor:   monitor.New(executions, tasks, crawlers),
		Pipeline:  pipe,
		Judgments: judgment.NewService(judgments, recs, log),
		Blacklist: keywords,
	}, api.RouterConfig{
		ServiceName: "regwatch",
		Version:     "test",
		CORSOrigins: []string{"http://dashboard.local"},
		Checks:      checks,
	}, log)
	return &testServer{router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]api.HealthCheck
		wantCode   int
		wantStatus api.HealthStatus
	}{
		{"no checks", nil, http.StatusOK, api.HealthStatusHealthy},
		{
			"redis down degrades",
			map[string]api.HealthCheck{"redis": {Ping: func(context.Context) error { return errors.New("refused") }}},
			http.StatusOK, api.HealthStatusDegraded,
		},
		{
			"database down is unhealthy",
			map[string]api.HealthCheck{"database": {
				Ping:     func(context.Context) error { return errors.New("refused") },
				Critical: true,
			}},
			http.StatusServiceUnavailable, api.HealthStatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, tt.checks)
			w := s.do(t, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantStatus, decode[api.HealthResponse](t, w).Status)
		})
	}
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/crawlers", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/crawlers", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCrawlers(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/crawlers?country=EU", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decode[map[string]any](t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/v1/crawlers/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/crawlers/US_510K/validate", map[string]any{"batchSize": 5000})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode[struct {
		Fields []domain.FieldError `json:"fields"`
	}](t, w).Fields
	require.NotEmpty(t, fields)
	assert.Equal(t, "batchSize", fields[0].Field)

	w = s.do(t, http.MethodPost, "/api/v1/crawlers/US_510K/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/crawlers/stats", nil)
	assert.EqualValues(t, 1, decode[domain.CrawlerStats](t, w).Disabled)
}

func TestPresets_CreateCopyList(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/presets", map[string]any{
		"crawler_name": "EU_Recall",
		"name":         "EU weekly",
		"parameters":   map[string]any{"searchKeywords": []string{"stent"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Preset](t, w)
	assert.Equal(t, "EU", created.CountryCode)
	assert.Equal(t, domain.DefaultPresetPriority, created.Priority)

	w = s.do(t, http.MethodPost, "/api/v1/presets/"+created.ID+"/copy", map[string]any{"name": "EU copy"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, decode[domain.Preset](t, w).Enabled)

	w = s.do(t, http.MethodGet, "/api/v1/presets?crawler_type=RECALL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[domain.Page[domain.Preset]](t, w).Total)

	w = s.do(t, http.MethodPost, "/api/v1/presets", map[string]any{
		"crawler_name": "EU_Recall", "name": "bad", "cron_expression": "not cron",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/presets?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTasks_Lifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"id":              "eu-daily",
		"crawler_name":    "EU_Recall",
		"parameters":      map[string]any{"searchKeywords": []string{"stent"}},
		"cron_expression": "0 2 * * *",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, decode[domain.TaskView](t, w).Scheduled)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/eu-daily/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.TaskPaused, decode[domain.TaskView](t, w).State)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/eu-daily/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/tasks/eu-daily/cron", map[string]any{"cron_expression": "every day"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/eu-daily/trigger", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	rec := decode[domain.ExecutionRecord](t, w)
	assert.True(t, rec.Manual)

	require.Eventually(t, func() bool {
		w = s.do(t, http.MethodGet, "/api/v1/executions?task_id=eu-daily&status=SUCCESS", nil)
		return w.Code == http.StatusOK && decode[domain.Page[domain.ExecutionRecord]](t, w).Total == 1
	}, 2*time.Second, 10*time.Millisecond)

	w = s.do(t, http.MethodGet, "/api/v1/tasks/eu-daily/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[domain.TaskStats](t, w).SuccessRuns)

	w = s.do(t, http.MethodDelete, "/api/v1/tasks/eu-daily", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/tasks/eu-daily", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/executions?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecutions_AllDuplicateReportsSuccess(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"id":              "kr-daily",
		"crawler_name":    "KR_Recall",
		"parameters":      map[string]any{"searchKeywords": []string{"stent"}},
		"cron_expression": "0 2 * * *",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/tasks/kr-daily/trigger", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode[domain.ExecutionRecord](t, w).ID
	require.NotEmpty(t, id)

	var body map[string]any
	require.Eventually(t, func() bool {
		w = s.do(t, http.MethodGet, "/api/v1/executions/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		body = decode[map[string]any](t, w)
		return body["status"] == string(domain.ExecutionNoNewData)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, true, body["success"])
	assert.InDelta(t, 50, body["skipped_count"], 0)
	assert.InDelta(t, 0, body["saved_count"], 0)

	w = s.do(t, http.MethodGet, "/api/v1/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAudit_PreviewStageConfirm(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/audit/preview", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[domain.AuditResult](t, w)
	assert.Equal(t, 3, preview.Total)
	assert.Equal(t, 1, preview.BlacklistFiltered)
	assert.Equal(t, 1, preview.AIKept)
	assert.Equal(t, 1, preview.AIDowngraded)

	w = s.do(t, http.MethodPost, "/api/v1/audit/stage", map[string]any{"audit_items": preview.Items})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode[map[string]any](t, w)["staged"])

	w = s.do(t, http.MethodGet, "/api/v1/judgments?module_type=DEVICE_DATA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[domain.Page[domain.PendingJudgment]](t, w)
	require.Equal(t, 3, page.Total)

	id := page.Items[0].ID
	w = s.do(t, http.MethodPost, "/api/v1/judgments/"+strconv.FormatInt(id, 10)+"/confirm", map[string]any{"operator": "alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/judgments/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/judgments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/judgments/batch-confirm", map[string]any{"ids": []int64{page.Items[1].ID, 999}})
	require.Equal(t, http.StatusOK, w.Code)
	batch := decode[domain.BatchResult](t, w)
	assert.Equal(t, 1, batch.Success)
	assert.Equal(t, 1, batch.Failed)

	w = s.do(t, http.MethodGet, "/api/v1/judgments/counts?module_type=DEVICE_DATA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["pending"])
}

func TestAudit_ExecuteAddsKeywords(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/audit/preview", map[string]any{"risk_level": "MEDIUM"})
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode[domain.AuditResult](t, w)

	w = s.do(t, http.MethodPost, "/api/v1/audit/execute", map[string]any{
		"audit_items":   preview.Items,
		"new_blacklist": []string{"Acme Dental"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[domain.ExecuteResult](t, w)
	assert.Equal(t, 1, result.Kept)
	assert.Equal(t, 2, result.Downgraded)
	assert.Equal(t, 1, result.KeywordsAdded)

	w = s.do(t, http.MethodGet, "/api/v1/blacklist", nil)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["count"])

	w = s.do(t, http.MethodPost, "/api/v1/audit/preview", map[string]any{"risk_level": "EXTREME"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAudit_AsyncTask(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/audit/tasks", map[string]any{"judge_all": true})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	taskID := decode[domain.AIJudgeTask](t, w).TaskID

	require.Eventually(t, func() bool {
		w = s.do(t, http.MethodGet, "/api/v1/audit/tasks/"+taskID, nil)
		return decode[domain.AIJudgeTask](t, w).Status == domain.JudgeCompleted
	}, 2*time.Second, 10*time.Millisecond)

	view := decode[struct {
		domain.AIJudgeTask
		Progress float64 `json:"progress"`
	}](t, w)
	assert.InDelta(t, 100.0, view.Progress, 0.001)
	assert.Equal(t, 1, view.BlacklistedCount)

	w = s.do(t, http.MethodPost, "/api/v1/audit/tasks/"+taskID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/audit/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[domain.Page[domain.AIJudgeTask]](t, w).Total)
}

func TestBlacklist(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/blacklist", map[string]any{"keywords": []string{"Globex", "invalidsyn"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["added"])

	w = s.do(t, http.MethodPost, "/api/v1/blacklist", map[string]any{"keywords": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/blacklist/GLOBEX", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/blacklist/GLOBEX", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
