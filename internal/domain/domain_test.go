package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

func TestParams_ScanValue(t *testing.T) {
	t.Parallel()

	in := domain.Params{"keywords": []any{"a", "b"}, "maxRecords": float64(10)}
	v, err := in.Value()
	require.NoError(t, err)

	var out domain.Params
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var empty domain.Params
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)

	assert.Error(t, out.Scan(42))
}

func TestParams_CloneCopiesLists(t *testing.T) {
	t.Parallel()

	in := domain.Params{"k": []string{"x"}}
	out := in.Clone()
	out["k"].([]string)[0] = "y"
	assert.Equal(t, "x", in["k"].([]string)[0])
}

func TestValidationError_OrNil(t *testing.T) {
	t.Parallel()

	ve := &domain.ValidationError{}
	require.NoError(t, ve.OrNil())

	ve.Add("batchSize", "must be <= %d", 1000)
	err := ve.OrNil()
	require.Error(t, err)
	assert.True(t, ve.Has("batchSize"))
	assert.Contains(t, err.Error(), "batchSize: must be <= 1000")
}

func TestExecutionRecord_JSONCarriesSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status domain.ExecutionStatus
		want   bool
	}{
		{domain.ExecutionSuccess, true},
		{domain.ExecutionNoNewData, true},
		{domain.ExecutionFailed, false},
		{domain.ExecutionRunning, false},
	}
	for _, tt := range tests {
		raw, err := json.Marshal(&domain.ExecutionRecord{ID: "e1", Status: tt.status, SkippedCount: 50})
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.Equal(t, tt.want, out["success"], tt.status)
		assert.Equal(t, "e1", out["id"])
		assert.InDelta(t, 50, out["skipped_count"], 0)
	}
}

func TestExecutionCounts_Rates(t *testing.T) {
	t.Parallel()

	c := domain.ExecutionCounts{Success: 2, NoNewData: 1, Failed: 1, Cancelled: 3}
	assert.InDelta(t, 0.75, c.SuccessRate(), 1e-9)
	assert.InDelta(t, 0.25, c.FailureRate(), 1e-9)
	assert.Equal(t, 7, c.Finished())
	assert.Zero(t, domain.ExecutionCounts{}.SuccessRate())
}

func TestRecordFilter_Normalize(t *testing.T) {
	t.Parallel()

	f := domain.RecordFilter{}.Normalize()
	assert.Equal(t, domain.RiskMedium, f.RiskLevel)
	assert.Equal(t, domain.DefaultPreviewLimit, f.Limit)

	f = domain.RecordFilter{Limit: 10, JudgeAll: true}.Normalize()
	assert.Zero(t, f.Limit)
}

func TestRecordFilter_Matches(t *testing.T) {
	t.Parallel()

	r := &domain.Record{EntityType: "Device510K", Country: "US", RiskLevel: domain.RiskMedium}
	assert.True(t, domain.RecordFilter{EntityTypes: []string{"device510k"}, RiskLevel: domain.RiskMedium}.Matches(r))
	assert.False(t, domain.RecordFilter{Country: "EU"}.Matches(r))
	assert.False(t, domain.RecordFilter{RiskLevel: domain.RiskHigh}.Matches(r))
}

func TestRecord_SearchText(t *testing.T) {
	t.Parallel()

	r := &domain.Record{DeviceName: " Scanner ", Description: "skin analyzer"}
	assert.Equal(t, "Scanner skin analyzer", r.SearchText())
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	p := domain.Paginate([]int{1, 2, 3, 4, 5}, domain.PageRequest{Page: 2, Size: 2})
	assert.Equal(t, []int{3, 4}, p.Items)
	assert.Equal(t, 5, p.Total)

	p = domain.Paginate([]int{1}, domain.PageRequest{Page: 9, Size: 2})
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
}

func TestAIJudgeTask_Progress(t *testing.T) {
	t.Parallel()

	task := &domain.AIJudgeTask{TotalCount: 200, ProcessedCount: 50}
	assert.InDelta(t, 25.0, task.Progress(), 1e-9)
	assert.InDelta(t, 100.0, (&domain.AIJudgeTask{Status: domain.JudgeCompleted}).Progress(), 1e-9)
}
