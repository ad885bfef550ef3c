package domain

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the outcome state of one run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSuccess   ExecutionStatus = "SUCCESS"
	ExecutionNoNewData ExecutionStatus = "NO_NEW_DATA"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Succeeded reports whether the status counts as a successful run.
func (s ExecutionStatus) Succeeded() bool {
	return s == ExecutionSuccess || s == ExecutionNoNewData
}

// Finished reports whether the status is terminal.
func (s ExecutionStatus) Finished() bool {
	return s != ExecutionRunning
}

// Manual trigger sources.
const (
	TriggeredBySchedule = "SCHEDULER"
	TriggeredByRetry    = "RETRY"
)

// ExecutionRecord is one append-only run of a task. Params is the snapshot the run used.
type ExecutionRecord struct {
	ID              string          `db:"id"               json:"id"`
	TaskID          string          `db:"task_id"          json:"task_id"`
	CrawlerName     string          `db:"crawler_name"     json:"crawler_name"`
	BatchNo         string          `db:"batch_no"         json:"batch_no"`
	Status          ExecutionStatus `db:"status"           json:"status"`
	StartedAt       time.Time       `db:"started_at"       json:"started_at"`
	CompletedAt     *time.Time      `db:"completed_at"     json:"completed_at,omitempty"`
	DurationMs      *int64          `db:"duration_ms"      json:"duration_ms,omitempty"`
	SavedCount      int             `db:"saved_count"      json:"saved_count"`
	SkippedCount    int             `db:"skipped_count"    json:"skipped_count"`
	ErrorMessage    *string         `db:"error_message"    json:"error_message,omitempty"`
	TriggeredBy     string          `db:"triggered_by"     json:"triggered_by"`
	Manual          bool            `db:"manual"           json:"manual"`
	Params          Params          `db:"params"           json:"params"`
	ExecutionServer string          `db:"execution_server" json:"execution_server,omitempty"`
}

// Success is what callers see: NO_NEW_DATA is a success.
func (r *ExecutionRecord) Success() bool {
	return r.Status.Succeeded()
}

// MarshalJSON adds the derived success flag so an all-duplicate crawl reads as a success.
func (r ExecutionRecord) MarshalJSON() ([]byte, error) {
	type record ExecutionRecord
	return json.Marshal(struct {
		record
		Success bool `json:"success"`
	}{record: record(r), Success: r.Status.Succeeded()})
}

// ExecutionFilter narrows history queries. Zero values match everything.
type ExecutionFilter struct {
	CrawlerName string
	TaskID      string
	Status      ExecutionStatus
	From        *time.Time
	To          *time.Time
}

// TaskStats aggregates one task's history.
type TaskStats struct {
	TaskID        string             `json:"task_id"`
	TotalRuns     int                `json:"total_runs"`
	SuccessRuns   int                `json:"success_runs"`
	NoNewDataRuns int                `json:"no_new_data_runs"`
	FailedRuns    int                `json:"failed_runs"`
	SuccessRate   float64            `json:"success_rate"`
	AvgDurationMs float64            `json:"avg_duration_ms"`
	TotalSaved    int64              `json:"total_saved"`
	TotalSkipped  int64              `json:"total_skipped"`
	LastRun       *ExecutionRecord   `json:"last_run,omitempty"`
	Recent        []*ExecutionRecord `json:"recent"`
	Scheduled     bool               `json:"scheduled"`
	Paused        bool               `json:"paused"`
	NextRun       *time.Time         `json:"next_run,omitempty"`
}

// CrawlerStatistics aggregates one crawler's history.
type CrawlerStatistics struct {
	CrawlerName   string           `json:"crawler_name"`
	Enabled       bool             `json:"enabled"`
	TotalRuns     int              `json:"total_runs"`
	SuccessRuns   int              `json:"success_runs"`
	FailedRuns    int              `json:"failed_runs"`
	SuccessRate   float64          `json:"success_rate"`
	AvgDurationMs float64          `json:"avg_duration_ms"`
	TotalSaved    int64            `json:"total_saved"`
	LastRun       *ExecutionRecord `json:"last_run,omitempty"`
}

// SystemOverview is the system-wide snapshot.
type SystemOverview struct {
	TotalTasks         int                     `json:"total_tasks"`
	ActiveTasks        int                     `json:"active_tasks"`
	PausedTasks        int                     `json:"paused_tasks"`
	TotalRuns          int                     `json:"total_runs"`
	RunningCount       int                     `json:"running_count"`
	RunsToday          int                     `json:"runs_today"`
	SuccessRate        float64                 `json:"success_rate"`
	FailureRateLast24h float64                 `json:"failure_rate_last_24h"`
	ByStatus           map[ExecutionStatus]int `json:"by_status"`
	ByCrawler          map[string]int          `json:"by_crawler"`
}

// ExecutionCounts is the raw aggregate repositories compute.
type ExecutionCounts struct {
	Total         int
	Success       int
	NoNewData     int
	Failed        int
	Cancelled     int
	Running       int
	AvgDurationMs float64
	TotalSaved    int64
	TotalSkipped  int64
}

// Finished is the number of runs with a terminal status.
func (c ExecutionCounts) Finished() int {
	return c.Success + c.NoNewData + c.Failed + c.Cancelled
}

// SuccessRate is successful over finished runs.
func (c ExecutionCounts) SuccessRate() float64 {
	finished := c.Success + c.NoNewData + c.Failed
	if finished == 0 {
		return 0
	}
	return float64(c.Success+c.NoNewData) / float64(finished)
}

// FailureRate is failed over finished runs, cancellations excluded.
func (c ExecutionCounts) FailureRate() float64 {
	finished := c.Success + c.NoNewData + c.Failed
	if finished == 0 {
		return 0
	}
	return float64(c.Failed) / float64(finished)
}
