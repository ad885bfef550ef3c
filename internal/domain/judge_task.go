package domain

import "time"

// JudgeTaskStatus is the state of an asynchronous judgment run.
type JudgeTaskStatus string

const (
	JudgePending   JudgeTaskStatus = "PENDING"
	JudgeRunning   JudgeTaskStatus = "RUNNING"
	JudgeCompleted JudgeTaskStatus = "COMPLETED"
	JudgeFailed    JudgeTaskStatus = "FAILED"
	JudgeCancelled JudgeTaskStatus = "CANCELLED"
)

// Finished reports whether no further work happens for the task.
func (s JudgeTaskStatus) Finished() bool {
	return s == JudgeCompleted || s == JudgeFailed || s == JudgeCancelled
}

// JudgeTaskType names the kind of async run.
const JudgeTaskTypeRecords = "RECORD_JUDGMENT"

// AIJudgeTask tracks one asynchronous classification run.
type AIJudgeTask struct {
	TaskID           string          `db:"task_id"           json:"task_id"`
	TaskType         string          `db:"task_type"         json:"task_type"`
	ModuleType       string          `db:"module_type"       json:"module_type"`
	Status           JudgeTaskStatus `db:"status"            json:"status"`
	FilterParams     RecordFilter    `db:"filter_params"     json:"filter_params"`
	TotalCount       int             `db:"total_count"       json:"total_count"`
	ProcessedCount   int             `db:"processed_count"   json:"processed_count"`
	RelatedCount     int             `db:"related_count"     json:"related_count"`
	UnrelatedCount   int             `db:"unrelated_count"   json:"unrelated_count"`
	FailedCount      int             `db:"failed_count"      json:"failed_count"`
	BlacklistedCount int             `db:"blacklisted_count" json:"blacklisted_count"`
	ErrorMessage     *string         `db:"error_message"     json:"error_message,omitempty"`
	CreatedAt        time.Time       `db:"created_at"        json:"created_at"`
	StartTime        *time.Time      `db:"start_time"        json:"start_time,omitempty"`
	EndTime          *time.Time      `db:"end_time"          json:"end_time,omitempty"`
	UpdatedAt        time.Time       `db:"updated_at"        json:"updated_at"`
}

// Progress is processed over total as a percentage.
func (t *AIJudgeTask) Progress() float64 {
	if t.TotalCount == 0 {
		if t.Status == JudgeCompleted {
			return 100
		}
		return 0
	}
	return float64(t.ProcessedCount) * 100 / float64(t.TotalCount)
}

// BatchProgress is the counter delta of one processed batch.
type BatchProgress struct {
	Processed   int
	Related     int
	Unrelated   int
	Failed      int
	Blacklisted int
}
