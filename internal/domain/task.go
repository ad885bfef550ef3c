package domain

import "time"

// TaskState is the scheduling state of a ScheduledTask.
type TaskState string

const (
	TaskActive TaskState = "ACTIVE"
	TaskPaused TaskState = "PAUSED"
)

// ScheduledTask is a live cron schedule. A task attached to a preset shares its id;
// inline tasks carry their own crawler name and parameters.
type ScheduledTask struct {
	ID             string     `db:"id"              json:"id"`
	PresetID       *string    `db:"preset_id"       json:"preset_id,omitempty"`
	CrawlerName    string     `db:"crawler_name"    json:"crawler_name,omitempty"`
	Parameters     Params     `db:"parameters"      json:"parameters,omitempty"`
	CronExpression string     `db:"cron_expression" json:"cron_expression"`
	State          TaskState  `db:"state"           json:"state"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
	PausedAt       *time.Time `db:"paused_at"       json:"paused_at,omitempty"`
}

// TaskView decorates a task with live timer information.
type TaskView struct {
	ScheduledTask
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}
