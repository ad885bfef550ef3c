package domain

import "time"

// Preset defaults.
const (
	DefaultPresetPriority = 5
	DefaultPresetTimeout  = 30
)

// Preset is a named, reusable parameter set bound to a crawler.
type Preset struct {
	ID             string    `db:"id"              json:"id"`
	CrawlerName    string    `db:"crawler_name"    json:"crawler_name"`
	Name           string    `db:"name"            json:"name"`
	CountryCode    string    `db:"country_code"    json:"country_code"`
	Parameters     Params    `db:"parameters"      json:"parameters"`
	CronExpression string    `db:"cron_expression" json:"cron_expression,omitempty"`
	Description    string    `db:"description"     json:"description,omitempty"`
	Enabled        bool      `db:"enabled"         json:"enabled"`
	Priority       int       `db:"priority"        json:"priority"`
	TimeoutMinutes int       `db:"timeout_minutes" json:"timeout_minutes"`
	CreatedBy      string    `db:"created_by"      json:"created_by,omitempty"`
	UpdatedBy      string    `db:"updated_by"      json:"updated_by,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// PresetFilter narrows preset listings. Zero values match everything.
type PresetFilter struct {
	CrawlerName string
	CountryCode string
	CrawlerType string
	Enabled     *bool
	PageRequest
}
