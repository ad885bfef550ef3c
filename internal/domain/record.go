package domain

import "strings"

// RiskLevel is the stored risk classification of a record.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Valid reports whether r is a known level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

// Record is a candidate regulatory record as the pipeline sees it.
type Record struct {
	EntityType   string    `json:"entity_type"            mapstructure:"entity_type"`
	EntityID     string    `json:"entity_id"              mapstructure:"entity_id"`
	Country      string    `json:"country,omitempty"      mapstructure:"country"`
	SourceName   string    `json:"source_name,omitempty"  mapstructure:"source_name"`
	DeviceName   string    `json:"device_name,omitempty"  mapstructure:"device_name"`
	Manufacturer string    `json:"manufacturer,omitempty" mapstructure:"manufacturer"`
	Description  string    `json:"description,omitempty"  mapstructure:"description"`
	RiskLevel    RiskLevel `json:"risk_level"             mapstructure:"risk_level"`
	Remark       string    `json:"remark,omitempty"       mapstructure:"remark"`
}

// Key is the store key of the record.
func (r *Record) Key() string {
	return r.EntityType + ":" + r.EntityID
}

// SearchText joins the fields blacklist keywords are matched against.
func (r *Record) SearchText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{r.DeviceName, r.Manufacturer, r.Description} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// DefaultPreviewLimit caps a preview that neither sets a limit nor asks to judge all.
const DefaultPreviewLimit = 50

// RecordFilter selects candidate records for classification.
type RecordFilter struct {
	EntityTypes []string  `json:"entity_types,omitempty"`
	Country     string    `json:"country,omitempty"`
	RiskLevel   RiskLevel `json:"risk_level,omitempty"`
	SourceName  string    `json:"source_name,omitempty"`
	Limit       int       `json:"limit,omitempty"`
	JudgeAll    bool      `json:"judge_all,omitempty"`
}

// Normalize fills in the MEDIUM risk level and the preview limit. JudgeAll clears the limit.
func (f RecordFilter) Normalize() RecordFilter {
	if f.RiskLevel == "" {
		f.RiskLevel = RiskMedium
	}
	if f.JudgeAll {
		f.Limit = 0
	} else if f.Limit <= 0 {
		f.Limit = DefaultPreviewLimit
	}
	return f
}

// Matches reports whether r satisfies the filter, ignoring Limit.
func (f RecordFilter) Matches(r *Record) bool {
	if len(f.EntityTypes) > 0 {
		found := false
		for _, t := range f.EntityTypes {
			if strings.EqualFold(t, r.EntityType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Country != "" && !strings.EqualFold(f.Country, r.Country) {
		return false
	}
	if f.RiskLevel != "" && f.RiskLevel != r.RiskLevel {
		return false
	}
	if f.SourceName != "" && f.SourceName != r.SourceName {
		return false
	}
	return true
}
