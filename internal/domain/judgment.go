package domain

import "time"

// Module types of pending judgments.
const (
	ModuleDeviceData = "DEVICE_DATA"
	ModuleCertNews   = "CERT_NEWS"
)

// ReportModules are the modules covered by the daily pending report.
var ReportModules = []string{ModuleDeviceData, ModuleCertNews}

// PendingJudgment is a staged suggestion awaiting operator confirmation.
// Unique on (ModuleType, EntityType, EntityID).
type PendingJudgment struct {
	ID                  int64           `db:"id"                    json:"id"`
	ModuleType          string          `db:"module_type"           json:"module_type"`
	EntityType          string          `db:"entity_type"           json:"entity_type"`
	EntityID            string          `db:"entity_id"             json:"entity_id"`
	JudgeResult         JudgeDetail     `db:"judge_result"          json:"judge_result"`
	SuggestedRiskLevel  RiskLevel       `db:"suggested_risk_level"  json:"suggested_risk_level"`
	SuggestedRemark     string          `db:"suggested_remark"      json:"suggested_remark"`
	BlacklistKeywords   StringList      `db:"blacklist_keywords"    json:"blacklist_keywords"`
	FilteredByBlacklist bool            `db:"filtered_by_blacklist" json:"filtered_by_blacklist"`
	CreatedAt           time.Time       `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"            json:"updated_at"`
	ExpiresAt           time.Time       `db:"expires_at"            json:"expires_at"`
}

// JudgeDetail is the classifier evidence kept with a pending judgment.
type JudgeDetail struct {
	BlacklistMatched   bool     `json:"blacklist_matched"`
	MatchedKeyword     string   `json:"matched_keyword,omitempty"`
	Related            *bool    `json:"related,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
	Category           string   `json:"category,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	SuggestedBlacklist []string `json:"suggested_blacklist,omitempty"`
}

// DetailOf extracts the evidence of an audit item.
func DetailOf(item *AuditItem) JudgeDetail {
	return JudgeDetail{
		BlacklistMatched:   item.BlacklistMatched,
		MatchedKeyword:     item.MatchedKeyword,
		Related:            item.Related,
		Confidence:         item.Confidence,
		Category:           item.Category,
		Reason:             item.Reason,
		SuggestedBlacklist: item.SuggestedBlacklist,
	}
}

// JudgmentKey is the uniqueness key of a pending judgment.
type JudgmentKey struct {
	ModuleType string
	EntityType string
	EntityID   string
}

// Key returns the uniqueness key of j.
func (j *PendingJudgment) Key() JudgmentKey {
	return JudgmentKey{ModuleType: j.ModuleType, EntityType: j.EntityType, EntityID: j.EntityID}
}

// BatchResult summarizes a batch confirm.
type BatchResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// JudgmentStats summarizes the pending rows of one module.
type JudgmentStats struct {
	ModuleType          string   `json:"module_type"`
	Total               int      `json:"total"`
	FilteredByBlacklist int      `json:"filtered_by_blacklist"`
	HighRisk            int      `json:"high_risk"`
	BlacklistKeywords   []string `json:"blacklist_keywords"`
}
