package domain

// AuditItem is one classified candidate. Produced by a preview and never persisted as is.
type AuditItem struct {
	EntityType         string    `json:"entity_type"`
	EntityID           string    `json:"entity_id"`
	DeviceName         string    `json:"device_name,omitempty"`
	Manufacturer       string    `json:"manufacturer,omitempty"`
	BlacklistMatched   bool      `json:"blacklist_matched"`
	MatchedKeyword     string    `json:"matched_keyword,omitempty"`
	Related            *bool     `json:"related,omitempty"`
	Confidence         *float64  `json:"confidence,omitempty"`
	Category           string    `json:"category,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	SuggestedBlacklist []string  `json:"suggested_blacklist,omitempty"`
	SuggestedRiskLevel RiskLevel `json:"suggested_risk_level"`
	Remark             string    `json:"remark,omitempty"`
}

// IsRelated is false for blacklisted items and unrelated verdicts.
func (a *AuditItem) IsRelated() bool {
	return a.Related != nil && *a.Related
}

// AuditResult is the outcome of a preview.
type AuditResult struct {
	Total             int          `json:"total"`
	BlacklistFiltered int          `json:"blacklist_filtered"`
	AIJudged          int          `json:"ai_judged"`
	AIKept            int          `json:"ai_kept"`
	AIDowngraded      int          `json:"ai_downgraded"`
	Failed            int          `json:"failed"`
	Items             []*AuditItem `json:"audit_items"`
}

// ExecuteResult is the outcome of the direct execute variant.
type ExecuteResult struct {
	Kept          int `json:"kept_count"`
	Downgraded    int `json:"downgraded_count"`
	Failed        int `json:"failed_count"`
	KeywordsAdded int `json:"keywords_added"`
}
