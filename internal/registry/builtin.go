package registry

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

const (
	defaultMaxRecords = -1
	defaultBatchSize  = 100
	maxBatchSize      = 1000
)

func ptr(v float64) *float64 { return &v }

func keywordList(name, description string) domain.ParamField {
	return domain.ParamField{Name: name, Type: domain.FieldStringList, Description: description}
}

// commonFields are accepted by every crawler.
func commonFields() []domain.ParamField {
	return []domain.ParamField{
		{
			Name: "maxRecords", Type: domain.FieldInt, Min: ptr(-1), Default: defaultMaxRecords,
			Description: "maximum records to fetch, -1 for all",
		},
		{
			Name: "batchSize", Type: domain.FieldInt, Min: ptr(1), Max: ptr(maxBatchSize), Default: defaultBatchSize,
			Description: "records per upstream request",
		},
		{Name: "recentDays", Type: domain.FieldInt, Min: ptr(0), Description: "only fetch the last N days"},
		{Name: "dateFrom", Type: domain.FieldDate, Description: "start date, yyyyMMdd"},
		{Name: "dateTo", Type: domain.FieldDate, Description: "end date, yyyyMMdd"},
	}
}

func definition(
	name, country, crawlerType, description string, keywordBatch bool, fields ...domain.ParamField,
) domain.CrawlerDefinition {
	return domain.CrawlerDefinition{
		Name:                 name,
		CountryCode:          country,
		CrawlerType:          crawlerType,
		Description:          description,
		Enabled:              true,
		SupportsKeywordBatch: keywordBatch,
		SupportsDateRange:    true,
		Schema:               domain.ParamSchema{Fields: append(fields, commonFields()...)},
	}
}

// Builtin returns the crawler catalogue regwatch ships with.
func Builtin() []domain.CrawlerDefinition {
	return []domain.CrawlerDefinition{
		definition("US_510K", "US", "510K", "US 510(k) device clearances", true,
			keywordList("deviceNames", "search by device name"),
			keywordList("applicants", "search by applicant or company"),
			keywordList("tradeNames", "search by brand or trade name"),
		),
		definition("US_Recall", "US", "RECALL", "US device recalls", true,
			keywordList("brandNames", "search recalls by brand"),
			keywordList("recallingFirms", "search by recalling firm"),
			keywordList("productDescriptions", "search product descriptions"),
		),
		definition("US_Registration", "US", "REGISTRATION", "US establishment registrations and listings", true,
			keywordList("manufacturerNames", "search by manufacturer"),
			keywordList("deviceNames", "search by device name"),
			keywordList("proprietaryNames", "search by proprietary name"),
		),
		definition("US_Event", "US", "EVENT", "US adverse event reports", true,
			keywordList("brandNames", "search events by brand"),
			keywordList("manufacturerNames", "search by manufacturer"),
			keywordList("genericNames", "search by generic name"),
		),
		definition("US_Guidance", "US", "GUIDANCE", "US FDA guidance documents", false),
		definition("US_CustomsCase", "US", "CUSTOMS", "US customs rulings", true,
			keywordList("hsCodeKeywords", "search rulings by HS code"),
			keywordList("rulingKeywords", "search ruling text"),
		),
		definition("EU_Recall", "EU", "RECALL", "EU device recalls", true,
			keywordList("searchKeywords", "search recall data"),
		),
		definition("EU_Registration", "EU", "REGISTRATION", "EU device registrations", true,
			keywordList("tradeNames", "search by trade name"),
			keywordList("manufacturerNames", "search by manufacturer"),
			keywordList("riskClasses", "search by risk class (I, IIa, IIb, III)"),
		),
		definition("EU_Guidance", "EU", "GUIDANCE", "EU medical device news", false),
		definition("EU_CustomsCase", "EU", "CUSTOMS", "EU TARIC customs data", true,
			keywordList("taricCodes", "TARIC codes, queried in groups of 20"),
		),
		definition("KR_Recall", "KR", "RECALL", "KR MFDS recalls", true,
			keywordList("searchKeywords", "search recall data, Korean supported"),
		),
	}
}

// RegisterBuiltin registers the builtin catalogue into r.
func RegisterBuiltin(r *CrawlerRegistry) error {
	for _, def := range Builtin() {
		if _, err := r.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}
