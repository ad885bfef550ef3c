package domain

// FieldType is the value type accepted by a crawler parameter.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldInt        FieldType = "int"
	FieldBool       FieldType = "bool"
	FieldDate       FieldType = "date"
	FieldStringList FieldType = "stringList"
)

// DateLayout is the parameter date format (yyyyMMdd).
const DateLayout = "20060102"

// ParamField describes one accepted parameter.
type ParamField struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ParamSchema is the ordered parameter list of a crawler. Immutable once registered.
type ParamSchema struct {
	Fields []ParamField `json:"fields"`
}

// Field looks a parameter up by name.
func (s ParamSchema) Field(name string) (ParamField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ParamField{}, false
}

// Defaults returns the declared default of every field that has one.
func (s ParamSchema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, f := range s.Fields {
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// CrawlerDefinition is one registered crawler job.
type CrawlerDefinition struct {
	Name                 string      `json:"name"`
	CountryCode          string      `json:"country_code"`
	CrawlerType          string      `json:"crawler_type"`
	Description          string      `json:"description"`
	Enabled              bool        `json:"enabled"`
	SupportsKeywordBatch bool        `json:"supports_keyword_batch"`
	SupportsDateRange    bool        `json:"supports_date_range"`
	Schema               ParamSchema `json:"schema"`
}

// CrawlerStats summarizes the registry.
type CrawlerStats struct {
	Total     int            `json:"total"`
	Enabled   int            `json:"enabled"`
	Disabled  int            `json:"disabled"`
	ByCountry map[string]int `json:"by_country"`
	ByType    map[string]int `json:"by_type"`
}

// Params is a parameter set keyed by field name.
type Params map[string]any

// Clone returns a shallow copy; list values are copied too.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		switch list := v.(type) {
		case []string:
			out[k] = append([]string(nil), list...)
		case []any:
			out[k] = append([]any(nil), list...)
		default:
			out[k] = v
		}
	}
	return out
}
