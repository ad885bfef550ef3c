package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported JSONB source type %T", value)
	}
}

// Scan implements sql.Scanner for JSONB columns.
func (p *Params) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*p = Params{}
		return nil
	}
	return json.Unmarshal(data, p)
}

// Value implements driver.Valuer.
func (p Params) Value() (driver.Value, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// StringList is a JSONB array of strings.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner so a filter can be stored as JSONB.
func (f *RecordFilter) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*f = RecordFilter{}
		return nil
	}
	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer.
func (f RecordFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (d *JudgeDetail) Scan(value any) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*d = JudgeDetail{}
		return nil
	}
	return json.Unmarshal(data, d)
}

// Value implements driver.Valuer.
func (d JudgeDetail) Value() (driver.Value, error) {
	return json.Marshal(d)
}
