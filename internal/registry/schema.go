// Package registry holds the crawler catalogue and the parameter schema of every crawler.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

const datePattern = "^([0-9]{8})?$"

type compiledSchema struct {
	source   domain.ParamSchema
	compiled *jsonschema.Schema
}

// SchemaRegistry maps crawler names to their parameter schemas. Safe for concurrent use.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*compiledSchema
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*compiledSchema)}
}

// Register compiles and stores schema for name. Registering an existing name keeps the first schema.
func (r *SchemaRegistry) Register(name string, schema domain.ParamSchema) error {
	r.mu.RLock()
	_, exists := r.schemas[name]
	r.mu.RUnlock()
	if exists {
		return nil
	}

	compiled, err := compile(name, schema)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists = r.schemas[name]; !exists {
		r.schemas[name] = &compiledSchema{source: schema, compiled: compiled}
	}
	return nil
}

// Schema returns the registered schema for name.
func (r *SchemaRegistry) Schema(name string) (domain.ParamSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return domain.ParamSchema{}, false
	}
	return s.source, true
}

// Validate checks params against the schema of name. It returns a *domain.ValidationError
// listing every bad field, or a not-found error for an unknown name.
func (r *SchemaRegistry) Validate(name string, params domain.Params) error {
	r.mu.RLock()
	s, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return domain.NotFoundf("crawler %s", name)
	}

	verr := &domain.ValidationError{}
	for _, f := range s.source.Fields {
		if v, present := params[f.Name]; f.Required && (!present || v == nil) {
			verr.Add(f.Name, "is required")
		}
	}
	unknown := make([]string, 0)
	for k := range params {
		if _, known := s.source.Field(k); !known {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		verr.Add(k, "unknown parameter")
	}

	instance, err := toInstance(params)
	if err != nil {
		verr.Add("parameters", "not encodable: %v", err)
		return verr
	}
	if err = s.compiled.Validate(instance); err != nil {
		var schemaErr *jsonschema.ValidationError
		if !errors.As(err, &schemaErr) {
			return fmt.Errorf("validate %s: %w", name, err)
		}
		collectFieldErrors(schemaErr, verr)
	}

	for _, f := range s.source.Fields {
		if f.Type != domain.FieldDate || verr.Has(f.Name) {
			continue
		}
		if v, isString := params[f.Name].(string); isString && v != "" {
			if _, perr := time.Parse(domain.DateLayout, v); perr != nil {
				verr.Add(f.Name, "is not a valid yyyyMMdd date")
			}
		}
	}
	return verr.OrNil()
}

// Resolve fills schema defaults into a copy of params and validates the result.
func (r *SchemaRegistry) Resolve(name string, params domain.Params) (domain.Params, error) {
	schema, ok := r.Schema(name)
	if !ok {
		return nil, domain.NotFoundf("crawler %s", name)
	}
	out := params.Clone()
	for k, v := range schema.Defaults() {
		if _, set := out[k]; !set {
			out[k] = v
		}
	}
	if err := r.Validate(name, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Names lists the registered crawler names in order.
func (r *SchemaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func toInstance(params domain.Params) (any, error) {
	if params == nil {
		params = domain.Params{}
	}
	raw, err := json.Marshal(map[string]any(params))
	if err != nil {
		return nil, err
	}
	var v any
	if err = json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// collectFieldErrors flattens the leaf causes of a schema error into field errors.
func collectFieldErrors(e *jsonschema.ValidationError, verr *domain.ValidationError) {
	if len(e.Causes) > 0 {
		for _, c := range e.Causes {
			collectFieldErrors(c, verr)
		}
		return
	}
	field := strings.TrimPrefix(e.InstanceLocation, "/")
	if i := strings.IndexByte(field, '/'); i >= 0 {
		field = field[:i]
	}
	// Missing and unknown fields are reported before schema validation runs.
	if field == "" || verr.Has(field) {
		return
	}
	verr.Add(field, "%s", e.Message)
}

func compile(name string, schema domain.ParamSchema) (*jsonschema.Schema, error) {
	properties := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		prop, err := fieldSchema(f)
		if err != nil {
			return nil, err
		}
		properties[f.Name] = prop
	}
	doc, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
	})
	if err != nil {
		return nil, err
	}

	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err = compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func fieldSchema(f domain.ParamField) (map[string]any, error) {
	prop := map[string]any{}
	switch f.Type {
	case domain.FieldString:
		prop["type"] = []string{"string", "null"}
	case domain.FieldInt:
		prop["type"] = []string{"integer", "null"}
	case domain.FieldBool:
		prop["type"] = []string{"boolean", "null"}
	case domain.FieldDate:
		prop["type"] = []string{"string", "null"}
		prop["pattern"] = datePattern
	case domain.FieldStringList:
		prop["type"] = []string{"array", "null"}
		prop["items"] = map[string]any{"type": "string"}
	default:
		return nil, fmt.Errorf("field %s: unsupported type %q", f.Name, f.Type)
	}
	if f.Min != nil {
		prop["minimum"] = *f.Min
	}
	if f.Max != nil {
		prop["maximum"] = *f.Max
	}
	if len(f.Enum) > 0 {
		enum := make([]any, 0, len(f.Enum)+1)
		for _, e := range f.Enum {
			enum = append(enum, e)
		}
		prop["enum"] = append(enum, nil)
	}
	return prop, nil
}
