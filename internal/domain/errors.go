// Package domain holds the types shared by every regwatch component.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for unknown crawler, preset, task, execution or judgment ids.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict is returned when a task already has a RUNNING execution.
	ErrConcurrencyConflict = errors.New("task already running")
	// ErrCrawlerDisabled blocks scheduled and manual triggers of a disabled crawler.
	ErrCrawlerDisabled = errors.New("crawler disabled")
	// ErrAlreadyFinished is returned when cancelling a COMPLETED or FAILED judge task.
	ErrAlreadyFinished = errors.New("task already finished")
	// ErrInvalidTransition is returned for a disallowed state change.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// FieldError describes one invalid parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field error found for one request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns nil when no field errors were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Has reports whether field has at least one error.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// NotFoundf wraps ErrNotFound with a description of what was missing.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
