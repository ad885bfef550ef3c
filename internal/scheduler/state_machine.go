package scheduler

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

var validTransitions = map[domain.TaskState][]domain.TaskState{
	domain.TaskActive: {domain.TaskPaused},
	domain.TaskPaused: {domain.TaskActive},
}

// ValidateStateTransition checks if a task may move from one state to another.
func ValidateStateTransition(from, to domain.TaskState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state %s: %w", from, domain.ErrInvalidTransition)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%s to %s: %w", from, to, domain.ErrInvalidTransition)
}
