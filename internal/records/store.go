// Package records is the persistence collaborator the classification pipeline
// reads candidates from and writes confirmed risk levels to.
package records

import (
	"context"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// Store is keyed by (entityType, entityID).
type Store interface {
	// FindByCriteria returns matching records ordered by key. A zero Limit returns every match.
	FindByCriteria(ctx context.Context, filter domain.RecordFilter) ([]*domain.Record, error)
	Get(ctx context.Context, entityType, entityID string) (*domain.Record, error)
	Save(ctx context.Context, record *domain.Record) error
	SaveAll(ctx context.Context, records []*domain.Record) error
}
