package trip

import (
	"context"

	"github.com/google/uuid"
)

// TripRepository defines the persistence contract for trip aggregates.
type TripRepository interface {
	// FindByID retrieves a trip by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Trip, error)

	// FindByNumber retrieves a trip by its human-readable trip number.
	FindByNumber(ctx context.Context, number string) (*Trip, error)

	// FindByRiderID retrieves trips belonging to a specific rider with pagination.
	FindByRiderID(ctx context.Context, riderID uuid.UUID, page, limit int) ([]*Trip, int64, error)

	// ListAll retrieves all trips with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Trip, int64, error)

	// CountByStatus returns trip counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new trip.
	Save(ctx context.Context, trip *Trip) error

	// Update persists changes to an existing trip with optimistic locking.
	Update(ctx context.Context, trip *Trip) error
}
