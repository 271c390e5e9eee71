package repository

import (
	"context"

	"transit/internal/domain"
)

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	// Returns ErrDuplicate if the reference id is already taken.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetByIDForUpdate retrieves a trip by ID and locks its row until the
	// surrounding transaction ends. Concurrent callers for the same trip block.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error)

	// GetByReferenceID retrieves a trip by its human readable reference.
	GetByReferenceID(ctx context.Context, referenceID string) (*domain.Trip, error)

	// ExistsByReferenceID reports whether a trip already uses referenceID.
	ExistsByReferenceID(ctx context.Context, referenceID string) (bool, error)

	// List returns one page of trips matching filter, most recently updated
	// first, along with the total number of matches.
	List(ctx context.Context, filter domain.TripFilter, limit, offset int) ([]*domain.Trip, int, error)

	// Update updates an existing trip.
	Update(ctx context.Context, trip *domain.Trip) error

	// Delete removes a trip.
	Delete(ctx context.Context, id string) error
}
