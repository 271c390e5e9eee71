package repository

import (
	"context"
	"time"

	"transit/internal/domain"
)

// UserTripRepository defines the persistence operations for user trips.
type UserTripRepository interface {
	// Create persists a new user trip.
	// Returns ErrDuplicate if the user already holds an active seat on the trip.
	Create(ctx context.Context, userTrip *domain.UserTrip) error

	// GetByID retrieves a user trip by ID.
	GetByID(ctx context.Context, id string) (*domain.UserTrip, error)

	// CountByTrip counts user trips of any status for a trip.
	CountByTrip(ctx context.Context, tripID string) (int, error)

	// CountByTripAndStatus counts user trips with the given status for a trip.
	CountByTripAndStatus(ctx context.Context, tripID string, status domain.UserTripStatus) (int, error)

	// HasActive reports whether the user holds an IN_PROGRESS user trip on the trip.
	HasActive(ctx context.Context, tripID, userID string) (bool, error)

	// TransitionByTrip moves every user trip of tripID in status from to
	// status to, stamping endTime. Returns the number of rows changed.
	TransitionByTrip(ctx context.Context, tripID string, from, to domain.UserTripStatus, endTime time.Time) (int64, error)

	// Update updates an existing user trip.
	Update(ctx context.Context, userTrip *domain.UserTrip) error

	// List returns one page of user trips matching filter, newest first,
	// along with the total number of matches.
	List(ctx context.Context, filter domain.UserTripFilter, limit, offset int) ([]*domain.UserTrip, int, error)
}
