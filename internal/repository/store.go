package repository

import "context"

// Store groups the repositories that take part in a unit of work.
type Store interface {
	Trips() TripRepository
	UserTrips() UserTripRepository
	Locations() LocationRepository
	Users() UserRepository

	// WithinTx runs fn against a transaction-scoped Store. The transaction
	// commits if fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
