package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"transit/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db        *sql.DB
	trips     *TripRepository
	userTrips *UserTripRepository
	locations *LocationRepository
	users     *UserRepository
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		trips:     NewTripRepository(db),
		userTrips: NewUserTripRepository(db),
		locations: NewLocationRepository(db),
		users:     NewUserRepository(db),
	}
}

func (s *Store) Trips() repository.TripRepository         { return s.trips }
func (s *Store) UserTrips() repository.UserTripRepository { return s.userTrips }
func (s *Store) Locations() repository.LocationRepository { return s.locations }
func (s *Store) Users() repository.UserRepository         { return s.users }

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore scopes every repository to one transaction.
type txStore struct {
	tx *sql.Tx
}

func (s *txStore) Trips() repository.TripRepository { return NewTripRepositoryWithTx(s.tx) }
func (s *txStore) UserTrips() repository.UserTripRepository {
	return NewUserTripRepositoryWithTx(s.tx)
}
func (s *txStore) Locations() repository.LocationRepository { return &LocationRepository{q: s.tx} }
func (s *txStore) Users() repository.UserRepository         { return &UserRepository{q: s.tx} }

// WithinTx on a transaction-scoped store joins the outer transaction.
func (s *txStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Store = (*txStore)(nil)
)
