package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"transit/internal/domain"
	"transit/internal/repository"
)

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

const tripColumns = `id, reference_id, status, total_capacity, start_time, end_time,
	location_from_id, location_to_id, created_by_id, created_at, updated_at`

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.ReferenceID,
		trip.Status,
		trip.TotalCapacity,
		toNullTime(trip.StartTime),
		toNullTime(trip.EndTime),
		trip.LocationFromID,
		toNullString(trip.LocationToID),
		trip.CreatedByID,
		trip.CreatedAt,
		trip.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	return scanTrip(r.q.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate retrieves a trip by ID and holds a row lock on it.
func (r *TripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 FOR UPDATE`
	return scanTrip(r.q.QueryRowContext(ctx, query, id))
}

// GetByReferenceID retrieves a trip by reference id.
func (r *TripRepository) GetByReferenceID(ctx context.Context, referenceID string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE reference_id = $1`
	return scanTrip(r.q.QueryRowContext(ctx, query, referenceID))
}

// ExistsByReferenceID reports whether a trip uses referenceID.
func (r *TripRepository) ExistsByReferenceID(ctx context.Context, referenceID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM trips WHERE reference_id = $1)`, referenceID,
	).Scan(&exists)
	return exists, err
}

// List retrieves one page of trips ordered by last update.
func (r *TripRepository) List(ctx context.Context, filter domain.TripFilter, limit, offset int) ([]*domain.Trip, int, error) {
	var where whereClause
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if filter.LocationFromID != "" {
		where.add("location_from_id = $%d", filter.LocationFromID)
	}
	if filter.LocationToID != "" {
		where.add("location_to_id = $%d", filter.LocationToID)
	}
	if filter.CreatedByID != "" {
		where.add("created_by_id = $%d", filter.CreatedByID)
	}
	if !filter.StartTime.IsZero() {
		where.add("start_time >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		where.add("end_time <= $%d", filter.EndTime)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trips: %w", err)
	}

	pageClause, args := where.page(limit, offset)
	query := `SELECT ` + tripColumns + ` FROM trips` + where.String() + ` ORDER BY updated_at DESC, id` + pageClause

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	trips := make([]*domain.Trip, 0, limit)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, 0, err
		}
		trips = append(trips, trip)
	}

	return trips, total, rows.Err()
}

// Update updates an existing trip.
func (r *TripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	query := `
		UPDATE trips
		SET status = $1, total_capacity = $2, start_time = $3, end_time = $4,
			location_from_id = $5, location_to_id = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := r.q.ExecContext(ctx, query,
		trip.Status,
		trip.TotalCapacity,
		toNullTime(trip.StartTime),
		toNullTime(trip.EndTime),
		trip.LocationFromID,
		toNullString(trip.LocationToID),
		trip.UpdatedAt,
		trip.ID,
	)
	if err != nil {
		return err
	}

	return expectAffected(result)
}

// Delete removes a trip.
func (r *TripRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return expectAffected(result)
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var startTime, endTime sql.NullTime
	var locationToID sql.NullString

	err := row.Scan(
		&trip.ID,
		&trip.ReferenceID,
		&trip.Status,
		&trip.TotalCapacity,
		&startTime,
		&endTime,
		&trip.LocationFromID,
		&locationToID,
		&trip.CreatedByID,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if startTime.Valid {
		trip.StartTime = startTime.Time
	}
	if endTime.Valid {
		trip.EndTime = endTime.Time
	}
	trip.LocationToID = locationToID.String

	return &trip, nil
}

func expectAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
