package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"transit/internal/domain"
	"transit/internal/repository"
)

// UserTripRepository is a PostgreSQL implementation of repository.UserTripRepository.
type UserTripRepository struct {
	q Querier
}

// NewUserTripRepository creates a new PostgreSQL user trip repository.
func NewUserTripRepository(db *sql.DB) *UserTripRepository {
	return &UserTripRepository{q: db}
}

// NewUserTripRepositoryWithTx creates a user trip repository using a transaction.
func NewUserTripRepositoryWithTx(tx *sql.Tx) *UserTripRepository {
	return &UserTripRepository{q: tx}
}

const userTripColumns = `id, trip_id, user_id, status, start_time, end_time,
	entrance_location, exit_location, created_at, updated_at`

// Create persists a new user trip.
func (r *UserTripRepository) Create(ctx context.Context, ut *domain.UserTrip) error {
	entrance, err := encodePoint(ut.EntranceLocation)
	if err != nil {
		return err
	}
	exit, err := encodePoint(ut.ExitLocation)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_trips (` + userTripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.q.ExecContext(ctx, query,
		ut.ID,
		ut.TripID,
		ut.UserID,
		ut.Status,
		ut.StartTime,
		toNullTime(ut.EndTime),
		entrance,
		exit,
		ut.CreatedAt,
		ut.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a user trip by ID.
func (r *UserTripRepository) GetByID(ctx context.Context, id string) (*domain.UserTrip, error) {
	query := `SELECT ` + userTripColumns + ` FROM user_trips WHERE id = $1`
	return scanUserTrip(r.q.QueryRowContext(ctx, query, id))
}

// CountByTrip counts all user trips of a trip.
func (r *UserTripRepository) CountByTrip(ctx context.Context, tripID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_trips WHERE trip_id = $1`, tripID,
	).Scan(&count)
	return count, err
}

// CountByTripAndStatus counts the user trips of a trip in the given status.
func (r *UserTripRepository) CountByTripAndStatus(ctx context.Context, tripID string, status domain.UserTripStatus) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_trips WHERE trip_id = $1 AND status = $2`, tripID, status,
	).Scan(&count)
	return count, err
}

// HasActive reports whether userID holds an IN_PROGRESS user trip on tripID.
func (r *UserTripRepository) HasActive(ctx context.Context, tripID, userID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_trips WHERE trip_id = $1 AND user_id = $2 AND status = $3)`,
		tripID, userID, domain.UserTripStatusInProgress,
	).Scan(&exists)
	return exists, err
}

// TransitionByTrip moves all user trips of a trip from one status to another.
func (r *UserTripRepository) TransitionByTrip(ctx context.Context, tripID string, from, to domain.UserTripStatus, endTime time.Time) (int64, error) {
	query := `
		UPDATE user_trips
		SET status = $1, end_time = $2, updated_at = $2
		WHERE trip_id = $3 AND status = $4
	`

	result, err := r.q.ExecContext(ctx, query, to, endTime, tripID, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Update updates an existing user trip.
func (r *UserTripRepository) Update(ctx context.Context, ut *domain.UserTrip) error {
	entrance, err := encodePoint(ut.EntranceLocation)
	if err != nil {
		return err
	}
	exit, err := encodePoint(ut.ExitLocation)
	if err != nil {
		return err
	}

	query := `
		UPDATE user_trips
		SET status = $1, start_time = $2, end_time = $3, entrance_location = $4,
			exit_location = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.q.ExecContext(ctx, query,
		ut.Status,
		ut.StartTime,
		toNullTime(ut.EndTime),
		entrance,
		exit,
		ut.UpdatedAt,
		ut.ID,
	)
	if err != nil {
		return err
	}

	return expectAffected(result)
}

// List retrieves one page of user trips, newest first.
func (r *UserTripRepository) List(ctx context.Context, filter domain.UserTripFilter, limit, offset int) ([]*domain.UserTrip, int, error) {
	var where whereClause
	if filter.TripID != "" {
		where.add("trip_id = $%d", filter.TripID)
	}
	if filter.UserID != "" {
		where.add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if !filter.StartTime.IsZero() {
		where.add("start_time >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		where.add("end_time <= $%d", filter.EndTime)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_trips`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user trips: %w", err)
	}

	pageClause, args := where.page(limit, offset)
	query := `SELECT ` + userTripColumns + ` FROM user_trips` + where.String() + ` ORDER BY created_at DESC, id` + pageClause

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list user trips: %w", err)
	}
	defer rows.Close()

	userTrips := make([]*domain.UserTrip, 0, limit)
	for rows.Next() {
		ut, err := scanUserTrip(rows)
		if err != nil {
			return nil, 0, err
		}
		userTrips = append(userTrips, ut)
	}

	return userTrips, total, rows.Err()
}

func scanUserTrip(row rowScanner) (*domain.UserTrip, error) {
	var ut domain.UserTrip
	var endTime sql.NullTime
	var entrance, exit []byte

	err := row.Scan(
		&ut.ID,
		&ut.TripID,
		&ut.UserID,
		&ut.Status,
		&ut.StartTime,
		&endTime,
		&entrance,
		&exit,
		&ut.CreatedAt,
		&ut.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if endTime.Valid {
		ut.EndTime = endTime.Time
	}
	if ut.EntranceLocation, err = decodePoint(entrance); err != nil {
		return nil, fmt.Errorf("decode entrance location: %w", err)
	}
	if ut.ExitLocation, err = decodePoint(exit); err != nil {
		return nil, fmt.Errorf("decode exit location: %w", err)
	}

	return &ut, nil
}

// Ensure UserTripRepository implements repository.UserTripRepository.
var _ repository.UserTripRepository = (*UserTripRepository)(nil)
