package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"transit/internal/domain"
	"transit/internal/repository"
)

// LocationRepository implements repository.LocationRepository using PostgreSQL.
type LocationRepository struct {
	q Querier
}

// NewLocationRepository creates a new LocationRepository.
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{q: db}
}

// GetByID retrieves a location by ID.
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*domain.Location, error) {
	query := `
		SELECT id, name, description, address, coordinates, created_at, updated_at
		FROM locations WHERE id = $1
	`

	var loc domain.Location
	var description, address sql.NullString
	var coordinates []byte
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&loc.ID,
		&loc.Name,
		&description,
		&address,
		&coordinates,
		&loc.CreatedAt,
		&loc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	loc.Description = description.String
	loc.Address = address.String
	if loc.Coordinates, err = decodePoint(coordinates); err != nil {
		return nil, fmt.Errorf("decode location coordinates: %w", err)
	}
	return &loc, nil
}

var _ repository.LocationRepository = (*LocationRepository)(nil)
