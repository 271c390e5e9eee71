package repository

import (
	"context"

	"transit/internal/domain"
)

// LocationRepository reads locations.
type LocationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Location, error)
}
