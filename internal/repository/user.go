package repository

import (
	"context"

	"transit/internal/domain"
)

// UserRepository reads users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
