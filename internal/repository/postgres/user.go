package postgres

import (
	"context"
	"database/sql"

	"transit/internal/domain"
	"transit/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, email, phone, created_at FROM users WHERE id = $1`
	row := r.q.QueryRowContext(ctx, query, id)

	var user domain.User
	var email, phone sql.NullString
	err := row.Scan(&user.ID, &user.Name, &email, &phone, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.Phone = phone.String
	return &user, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
