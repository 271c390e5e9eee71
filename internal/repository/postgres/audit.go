package postgres

import (
	"context"
	"database/sql"

	"transit/internal/domain"
	"transit/internal/repository"
)

// AuditRepository implements repository.AuditRepository using PostgreSQL.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{q: db}
}

// Create persists an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_id, before_state, after_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var after any
	if entry.After != nil {
		after = string(entry.After)
	}

	_, err := r.q.ExecContext(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		toNullString(entry.ActorID),
		string(entry.Before),
		after,
		entry.CreatedAt,
	)
	return err
}

var _ repository.AuditRepository = (*AuditRepository)(nil)
