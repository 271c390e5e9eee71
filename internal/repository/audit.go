package repository

import (
	"context"

	"transit/internal/domain"
)

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}
