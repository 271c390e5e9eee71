package domain

import "time"

// AuditAction identifies the kind of change recorded in an audit entry.
type AuditAction string

const (
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// AuditLog records a state change of an entity and who made it.
type AuditLog struct {
	ID         string
	EntityType string
	EntityID   string
	Action     AuditAction
	ActorID    string // Empty when the request carried no identity
	Before     []byte // JSON snapshot
	After      []byte // JSON snapshot, nil for deletes
	CreatedAt  time.Time
}
