package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"transit/internal/domain"
	"transit/internal/repository"
)

const auditEntityTrip = "Trip"

// AuditRecorder writes audit entries for mutating trip operations.
// Failures are logged and never surface to the caller. A nil
// *AuditRecorder records nothing.
type AuditRecorder struct {
	repo repository.AuditRepository
	now  func() time.Time
	log  *zap.Logger
}

// NewAuditRecorder creates a new AuditRecorder.
func NewAuditRecorder(repo repository.AuditRepository, log *zap.Logger) *AuditRecorder {
	return &AuditRecorder{
		repo: repo,
		now:  time.Now,
		log:  log.With(zap.String("service", "audit")),
	}
}

// RecordUpdate records that a trip changed from before to after.
func (a *AuditRecorder) RecordUpdate(ctx context.Context, before, after *domain.Trip) {
	if a == nil {
		return
	}
	a.record(ctx, domain.AuditActionUpdate, before, after)
}

// RecordDelete records that a trip was removed.
func (a *AuditRecorder) RecordDelete(ctx context.Context, before *domain.Trip) {
	if a == nil {
		return
	}
	a.record(ctx, domain.AuditActionDelete, before, nil)
}

func (a *AuditRecorder) record(ctx context.Context, action domain.AuditAction, before, after *domain.Trip) {
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		EntityType: auditEntityTrip,
		EntityID:   before.ID,
		Action:     action,
		ActorID:    ActorFromContext(ctx),
		CreatedAt:  a.now(),
	}

	var err error
	if entry.Before, err = json.Marshal(tripAuditState(before)); err != nil {
		a.log.Error("failed to encode audit state", zap.String("trip_id", before.ID), zap.Error(err))
		return
	}
	if after != nil {
		if entry.After, err = json.Marshal(tripAuditState(after)); err != nil {
			a.log.Error("failed to encode audit state", zap.String("trip_id", before.ID), zap.Error(err))
			return
		}
	}

	// Detached from request cancellation.
	if err := a.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		a.log.Error("failed to write audit entry",
			zap.String("trip_id", entry.EntityID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func tripAuditState(t *domain.Trip) map[string]any {
	state := map[string]any{
		"id":             t.ID,
		"referenceId":    t.ReferenceID,
		"status":         t.Status,
		"totalCapacity":  t.TotalCapacity,
		"locationFromId": t.LocationFromID,
		"createdById":    t.CreatedByID,
		"startTime":      nil,
		"endTime":        nil,
		"locationToId":   nil,
	}
	if !t.StartTime.IsZero() {
		state["startTime"] = t.StartTime.UTC().Format(time.RFC3339)
	}
	if !t.EndTime.IsZero() {
		state["endTime"] = t.EndTime.UTC().Format(time.RFC3339)
	}
	if t.LocationToID != "" {
		state["locationToId"] = t.LocationToID
	}
	return state
}
