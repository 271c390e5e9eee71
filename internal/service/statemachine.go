package service

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"transit/internal/domain"
	"transit/internal/repository"
)

// Transition names a trip lifecycle operation.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

type transitionRule struct {
	from    []domain.TripStatus
	to      domain.TripStatus
	cascade domain.UserTripStatus // Empty when seated passengers are left alone
	illegal error
}

var transitionRules = map[Transition]transitionRule{
	TransitionStart: {
		from:    []domain.TripStatus{domain.TripStatusPending},
		to:      domain.TripStatusInProgress,
		illegal: ErrTripNotPending,
	},
	TransitionComplete: {
		from:    []domain.TripStatus{domain.TripStatusInProgress},
		to:      domain.TripStatusCompleted,
		cascade: domain.UserTripStatusCompleted,
		illegal: ErrTripNotInProgress,
	},
	TransitionCancel: {
		from:    []domain.TripStatus{domain.TripStatusPending, domain.TripStatusInProgress},
		to:      domain.TripStatusCancelled,
		cascade: domain.UserTripStatusCancelled,
		illegal: ErrTripNotActive,
	},
}

// CheckTransition returns nil if t is legal from status, or the
// validation error describing why not.
func CheckTransition(status domain.TripStatus, t Transition) error {
	rule, ok := transitionRules[t]
	if !ok {
		return validationError("unknown trip transition")
	}
	if !slices.Contains(rule.from, status) {
		return rule.illegal
	}
	return nil
}

// TransitionResult describes a committed transition.
type TransitionResult struct {
	Before   *domain.Trip
	After    *domain.Trip
	Cascaded int64 // User trips closed along with the trip
}

// TripStateMachine applies lifecycle transitions. A transition and the
// cascade onto seated passengers commit together or not at all.
type TripStateMachine struct {
	store repository.Store
	now   func() time.Time
	log   *zap.Logger
}

// NewTripStateMachine creates a new TripStateMachine.
func NewTripStateMachine(store repository.Store, log *zap.Logger) *TripStateMachine {
	return &TripStateMachine{
		store: store,
		now:   time.Now,
		log:   log.With(zap.String("service", "state_machine")),
	}
}

// Apply runs transition t on the trip. The trip row stays locked until
// the transaction ends, so joins and exits on it wait.
func (m *TripStateMachine) Apply(ctx context.Context, tripID string, t Transition) (*TransitionResult, error) {
	if !validID(tripID) {
		return nil, ErrInvalidTripID
	}

	rule, ok := transitionRules[t]
	if !ok {
		return nil, validationError("unknown trip transition")
	}

	var result TransitionResult
	err := m.store.WithinTx(ctx, func(tx repository.Store) error {
		trip, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}

		if err := CheckTransition(trip.Status, t); err != nil {
			return err
		}

		before := *trip
		now := m.now()

		trip.Status = rule.to
		trip.UpdatedAt = now
		if t == TransitionStart {
			trip.StartTime = now
		} else {
			trip.EndTime = now
		}

		if err := tx.Trips().Update(ctx, trip); err != nil {
			return err
		}

		if rule.cascade != "" {
			n, err := tx.UserTrips().TransitionByTrip(ctx, trip.ID, domain.UserTripStatusInProgress, rule.cascade, now)
			if err != nil {
				return err
			}
			result.Cascaded = n
		}

		result.Before = &before
		result.After = trip
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("trip transitioned",
		zap.String("trip_id", tripID),
		zap.String("transition", string(t)),
		zap.String("from", string(result.Before.Status)),
		zap.String("to", string(result.After.Status)),
		zap.Int64("cascaded", result.Cascaded),
	)

	return &result, nil
}
