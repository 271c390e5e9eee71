package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"transit/internal/domain"
	"transit/internal/repository"
)

// ReservationManager joins passengers to trips and releases their seats.
type ReservationManager struct {
	store            repository.Store
	allowPendingJoin bool
	retry            RetryPolicy
	now              func() time.Time
	log              *zap.Logger
}

// NewReservationManager creates a new ReservationManager. When
// allowPendingJoin is set, passengers may also book trips that have not
// started yet.
func NewReservationManager(store repository.Store, allowPendingJoin bool, retry RetryPolicy, log *zap.Logger) *ReservationManager {
	return &ReservationManager{
		store:            store,
		allowPendingJoin: allowPendingJoin,
		retry:            retry,
		now:              time.Now,
		log:              log.With(zap.String("service", "reservation")),
	}
}

// JoinTripRequest contains the parameters for taking a seat on a trip.
type JoinTripRequest struct {
	TripID           string
	UserID           string
	EntranceLocation *domain.Point
}

// Join reserves a seat. The trip row is locked while the active seats are
// counted and the reservation inserted, so concurrent joins on one trip
// cannot oversell it.
func (m *ReservationManager) Join(ctx context.Context, req JoinTripRequest) (*domain.UserTrip, error) {
	if !validID(req.TripID) {
		return nil, ErrInvalidTripID
	}
	if !validID(req.UserID) {
		return nil, ErrInvalidUserID
	}
	if !validPoint(req.EntranceLocation) {
		return nil, ErrInvalidLocation
	}

	var userTrip *domain.UserTrip
	err := m.store.WithinTx(ctx, func(tx repository.Store) error {
		trip, err := tx.Trips().GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}

		if !m.joinable(trip.Status) {
			return ErrTripNotJoinable
		}

		if _, err := tx.Users().GetByID(ctx, req.UserID); err != nil {
			return translateNotFound(err, ErrUserNotFound)
		}

		active, err := tx.UserTrips().HasActive(ctx, trip.ID, req.UserID)
		if err != nil {
			return err
		}
		if active {
			return ErrAlreadyOnTrip
		}

		capacity, err := capacityOf(ctx, tx, trip)
		if err != nil {
			return err
		}
		if capacity.AvailableCapacity <= 0 {
			return ErrTripFull
		}

		now := m.now()
		userTrip = &domain.UserTrip{
			ID:               uuid.New().String(),
			TripID:           trip.ID,
			UserID:           req.UserID,
			Status:           domain.UserTripStatusInProgress,
			StartTime:        now,
			EntranceLocation: req.EntranceLocation,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		if err := tx.UserTrips().Create(ctx, userTrip); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyOnTrip
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("passenger joined trip",
		zap.String("trip_id", userTrip.TripID),
		zap.String("user_id", userTrip.UserID),
		zap.String("user_trip_id", userTrip.ID),
	)

	return userTrip, nil
}

func (m *ReservationManager) joinable(status domain.TripStatus) bool {
	switch status {
	case domain.TripStatusInProgress:
		return true
	case domain.TripStatusPending:
		return m.allowPendingJoin
	}
	return false
}

// ExitTripRequest contains the parameters for releasing a seat.
type ExitTripRequest struct {
	UserTripID   string
	Status       domain.UserTripStatus // COMPLETED or CANCELLED
	ExitLocation *domain.Point
	EndTime      time.Time // Defaults to now
}

// Exit releases a seat. Only an IN_PROGRESS user trip can be exited, so
// a seat is never released twice.
func (m *ReservationManager) Exit(ctx context.Context, req ExitTripRequest) (*domain.UserTrip, error) {
	if !validID(req.UserTripID) {
		return nil, ErrInvalidUserTripID
	}
	if req.Status != domain.UserTripStatusCompleted && req.Status != domain.UserTripStatusCancelled {
		return nil, ErrInvalidUserTripStatus
	}
	if !validPoint(req.ExitLocation) {
		return nil, ErrInvalidLocation
	}

	var userTrip *domain.UserTrip
	err := m.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.UserTrips().GetByID(ctx, req.UserTripID)
		if err != nil {
			return translateNotFound(err, ErrUserTripNotFound)
		}

		// Serialize with joins and transitions on the same trip, then
		// re-read so a concurrent exit is observed.
		if _, err := tx.Trips().GetByIDForUpdate(ctx, current.TripID); err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}
		current, err = tx.UserTrips().GetByID(ctx, req.UserTripID)
		if err != nil {
			return translateNotFound(err, ErrUserTripNotFound)
		}

		if current.Status != domain.UserTripStatusInProgress {
			return ErrUserTripNotInProgress
		}

		now := m.now()
		endTime := req.EndTime
		if endTime.IsZero() {
			endTime = now
		}
		if endTime.Before(current.StartTime) {
			return ErrEndBeforeStart
		}

		current.Status = req.Status
		current.EndTime = endTime
		current.UpdatedAt = now
		if req.ExitLocation != nil {
			current.ExitLocation = req.ExitLocation
		}

		if err := tx.UserTrips().Update(ctx, current); err != nil {
			return err
		}
		userTrip = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("passenger left trip",
		zap.String("trip_id", userTrip.TripID),
		zap.String("user_trip_id", userTrip.ID),
		zap.String("status", string(userTrip.Status)),
	)

	return userTrip, nil
}

// Get retrieves a user trip by ID.
func (m *ReservationManager) Get(ctx context.Context, id string) (*domain.UserTrip, error) {
	if !validID(id) {
		return nil, ErrInvalidUserTripID
	}

	var userTrip *domain.UserTrip
	err := m.retry.do(ctx, func() error {
		var err error
		userTrip, err = m.store.UserTrips().GetByID(ctx, id)
		return translateNotFound(err, ErrUserTripNotFound)
	})
	return userTrip, err
}

// List retrieves one page of user trips.
func (m *ReservationManager) List(ctx context.Context, filter domain.UserTripFilter, pg Pagination) (*domain.Page[*domain.UserTrip], error) {
	if filter.TripID != "" && !validID(filter.TripID) {
		return nil, ErrInvalidTripID
	}
	if filter.UserID != "" && !validID(filter.UserID) {
		return nil, ErrInvalidUserID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("invalid user trip status")
	}
	pg = pg.normalize()

	var rows []*domain.UserTrip
	var total int
	err := m.retry.do(ctx, func() error {
		var err error
		rows, total, err = m.store.UserTrips().List(ctx, filter, pg.Size, pg.offset())
		return err
	})
	if err != nil {
		return nil, err
	}

	return &domain.Page[*domain.UserTrip]{Rows: rows, TotalCount: total, Page: pg.Page, Size: pg.Size}, nil
}
