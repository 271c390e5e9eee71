package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"transit/internal/domain"
	"transit/internal/repository"
)

// TripService is the entry point for trip and seat operations. It runs
// the state machine and reservation manager, then audits, invalidates
// cached capacity and emits events once the change has committed.
type TripService struct {
	store         repository.Store
	stateMachine  *TripStateMachine
	reservations  *ReservationManager
	capacity      *CapacityCalculator
	audit         *AuditRecorder
	notifications *NotificationService
	newReference  ReferenceGenerator
	retry         RetryPolicy
	now           func() time.Time
	log           *zap.Logger
}

// NewTripService creates a new TripService. audit and notifications may be nil.
func NewTripService(
	store repository.Store,
	stateMachine *TripStateMachine,
	reservations *ReservationManager,
	capacity *CapacityCalculator,
	audit *AuditRecorder,
	notifications *NotificationService,
	retry RetryPolicy,
	log *zap.Logger,
) *TripService {
	return &TripService{
		store:         store,
		stateMachine:  stateMachine,
		reservations:  reservations,
		capacity:      capacity,
		audit:         audit,
		notifications: notifications,
		newReference:  RandomReference,
		retry:         retry,
		now:           time.Now,
		log:           log.With(zap.String("service", "trip")),
	}
}

// CreateTripRequest contains the parameters for scheduling a trip.
type CreateTripRequest struct {
	LocationFromID string `validate:"required,uuid"`
	LocationToID   string `validate:"omitempty,uuid"`
	TotalCapacity  int    `validate:"required,min=10"`
	CreatedByID    string `validate:"required,uuid"`
}

// CreateTrip schedules a new PENDING trip with a unique reference id.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	locationFrom, err := s.store.Locations().GetByID(ctx, req.LocationFromID)
	if err != nil {
		return nil, translateNotFound(err, ErrLocationFromNotFound)
	}

	var locationTo *domain.Location
	if req.LocationToID != "" {
		if locationTo, err = s.store.Locations().GetByID(ctx, req.LocationToID); err != nil {
			return nil, translateNotFound(err, ErrLocationToNotFound)
		}
	}

	createdBy, err := s.store.Users().GetByID(ctx, req.CreatedByID)
	if err != nil {
		return nil, translateNotFound(err, ErrCreatedByNotFound)
	}

	now := s.now()
	trip := &domain.Trip{
		ID:             uuid.New().String(),
		Status:         domain.TripStatusPending,
		TotalCapacity:  req.TotalCapacity,
		LocationFromID: req.LocationFromID,
		LocationToID:   req.LocationToID,
		CreatedByID:    req.CreatedByID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.insertWithReference(ctx, trip); err != nil {
		return nil, err
	}

	trip.LocationFrom = locationFrom
	trip.LocationTo = locationTo
	trip.CreatedBy = createdBy

	annotate(ctx, trip)
	s.log.Info("trip created",
		zap.String("trip_id", trip.ID),
		zap.String("reference_id", trip.ReferenceID),
		zap.Int("total_capacity", trip.TotalCapacity),
	)

	return trip, nil
}

// insertWithReference assigns trip a fresh reference and inserts it. A
// reference taken between the existence check and the insert surfaces as
// repository.ErrDuplicate and is retried with a new candidate.
func (s *TripService) insertWithReference(ctx context.Context, trip *domain.Trip) error {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		candidate := s.newReference()

		exists, err := s.store.Trips().ExistsByReferenceID(ctx, candidate)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		trip.ReferenceID = candidate
		err = s.store.Trips().Create(ctx, trip)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		s.log.Debug("trip reference collision", zap.String("reference_id", candidate))
	}

	trip.ReferenceID = ""
	return ErrReferenceExhausted
}

// UpdateTripRequest contains the fields of a trip that may be edited.
// Nil fields are left unchanged. An empty LocationToID clears the
// destination.
type UpdateTripRequest struct {
	LocationFromID *string `validate:"omitnil,uuid"`
	LocationToID   *string `validate:"omitempty,uuid"`
	TotalCapacity  *int
}

// UpdateTrip edits the route or capacity of a trip that has not finished.
// The status is never changed here.
func (s *TripService) UpdateTrip(ctx context.Context, tripID string, req UpdateTripRequest) (*domain.Trip, error) {
	if !validID(tripID) {
		return nil, ErrInvalidTripID
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.TotalCapacity != nil && *req.TotalCapacity < domain.MinTripCapacity {
		return nil, ErrInvalidCapacity
	}

	var before, after domain.Trip
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		trip, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}
		if trip.Status.IsTerminal() {
			return ErrTripClosed
		}
		before = *trip

		if req.LocationFromID != nil {
			if _, err := tx.Locations().GetByID(ctx, *req.LocationFromID); err != nil {
				return translateNotFound(err, ErrLocationFromNotFound)
			}
			trip.LocationFromID = *req.LocationFromID
		}

		switch {
		case req.LocationToID == nil:
		case *req.LocationToID == "":
			trip.LocationToID = ""
		default:
			if _, err := tx.Locations().GetByID(ctx, *req.LocationToID); err != nil {
				return translateNotFound(err, ErrLocationToNotFound)
			}
			trip.LocationToID = *req.LocationToID
		}

		if req.TotalCapacity != nil {
			active, err := tx.UserTrips().CountByTripAndStatus(ctx, trip.ID, domain.UserTripStatusInProgress)
			if err != nil {
				return err
			}
			if *req.TotalCapacity < active {
				return ErrCapacityBelowOccupancy
			}
			trip.TotalCapacity = *req.TotalCapacity
		}

		trip.UpdatedAt = s.now()
		if err := tx.Trips().Update(ctx, trip); err != nil {
			return err
		}
		after = *trip
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.RecordUpdate(ctx, &before, &after)
	if req.TotalCapacity != nil {
		s.capacity.Invalidate(ctx, tripID)
	}

	return s.GetTrip(ctx, tripID)
}

// DeleteTrip removes a trip that never had passengers.
func (s *TripService) DeleteTrip(ctx context.Context, tripID string) error {
	if !validID(tripID) {
		return ErrInvalidTripID
	}

	var deleted *domain.Trip
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		trip, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}

		count, err := tx.UserTrips().CountByTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrTripHasReservations
		}

		if err := tx.Trips().Delete(ctx, tripID); err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}
		deleted = trip
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.RecordDelete(ctx, deleted)
	s.capacity.Invalidate(ctx, tripID)
	s.log.Info("trip deleted", zap.String("trip_id", tripID), zap.String("reference_id", deleted.ReferenceID))

	return nil
}

// GetTrip retrieves a trip by ID with its relations.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if !validID(tripID) {
		return nil, ErrInvalidTripID
	}

	var trip *domain.Trip
	err := s.retry.do(ctx, func() error {
		var err error
		if trip, err = s.store.Trips().GetByID(ctx, tripID); err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}
		return newRelationLoader(s.store).load(ctx, trip)
	})
	if err != nil {
		return nil, err
	}

	annotate(ctx, trip)
	return trip, nil
}

// GetTripByReferenceID retrieves a trip by its reference with its relations.
func (s *TripService) GetTripByReferenceID(ctx context.Context, referenceID string) (*domain.Trip, error) {
	if referenceID == "" {
		return nil, validationError("reference id is required")
	}

	var trip *domain.Trip
	err := s.retry.do(ctx, func() error {
		var err error
		if trip, err = s.store.Trips().GetByReferenceID(ctx, referenceID); err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}
		return newRelationLoader(s.store).load(ctx, trip)
	})
	if err != nil {
		return nil, err
	}

	annotate(ctx, trip)
	return trip, nil
}

// ListTrips retrieves one page of trips, most recently updated first.
func (s *TripService) ListTrips(ctx context.Context, filter domain.TripFilter, pg Pagination) (*domain.Page[*domain.Trip], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("invalid trip status")
	}
	for _, id := range []string{filter.LocationFromID, filter.LocationToID, filter.CreatedByID} {
		if id != "" && !validID(id) {
			return nil, validationError("invalid id in filter")
		}
	}
	pg = pg.normalize()

	var trips []*domain.Trip
	var total int
	err := s.retry.do(ctx, func() error {
		var err error
		if trips, total, err = s.store.Trips().List(ctx, filter, pg.Size, pg.offset()); err != nil {
			return err
		}
		loader := newRelationLoader(s.store)
		for _, trip := range trips {
			if err := loader.load(ctx, trip); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.Page[*domain.Trip]{Rows: trips, TotalCount: total, Page: pg.Page, Size: pg.Size}, nil
}

// CountAvailableCapacity returns the free and total seats of a trip.
func (s *TripService) CountAvailableCapacity(ctx context.Context, tripID string) (*domain.Capacity, error) {
	return s.capacity.CountAvailableCapacity(ctx, tripID)
}

// StartTrip moves a PENDING trip to IN_PROGRESS.
func (s *TripService) StartTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.transition(ctx, tripID, TransitionStart)
}

// CompleteTrip moves an IN_PROGRESS trip to COMPLETED and completes every
// seated passenger's user trip.
func (s *TripService) CompleteTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.transition(ctx, tripID, TransitionComplete)
}

// CancelTrip moves a PENDING or IN_PROGRESS trip to CANCELLED and cancels
// every seated passenger's user trip.
func (s *TripService) CancelTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.transition(ctx, tripID, TransitionCancel)
}

func (s *TripService) transition(ctx context.Context, tripID string, t Transition) (*domain.Trip, error) {
	result, err := s.stateMachine.Apply(ctx, tripID, t)
	if err != nil {
		return nil, err
	}

	s.audit.RecordUpdate(ctx, result.Before, result.After)
	if result.Cascaded > 0 {
		s.capacity.Invalidate(ctx, tripID)
	}

	if s.notifications != nil {
		var notifyErr error
		switch t {
		case TransitionStart:
			notifyErr = s.notifications.NotifyTripStarted(ctx, result.After)
		case TransitionComplete:
			notifyErr = s.notifications.NotifyTripCompleted(ctx, result.After, result.Cascaded)
		case TransitionCancel:
			notifyErr = s.notifications.NotifyTripCancelled(ctx, result.After, result.Cascaded)
		}
		if notifyErr != nil {
			s.log.Warn("trip notification failed", zap.String("trip_id", tripID), zap.Error(notifyErr))
		}
	}

	return s.GetTrip(ctx, tripID)
}

// JoinTrip reserves a seat for a passenger.
func (s *TripService) JoinTrip(ctx context.Context, req JoinTripRequest) (*domain.UserTrip, error) {
	userTrip, err := s.reservations.Join(ctx, req)
	if err != nil {
		return nil, err
	}

	s.capacity.Invalidate(ctx, userTrip.TripID)
	if s.notifications != nil {
		if err := s.notifications.NotifyPassengerJoined(ctx, userTrip); err != nil {
			s.log.Warn("join notification failed", zap.String("user_trip_id", userTrip.ID), zap.Error(err))
		}
	}

	return userTrip, nil
}

// ExitTrip releases a passenger's seat.
func (s *TripService) ExitTrip(ctx context.Context, req ExitTripRequest) (*domain.UserTrip, error) {
	userTrip, err := s.reservations.Exit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.capacity.Invalidate(ctx, userTrip.TripID)
	if s.notifications != nil {
		if err := s.notifications.NotifyPassengerExited(ctx, userTrip); err != nil {
			s.log.Warn("exit notification failed", zap.String("user_trip_id", userTrip.ID), zap.Error(err))
		}
	}

	return userTrip, nil
}

// GetUserTrip retrieves a user trip by ID.
func (s *TripService) GetUserTrip(ctx context.Context, id string) (*domain.UserTrip, error) {
	return s.reservations.Get(ctx, id)
}

// ListUserTrips retrieves one page of user trips.
func (s *TripService) ListUserTrips(ctx context.Context, filter domain.UserTripFilter, pg Pagination) (*domain.Page[*domain.UserTrip], error) {
	return s.reservations.List(ctx, filter, pg)
}

// relationLoader resolves trip relations, reusing lookups across trips.
type relationLoader struct {
	store     repository.Store
	locations map[string]*domain.Location
	users     map[string]*domain.User
}

func newRelationLoader(store repository.Store) *relationLoader {
	return &relationLoader{
		store:     store,
		locations: make(map[string]*domain.Location),
		users:     make(map[string]*domain.User),
	}
}

func (l *relationLoader) load(ctx context.Context, trip *domain.Trip) error {
	var err error
	if trip.LocationFrom, err = l.location(ctx, trip.LocationFromID); err != nil {
		return err
	}
	if trip.LocationToID != "" {
		if trip.LocationTo, err = l.location(ctx, trip.LocationToID); err != nil {
			return err
		}
	}
	trip.CreatedBy, err = l.user(ctx, trip.CreatedByID)
	return err
}

func (l *relationLoader) location(ctx context.Context, id string) (*domain.Location, error) {
	if loc, ok := l.locations[id]; ok {
		return loc, nil
	}
	loc, err := l.store.Locations().GetByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	l.locations[id] = loc
	return loc, nil
}

func (l *relationLoader) user(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := l.users[id]; ok {
		return u, nil
	}
	u, err := l.store.Users().GetByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	l.users[id] = u
	return u, nil
}

// annotate adds trip attributes to the New Relic transaction, if any.
func annotate(ctx context.Context, trip *domain.Trip) {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return
	}
	txn.AddAttribute("trip.id", trip.ID)
	txn.AddAttribute("trip.status", string(trip.Status))
}
