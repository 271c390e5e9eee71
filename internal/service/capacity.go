package service

import (
	"context"

	"go.uber.org/zap"

	"transit/internal/domain"
	"transit/internal/repository"
)

// CapacityCache holds recently computed capacities. Implementations
// return (nil, nil) on a miss.
//
// Every invalidation bumps a per-trip version. SetCapacity only stores a
// value computed after the version it is given was read, so a fill racing
// a seat change cannot resurrect the old count.
type CapacityCache interface {
	GetCapacity(ctx context.Context, tripID string) (*domain.Capacity, error)
	CapacityVersion(ctx context.Context, tripID string) (int64, error)
	SetCapacity(ctx context.Context, tripID string, capacity *domain.Capacity, version int64) error
	InvalidateCapacity(ctx context.Context, tripID string) error
}

// CapacityCalculator derives seat availability from active user trips.
type CapacityCalculator struct {
	store repository.Store
	cache CapacityCache
	retry RetryPolicy
	log   *zap.Logger
}

// NewCapacityCalculator creates a new CapacityCalculator. cache may be nil.
func NewCapacityCalculator(store repository.Store, cache CapacityCache, retry RetryPolicy, log *zap.Logger) *CapacityCalculator {
	return &CapacityCalculator{
		store: store,
		cache: cache,
		retry: retry,
		log:   log.With(zap.String("service", "capacity")),
	}
}

// CountAvailableCapacity returns the free and total seats of a trip.
func (c *CapacityCalculator) CountAvailableCapacity(ctx context.Context, tripID string) (*domain.Capacity, error) {
	if !validID(tripID) {
		return nil, ErrInvalidTripID
	}

	cacheable := false
	var version int64
	if c.cache != nil {
		cached, err := c.cache.GetCapacity(ctx, tripID)
		if err != nil {
			c.log.Warn("capacity cache read failed", zap.String("trip_id", tripID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}

		// Read the version before the store so a concurrent commit is seen
		// either by the store read or by the version check.
		version, err = c.cache.CapacityVersion(ctx, tripID)
		if err != nil {
			c.log.Warn("capacity cache version read failed", zap.String("trip_id", tripID), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	var capacity *domain.Capacity
	err := c.retry.do(ctx, func() error {
		trip, err := c.store.Trips().GetByID(ctx, tripID)
		if err != nil {
			return translateNotFound(err, ErrTripNotFound)
		}
		capacity, err = capacityOf(ctx, c.store, trip)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := c.cache.SetCapacity(ctx, tripID, capacity, version); err != nil {
			c.log.Warn("capacity cache write failed", zap.String("trip_id", tripID), zap.Error(err))
		}
	}

	return capacity, nil
}

// Invalidate drops any cached capacity for tripID. Call after a commit
// that changed the trip's seats.
func (c *CapacityCalculator) Invalidate(ctx context.Context, tripID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateCapacity(ctx, tripID); err != nil {
		c.log.Warn("capacity cache invalidation failed", zap.String("trip_id", tripID), zap.Error(err))
	}
}

// capacityOf computes the capacity of trip using store, which may be
// transaction-scoped.
func capacityOf(ctx context.Context, store repository.Store, trip *domain.Trip) (*domain.Capacity, error) {
	active, err := store.UserTrips().CountByTripAndStatus(ctx, trip.ID, domain.UserTripStatusInProgress)
	if err != nil {
		return nil, err
	}
	return &domain.Capacity{
		AvailableCapacity: trip.TotalCapacity - active,
		TotalCapacity:     trip.TotalCapacity,
	}, nil
}
