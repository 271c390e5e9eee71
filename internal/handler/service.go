package handler

import (
	"context"

	"transit/internal/domain"
	"transit/internal/service"
)

// TripService is the behavior the HTTP layer needs from the trip service.
type TripService interface {
	CreateTrip(ctx context.Context, req service.CreateTripRequest) (*domain.Trip, error)
	UpdateTrip(ctx context.Context, tripID string, req service.UpdateTripRequest) (*domain.Trip, error)
	DeleteTrip(ctx context.Context, tripID string) error
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	GetTripByReferenceID(ctx context.Context, referenceID string) (*domain.Trip, error)
	ListTrips(ctx context.Context, filter domain.TripFilter, pg service.Pagination) (*domain.Page[*domain.Trip], error)
	CountAvailableCapacity(ctx context.Context, tripID string) (*domain.Capacity, error)
	StartTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	CompleteTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	CancelTrip(ctx context.Context, tripID string) (*domain.Trip, error)

	JoinTrip(ctx context.Context, req service.JoinTripRequest) (*domain.UserTrip, error)
	ExitTrip(ctx context.Context, req service.ExitTripRequest) (*domain.UserTrip, error)
	GetUserTrip(ctx context.Context, id string) (*domain.UserTrip, error)
	ListUserTrips(ctx context.Context, filter domain.UserTripFilter, pg service.Pagination) (*domain.Page[*domain.UserTrip], error)
}

var _ TripService = (*service.TripService)(nil)
