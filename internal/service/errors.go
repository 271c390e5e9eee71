package service

import (
	"errors"

	"transit/internal/repository"
)

// Error kinds. Every error returned by the services wraps exactly one of
// these, so callers classify with errors.Is.
var (
	// ErrValidation marks malformed input or an operation illegal in the current state.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation that could not be resolved.
	ErrConflict = errors.New("conflict")
)

// kindError is a concrete domain error tagged with its kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func validationError(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }
func notFoundError(msg string) error   { return &kindError{kind: ErrNotFound, msg: msg} }
func conflictError(msg string) error   { return &kindError{kind: ErrConflict, msg: msg} }

var (
	// ErrInvalidTripID is returned when a trip ID is empty or not a UUID.
	ErrInvalidTripID = validationError("invalid trip id")

	// ErrInvalidUserID is returned when a user ID is empty or not a UUID.
	ErrInvalidUserID = validationError("invalid user id")

	// ErrInvalidUserTripID is returned when a user trip ID is empty or not a UUID.
	ErrInvalidUserTripID = validationError("invalid user trip id")

	// ErrInvalidLocation is returned when point coordinates are out of range.
	ErrInvalidLocation = validationError("invalid location")

	// ErrTripNotFound is returned when the trip does not exist.
	ErrTripNotFound = notFoundError("trip not found")

	// ErrUserTripNotFound is returned when the user trip does not exist.
	ErrUserTripNotFound = notFoundError("user trip not found")

	// ErrUserNotFound is returned when the joining user does not exist.
	ErrUserNotFound = notFoundError("user not found")

	// ErrCreatedByNotFound is returned when the creating user does not exist.
	ErrCreatedByNotFound = notFoundError("created by user not found")

	// ErrLocationFromNotFound is returned when the starting location does not exist.
	ErrLocationFromNotFound = validationError("starting location not found")

	// ErrLocationToNotFound is returned when the destination does not exist.
	ErrLocationToNotFound = validationError("destination location not found")

	// ErrTripNotPending is returned when starting a trip that is not PENDING.
	ErrTripNotPending = validationError("trip is not pending")

	// ErrTripNotInProgress is returned when completing a trip that is not IN_PROGRESS.
	ErrTripNotInProgress = validationError("trip is not in progress")

	// ErrTripNotActive is returned when cancelling a trip that already finished.
	ErrTripNotActive = validationError("trip is not pending or in progress")

	// ErrTripClosed is returned when editing a completed or cancelled trip.
	ErrTripClosed = validationError("trip is completed or cancelled")

	// ErrTripNotJoinable is returned when joining a trip that does not accept passengers.
	ErrTripNotJoinable = validationError("trip is not accepting passengers")

	// ErrTripFull is returned when every seat is taken.
	ErrTripFull = validationError("trip has no available capacity")

	// ErrAlreadyOnTrip is returned when the user already holds a seat on the trip.
	ErrAlreadyOnTrip = validationError("user already has an active seat on this trip")

	// ErrUserTripNotInProgress is returned when exiting a seat that was already released.
	ErrUserTripNotInProgress = validationError("user trip is not in progress")

	// ErrInvalidUserTripStatus is returned for an exit status other than COMPLETED or CANCELLED.
	ErrInvalidUserTripStatus = validationError("status must be COMPLETED or CANCELLED")

	// ErrEndBeforeStart is returned when an end time precedes the start time.
	ErrEndBeforeStart = validationError("end time cannot be before start time")

	// ErrInvalidCapacity is returned when a capacity is below the minimum.
	ErrInvalidCapacity = validationError("total capacity must be at least 10")

	// ErrCapacityBelowOccupancy is returned when shrinking a trip below its seated passengers.
	ErrCapacityBelowOccupancy = validationError("total capacity cannot be lower than the number of active passengers")

	// ErrTripHasReservations is returned when deleting a trip that has user trips.
	ErrTripHasReservations = conflictError("trip has reservations")

	// ErrReferenceExhausted is returned when no free reference id was found.
	ErrReferenceExhausted = conflictError("could not allocate a unique trip reference")
)

// translateNotFound replaces repository.ErrNotFound with target.
func translateNotFound(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

// isDomainError reports whether err is a classified business error.
func isDomainError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}
