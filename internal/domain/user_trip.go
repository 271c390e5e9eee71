package domain

import "time"

// UserTripStatus represents the status of a passenger's seat on a trip.
type UserTripStatus string

const (
	UserTripStatusInProgress UserTripStatus = "IN_PROGRESS"
	UserTripStatusCompleted  UserTripStatus = "COMPLETED"
	UserTripStatusCancelled  UserTripStatus = "CANCELLED"
)

// Valid reports whether s is one of the known user trip statuses.
func (s UserTripStatus) Valid() bool {
	switch s {
	case UserTripStatusInProgress, UserTripStatusCompleted, UserTripStatusCancelled:
		return true
	}
	return false
}

// Point is a geographic position.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinates are within range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// UserTrip is one passenger's seat on a trip. A user trip holds a seat
// exactly while its status is IN_PROGRESS.
type UserTrip struct {
	ID               string
	TripID           string
	UserID           string
	Status           UserTripStatus
	StartTime        time.Time
	EndTime          time.Time // Zero while in progress
	EntranceLocation *Point
	ExitLocation     *Point
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserTripFilter narrows user trip listings. Zero values are ignored.
type UserTripFilter struct {
	TripID    string
	UserID    string
	Status    UserTripStatus
	StartTime time.Time
	EndTime   time.Time
}
