package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusPending    TripStatus = "PENDING"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
)

// MinTripCapacity is the smallest seat count a trip may be created or updated with.
const MinTripCapacity = 10

// Valid reports whether s is one of the known trip statuses.
func (s TripStatus) Valid() bool {
	switch s {
	case TripStatusPending, TripStatusInProgress, TripStatusCompleted, TripStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// Trip is a scheduled journey with a fixed seat capacity.
type Trip struct {
	ID             string
	ReferenceID    string
	Status         TripStatus
	TotalCapacity  int
	StartTime      time.Time // Zero until the trip is started
	EndTime        time.Time // Zero until the trip is completed or cancelled
	LocationFromID string
	LocationToID   string // Empty when no destination was set
	CreatedByID    string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Resolved relations, populated on reads.
	LocationFrom *Location
	LocationTo   *Location
	CreatedBy    *User
}

// Capacity is the seat accounting of a trip at a point in time.
type Capacity struct {
	AvailableCapacity int
	TotalCapacity     int
}

// TripFilter narrows trip listings. Zero values are ignored.
type TripFilter struct {
	Status         TripStatus
	LocationFromID string
	LocationToID   string
	CreatedByID    string
	StartTime      time.Time // Trips starting at or after
	EndTime        time.Time // Trips ending at or before
}
