package domain

import "time"

// Location is a named stop a trip can start from or head to.
type Location struct {
	ID          string
	Name        string
	Description string
	Address     string
	Coordinates *Point
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
