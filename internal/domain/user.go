package domain

import "time"

// User is a registered account. Users are managed elsewhere and only read here.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}
