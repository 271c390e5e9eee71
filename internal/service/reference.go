package service

import (
	"fmt"
	"math/rand/v2"
)

const (
	referencePrefix = "TRIP"

	// maxReferenceAttempts bounds reference generation before giving up
	// with a conflict.
	maxReferenceAttempts = 20
)

// ReferenceGenerator returns a candidate trip reference.
type ReferenceGenerator func() string

// RandomReference returns a reference of the form TRIP-NNNNN.
func RandomReference() string {
	return fmt.Sprintf("%s-%05d", referencePrefix, rand.IntN(100000))
}
