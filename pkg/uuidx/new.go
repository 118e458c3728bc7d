package uuidx

import "github.com/google/uuid"

// New returns a version 7 UUID. The time-ordered layout keeps request
// identifiers sortable in provider-side logs. It panics if generation
// fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a version 7 UUID as a string, ready to be stamped on
// an outgoing request.
func NewString() string {
	return New().String()
}
