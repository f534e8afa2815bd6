package core

import "errors"

// Sentinel errors shared between the store and the service layer.
var (
	// ErrNotFound is returned when a reminder, owner or notification
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken is returned when a completion token is missing,
	// does not match, or has expired.
	ErrInvalidToken = errors.New("invalid or expired completion token")

	// ErrAlreadyCompleted is returned when a completion is attempted on a
	// reminder that is no longer pending or overdue.
	ErrAlreadyCompleted = errors.New("reminder already completed or cancelled")
)
