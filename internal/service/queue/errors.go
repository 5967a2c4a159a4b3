package queue

import "errors"

// Sentinel errors for the queue service layer.
var (
	ErrEntryNotFound  = errors.New("queue entry not found")
	ErrInvalidRequest = errors.New("invalid email request")
)
