package tracker

import "errors"

// Sentinel errors for the tracker service layer.
var (
	ErrLeadNotFound      = errors.New("lead not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown lead status")
)
