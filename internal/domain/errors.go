package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDuplicateSubmission = errors.New("duplicate submission in flight")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProviderFailure     = errors.New("provider failure")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrEnqueueFailed       = errors.New("failed to enqueue generation job")
)
