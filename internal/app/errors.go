package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrSessionActive      = errors.New("session already active")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidParticipant = errors.New("participant id must be >= 1")
	ErrNotStarted         = errors.New("service not started")
	ErrStopped            = errors.New("service stopped")
	ErrQueueFull          = errors.New("step queue full")
	ErrDuplicate          = errors.New("duplicate step event")
)
