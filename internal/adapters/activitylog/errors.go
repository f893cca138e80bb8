package activitylog

import "errors"

// Sentinel errors for activity log writers.
var (
	ErrClosed      = errors.New("activity log closed")
	ErrWriteFailed = errors.New("activity log write failed")
	ErrQueueFull   = errors.New("activity log queue full")
)
