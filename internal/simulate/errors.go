package simulate

import "errors"

var (
	// ErrInvalidProfile is returned for profiles that cannot be parsed.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrUnhealthy is returned when the target service fails its health check.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrUnexpectedStatus is returned for API responses the runner cannot handle.
	ErrUnexpectedStatus = errors.New("unexpected status")
)
