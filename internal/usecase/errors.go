package usecase

import "errors"

// Sentinel errors the HTTP layer maps onto response codes.
var (
	ErrInvalidInput          = errors.New("invalid request input")
	ErrNotFound              = errors.New("not found")
	ErrDependencyUnavailable = errors.New("upstream dependency unavailable")
)
