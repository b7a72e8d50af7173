package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrStoreUnavailable   = errors.New("session store unavailable")
	ErrChannelUnavailable = errors.New("no push channel available")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("invalid authentication token")
	ErrForbidden          = errors.New("access denied")
)
