package session

import "errors"

var (
	// ErrInvalidConfig is returned when a store is built without a client or with an invalid scope.
	ErrInvalidConfig = errors.New("session: invalid configuration")
	// ErrInvalidStrategy is returned for an unknown strategy type.
	ErrInvalidStrategy = errors.New("session: invalid strategy type")
	// ErrRegistration is returned when the server-side module cannot be found or installed.
	ErrRegistration = errors.New("session: module registration failed")
)
