package sessionlock

import (
	"errors"

	"github.com/creastat/sessionlock/session"
)

// Common errors for provider setup and use.
var (
	// ErrInvalidConfig is shared with the session package so scope errors match it too.
	ErrInvalidConfig    = session.ErrInvalidConfig
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrClosed           = errors.New("provider closed")
)
