package session

import (
	"fmt"
	"strings"

	"github.com/creastat/sessionlock/store"
)

// DeriveKey maps a session id to its record key. The record id is
// app + "_" + sessionID inside (namespace, set).
func DeriveKey(namespace, set, app, sessionID string) store.Key {
	return store.Key{
		Namespace: namespace,
		Set:       set,
		UserKey:   app + "_" + sessionID,
	}
}

// ValidateScope rejects scopes for which DeriveKey would not be injective.
// An application name may not contain '_', and namespace and set may not
// contain ':' (the separator of the rendered key).
func ValidateScope(namespace, set, app string) error {
	switch {
	case namespace == "" || set == "":
		return fmt.Errorf("%w: namespace and set are required", ErrInvalidConfig)
	case strings.Contains(namespace, ":") || strings.Contains(set, ":"):
		return fmt.Errorf("%w: namespace and set must not contain ':'", ErrInvalidConfig)
	case strings.Contains(app, "_"):
		return fmt.Errorf("%w: application name %q must not contain '_'", ErrInvalidConfig, app)
	}
	return nil
}
