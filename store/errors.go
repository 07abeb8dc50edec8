package store

import "errors"

// Errors returned by Client implementations.
var (
	ErrNotFound       = errors.New("store: record not found")
	ErrGeneration     = errors.New("store: generation mismatch")
	ErrModuleNotFound = errors.New("store: module not registered")
)
