package session

import "context"

// Store defines the lock protocol over a session record.
//
// Contention and ownership mismatches are results, not errors: mutating
// operations return applied=false when the caller no longer owns the lock,
// the record is missing, or another writer changed it concurrently. Only
// store and transport failures are returned as errors, and nothing is retried.
type Store interface {
	// CreateUninitialized writes a fresh unlocked record without items, replacing any existing one.
	CreateUninitialized(ctx context.Context, sessionID string, ttl int) error

	// Write writes a fresh unlocked record holding items, replacing any existing one.
	Write(ctx context.Context, sessionID string, ttl int, items *Items) error

	// ReadNonExclusive reads the record without taking the lock.
	// Items are withheld while the record is locked.
	ReadNonExclusive(ctx context.Context, sessionID string) (ReadResult, error)

	// ReadExclusive reads the record and takes the lock when it is free.
	ReadExclusive(ctx context.Context, sessionID string) (ReadResult, error)

	// UpdateAndRelease stores items and releases the lock held as lockID.
	// A nil items collection stores an empty payload.
	UpdateAndRelease(ctx context.Context, sessionID string, lockID int64, ttl int, items *Items) (bool, error)

	// ReleaseOnly releases the lock held as lockID, leaving the items untouched.
	ReleaseOnly(ctx context.Context, sessionID string, lockID int64, ttl int) (bool, error)

	// ResetTimeout sets the session timeout and record expiry of an existing record.
	ResetTimeout(ctx context.Context, sessionID string, ttl int) (bool, error)

	// Remove deletes the record when lockID matches its current lock id.
	Remove(ctx context.Context, sessionID string, lockID int64) (bool, error)

	// Strategy returns the strategy the store executes.
	Strategy() StrategyType
}
