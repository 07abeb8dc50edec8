package session

import "time"

// State is the lock state reported by a read.
type State int

const (
	// StateNotFound means no record exists for the session.
	StateNotFound State = iota
	// StateLocked means another caller holds the lock. No items are returned.
	StateLocked
	// StateUnlocked means the record was readable; after ReadExclusive the caller now holds the lock.
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateNotFound:
		return "not_found"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// ReadResult is the outcome of ReadNonExclusive and ReadExclusive.
//
// When the direct strategy loses the acquisition race between its read and
// its guarded write, the result is StateLocked with LockAge 0 and LockID set
// to the id it tried to take, not the winner's lock age. Callers judging
// abandoned locks should treat a zero LockAge as "just locked".
type ReadResult struct {
	State State
	// LockID is the current lock id, or the newly acquired one after a successful ReadExclusive.
	LockID int64
	// LockAge is the time since the lock was taken.
	LockAge time.Duration
	// Items is set only for StateUnlocked.
	Items *Items
	// Timeout is the record's session timeout in seconds, set only for StateUnlocked.
	Timeout int
	// Uninitialized reports a record created without a payload; the caller must initialize it.
	Uninitialized bool
}

// Locked reports whether another caller holds the lock.
func (r ReadResult) Locked() bool {
	return r.State == StateLocked
}

// Found reports whether the record exists.
func (r ReadResult) Found() bool {
	return r.State != StateNotFound
}
