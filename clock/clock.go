// Package clock abstracts wall time so lock ages, lock timestamps and
// store-side expiry can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and
// 1970-01-01, the epoch used by the LockTime field of a session record.
const ticksAtUnixEpoch int64 = 621355968000000000

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the system clock.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual constructs a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
// Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	return m.now
}

// ToTicks converts t to 100ns ticks since 0001-01-01 UTC.
func ToTicks(t time.Time) int64 {
	return ticksAtUnixEpoch + t.UTC().UnixNano()/100
}

// FromTicks converts 100ns ticks since 0001-01-01 UTC back to a time.
func FromTicks(ticks int64) time.Time {
	return time.Unix(0, (ticks-ticksAtUnixEpoch)*100).UTC()
}
