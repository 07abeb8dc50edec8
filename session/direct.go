package session

import (
	"context"
	"errors"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/sessionstate"
	"github.com/creastat/sessionlock/store"
)

// directStore implements Store by reading the record and writing it back
// with a generation guard. Ownership is checked against LockId first, the
// generation guard then rejects writes racing with another caller.
type directStore struct {
	*engine
}

// ReadExclusive implements Store.
func (s *directStore) ReadExclusive(ctx context.Context, sessionID string) (ReadResult, error) {
	key := s.key(sessionID)
	rec, err := s.client.Get(ctx, key)
	if err != nil {
		observe(s.strategy, "acquire", outcomeError)
		return ReadResult{}, err
	}
	if rec == nil {
		observe(s.strategy, "acquire", outcomeNotFound)
		return ReadResult{State: StateNotFound}, nil
	}

	lockID := rec.Int64(sessionstate.BinLockID)
	if rec.Bool(sessionstate.BinLocked) {
		observe(s.strategy, "acquire", outcomeLocked)
		return ReadResult{
			State:   StateLocked,
			LockID:  lockID,
			LockAge: s.lockAge(rec.Int64(sessionstate.BinLockTime)),
		}, nil
	}

	timeout := rec.Int(sessionstate.BinSessionTimeout)
	lockID++
	policy := store.WritePolicy{
		ExpectGeneration: true,
		Generation:       rec.Generation,
		TTL:              timeout,
	}
	err = s.client.Put(ctx, key, policy, store.Bins{
		sessionstate.BinLocked:   true,
		sessionstate.BinLockID:   lockID,
		sessionstate.BinLockTime: clock.ToTicks(s.clock.Now()),
	})
	if errors.Is(err, store.ErrGeneration) {
		// Lost the race. The age of the winner's lock is unknown here.
		s.logger.Debug("session.acquire.conflict", "key", key.String(), "lock_id", lockID)
		observe(s.strategy, "acquire", outcomeConflict)
		return ReadResult{State: StateLocked, LockID: lockID}, nil
	}
	if err != nil {
		observe(s.strategy, "acquire", outcomeError)
		return ReadResult{}, err
	}

	res, err := s.unlocked(lockID, timeout, rec.Map(sessionstate.BinSessionItems), rec.Has(sessionstate.BinSessionItems))
	if err != nil {
		return ReadResult{}, err
	}
	observe(s.strategy, "acquire", outcomeOK)
	return res, nil
}

// UpdateAndRelease implements Store.
func (s *directStore) UpdateAndRelease(ctx context.Context, sessionID string, lockID int64, ttl int, items *Items) (bool, error) {
	encoded, err := encodeAll(s.codec, items)
	if err != nil {
		return false, err
	}
	applied, err := s.writeOwned(ctx, sessionID, lockID, ttl, store.Bins{
		sessionstate.BinLocked:         false,
		sessionstate.BinSessionTimeout: ttl,
		sessionstate.BinSessionItems:   encoded,
	})
	observe(s.strategy, "update", outcomeOf(applied, err))
	return applied, err
}

// ReleaseOnly implements Store.
func (s *directStore) ReleaseOnly(ctx context.Context, sessionID string, lockID int64, ttl int) (bool, error) {
	applied, err := s.writeOwned(ctx, sessionID, lockID, ttl, store.Bins{
		sessionstate.BinLocked:         false,
		sessionstate.BinSessionTimeout: ttl,
	})
	observe(s.strategy, "release", outcomeOf(applied, err))
	return applied, err
}

// ResetTimeout implements Store.
func (s *directStore) ResetTimeout(ctx context.Context, sessionID string, ttl int) (bool, error) {
	policy := store.WritePolicy{UpdateOnly: true, TTL: ttl}
	err := s.client.Put(ctx, s.key(sessionID), policy, store.Bins{sessionstate.BinSessionTimeout: ttl})
	if errors.Is(err, store.ErrNotFound) {
		observe(s.strategy, "touch", outcomeNotFound)
		return false, nil
	}
	observe(s.strategy, "touch", outcomeOf(true, err))
	return err == nil, err
}

// Remove implements Store.
func (s *directStore) Remove(ctx context.Context, sessionID string, lockID int64) (bool, error) {
	key := s.key(sessionID)
	gen, owned, err := s.owned(ctx, key, lockID)
	if err != nil || !owned {
		observe(s.strategy, "remove", outcomeOf(owned, err))
		return false, err
	}
	existed, err := s.client.Delete(ctx, key, store.WritePolicy{ExpectGeneration: true, Generation: gen})
	if errors.Is(err, store.ErrGeneration) {
		s.logger.Debug("session.remove.conflict", "key", key.String(), "lock_id", lockID)
		observe(s.strategy, "remove", outcomeConflict)
		return false, nil
	}
	observe(s.strategy, "remove", outcomeOf(existed, err))
	return existed, err
}

// owned reads LockId and returns the record generation when it equals lockID.
func (s *directStore) owned(ctx context.Context, key store.Key, lockID int64) (uint32, bool, error) {
	rec, err := s.client.Get(ctx, key, sessionstate.BinLockID)
	if err != nil {
		return 0, false, err
	}
	if rec == nil || !rec.Has(sessionstate.BinLockID) || rec.Int64(sessionstate.BinLockID) != lockID {
		return 0, false, nil
	}
	return rec.Generation, true, nil
}

// writeOwned writes bins when the caller still owns the lock and nobody
// wrote the record since the ownership check.
func (s *directStore) writeOwned(ctx context.Context, sessionID string, lockID int64, ttl int, bins store.Bins) (bool, error) {
	key := s.key(sessionID)
	gen, owned, err := s.owned(ctx, key, lockID)
	if err != nil || !owned {
		return false, err
	}
	err = s.client.Put(ctx, key, store.WritePolicy{ExpectGeneration: true, Generation: gen, TTL: ttl}, bins)
	if errors.Is(err, store.ErrGeneration) {
		s.logger.Debug("session.write.conflict", "key", key.String(), "lock_id", lockID)
		return false, nil
	}
	return err == nil, err
}
