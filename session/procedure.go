package session

import (
	"context"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/sessionstate"
)

// procedureStore implements Store by calling the sessionstate module, which
// performs each read-decide-write sequence atomically inside the store.
type procedureStore struct {
	*engine
}

func (s *procedureStore) call(ctx context.Context, sessionID, function string, args ...any) (any, error) {
	return s.client.Execute(ctx, s.key(sessionID), sessionstate.Name, function, args...)
}

func (s *procedureStore) applied(ctx context.Context, op, sessionID, function string, args ...any) (bool, error) {
	res, err := s.call(ctx, sessionID, function, args...)
	if err != nil {
		observe(s.strategy, op, outcomeError)
		return false, err
	}
	applied, err := sessionstate.ParseApplied(res)
	observe(s.strategy, op, outcomeOf(applied, err))
	return applied, err
}

// ReadExclusive implements Store.
func (s *procedureStore) ReadExclusive(ctx context.Context, sessionID string) (ReadResult, error) {
	res, err := s.call(ctx, sessionID, sessionstate.FuncGetItemExclusive, clock.ToTicks(s.clock.Now()))
	if err != nil {
		observe(s.strategy, "acquire", outcomeError)
		return ReadResult{}, err
	}
	reply, err := sessionstate.ParseExclusiveReply(res)
	if err != nil {
		observe(s.strategy, "acquire", outcomeError)
		return ReadResult{}, err
	}

	switch {
	case !reply.Found:
		observe(s.strategy, "acquire", outcomeNotFound)
		return ReadResult{State: StateNotFound}, nil
	case reply.Locked:
		observe(s.strategy, "acquire", outcomeLocked)
		return ReadResult{
			State:   StateLocked,
			LockID:  reply.LockID,
			LockAge: s.lockAge(reply.LockTime),
		}, nil
	}

	result, err := s.unlocked(reply.LockID, reply.Timeout, reply.Items, reply.Items != nil)
	if err != nil {
		return ReadResult{}, err
	}
	observe(s.strategy, "acquire", outcomeOK)
	return result, nil
}

// UpdateAndRelease implements Store.
// Only the changes recorded in items are sent; a nil collection replaces the
// payload with an empty one.
func (s *procedureStore) UpdateAndRelease(ctx context.Context, sessionID string, lockID int64, ttl int, items *Items) (bool, error) {
	if items == nil {
		return s.applied(ctx, "update", sessionID, sessionstate.FuncWriteItemExclusive,
			lockID, ttl, map[string][]byte{})
	}
	modified, err := encodeModified(s.codec, items)
	if err != nil {
		return false, err
	}
	return s.applied(ctx, "update", sessionID, sessionstate.FuncMergeItemExclusive,
		lockID, ttl, items.Deleted(), modified)
}

// ReleaseOnly implements Store.
func (s *procedureStore) ReleaseOnly(ctx context.Context, sessionID string, lockID int64, ttl int) (bool, error) {
	return s.applied(ctx, "release", sessionID, sessionstate.FuncReleaseItemExclusive, lockID, ttl)
}

// ResetTimeout implements Store.
func (s *procedureStore) ResetTimeout(ctx context.Context, sessionID string, ttl int) (bool, error) {
	return s.applied(ctx, "touch", sessionID, sessionstate.FuncResetItemTimeout, ttl)
}

// Remove implements Store.
func (s *procedureStore) Remove(ctx context.Context, sessionID string, lockID int64) (bool, error) {
	return s.applied(ctx, "remove", sessionID, sessionstate.FuncRemoveItem, lockID)
}
