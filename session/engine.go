package session

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/codec"
	"github.com/creastat/sessionlock/sessionstate"
	"github.com/creastat/sessionlock/store"
)

// engine holds what both strategies share: the client, the key scope and the
// collaborators. It has no mutable state.
type engine struct {
	client   store.Client
	codec    codec.Codec
	clock    clock.Clock
	logger   pslog.Logger
	ns       string
	set      string
	app      string
	strategy StrategyType
}

func newEngine(client store.Client, config *storeConfig, strategy StrategyType) *engine {
	return &engine{
		client:   client,
		codec:    config.codec,
		clock:    config.clock,
		logger:   config.logger.With("svc", "session", "strategy", string(strategy)),
		ns:       config.namespace,
		set:      config.set,
		app:      config.app,
		strategy: strategy,
	}
}

func (e *engine) key(sessionID string) store.Key {
	return DeriveKey(e.ns, e.set, e.app, sessionID)
}

// Strategy implements Store.
func (e *engine) Strategy() StrategyType {
	return e.strategy
}

func (e *engine) lockAge(ticks int64) time.Duration {
	return e.clock.Now().Sub(clock.FromTicks(ticks))
}

// CreateUninitialized implements Store.
func (e *engine) CreateUninitialized(ctx context.Context, sessionID string, ttl int) error {
	err := e.client.Put(ctx, e.key(sessionID), store.WritePolicy{Replace: true, TTL: ttl}, store.Bins{
		sessionstate.BinLocked:         false,
		sessionstate.BinLockID:         int64(0),
		sessionstate.BinLockTime:       clock.ToTicks(e.clock.Now()),
		sessionstate.BinSessionTimeout: ttl,
	})
	observe(e.strategy, "create_uninitialized", outcomeOf(true, err))
	return err
}

// Write implements Store.
func (e *engine) Write(ctx context.Context, sessionID string, ttl int, items *Items) error {
	encoded, err := encodeAll(e.codec, items)
	if err != nil {
		return err
	}
	err = e.client.Put(ctx, e.key(sessionID), store.WritePolicy{Replace: true, TTL: ttl}, store.Bins{
		sessionstate.BinLocked:         false,
		sessionstate.BinLockID:         int64(0),
		sessionstate.BinLockTime:       clock.ToTicks(e.clock.Now()),
		sessionstate.BinSessionTimeout: ttl,
		sessionstate.BinSessionItems:   encoded,
	})
	observe(e.strategy, "write", outcomeOf(true, err))
	return err
}

// ReadNonExclusive implements Store.
func (e *engine) ReadNonExclusive(ctx context.Context, sessionID string) (ReadResult, error) {
	rec, err := e.client.Get(ctx, e.key(sessionID))
	if err != nil {
		observe(e.strategy, "read", outcomeError)
		return ReadResult{}, err
	}
	if rec == nil {
		observe(e.strategy, "read", outcomeNotFound)
		return ReadResult{State: StateNotFound}, nil
	}

	lockID := rec.Int64(sessionstate.BinLockID)
	age := e.lockAge(rec.Int64(sessionstate.BinLockTime))
	if rec.Bool(sessionstate.BinLocked) {
		observe(e.strategy, "read", outcomeLocked)
		return ReadResult{State: StateLocked, LockID: lockID, LockAge: age}, nil
	}

	res, err := e.unlocked(lockID, rec.Int(sessionstate.BinSessionTimeout), rec.Map(sessionstate.BinSessionItems), rec.Has(sessionstate.BinSessionItems))
	if err != nil {
		observe(e.strategy, "read", outcomeError)
		return ReadResult{}, err
	}
	res.LockAge = age
	observe(e.strategy, "read", outcomeOK)
	return res, nil
}

// unlocked builds the result for a readable record.
func (e *engine) unlocked(lockID int64, timeout int, raw map[string][]byte, hasItems bool) (ReadResult, error) {
	items, err := decodeItems(e.codec, raw)
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{
		State:         StateUnlocked,
		LockID:        lockID,
		Items:         items,
		Timeout:       timeout,
		Uninitialized: !hasItems,
	}, nil
}
