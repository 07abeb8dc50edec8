// Package memory implements store.Client in process memory.
//
// Records live in an xsync.MapOf keyed by store.Key.String(). Every write
// happens inside MapOf.Compute, which serializes operations on one key while
// leaving other keys independent, so guarded writes and module functions are
// atomic per record. Expiry is evaluated lazily against the injected clock.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/store"
)

type entry struct {
	bins      store.Bins
	gen       uint32
	expiresAt time.Time
}

// Store implements store.Client using an in-memory map.
type Store struct {
	records *xsync.MapOf[string, entry]
	modules *xsync.MapOf[string, store.Module]
	clock   clock.Clock
}

// NewStore creates an empty in-memory store. A nil clock uses the system clock.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{
		records: xsync.NewMapOf[string, entry](),
		modules: xsync.NewMapOf[string, store.Module](),
		clock:   c,
	}
}

func (s *Store) alive(e entry, loaded bool, now time.Time) bool {
	return loaded && (e.expiresAt.IsZero() || now.Before(e.expiresAt))
}

func (s *Store) expiry(old entry, exists bool, ttl int, now time.Time) time.Time {
	if ttl > 0 {
		return now.Add(time.Duration(ttl) * time.Second)
	}
	if exists {
		return old.expiresAt
	}
	return time.Time{}
}

// Get implements store.Client.
func (s *Store) Get(ctx context.Context, key store.Key, binNames ...string) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, loaded := s.records.Load(key.String())
	if !s.alive(e, loaded, s.clock.Now()) {
		return nil, nil
	}
	rec := &store.Record{Generation: e.gen}
	if len(binNames) == 0 {
		rec.Bins = e.bins.Clone()
		return rec, nil
	}
	rec.Bins = make(store.Bins, len(binNames))
	for _, name := range binNames {
		if v, ok := e.bins[name]; ok {
			rec.Bins[name] = v
		}
	}
	rec.Bins = rec.Bins.Clone()
	return rec, nil
}

// Put implements store.Client.
func (s *Store) Put(ctx context.Context, key store.Key, policy store.WritePolicy, bins store.Bins) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	now := s.clock.Now()
	s.records.Compute(key.String(), func(old entry, loaded bool) (entry, bool) {
		exists := s.alive(old, loaded, now)
		if policy.ExpectGeneration && (!exists || old.gen != policy.Generation) {
			err = store.ErrGeneration
			return old, !exists
		}
		if policy.UpdateOnly && !exists {
			err = store.ErrNotFound
			return old, true
		}

		next := entry{gen: 1, expiresAt: s.expiry(old, exists, policy.TTL, now)}
		if exists {
			next.gen = old.gen + 1
		}
		if exists && !policy.Replace {
			next.bins = old.bins.Clone()
		} else {
			next.bins = make(store.Bins, len(bins))
		}
		for name, value := range bins.Clone() {
			next.bins[name] = value
		}
		return next, false
	})
	return err
}

// Delete implements store.Client.
func (s *Store) Delete(ctx context.Context, key store.Key, policy store.WritePolicy) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var (
		existed bool
		err     error
	)
	now := s.clock.Now()
	s.records.Compute(key.String(), func(old entry, loaded bool) (entry, bool) {
		existed = s.alive(old, loaded, now)
		if existed && policy.ExpectGeneration && old.gen != policy.Generation {
			err = store.ErrGeneration
			return old, false
		}
		return old, true
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// Execute implements store.Client.
func (s *Store) Execute(ctx context.Context, key store.Key, module, function string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mod, ok := s.modules.Load(module)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrModuleNotFound, module)
	}
	fn, ok := mod.Funcs[function]
	if !ok {
		return nil, fmt.Errorf("memory: module %s has no function %s", module, function)
	}

	var (
		result any
		err    error
	)
	now := s.clock.Now()
	s.records.Compute(key.String(), func(old entry, loaded bool) (entry, bool) {
		exists := s.alive(old, loaded, now)
		var bins store.Bins
		if exists {
			bins = old.bins
		}
		rec := store.NewProcRecord(bins)
		result, err = fn(rec, args)
		if err != nil {
			return old, !exists
		}

		op, written, ttl := rec.Result()
		switch op {
		case store.ProcUpdate:
			next := entry{gen: 1, expiresAt: s.expiry(old, exists, ttl, now)}
			if exists {
				next.gen = old.gen + 1
				next.bins = old.bins.Clone()
			} else {
				next.bins = store.Bins{}
			}
			for name, value := range written {
				next.bins[name] = value
			}
			return next, false
		case store.ProcRemove:
			return old, true
		default:
			return old, !exists
		}
	})
	return result, err
}

// HasModule implements store.Client.
func (s *Store) HasModule(ctx context.Context, module store.Module) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	mod, ok := s.modules.Load(module.Name)
	return ok && mod.Source == module.Source, nil
}

// RegisterModule implements store.Client.
func (s *Store) RegisterModule(ctx context.Context, module store.Module) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.modules.Store(module.Name, module)
	return nil
}

// Close implements store.Client.
func (s *Store) Close() error {
	s.records.Clear()
	return nil
}
