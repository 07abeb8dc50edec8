// Package redisstore implements store.Client on Redis.
//
// A record is one hash. Scalar bins are stored as strings, booleans as "1"
// and "0". A map bin B is stored as the marker field B = "[map]" plus one
// field "B:<name>" per entry. The record generation lives in the "@gen"
// field and guarded writes use WATCH/MULTI/EXEC against it.
//
// Modules are Lua scripts. HasModule maps to SCRIPT EXISTS, RegisterModule
// to SCRIPT LOAD and Execute runs EVALSHA with an EVAL fallback.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/creastat/sessionlock/store"
)

const (
	// Hash field holding the record generation.
	genField = "@gen"
	// Value of a map bin's own field.
	mapMarker = "[map]"
	// Default attempts for unguarded writes that lose a WATCH race.
	defaultRetries = 3
)

// Store implements store.Client using Redis hashes.
type Store struct {
	client  redis.UniversalClient
	scripts *xsync.MapOf[string, *redis.Script]
	retries int
}

// Option configures a Store.
type Option func(*Store)

// WithRetries sets how many times an unguarded write is attempted when a
// concurrent writer invalidates its WATCH.
func WithRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewStore creates a Redis-backed store. The store owns client and closes it on Close.
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:  client,
		scripts: xsync.NewMapOf[string, *redis.Script](),
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements store.Client.
// Returns nil if the record is not found (not an error).
func (s *Store) Get(ctx context.Context, key store.Key, binNames ...string) (*store.Record, error) {
	fields, err := s.client.HGetAll(ctx, key.String()).Result()
	if err != nil {
		return nil, err
	}
	rec, err := decodeHash(fields)
	if err != nil || rec == nil {
		return nil, err
	}
	if len(binNames) == 0 {
		return rec, nil
	}
	filtered := make(store.Bins, len(binNames))
	for _, name := range binNames {
		if v, ok := rec.Bins[name]; ok {
			filtered[name] = v
		}
	}
	rec.Bins = filtered
	return rec, nil
}

// Put implements store.Client.
// A guarded write that loses the WATCH race fails with store.ErrGeneration;
// an unguarded one is retried.
func (s *Store) Put(ctx context.Context, key store.Key, policy store.WritePolicy, bins store.Bins) error {
	fields, maps, err := encodeBins(bins)
	if err != nil {
		return err
	}
	k := key.String()

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return err
		}
		gen, exists, err := generation(current)
		if err != nil {
			return err
		}
		if policy.ExpectGeneration && (!exists || gen != policy.Generation) {
			return store.ErrGeneration
		}
		if policy.UpdateOnly && !exists {
			return store.ErrNotFound
		}

		var stale []string
		for field := range current {
			if _, ok := fields[field]; ok || field == genField {
				continue
			}
			if policy.Replace || ownedByMap(field, maps) {
				stale = append(stale, field)
			}
		}
		values := make([]any, 0, 2*len(fields)+2)
		for field, value := range fields {
			values = append(values, field, value)
		}
		values = append(values, genField, strconv.FormatUint(uint64(gen)+1, 10))

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, values...)
			if len(stale) > 0 {
				pipe.HDel(ctx, k, stale...)
			}
			if policy.TTL > 0 {
				pipe.Expire(ctx, k, time.Duration(policy.TTL)*time.Second)
			}
			return nil
		})
		return err
	}

	return s.watch(ctx, k, policy.ExpectGeneration, txf)
}

// Delete implements store.Client.
func (s *Store) Delete(ctx context.Context, key store.Key, policy store.WritePolicy) (bool, error) {
	k := key.String()
	var existed bool

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, k, genField).Result()
		if errors.Is(err, redis.Nil) {
			existed = false
			return nil
		}
		if err != nil {
			return err
		}
		gen, err := parseGeneration(raw)
		if err != nil {
			return err
		}
		if policy.ExpectGeneration && gen != policy.Generation {
			return store.ErrGeneration
		}
		existed = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, k, policy.ExpectGeneration, txf); err != nil {
		return false, err
	}
	return existed, nil
}

// watch runs txf under WATCH. Guarded operations fail on the first lost race,
// others are retried up to the configured number of attempts.
func (s *Store) watch(ctx context.Context, k string, guarded bool, txf func(*redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		err = s.client.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if guarded {
			return store.ErrGeneration
		}
	}
	return fmt.Errorf("redisstore: %s: %w", k, err)
}

// Execute implements store.Client.
// Returns nil if the function returned false or nil.
func (s *Store) Execute(ctx context.Context, key store.Key, module, function string, args ...any) (any, error) {
	script, ok := s.scripts.Load(module)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrModuleNotFound, module)
	}
	argv, err := flattenArgs(function, args)
	if err != nil {
		return nil, err
	}
	res, err := script.Run(ctx, s.client, []string{key.String()}, argv...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: %s.%s: %w", module, function, err)
	}
	return res, nil
}

// HasModule implements store.Client.
// A module counts as present when its script is cached by the server.
func (s *Store) HasModule(ctx context.Context, module store.Module) (bool, error) {
	script := redis.NewScript(module.Source)
	found, err := script.Exists(ctx, s.client).Result()
	if err != nil {
		return false, err
	}
	if len(found) == 0 || !found[0] {
		return false, nil
	}
	s.scripts.Store(module.Name, script)
	return true, nil
}

// RegisterModule implements store.Client.
func (s *Store) RegisterModule(ctx context.Context, module store.Module) error {
	script := redis.NewScript(module.Source)
	if err := script.Load(ctx, s.client).Err(); err != nil {
		return fmt.Errorf("redisstore: load module %s: %w", module.Name, err)
	}
	s.scripts.Store(module.Name, script)
	return nil
}

// Close implements store.Client.
func (s *Store) Close() error {
	s.scripts.Clear()
	return s.client.Close()
}

func generation(fields map[string]string) (uint32, bool, error) {
	raw, ok := fields[genField]
	if !ok {
		return 0, false, nil
	}
	gen, err := parseGeneration(raw)
	return gen, err == nil, err
}

func parseGeneration(raw string) (uint32, error) {
	gen, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("redisstore: malformed generation %q: %w", raw, err)
	}
	return uint32(gen), nil
}

func ownedByMap(field string, maps []string) bool {
	for _, name := range maps {
		if strings.HasPrefix(field, name+":") {
			return true
		}
	}
	return false
}

// encodeBins flattens bins into hash fields and returns the names of the map
// bins among them.
func encodeBins(bins store.Bins) (map[string]string, []string, error) {
	fields := make(map[string]string, len(bins))
	var maps []string
	for name, value := range bins {
		if name == genField || strings.Contains(name, ":") {
			return nil, nil, fmt.Errorf("redisstore: invalid bin name %q", name)
		}
		switch v := value.(type) {
		case map[string][]byte:
			maps = append(maps, name)
			fields[name] = mapMarker
			for item, data := range v {
				fields[name+":"+item] = string(data)
			}
		case bool:
			fields[name] = boolString(v)
		case []byte:
			fields[name] = string(v)
		default:
			str, err := cast.ToStringE(v)
			if err != nil {
				return nil, nil, fmt.Errorf("redisstore: bin %s: %w", name, err)
			}
			fields[name] = str
		}
	}
	return fields, maps, nil
}

// decodeHash rebuilds a record from its hash fields. An empty hash is a
// missing record.
func decodeHash(fields map[string]string) (*store.Record, error) {
	gen, exists, err := generation(fields)
	if err != nil || !exists {
		return nil, err
	}
	rec := &store.Record{Bins: make(store.Bins, len(fields)), Generation: gen}
	for name, value := range fields {
		if value == mapMarker && !strings.Contains(name, ":") {
			rec.Bins[name] = make(map[string][]byte)
		}
	}
	for field, value := range fields {
		if field == genField {
			continue
		}
		if name, item, ok := strings.Cut(field, ":"); ok {
			if m, isMap := rec.Bins[name].(map[string][]byte); isMap {
				m[item] = []byte(value)
				continue
			}
		}
		if _, isMap := rec.Bins[field].(map[string][]byte); isMap {
			continue
		}
		rec.Bins[field] = value
	}
	return rec, nil
}

// flattenArgs renders procedure arguments as ARGV. Lists and maps become a
// count followed by their elements; maps are written as sorted name, value pairs.
func flattenArgs(function string, args []any) ([]any, error) {
	argv := []any{function}
	for i, a := range args {
		switch v := a.(type) {
		case nil:
			argv = append(argv, 0)
		case []string:
			argv = append(argv, len(v))
			for _, s := range v {
				argv = append(argv, s)
			}
		case map[string][]byte:
			names := make([]string, 0, len(v))
			for name := range v {
				names = append(names, name)
			}
			sort.Strings(names)
			argv = append(argv, len(v))
			for _, name := range names {
				argv = append(argv, name, string(v[name]))
			}
		case bool:
			argv = append(argv, boolString(v))
		case []byte:
			argv = append(argv, string(v))
		case string, int, int32, int64, uint32, uint64:
			argv = append(argv, v)
		default:
			return nil, fmt.Errorf("redisstore: argument %d: unsupported type %T", i, a)
		}
	}
	return argv, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
