// Package supabasestore implements store.Client on a Supabase (PostgREST) table.
//
// Each record is one row of the table:
//
//	create table session_records (
//	  key         text primary key,
//	  bins        jsonb not null,
//	  generation  bigint not null,
//	  expires_at  bigint not null default 0
//	);
//
// Writes are conditional updates filtered on the generation the driver read,
// so a row that changed in between matches nothing and the write is reported
// as a conflict. PostgREST cannot install code, so the driver has no modules
// and only serves the direct lock strategy.
package supabasestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"
	"github.com/supabase-community/supabase-go"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/store"
)

// DefaultTable is the table records are kept in unless WithTable is given.
const DefaultTable = "session_records"

// ErrModulesUnsupported is returned when a module is registered with the driver.
var ErrModulesUnsupported = errors.New("supabasestore: server-side modules are not supported")

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
}

type row struct {
	Key        string         `json:"key"`
	Bins       map[string]bin `json:"bins"`
	Generation uint32         `json:"generation"`
	ExpiresAt  int64          `json:"expires_at"`
}

// bin keeps the Go type of a value across the JSON column.
type bin struct {
	Type  string            `json:"t"`
	Bool  bool              `json:"b,omitempty"`
	Int   int64             `json:"i,omitempty"`
	Str   string            `json:"s,omitempty"`
	Bytes []byte            `json:"y,omitempty"`
	Map   map[string][]byte `json:"m,omitempty"`
}

// Store implements store.Client using a Supabase table.
type Store struct {
	client  *supabase.Client
	table   string
	clock   clock.Clock
	retries int
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the table records are kept in.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// WithClock sets the clock record expiry is evaluated against.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRetries sets how often an unguarded write is attempted when it races with another writer.
func WithRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewStore creates a new Supabase-backed store.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	s := &Store{
		client:  client,
		table:   DefaultTable,
		clock:   clock.Real{},
		retries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) alive(r *row, now time.Time) bool {
	return r != nil && (r.ExpiresAt == 0 || now.UnixMilli() < r.ExpiresAt)
}

func (s *Store) expiry(old *row, exists bool, ttl int, now time.Time) int64 {
	if ttl > 0 {
		return now.Add(time.Duration(ttl) * time.Second).UnixMilli()
	}
	if exists {
		return old.ExpiresAt
	}
	return 0
}

// load reads the raw row, expired or not.
func (s *Store) load(key store.Key) (*row, error) {
	var rows []row
	_, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("key", key.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("supabasestore: failed to get record: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// insert creates the row and reports false when another writer created it first.
func (s *Store) insert(key store.Key, next row) (bool, error) {
	var rows []row
	_, err := s.client.From(s.table).
		Insert(next, false, "", "representation", "").
		ExecuteTo(&rows)
	if err == nil {
		return true, nil
	}
	// a unique violation means the row appeared since we read it
	if existing, lerr := s.load(key); lerr == nil && existing != nil {
		return false, nil
	}
	return false, fmt.Errorf("supabasestore: failed to insert record: %w", err)
}

// update replaces the row if it still carries generation gen.
func (s *Store) update(key store.Key, gen uint32, next row) (bool, error) {
	var rows []row
	_, err := s.client.From(s.table).
		Update(next, "representation", "").
		Eq("key", key.String()).
		Eq("generation", strconv.FormatUint(uint64(gen), 10)).
		ExecuteTo(&rows)
	if err != nil {
		return false, fmt.Errorf("supabasestore: failed to update record: %w", err)
	}
	return len(rows) > 0, nil
}

// Get implements store.Client.
func (s *Store) Get(ctx context.Context, key store.Key, binNames ...string) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if !s.alive(r, s.clock.Now()) {
		return nil, nil
	}
	bins, err := decodeBins(r.Bins)
	if err != nil {
		return nil, err
	}
	rec := &store.Record{Bins: bins, Generation: r.Generation}
	if len(binNames) > 0 {
		rec.Bins = make(store.Bins, len(binNames))
		for _, name := range binNames {
			if v, ok := bins[name]; ok {
				rec.Bins[name] = v
			}
		}
	}
	return rec, nil
}

// Put implements store.Client.
func (s *Store) Put(ctx context.Context, key store.Key, policy store.WritePolicy, bins store.Bins) error {
	encoded, err := encodeBins(bins)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		old, err := s.load(key)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		exists := s.alive(old, now)
		if policy.ExpectGeneration && (!exists || old.Generation != policy.Generation) {
			return store.ErrGeneration
		}
		if policy.UpdateOnly && !exists {
			return store.ErrNotFound
		}

		next := row{
			Key:        key.String(),
			Bins:       make(map[string]bin, len(encoded)),
			Generation: 1,
			ExpiresAt:  s.expiry(old, exists, policy.TTL, now),
		}
		if exists && !policy.Replace {
			for name, value := range old.Bins {
				next.Bins[name] = value
			}
		}
		for name, value := range encoded {
			next.Bins[name] = value
		}

		var applied bool
		if old == nil {
			applied, err = s.insert(key, next)
		} else {
			// an expired row keeps counting so stale readers cannot match it
			next.Generation = old.Generation + 1
			applied, err = s.update(key, old.Generation, next)
		}
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		if policy.ExpectGeneration {
			return store.ErrGeneration
		}
	}
	return fmt.Errorf("supabasestore: write to %s kept conflicting: %w", key, store.ErrGeneration)
}

// Delete implements store.Client.
func (s *Store) Delete(ctx context.Context, key store.Key, policy store.WritePolicy) (bool, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		old, err := s.load(key)
		if err != nil {
			return false, err
		}
		if old == nil {
			return false, nil
		}
		existed := s.alive(old, s.clock.Now())
		if existed && policy.ExpectGeneration && old.Generation != policy.Generation {
			return false, store.ErrGeneration
		}

		var rows []row
		_, err = s.client.From(s.table).
			Delete("representation", "").
			Eq("key", key.String()).
			Eq("generation", strconv.FormatUint(uint64(old.Generation), 10)).
			ExecuteTo(&rows)
		if err != nil {
			return false, fmt.Errorf("supabasestore: failed to delete record: %w", err)
		}
		if len(rows) > 0 {
			return existed, nil
		}
		if policy.ExpectGeneration {
			return false, store.ErrGeneration
		}
	}
	return false, fmt.Errorf("supabasestore: delete of %s kept conflicting: %w", key, store.ErrGeneration)
}

// Execute implements store.Client. The driver has no modules.
func (s *Store) Execute(_ context.Context, _ store.Key, module, _ string, _ ...any) (any, error) {
	return nil, fmt.Errorf("%w: %s", store.ErrModuleNotFound, module)
}

// HasModule implements store.Client.
func (s *Store) HasModule(ctx context.Context, _ store.Module) (bool, error) {
	return false, ctx.Err()
}

// RegisterModule implements store.Client.
func (s *Store) RegisterModule(_ context.Context, module store.Module) error {
	return fmt.Errorf("%w: %s", ErrModulesUnsupported, module.Name)
}

// Close implements store.Client. The Supabase client holds no connections to release.
func (s *Store) Close() error {
	return nil
}

func encodeBins(bins store.Bins) (map[string]bin, error) {
	out := make(map[string]bin, len(bins))
	for name, value := range bins {
		b, err := encodeBin(value)
		if err != nil {
			return nil, fmt.Errorf("supabasestore: bin %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func encodeBin(v any) (bin, error) {
	switch val := v.(type) {
	case bool:
		return bin{Type: "bool", Bool: val}, nil
	case string:
		return bin{Type: "string", Str: val}, nil
	case []byte:
		return bin{Type: "bytes", Bytes: val}, nil
	case map[string][]byte:
		return bin{Type: "map", Map: val}, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return bin{Type: "int", Int: cast.ToInt64(val)}, nil
	default:
		return bin{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func decodeBins(in map[string]bin) (store.Bins, error) {
	out := make(store.Bins, len(in))
	for name, b := range in {
		switch b.Type {
		case "bool":
			out[name] = b.Bool
		case "string":
			out[name] = b.Str
		case "bytes":
			out[name] = b.Bytes
		case "map":
			if b.Map == nil {
				b.Map = map[string][]byte{}
			}
			out[name] = b.Map
		case "int":
			out[name] = b.Int
		default:
			return nil, fmt.Errorf("supabasestore: bin %s has unknown type %q", name, b.Type)
		}
	}
	return out, nil
}

// Compile-time check that Store implements store.Client
var _ store.Client = (*Store)(nil)
