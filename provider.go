// Package sessionlock stores web sessions in a key-value store and
// arbitrates concurrent requests for the same session with an optimistic
// lock protocol built on record generations.
//
// A Provider owns one store client shared by all callers. Open builds it
// from a Config; Close releases it.
package sessionlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"pkt.systems/pslog"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/codec"
	"github.com/creastat/sessionlock/session"
	"github.com/creastat/sessionlock/store"
	"github.com/creastat/sessionlock/store/logging"
	"github.com/creastat/sessionlock/store/memory"
	"github.com/creastat/sessionlock/store/redisstore"
	"github.com/creastat/sessionlock/store/supabasestore"
)

// Action tells the caller what to do with a session it just read.
type Action int

const (
	ActionNone Action = iota
	// ActionInitializeItem means the record was created without items and must be initialized.
	ActionInitializeItem
)

// StoreData is a session payload with its timeout in minutes.
type StoreData struct {
	Items   *session.Items
	Timeout int
}

// ItemResult is the outcome of GetItem and GetItemExclusive.
type ItemResult struct {
	// Data is nil when the session does not exist or is locked by someone else.
	Data   *StoreData
	Locked bool
	// LockAge is the age of the lock seen; zero after losing an acquisition race.
	LockAge time.Duration
	// LockID is nil when the session does not exist.
	LockID  *int64
	Actions Action
}

// OpenOption is a functional option for Open.
type OpenOption func(*openConfig)

type openConfig struct {
	logger      pslog.Logger
	clock       clock.Clock
	redisClient redis.UniversalClient
	client      store.Client
}

// WithLogger sets the logger.
func WithLogger(logger pslog.Logger) OpenOption {
	return func(c *openConfig) {
		c.logger = logger
	}
}

// WithClock sets the clock used for lock times and memory expiry.
func WithClock(clk clock.Clock) OpenOption {
	return func(c *openConfig) {
		c.clock = clk
	}
}

// WithRedisClient uses client instead of dialing Config.Hosts. The provider takes ownership.
func WithRedisClient(client redis.UniversalClient) OpenOption {
	return func(c *openConfig) {
		c.redisClient = client
	}
}

// WithStoreClient uses client instead of building one from the configuration.
func WithStoreClient(client store.Client) OpenOption {
	return func(c *openConfig) {
		c.client = client
	}
}

// Provider is the session state provider. It is safe for concurrent use.
type Provider struct {
	config Config
	client store.Client
	store  session.Store
	logger pslog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg, connects the store client and prepares the lock strategy.
// With UseProcedures set, Open fails when the server-side module cannot be installed.
func Open(ctx context.Context, cfg Config, opts ...OpenOption) (*Provider, error) {
	o := &openConfig{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = pslog.NoopLogger()
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cd, _ := codec.ByName(cfg.Codec)

	client, err := newClient(cfg, o)
	if err != nil {
		return nil, err
	}
	client = logging.Wrap(client, o.logger, string(cfg.Store))

	st, err := session.NewStore(ctx, cfg.Strategy(), client,
		session.WithScope(cfg.Namespace, cfg.Set, cfg.ApplicationName),
		session.WithCodec(cd),
		session.WithClock(o.clock),
		session.WithLogger(o.logger),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logger := o.logger.With("svc", "provider")
	logger.Info("provider.open", "store", string(cfg.Store), "strategy", string(cfg.Strategy()),
		"namespace", cfg.Namespace, "set", cfg.Set, "app", cfg.ApplicationName)
	return &Provider{
		config: cfg,
		client: client,
		store:  st,
		logger: logger,
	}, nil
}

func newClient(cfg Config, o *openConfig) (store.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	switch cfg.Store {
	case StoreTypeMemory:
		return memory.NewStore(o.clock), nil
	case StoreTypeRedis:
		rc := o.redisClient
		if rc == nil {
			var err error
			if rc, err = newRedisClient(cfg); err != nil {
				return nil, err
			}
		}
		return redisstore.NewStore(rc, redisstore.WithRetries(cfg.WriteRetries)), nil
	case StoreTypeSupabase:
		sb, err := supabasestore.NewStore(
			supabasestore.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey},
			supabasestore.WithTable(cfg.SupabaseTable),
			supabasestore.WithClock(o.clock),
			supabasestore.WithRetries(cfg.WriteRetries),
		)
		if err != nil {
			return nil, err
		}
		return sb, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, cfg.Store)
	}
}

func newRedisClient(cfg Config) (redis.UniversalClient, error) {
	addrs, err := cfg.Addrs()
	if err != nil {
		return nil, err
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		// go-redis treats 0 as its default; -1 disables retries
		maxRetries = -1
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           addrs,
		Username:        cfg.User,
		Password:        cfg.Password,
		DialTimeout:     cfg.ConnectionTimeout,
		ReadTimeout:     cfg.OperationTimeout,
		WriteTimeout:    cfg.OperationTimeout,
		MaxRetries:      maxRetries,
		MinRetryBackoff: cfg.SleepBetweenRetries,
		MaxRetryBackoff: cfg.SleepBetweenRetries,
		PoolSize:        cfg.PoolSize,
		ConnMaxIdleTime: cfg.MaxIdle,
	}), nil
}

// Config returns the configuration the provider was opened with.
func (p *Provider) Config() Config {
	return p.config
}

// Store returns the lock protocol store.
func (p *Provider) Store() session.Store {
	return p.store
}

// Close releases the store client. Further calls fail with ErrClosed.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = p.client.Close()
		p.logger.Info("provider.close", "error", p.closeErr)
	})
	return p.closeErr
}

// NewSessionID returns a new random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// call runs fn with the request deadline and logs its failure under op.
func (p *Provider) call(ctx context.Context, op, id string, fn func(context.Context, session.Store) error) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}
	if err := fn(ctx, p.store); err != nil {
		p.logger.Error("provider."+op+".error", "session_id", id, "error", err)
		return err
	}
	return nil
}

func (p *Provider) itemResult(res session.ReadResult) ItemResult {
	switch res.State {
	case session.StateNotFound:
		return ItemResult{}
	case session.StateLocked:
		lockID := res.LockID
		return ItemResult{Locked: true, LockAge: res.LockAge, LockID: &lockID}
	}
	lockID := res.LockID
	out := ItemResult{
		Data:    &StoreData{Items: res.Items, Timeout: res.Timeout / 60},
		LockAge: res.LockAge,
		LockID:  &lockID,
	}
	if res.Uninitialized {
		out.Actions = ActionInitializeItem
	}
	return out
}

// GetItem reads a session without locking it.
func (p *Provider) GetItem(ctx context.Context, id string) (ItemResult, error) {
	var out ItemResult
	err := p.call(ctx, "get_item", id, func(ctx context.Context, st session.Store) error {
		res, err := st.ReadNonExclusive(ctx, id)
		out = p.itemResult(res)
		return err
	})
	return out, err
}

// GetItemExclusive reads a session and locks it when it is free.
func (p *Provider) GetItemExclusive(ctx context.Context, id string) (ItemResult, error) {
	var out ItemResult
	err := p.call(ctx, "get_item_exclusive", id, func(ctx context.Context, st session.Store) error {
		res, err := st.ReadExclusive(ctx, id)
		out = p.itemResult(res)
		return err
	})
	return out, err
}

// SetAndReleaseItemExclusive stores item and releases the lock. A new item is
// written as a fresh record; otherwise the write requires lockID to still own
// the session.
func (p *Provider) SetAndReleaseItemExclusive(ctx context.Context, id string, item *StoreData, lockID int64, newItem bool) error {
	return p.call(ctx, "set_and_release_item_exclusive", id, func(ctx context.Context, st session.Store) error {
		var items *session.Items
		timeout := p.config.SessionTimeout
		if item != nil {
			items = item.Items
			timeout = item.Timeout * 60
		}
		if newItem {
			return st.Write(ctx, id, timeout, items)
		}
		_, err := st.UpdateAndRelease(ctx, id, lockID, timeout, items)
		return err
	})
}

// ReleaseItemExclusive releases the lock without touching the items. A nil
// lockID is a no-op. A timeout <= 0 uses the configured session timeout.
func (p *Provider) ReleaseItemExclusive(ctx context.Context, id string, lockID *int64, timeoutMinutes int) error {
	if lockID == nil {
		return nil
	}
	timeout := p.config.SessionTimeout
	if timeoutMinutes > 0 {
		timeout = timeoutMinutes * 60
	}
	return p.call(ctx, "release_item_exclusive", id, func(ctx context.Context, st session.Store) error {
		_, err := st.ReleaseOnly(ctx, id, *lockID, timeout)
		return err
	})
}

// RemoveItem deletes the session when lockID still owns it. A nil lockID is a no-op.
func (p *Provider) RemoveItem(ctx context.Context, id string, lockID *int64) error {
	if lockID == nil {
		return nil
	}
	return p.call(ctx, "remove_item", id, func(ctx context.Context, st session.Store) error {
		_, err := st.Remove(ctx, id, *lockID)
		return err
	})
}

// CreateUninitializedItem creates an empty, unlocked session record.
func (p *Provider) CreateUninitializedItem(ctx context.Context, id string, timeoutMinutes int) error {
	return p.call(ctx, "create_uninitialized_item", id, func(ctx context.Context, st session.Store) error {
		return st.CreateUninitialized(ctx, id, timeoutMinutes*60)
	})
}

// ResetItemTimeout refreshes the expiry of an existing session to the configured session timeout.
func (p *Provider) ResetItemTimeout(ctx context.Context, id string) error {
	return p.call(ctx, "reset_item_timeout", id, func(ctx context.Context, st session.Store) error {
		_, err := st.ResetTimeout(ctx, id, p.config.SessionTimeout)
		return err
	})
}

// CreateNewStoreData returns an empty payload with the given timeout in minutes.
func (p *Provider) CreateNewStoreData(timeoutMinutes int) *StoreData {
	return &StoreData{Items: session.NewItems(), Timeout: timeoutMinutes}
}
