package session

import (
	"pkt.systems/pslog"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/codec"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for session stores.
type storeConfig struct {
	namespace string
	set       string
	app       string
	codec     codec.Codec
	clock     clock.Clock
	logger    pslog.Logger
	registrar *Registrar
}

func defaultStoreConfig() *storeConfig {
	return &storeConfig{
		namespace: "test",
		set:       "test",
		codec:     codec.Default(),
		clock:     clock.Real{},
		logger:    pslog.NoopLogger(),
	}
}

// WithScope sets the namespace, set and application name records are keyed under.
func WithScope(namespace, set, app string) StoreOption {
	return func(c *storeConfig) {
		c.namespace = namespace
		c.set = set
		c.app = app
	}
}

// WithCodec sets the codec used for item values.
func WithCodec(cd codec.Codec) StoreOption {
	return func(c *storeConfig) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithClock sets the clock used for lock times and ages.
func WithClock(clk clock.Clock) StoreOption {
	return func(c *storeConfig) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger pslog.Logger) StoreOption {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistrar shares a registrar between stores on the same client so the
// module is installed once. Only used by the procedure strategy.
func WithRegistrar(r *Registrar) StoreOption {
	return func(c *storeConfig) {
		c.registrar = r
	}
}
