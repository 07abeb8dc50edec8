package sessionlock

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:6379", cfg.Hosts)
	assert.Equal(t, "test", cfg.Namespace)
	assert.Equal(t, "test", cfg.Set)
	assert.Equal(t, time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.OperationTimeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.SleepBetweenRetries)
	assert.Equal(t, 300, cfg.PoolSize)
	assert.Equal(t, 55*time.Second, cfg.MaxIdle)
	assert.Equal(t, 1200, cfg.SessionTimeout)
	assert.False(t, cfg.UseProcedures)
	assert.Equal(t, session.StrategyDirect, cfg.Strategy())
}

func TestConfigAddrs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hosts = "10.0.0.1:6379, 10.0.0.2:6380,"
	addrs, err := cfg.Addrs()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:6379", "10.0.0.2:6380"}, addrs)

	for _, hosts := range []string{"", "nohost", "host:notaport", ":6379", "host:99999"} {
		cfg.Hosts = hosts
		_, err := cfg.Addrs()
		assert.ErrorIs(t, err, ErrInvalidConfig, hosts)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"unknown store", func(c *Config) { c.Store = "aerospike" }, ErrInvalidStoreType},
		{"bad hosts", func(c *Config) { c.Hosts = "x" }, ErrInvalidConfig},
		{"app with underscore", func(c *Config) { c.ApplicationName = "my_app" }, ErrInvalidConfig},
		{"zero session timeout", func(c *Config) { c.SessionTimeout = 0 }, ErrInvalidConfig},
		{"negative pool", func(c *Config) { c.PoolSize = -1 }, ErrInvalidConfig},
		{"unknown codec", func(c *Config) { c.Codec = "xml" }, ErrInvalidConfig},
		{"supabase without key", func(c *Config) {
			c.Store = StoreTypeSupabase
			c.SupabaseURL = "https://example.supabase.co"
		}, ErrInvalidConfig},
		{"supabase with procedures", func(c *Config) {
			c.Store = StoreTypeSupabase
			c.SupabaseURL = "https://example.supabase.co"
			c.SupabaseKey = "key"
			c.UseProcedures = true
		}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}

	cfg := DefaultConfig()
	cfg.Store = StoreTypeMemory
	cfg.Hosts = ""
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store = StoreTypeSupabase
	cfg.SupabaseURL = "https://example.supabase.co"
	cfg.SupabaseKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	cfg.UseProcedures = true
	out := cfg.String()
	assert.Contains(t, out, "STORE")
	assert.Contains(t, out, "127.0.0.1:6379")
	assert.Contains(t, out, "procedure")
	assert.Contains(t, out, "1200 sec")
	assert.NotContains(t, out, "secret")

	cfg = DefaultConfig()
	cfg.Store = StoreTypeSupabase
	cfg.SupabaseURL = "https://example.supabase.co"
	cfg.SupabaseKey = "service-role-key"
	out = cfg.String()
	assert.Contains(t, out, "session_records")
	assert.NotContains(t, out, "service-role-key")
}

func TestConfigValidateScopeMessage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplicationName = "my_app"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 1, strings.Count(err.Error(), "invalid configuration"))
}
