package sessionlock

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/sessionlock/codec"
	"github.com/creastat/sessionlock/session"
)

// StoreType selects the store client backing a Provider.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSupabase StoreType = "supabase"
)

// Config holds every provider setting. DefaultConfig returns the values used
// for anything not configured explicitly.
type Config struct {
	// Store backend
	Store StoreType
	// Hosts is a comma separated list of host:port seeds.
	Hosts    string
	User     string
	Password string

	// Supabase project. Only the direct strategy is available on it.
	SupabaseURL   string
	SupabaseKey   string
	SupabaseTable string

	// Record scope
	Namespace       string
	Set             string
	ApplicationName string

	// Client policy
	ConnectionTimeout   time.Duration
	OperationTimeout    time.Duration
	MaxRetries          int
	SleepBetweenRetries time.Duration
	PoolSize            int
	MaxIdle             time.Duration
	// WriteRetries bounds retries of unguarded writes that lose a WATCH race.
	WriteRetries int

	// RequestTimeout bounds every provider call. Zero disables the deadline.
	RequestTimeout time.Duration
	// SessionTimeout is the record TTL in seconds used by ResetItemTimeout.
	SessionTimeout int
	// UseProcedures selects the server-side procedure strategy instead of direct reads and guarded writes.
	UseProcedures bool
	// Codec names the item codec ("json" or "gob").
	Codec string

	// Logging
	LogLevel string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Store:               StoreTypeRedis,
		Hosts:               "127.0.0.1:6379",
		Namespace:           "test",
		Set:                 "test",
		SupabaseTable:       "session_records",
		ConnectionTimeout:   1000 * time.Millisecond,
		OperationTimeout:    100 * time.Millisecond,
		MaxRetries:          1,
		SleepBetweenRetries: 10 * time.Millisecond,
		PoolSize:            300,
		MaxIdle:             55 * time.Second,
		WriteRetries:        3,
		RequestTimeout:      110 * time.Second,
		SessionTimeout:      1200,
		Codec:               "json",
		LogLevel:            "info",
	}
}

// Strategy returns the lock strategy the configuration selects.
func (c Config) Strategy() session.StrategyType {
	if c.UseProcedures {
		return session.StrategyProcedure
	}
	return session.StrategyDirect
}

// Addrs parses Hosts into host:port addresses.
func (c Config) Addrs() ([]string, error) {
	var addrs []string
	for _, seed := range strings.Split(c.Hosts, ",") {
		seed = strings.TrimSpace(seed)
		if seed == "" {
			continue
		}
		host, port, err := net.SplitHostPort(seed)
		if err != nil {
			return nil, fmt.Errorf("%w: host %q: %v", ErrInvalidConfig, seed, err)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil || host == "" {
			return nil, fmt.Errorf("%w: host %q: invalid host or port", ErrInvalidConfig, seed)
		}
		addrs = append(addrs, net.JoinHostPort(host, port))
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no hosts configured", ErrInvalidConfig)
	}
	return addrs, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch c.Store {
	case StoreTypeMemory:
	case StoreTypeRedis:
		if _, err := c.Addrs(); err != nil {
			return err
		}
	case StoreTypeSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("%w: supabase URL and key are required", ErrInvalidConfig)
		}
		if c.UseProcedures {
			return fmt.Errorf("%w: the supabase store has no server-side procedures", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStoreType, c.Store)
	}
	if err := session.ValidateScope(c.Namespace, c.Set, c.ApplicationName); err != nil {
		return err
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: session timeout must be positive", ErrInvalidConfig)
	}
	if c.PoolSize < 0 || c.MaxRetries < 0 || c.WriteRetries < 0 {
		return fmt.Errorf("%w: negative pool size or retry count", ErrInvalidConfig)
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Type", string(c.Store))
	if c.Store == StoreTypeRedis {
		addField("Hosts", c.Hosts)
		if c.User != "" {
			addField("User", c.User)
		}
		addField("Password", strings.Repeat("*", min(len(c.Password), 8)))
		addField("Connection Timeout", c.ConnectionTimeout.String())
		addField("Operation Timeout", c.OperationTimeout.String())
		addField("Max Retries", strconv.Itoa(c.MaxRetries))
		addField("Retry Backoff", c.SleepBetweenRetries.String())
		addField("Pool Size", strconv.Itoa(c.PoolSize))
		addField("Max Idle", c.MaxIdle.String())
		addField("Write Retries", strconv.Itoa(c.WriteRetries))
	}
	if c.Store == StoreTypeSupabase {
		addField("URL", c.SupabaseURL)
		addField("Key", strings.Repeat("*", min(len(c.SupabaseKey), 8)))
		addField("Table", c.SupabaseTable)
		addField("Write Retries", strconv.Itoa(c.WriteRetries))
	}

	addSection("Session")
	addField("Namespace", c.Namespace)
	addField("Set", c.Set)
	addField("Application", c.ApplicationName)
	addField("Strategy", string(c.Strategy()))
	addField("Codec", c.Codec)
	addField("Session Timeout", fmt.Sprintf("%d sec", c.SessionTimeout))
	addField("Request Timeout", c.RequestTimeout.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
