package util

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/creastat/sessionlock"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the store and session flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	AddStoreFlags(cmd.PersistentFlags())
}

// AddStoreFlags adds the store and session flags to a flag set
func AddStoreFlags(flags *pflag.FlagSet) {
	def := sessionlock.DefaultConfig()

	flags.String("store", string(def.Store), WrapString("Store backend (memory, redis, supabase). The memory store lives only as long as the command"))
	flags.String("hosts", def.Hosts, WrapString("Comma-separated list of host:port seeds of the store"))
	flags.String("user", def.User, WrapString("User name for the store"))
	flags.String("password", def.Password, WrapString("Password for the store"))
	flags.String("supabase-url", def.SupabaseURL, WrapString("Supabase project URL (supabase store)"))
	flags.String("supabase-key", def.SupabaseKey, WrapString("Supabase API key (supabase store)"))
	flags.String("supabase-table", def.SupabaseTable, WrapString("Table the session records are kept in (supabase store)"))
	flags.String("namespace", def.Namespace, WrapString("Namespace the session records are stored in"))
	flags.String("set", def.Set, WrapString("Set the session records are stored in"))
	flags.String("app", def.ApplicationName, WrapString("Application name prefixed to every session id (must not contain '_')"))
	flags.Duration("connection-timeout", def.ConnectionTimeout, WrapString("Timeout for establishing a connection"))
	flags.Duration("operation-timeout", def.OperationTimeout, WrapString("Timeout for a single store operation"))
	flags.Int("max-retries", def.MaxRetries, WrapString("How many times a failed store command is retried (0 disables retries)"))
	flags.Duration("retry-backoff", def.SleepBetweenRetries, WrapString("Sleep between store command retries"))
	flags.Int("pool-size", def.PoolSize, WrapString("Maximum connections per node"))
	flags.Duration("max-idle", def.MaxIdle, WrapString("Close connections idle for longer than this"))
	flags.Int("write-retries", def.WriteRetries, WrapString("Attempts for unguarded writes that race with another writer"))
	flags.Duration("request-timeout", def.RequestTimeout, WrapString("Deadline for each session operation (0 for none)"))
	flags.Int("session-timeout", def.SessionTimeout, WrapString("Session timeout in seconds used when refreshing a session"))
	flags.Bool("use-procedures", def.UseProcedures, WrapString("Run the lock protocol as server-side procedures instead of read and guarded write"))
	flags.String("codec", def.Codec, WrapString("Codec for session item values (json, gob)"))
	flags.String("log-level", def.LogLevel, WrapString("Log level (trace, debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("sessionlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the provider configuration from viper
func GetConfig() sessionlock.Config {
	return sessionlock.Config{
		Store:               sessionlock.StoreType(viper.GetString("store")),
		Hosts:               viper.GetString("hosts"),
		User:                viper.GetString("user"),
		Password:            viper.GetString("password"),
		SupabaseURL:         viper.GetString("supabase-url"),
		SupabaseKey:         viper.GetString("supabase-key"),
		SupabaseTable:       viper.GetString("supabase-table"),
		Namespace:           viper.GetString("namespace"),
		Set:                 viper.GetString("set"),
		ApplicationName:     viper.GetString("app"),
		ConnectionTimeout:   viper.GetDuration("connection-timeout"),
		OperationTimeout:    viper.GetDuration("operation-timeout"),
		MaxRetries:          viper.GetInt("max-retries"),
		SleepBetweenRetries: viper.GetDuration("retry-backoff"),
		PoolSize:            viper.GetInt("pool-size"),
		MaxIdle:             viper.GetDuration("max-idle"),
		WriteRetries:        viper.GetInt("write-retries"),
		RequestTimeout:      viper.GetDuration("request-timeout"),
		SessionTimeout:      viper.GetInt("session-timeout"),
		UseProcedures:       viper.GetBool("use-procedures"),
		Codec:               viper.GetString("codec"),
		LogLevel:            viper.GetString("log-level"),
	}
}

// NewLogger creates the command logger. SESSIONLOCK_LOG_* environment
// variables configure the output, level overrides the minimum level when valid.
func NewLogger(level string) pslog.Logger {
	logger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("SESSIONLOCK_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "sessionlock")
	if lvl, ok := pslog.ParseLevel(level); ok {
		logger = logger.LogLevel(lvl)
	}
	return logger
}
