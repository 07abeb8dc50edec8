package session

import (
	"context"
	"fmt"

	"github.com/creastat/sessionlock/sessionstate"
	"github.com/creastat/sessionlock/store"
)

// StrategyType selects how the lock protocol is executed.
type StrategyType string

const (
	// StrategyDirect reads the record and decides in process, then writes with a generation guard.
	StrategyDirect StrategyType = "direct"
	// StrategyProcedure runs each operation atomically inside the store through the sessionstate module.
	StrategyProcedure StrategyType = "procedure"
)

// ParseStrategy converts a name into a StrategyType.
func ParseStrategy(name string) (StrategyType, error) {
	switch StrategyType(name) {
	case StrategyDirect, StrategyProcedure:
		return StrategyType(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
}

// NewStore creates a session Store executing the given strategy over client.
// The procedure strategy makes sure the sessionstate module is installed
// before returning and fails if it cannot be.
func NewStore(ctx context.Context, strategy StrategyType, client store.Client, opts ...StoreOption) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil store client", ErrInvalidConfig)
	}
	config := defaultStoreConfig()

	// Apply options
	for _, opt := range opts {
		opt(config)
	}
	if err := ValidateScope(config.namespace, config.set, config.app); err != nil {
		return nil, err
	}
	base := newEngine(client, config, strategy)

	switch strategy {
	case StrategyDirect:
		return &directStore{engine: base}, nil

	case StrategyProcedure:
		registrar := config.registrar
		if registrar == nil {
			registrar = NewRegistrar(client, sessionstate.Module(), config.logger)
		}
		if err := registrar.Ensure(ctx); err != nil {
			return nil, err
		}
		return &procedureStore{engine: base}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}
}
