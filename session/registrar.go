package session

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"

	"github.com/creastat/sessionlock/store"
)

// Registrar installs a store module once per process. Ensure looks the
// module up and registers it when it is missing. Concurrent callers wait for
// the running attempt; after a success later calls return immediately, after
// a failure the next call tries again.
type Registrar struct {
	client store.Client
	module store.Module
	logger pslog.Logger

	mu   sync.Mutex
	done bool
}

// NewRegistrar creates a registrar for module on client.
func NewRegistrar(client store.Client, module store.Module, logger pslog.Logger) *Registrar {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Registrar{
		client: client,
		module: module,
		logger: logger.With("svc", "registrar", "module", module.Name),
	}
}

// Ensure makes sure the module is installed.
func (r *Registrar) Ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}

	found, err := r.client.HasModule(ctx, r.module)
	if err != nil {
		r.logger.Error("registrar.lookup.error", "error", err)
		return fmt.Errorf("%w: lookup %s: %w", ErrRegistration, r.module.Name, err)
	}
	if !found {
		if err := r.client.RegisterModule(ctx, r.module); err != nil {
			r.logger.Error("registrar.register.error", "error", err)
			return fmt.Errorf("%w: register %s: %w", ErrRegistration, r.module.Name, err)
		}
		r.logger.Info("registrar.registered")
	} else {
		r.logger.Debug("registrar.found")
	}
	r.done = true
	return nil
}

// Registered reports whether Ensure has succeeded.
func (r *Registrar) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
