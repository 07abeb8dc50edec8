package store

import "context"

// Client is the key-value cache used by the session lock engine.
// Implementations must be safe for concurrent use.
type Client interface {
	// Get reads a record. When binNames is empty every bin is returned.
	// Returns a nil record and a nil error when the record does not exist.
	Get(ctx context.Context, key Key, binNames ...string) (*Record, error)

	// Put writes bins to a record, creating it unless policy.UpdateOnly is set.
	// Returns ErrGeneration when a guarded write finds a different generation
	// or no record at all, and ErrNotFound when UpdateOnly finds no record.
	Put(ctx context.Context, key Key, policy WritePolicy, bins Bins) error

	// Delete removes a record and reports whether it existed.
	// Returns ErrGeneration when a guarded delete finds a different generation.
	Delete(ctx context.Context, key Key, policy WritePolicy) (existed bool, err error)

	// Execute runs module.function atomically against the record.
	// Returns ErrModuleNotFound when the module was never registered or looked
	// up through this client.
	Execute(ctx context.Context, key Key, module, function string, args ...any) (any, error)

	// HasModule reports whether the module is installed in the store.
	HasModule(ctx context.Context, module Module) (bool, error)

	// RegisterModule installs the module. Installing an identical module twice is a no-op.
	RegisterModule(ctx context.Context, module Module) error

	// Close releases the client's resources.
	Close() error
}
