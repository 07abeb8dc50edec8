// Package store defines the contract between the session lock engine and the
// key-value cache that holds session records.
//
// The cache is addressed by Key (namespace, set and user key) and stores a
// Record: a flat set of named bins plus a store-assigned generation counter
// that increments on every successful write. The generation is the only
// concurrency primitive the engine relies on:
//
//   - Put and Delete accept a WritePolicy whose ExpectGeneration flag turns
//     them into guarded operations that fail with ErrGeneration unless the
//     stored generation still equals WritePolicy.Generation.
//   - Execute runs a named function of a registered Module atomically
//     against a single record inside the store.
//
// Implementations:
//
//   - store/memory: an in-process client used for tests and single-node
//     deployments.
//   - store/redisstore: a Redis client. Records are hashes, guarded writes
//     use WATCH/MULTI and modules are Lua scripts.
//   - store/supabasestore: a Supabase (PostgREST) client. Records are table
//     rows, guarded writes are updates filtered on the generation column and
//     there are no modules.
//
// store/logging wraps any Client with debug logging and tracing spans.
package store
