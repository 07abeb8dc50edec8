// Package cmd implements the command-line interface for sessionlock. It
// exposes the session lock protocol against a configured store so records
// can be inspected, locked and released by hand.
//
// The package is organized into subpackages:
//
//   - lock: Commands for session operations (create, get, acquire, update, release, ...)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See sessionlock -help for a list of all commands.
package cmd
