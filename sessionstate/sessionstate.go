// Package sessionstate defines the session record layout and the
// "sessionstate" store module: the functions that lock, update, release and
// remove a session record atomically inside the store.
//
// The module ships in two forms with identical semantics. Source is a Lua
// program run by Redis; Funcs is the Go implementation run by the in-memory
// store. Both return replies of the same shape so that callers parse them
// with ParseExclusiveReply and ParseApplied regardless of the driver.
package sessionstate

import (
	_ "embed"

	"github.com/creastat/sessionlock/store"
)

// Name is the module name the functions are registered under.
const Name = "sessionstate"

// Record bins.
const (
	BinLocked         = "Locked"
	BinLockID         = "LockId"
	BinLockTime       = "LockTime"
	BinSessionTimeout = "SessionTimeout"
	BinSessionItems   = "SessionItems"
)

// Module functions.
const (
	FuncGetItemExclusive     = "GetItemExclusive"
	FuncMergeItemExclusive   = "MergeItemExclusive"
	FuncWriteItemExclusive   = "WriteItemExclusive"
	FuncReleaseItemExclusive = "ReleaseItemExclusive"
	FuncResetItemTimeout     = "ResetItemTimeout"
	FuncRemoveItem           = "RemoveItem"
)

//go:embed sessionstate.lua
var source string

// Source returns the Lua program of the module.
func Source() string {
	return source
}

// Module returns the sessionstate module.
func Module() store.Module {
	return store.Module{
		Name:   Name,
		Source: source,
		Funcs: map[string]store.ProcFunc{
			FuncGetItemExclusive:     getItemExclusive,
			FuncMergeItemExclusive:   mergeItemExclusive,
			FuncWriteItemExclusive:   writeItemExclusive,
			FuncReleaseItemExclusive: releaseItemExclusive,
			FuncResetItemTimeout:     resetItemTimeout,
			FuncRemoveItem:           removeItem,
		},
	}
}
