package sessionstate

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cast"

	"github.com/creastat/sessionlock/store"
)

func getItemExclusive(rec *store.ProcRecord, args []any) (any, error) {
	now, err := int64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	if !rec.Exists() {
		return nil, nil
	}
	r := rec.Record()
	lockID := r.Int64(BinLockID)
	timeout := int64(r.Int(BinSessionTimeout))
	if r.Bool(BinLocked) {
		return []any{int64(1), lockID, strconv.FormatInt(r.Int64(BinLockTime), 10), timeout}, nil
	}

	lockID++
	rec.Update(store.Bins{
		BinLocked:   true,
		BinLockID:   lockID,
		BinLockTime: now,
	}, int(timeout))
	reply := []any{int64(0), lockID, strconv.FormatInt(now, 10), timeout}
	if r.Has(BinSessionItems) {
		reply = append(reply, flattenItems(r.Map(BinSessionItems)))
	}
	return reply, nil
}

func mergeItemExclusive(rec *store.ProcRecord, args []any) (any, error) {
	lockID, err := int64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	ttl, err := intArg(args, 1)
	if err != nil {
		return nil, err
	}
	deleted, err := listArg(args, 2)
	if err != nil {
		return nil, err
	}
	modified, err := mapArg(args, 3)
	if err != nil {
		return nil, err
	}
	if !owns(rec, lockID) {
		return int64(0), nil
	}

	items := make(map[string][]byte)
	for name, value := range rec.Record().Map(BinSessionItems) {
		items[name] = value
	}
	for _, name := range deleted {
		delete(items, name)
	}
	for name, value := range modified {
		items[name] = value
	}
	release(rec, ttl, items)
	return int64(1), nil
}

func writeItemExclusive(rec *store.ProcRecord, args []any) (any, error) {
	lockID, err := int64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	ttl, err := intArg(args, 1)
	if err != nil {
		return nil, err
	}
	items, err := mapArg(args, 2)
	if err != nil {
		return nil, err
	}
	if !owns(rec, lockID) {
		return int64(0), nil
	}
	if items == nil {
		items = map[string][]byte{}
	}
	release(rec, ttl, items)
	return int64(1), nil
}

func releaseItemExclusive(rec *store.ProcRecord, args []any) (any, error) {
	lockID, err := int64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	ttl, err := intArg(args, 1)
	if err != nil {
		return nil, err
	}
	if !owns(rec, lockID) {
		return int64(0), nil
	}
	release(rec, ttl, nil)
	return int64(1), nil
}

func resetItemTimeout(rec *store.ProcRecord, args []any) (any, error) {
	ttl, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	if !rec.Exists() {
		return int64(0), nil
	}
	rec.Update(store.Bins{BinSessionTimeout: ttl}, ttl)
	return int64(1), nil
}

func removeItem(rec *store.ProcRecord, args []any) (any, error) {
	lockID, err := int64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	if !owns(rec, lockID) {
		return int64(0), nil
	}
	rec.Remove()
	return int64(1), nil
}

func owns(rec *store.ProcRecord, lockID int64) bool {
	r := rec.Record()
	return rec.Exists() && r.Has(BinLockID) && r.Int64(BinLockID) == lockID
}

// release unlocks the record. A nil items map leaves SessionItems untouched.
func release(rec *store.ProcRecord, ttl int, items map[string][]byte) {
	bins := store.Bins{
		BinLocked:         false,
		BinSessionTimeout: ttl,
	}
	if items != nil {
		bins[BinSessionItems] = items
	}
	rec.Update(bins, ttl)
}

func flattenItems(items map[string][]byte) []any {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	flat := make([]any, 0, 2*len(items))
	for _, name := range names {
		flat = append(flat, name, string(items[name]))
	}
	return flat
}

func arg(args []any, i int) (any, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("sessionstate: missing argument %d", i)
	}
	return args[i], nil
}

func int64Arg(args []any, i int) (int64, error) {
	v, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("sessionstate: argument %d: %w", i, err)
	}
	return n, nil
}

func intArg(args []any, i int) (int, error) {
	n, err := int64Arg(args, i)
	return int(n), err
}

func listArg(args []any, i int) ([]string, error) {
	v, err := arg(args, i)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	list, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("sessionstate: argument %d: %w", i, err)
	}
	return list, nil
}

func mapArg(args []any, i int) (map[string][]byte, error) {
	v, err := arg(args, i)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string][]byte:
		return m, nil
	default:
		return nil, fmt.Errorf("sessionstate: argument %d: unexpected type %T", i, v)
	}
}
