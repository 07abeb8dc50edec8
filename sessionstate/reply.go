package sessionstate

import (
	"fmt"

	"github.com/spf13/cast"
)

// ExclusiveReply is the decoded result of GetItemExclusive.
type ExclusiveReply struct {
	// Found is false when the record does not exist.
	Found bool
	// Locked reports that another holder owned the lock, so nothing was acquired.
	Locked bool
	LockID int64
	// LockTime is the lock time in ticks.
	LockTime int64
	Timeout  int
	// Items is nil when the record has no SessionItems bin.
	Items map[string][]byte
}

// ParseExclusiveReply decodes a GetItemExclusive reply from either driver.
func ParseExclusiveReply(v any) (ExclusiveReply, error) {
	if v == nil {
		return ExclusiveReply{}, nil
	}
	fields, ok := v.([]any)
	if !ok || len(fields) < 4 {
		return ExclusiveReply{}, fmt.Errorf("sessionstate: malformed reply %v", v)
	}

	var (
		reply = ExclusiveReply{Found: true}
		err   error
	)
	status, err := cast.ToInt64E(fields[0])
	if err != nil {
		return ExclusiveReply{}, fmt.Errorf("sessionstate: reply status: %w", err)
	}
	reply.Locked = status == 1
	if reply.LockID, err = cast.ToInt64E(fields[1]); err != nil {
		return ExclusiveReply{}, fmt.Errorf("sessionstate: reply lock id: %w", err)
	}
	if reply.LockTime, err = cast.ToInt64E(fields[2]); err != nil {
		return ExclusiveReply{}, fmt.Errorf("sessionstate: reply lock time: %w", err)
	}
	if reply.Timeout, err = cast.ToIntE(fields[3]); err != nil {
		return ExclusiveReply{}, fmt.Errorf("sessionstate: reply timeout: %w", err)
	}
	if len(fields) > 4 {
		if reply.Items, err = parseItems(fields[4]); err != nil {
			return ExclusiveReply{}, err
		}
	}
	return reply, nil
}

func parseItems(v any) (map[string][]byte, error) {
	flat, ok := v.([]any)
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("sessionstate: malformed items %v", v)
	}
	items := make(map[string][]byte, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		name, err := cast.ToStringE(flat[i])
		if err != nil {
			return nil, fmt.Errorf("sessionstate: item name: %w", err)
		}
		switch value := flat[i+1].(type) {
		case string:
			items[name] = []byte(value)
		case []byte:
			items[name] = value
		default:
			return nil, fmt.Errorf("sessionstate: item %s: unexpected type %T", name, value)
		}
	}
	return items, nil
}

// ParseApplied decodes the 1/0 reply of the ownership-gated functions.
func ParseApplied(v any) (bool, error) {
	n, err := cast.ToInt64E(v)
	if err != nil {
		return false, fmt.Errorf("sessionstate: malformed reply %v: %w", v, err)
	}
	return n == 1, nil
}
