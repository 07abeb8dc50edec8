package session

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

const (
	outcomeOK       = "ok"
	outcomeNoop     = "noop"
	outcomeLocked   = "locked"
	outcomeNotFound = "not_found"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

// observe counts one engine operation in the default metrics set.
func observe(strategy StrategyType, op, outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(
		`sessionlock_operations_total{strategy=%q,op=%q,outcome=%q}`,
		string(strategy), op, outcome,
	)).Inc()
}

func outcomeOf(applied bool, err error) string {
	switch {
	case err != nil:
		return outcomeError
	case applied:
		return outcomeOK
	default:
		return outcomeNoop
	}
}

// OperationCount returns how often op finished with outcome under strategy.
func OperationCount(strategy StrategyType, op, outcome string) uint64 {
	return metrics.GetOrCreateCounter(fmt.Sprintf(
		`sessionlock_operations_total{strategy=%q,op=%q,outcome=%q}`,
		string(strategy), op, outcome,
	)).Get()
}
