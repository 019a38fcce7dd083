package sandbox

import "tradecore/internal/model"

// ScriptFunc is a loaded algorithm's top-level decision function: given the
// working sequence of candlesticks (oldest first), it returns the raw
// decision value the Supervisor coerces into a BUY/SELL/no-op.
type ScriptFunc func(sequence []model.Candlestick) (float64, error)

// Runtime loads a prepared script source and locates its top-level decision
// function. Implementations never touch the filesystem or network
// themselves; the Script Host process they run in is the actual isolation
// boundary.
type Runtime interface {
	Load(source string) (ScriptFunc, error)
}
