// Package scripthost provides the integrity check and filesystem/IPC
// conventions shared between the Algorithm Supervisor (which spawns the
// Script Host subprocess) and the Script Host binary itself
// (cmd/scripthost).
package scripthost

import (
	"fmt"
	"path/filepath"

	"tradecore/internal/config"
)

// ScriptExtension is the file extension user algorithm source is stored
// under in the trading-algos directory.
const ScriptExtension = "py"

// SocketPath returns the local IPC socket path for algorithm id.
func SocketPath(paths config.PathsConfig, id string) string {
	return filepath.Join(paths.SocketsDir, fmt.Sprintf("%s.sock", id))
}

// ShmemPath returns the one-shot shared-memory handoff path for algorithm id.
func ShmemPath(paths config.PathsConfig, id string) string {
	return filepath.Join(paths.ShmemDir, fmt.Sprintf("%s.bin", id))
}

// ScriptPath returns the user algorithm source path for algorithm id.
func ScriptPath(paths config.PathsConfig, id string) string {
	return filepath.Join(paths.TradingAlgosDir, fmt.Sprintf("%s.%s", id, ScriptExtension))
}
