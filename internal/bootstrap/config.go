package bootstrap

import (
	"fmt"
	"os"
	"tradecore/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader, then runs pre-flight
// checks schema validation alone cannot express.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation: the
// pinned script-host binary must actually exist and be executable, and the
// filesystem layout the Supervisor writes shmem/socket files into must be
// present.
func checkPreFlight(cfg *Config) error {
	info, err := os.Stat(cfg.ScriptHost.BinaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("script_host.binary_path not found: %s", cfg.ScriptHost.BinaryPath)
		}
		return err
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("script_host.binary_path is not executable: %s", cfg.ScriptHost.BinaryPath)
	}

	for field, dir := range map[string]string{
		"paths.trading_algos_dir": cfg.Paths.TradingAlgosDir,
		"paths.shmem_dir":         cfg.Paths.ShmemDir,
		"paths.sockets_dir":       cfg.Paths.SocketsDir,
	} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return fmt.Errorf("%s does not exist or is not a directory: %s", field, dir)
		}
	}

	return nil
}
