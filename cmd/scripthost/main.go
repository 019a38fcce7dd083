// Command scripthost is the Script Host: a process-per-algorithm subprocess
// that maps in its initial candlestick sequence, accepts one IPC
// connection from the Algorithm Supervisor, and on each incoming
// candlestick re-evaluates the algorithm's decision script subject to a
// re-run-period gate.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"tradecore/internal/config"
	"tradecore/internal/core"
	"tradecore/internal/model"
	"tradecore/internal/sandbox"
	"tradecore/internal/scripthost"
	"tradecore/internal/shmem"
	"tradecore/pkg/logging"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: scripthost <algorithm-id> <rerun-period-sec>")
		os.Exit(1)
	}
	algorithmID := os.Args[1]
	rerunPeriodSec, err := strconv.Atoi(os.Args[2])
	if err != nil || rerunPeriodSec <= 0 {
		fmt.Fprintln(os.Stderr, "rerun period must be a positive integer")
		os.Exit(1)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLoggerFromString(cfg.System.LogLevel, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	h := &host{
		id:       algorithmID,
		cfg:      *cfg,
		rerunSec: rerunPeriodSec,
		runtime:  &sandbox.ExprRuntime{},
		logger:   logger,
		counter:  rerunPeriodSec,
	}

	if err := h.run(); err != nil {
		logger.Fatal("script host exited", "algorithm_id", algorithmID, "error", err)
	}
}

type host struct {
	id       string
	cfg      config.Config
	rerunSec int
	runtime  sandbox.Runtime
	logger   core.ILogger

	mu       sync.Mutex
	counter  int
	sequence []model.Candlestick
}

func (h *host) run() error {
	sequence, err := shmem.Read(scripthost.ShmemPath(h.cfg.Paths, h.id))
	if err != nil {
		return fmt.Errorf("failed to read shared-memory handoff: %w", err)
	}
	h.sequence = sequence

	socketPath := scripthost.SocketPath(h.cfg.Paths, h.id)
	_ = os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to bind ipc socket: %w", err)
	}
	defer listener.Close()

	stop := h.startCountdown()
	defer stop()

	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("failed to accept ipc connection: %w", err)
	}
	defer conn.Close()

	for {
		candle, ok, err := scripthost.ReadCandlestick(conn)
		if err != nil {
			h.logger.Warn("feed read failed, ending run", "algorithm_id", h.id, "error", err)
			return nil
		}
		if !ok {
			return nil
		}

		h.appendCandle(candle)

		value, fatalErr := h.execute()
		if fatalErr != nil {
			return fatalErr
		}
		if value == nil {
			continue
		}
		if err := scripthost.WriteResult(conn, *value); err != nil {
			h.logger.Warn("result write failed, ending run", "algorithm_id", h.id, "error", err)
			return nil
		}
	}
}

func (h *host) appendCandle(c model.Candlestick) {
	h.sequence = append(h.sequence, c)
}

// execute enforces the counter gate, then source safety, then invocation.
// A nil value with nil error means the tick was gated by the counter — the
// host writes nothing back and waits for the next tick. Every other
// failure (unreadable source, unsafe source, load failure, invocation
// failure) is fatal and ends the process: the Supervisor's restart loop is
// what recovers from a bad algorithm, not a silently inert subprocess.
func (h *host) execute() (*float64, error) {
	if !h.shouldRun() {
		return nil, nil
	}

	source, err := os.ReadFile(scripthost.ScriptPath(h.cfg.Paths, h.id))
	if err != nil {
		return nil, fmt.Errorf("failed to read algorithm source: %w", err)
	}

	prepared, err := sandbox.Prepare(string(source), h.cfg.ScriptHost.DenyTokens, h.cfg.ScriptHost.AllowedImports)
	if err != nil {
		return nil, fmt.Errorf("algorithm source rejected by safety filter: %w", err)
	}

	fn, err := h.runtime.Load(prepared)
	if err != nil {
		return nil, fmt.Errorf("algorithm failed to load: %w", err)
	}

	value, err := fn(h.sequence)
	if err != nil {
		return nil, fmt.Errorf("algorithm invocation failed: %w", err)
	}
	return &value, nil
}

// shouldRun applies the counter gate: if the re-run period exceeds 5s and
// the counter hasn't reached zero, this tick is skipped; otherwise the
// counter is reset to the re-run period and the tick proceeds.
func (h *host) shouldRun() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rerunSec > 5 && h.counter > 0 {
		return false
	}
	h.counter = h.rerunSec
	return true
}

// startCountdown runs the 1Hz countdown task against the shared counter
// until the returned stop func is called.
func (h *host) startCountdown() func() {
	ticker := time.NewTicker(time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				h.mu.Lock()
				if h.counter > 0 {
					h.counter--
				}
				h.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
