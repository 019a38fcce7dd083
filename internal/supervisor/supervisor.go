package supervisor

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/config"
	"tradecore/internal/core"
	"tradecore/internal/exchange"
	"tradecore/internal/ledger"
	"tradecore/internal/model"
	"tradecore/internal/scripthost"
	"tradecore/internal/shmem"
	"tradecore/pkg/retry"
)

// Store is the persistence collaborator the Supervisor needs: algorithm
// lookup, user/credential lookup, and the ledger itself.
type Store interface {
	AlgorithmByID(ctx context.Context, id string) (model.Algorithm, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	Append(ctx context.Context, entry model.LedgerEntry) error
	CurrentFunds(ctx context.Context, algorithmID string, startFundsA, currentPrice decimal.Decimal) (model.FundView, error)
	Reset(ctx context.Context, algorithmID string, currentPrice, startFundsA decimal.Decimal) (decimal.Decimal, error)
}

var _ Store = (*ledger.Ledger)(nil)
var _ fundsSource = (*ledger.Ledger)(nil)

// runningAlgorithm is one active Script Host incarnation and everything it
// owns: the subprocess, IPC socket, streaming order channel, and the price
// cell/feed/drain tasks built around it. It is owned by exactly one
// Supervisor.Start call and torn down as a unit by stop.
type runningAlgorithm struct {
	id        string
	algorithm model.Algorithm
	startTime time.Time

	client      *exchange.Client
	orderStream *exchange.OrderStream
	kstream     *exchange.KlineStream
	priceCache  *priceCache

	cmd    *exec.Cmd
	conn   net.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
	torn   sync.Once
}

// Supervisor implements the Algorithm Supervisor's public contract:
// start/stop/active/reset.
type Supervisor struct {
	cfg      config.Config
	store    Store
	logger   core.ILogger
	registry *handleRegistry

	// OnFatal is invoked when a restart loop's own stop call fails with an
	// AlgorithmError; per the restart-policy invariant this is fatal to the
	// process, not just to the one algorithm.
	OnFatal func(algorithmID string, err error)
}

// New builds a Supervisor bound to store for persistence and cfg for the
// exchange/script-host/path/trading parameters every algorithm run needs.
func New(cfg config.Config, store Store, logger core.ILogger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		registry: newHandleRegistry(),
		OnFatal: func(algorithmID string, err error) {
			if logger != nil {
				logger.Fatal("supervisor restart loop aborted", "algorithm_id", algorithmID, "error", err)
			}
		},
	}
}

// Active reports whether algorithmID currently has a running incarnation.
func (s *Supervisor) Active(algorithmID string) bool {
	return s.registry.active(algorithmID)
}

// Start begins the restart-supervised lifecycle for algorithmID: the first
// incarnation is started synchronously so startup failures (prepend fetch,
// hash mismatch, IPC refusal) can be reported to the caller and the
// algorithm never registered as active; subsequent incarnations are
// restarted by an internal loop on abnormal feed/drain exit.
func (s *Supervisor) Start(ctx context.Context, algorithmID string, startTime time.Time) error {
	if s.registry.active(algorithmID) {
		return apperrors.NewAlgorithmError("algorithm is already active")
	}

	algo, err := s.store.AlgorithmByID(ctx, algorithmID)
	if err != nil {
		return err
	}
	user, err := s.store.UserByID(ctx, algo.UserID)
	if err != nil {
		return err
	}

	ra, err := s.startIncarnation(ctx, algo, user, startTime)
	if err != nil {
		return err
	}

	if err := s.registry.insert(algorithmID, ra); err != nil {
		s.teardown(ra)
		return err
	}

	go s.restartLoop(algorithmID, algo, user, ra)
	return nil
}

// restartLoop waits for the current incarnation's feed/drain tasks to end,
// then stops it, waits a cooldown, and starts a fresh incarnation with the
// same start time — implemented as an explicit loop rather than recursion
// so failure doesn't grow the call stack.
func (s *Supervisor) restartLoop(algorithmID string, algo model.Algorithm, user model.User, ra *runningAlgorithm) {
	current := ra
	for {
		<-current.wgDone()

		if err := s.stopIncarnation(algorithmID, current); err != nil {
			s.OnFatal(algorithmID, err)
			return
		}

		if !s.registry.active(algorithmID) {
			return // Stop() was called externally; do not restart.
		}

		time.Sleep(time.Duration(s.cfg.Trading.RestartCooldownSec) * time.Second)

		if !s.registry.active(algorithmID) {
			return
		}

		next, err := s.startIncarnation(context.Background(), algo, user, current.startTime)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("algorithm restart failed", "algorithm_id", algorithmID, "error", err)
			}
			s.registry.remove(algorithmID)
			return
		}

		s.registry.remove(algorithmID)
		if err := s.registry.insert(algorithmID, next); err != nil {
			s.teardown(next)
			return
		}
		current = next
	}
}

// wgDone returns a channel closed once the incarnation's feed/drain tasks
// have both returned.
func (ra *runningAlgorithm) wgDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		ra.wg.Wait()
		close(done)
	}()
	return done
}

// startIncarnation runs the 10-step start sequence and returns a fully
// wired runningAlgorithm, or the first error encountered — in which case
// the resources acquired so far are released before the error is returned;
// the shmem file written in step 2 is left in place.
func (s *Supervisor) startIncarnation(ctx context.Context, algo model.Algorithm, user model.User, startTime time.Time) (*runningAlgorithm, error) {
	client := exchange.NewClient(s.cfg.Exchange, s.logger)
	client.SetCredentials(user.APIKey, user.APISecret)

	// Step 1: prepend fetch.
	var prepend []model.Candlestick
	if algo.PrependMS > 0 {
		endMS := startTime.UnixMilli()
		startMS := endMS - algo.PrependMS
		var err error
		prepend, err = client.Klines(ctx, s.cfg.Trading.Symbol, algo.Interval, startMS, endMS)
		if err != nil {
			return nil, err
		}
	}

	// Step 2: shmem handoff.
	shmemPath := scripthost.ShmemPath(s.cfg.Paths, algo.ID)
	if err := shmem.Write(shmemPath, prepend); err != nil {
		return nil, err
	}

	// Step 3: binary integrity check.
	if err := scripthost.VerifyBinary(s.cfg.ScriptHost.BinaryPath, s.cfg.ScriptHost.PinnedHashHex); err != nil {
		return nil, err
	}

	// Step 4: spawn Script Host subprocess.
	cmd := exec.Command(s.cfg.ScriptHost.BinaryPath, algo.ID, fmt.Sprintf("%d", algo.RerunPeriodSec))
	if err := cmd.Start(); err != nil {
		return nil, apperrors.NewAlgorithmError(fmt.Sprintf("failed to spawn script host: %v", err))
	}

	// Step 5: connect to the IPC socket with bounded retry.
	socketPath := scripthost.SocketPath(s.cfg.Paths, algo.ID)
	conn, err := dialWithRetry(socketPath, s.cfg.Trading.IPCConnectRetries, time.Duration(s.cfg.Trading.IPCConnectBackoffSec)*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	// Step 6: open the streaming order channel.
	orderStream := exchange.OpenOrderStream(s.cfg.Exchange.WSAPIURL, client.Signer(), s.logger)

	// Step 7: price cache, seeded synchronously then refreshed every 10s.
	price, err := client.Price(ctx, s.cfg.Trading.Symbol)
	if err != nil {
		conn.Close()
		orderStream.Close()
		_ = cmd.Process.Kill()
		return nil, err
	}
	cache := newPriceCache()
	cache.set(price)
	cache.startRefresh(func(ctx context.Context) (decimal.Decimal, error) {
		return client.Price(ctx, s.cfg.Trading.Symbol)
	}, s.logger)

	// Step 8: streaming klines for the feed task.
	kstream, ticks, err := exchange.StreamKlines(s.cfg.Exchange.WSStreamURL, s.cfg.Trading.Symbol, algo.Interval, s.logger)
	if err != nil {
		cache.stop()
		conn.Close()
		orderStream.Close()
		_ = cmd.Process.Kill()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ra := &runningAlgorithm{
		id:          algo.ID,
		algorithm:   algo,
		startTime:   startTime,
		client:      client,
		orderStream: orderStream,
		kstream:     kstream,
		priceCache:  cache,
		cmd:         cmd,
		conn:        conn,
		cancel:      cancel,
	}

	// Steps 9-10: feed and drain tasks.
	ra.wg.Add(2)
	go s.feedTask(runCtx, ra, ticks)
	go s.drainTask(runCtx, ra)

	return ra, nil
}

func dialWithRetry(path string, attempts int, backoff time.Duration) (net.Conn, error) {
	var conn net.Conn
	policy := retry.RetryPolicy{MaxAttempts: attempts, InitialBackoff: backoff, MaxBackoff: backoff}
	alwaysTransient := func(error) bool { return true }

	err := retry.Do(context.Background(), policy, alwaysTransient, func() error {
		c, dialErr := net.Dial("unix", path)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStreamError("failed to connect to script host after retries", err)
	}
	return conn, nil
}

func (s *Supervisor) feedTask(ctx context.Context, ra *runningAlgorithm, ticks <-chan model.Candlestick) {
	defer ra.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-ticks:
			if !ok {
				return
			}
			if err := scripthost.WriteCandlestick(ra.conn, candle); err != nil {
				if s.logger != nil {
					s.logger.Error("feed task write failed", "algorithm_id", ra.id, "error", err)
				}
				return
			}
		}
	}
}

func (s *Supervisor) drainTask(ctx context.Context, ra *runningAlgorithm) {
	defer ra.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		value, ok, err := scripthost.ReadResult(ra.conn)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("drain task parse failure, ending task", "algorithm_id", ra.id, "error", err)
			}
			return
		}
		if !ok {
			return // zero-length read ends the task normally.
		}

		if procErr := s.process(ctx, ra, value); procErr != nil && s.logger != nil {
			s.logger.Warn("decision rejected", "algorithm_id", ra.id, "error", procErr)
		}
	}
}

// stopIncarnation tears down one running incarnation: closes its IPC
// socket and streaming order channel, stops its price refresher, and kills
// its subprocess.
func (s *Supervisor) stopIncarnation(algorithmID string, ra *runningAlgorithm) error {
	ra.cancel()
	s.teardown(ra)
	return nil
}

func (s *Supervisor) teardown(ra *runningAlgorithm) {
	ra.torn.Do(func() {
		if ra.conn != nil {
			ra.conn.Close()
		}
		if ra.orderStream != nil {
			ra.orderStream.Close()
		}
		if ra.kstream != nil {
			ra.kstream.Close()
		}
		if ra.priceCache != nil {
			ra.priceCache.stop()
		}
		if ra.cmd != nil && ra.cmd.Process != nil {
			_ = ra.cmd.Process.Kill()
			_ = ra.cmd.Wait()
		}
	})
}

// Stop ends algorithmID's running incarnation and removes it from the
// registry so the restart loop does not bring it back.
func (s *Supervisor) Stop(algorithmID string) error {
	ra, ok := s.registry.get(algorithmID)
	if !ok {
		return apperrors.NewAlgorithmError("algorithm is not active")
	}
	s.registry.remove(algorithmID)
	return s.stopIncarnation(algorithmID, ra)
}

// Reset clears algorithmID's ledger history and replaces its start funds
// with the current balance snapshot. It refuses while the algorithm is
// active: resetting a running algorithm's history out from under it would
// silently mutate a live incarnation's accounting.
func (s *Supervisor) Reset(ctx context.Context, algorithmID string) error {
	if s.registry.active(algorithmID) {
		return apperrors.NewAlgorithmError("algorithm is still running")
	}

	algo, err := s.store.AlgorithmByID(ctx, algorithmID)
	if err != nil {
		return err
	}
	user, err := s.store.UserByID(ctx, algo.UserID)
	if err != nil {
		return err
	}

	client := exchange.NewClient(s.cfg.Exchange, s.logger)
	client.SetCredentials(user.APIKey, user.APISecret)
	price, err := client.Price(ctx, s.cfg.Trading.Symbol)
	if err != nil {
		return err
	}

	_, err = s.store.Reset(ctx, algorithmID, price, algo.StartFundsA)
	return err
}
