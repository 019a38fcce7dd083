// Command engine is the execution core's long-running process: it loads
// configuration, opens the ledger's database pool, and runs the Algorithm
// Supervisor's restart-supervised algorithms, the Price-Anchor Task, and
// the Chart Broadcaster side by side until told to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"tradecore/internal/bootstrap"
	"tradecore/internal/broadcaster"
	"tradecore/internal/core"
	"tradecore/internal/exchange"
	"tradecore/internal/ledger"
	"tradecore/internal/priceanchor"
	"tradecore/internal/supervisor"
	"tradecore/pkg/telemetry"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	app, err := bootstrap.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, app.Cfg.Database.DSN())
	if err != nil {
		app.Logger.Fatal("failed to open database pool", "error", err)
	}
	defer pool.Close()

	store := ledger.New(pool, app.Logger)
	if err := store.ApplySchema(ctx); err != nil {
		app.Logger.Fatal("failed to apply ledger schema", "error", err)
	}

	sup := supervisor.New(*app.Cfg, store, app.Logger)

	anchorClient := exchange.NewClient(app.Cfg.Exchange, app.Logger)
	anchorPrice := func(ctx context.Context) (decimal.Decimal, error) {
		return anchorClient.Price(ctx, app.Cfg.Trading.Symbol)
	}
	anchor := priceanchor.New(*app.Cfg, store, anchorPrice, app.Logger)
	chart := broadcaster.New(*app.Cfg, store, app.Logger)

	runners := []bootstrap.Runner{
		supervisorRunner{sup: sup, store: store, logger: app.Logger},
		priceAnchorRunner{task: anchor},
		broadcasterRunner{broadcaster: chart, store: store},
	}
	if app.Cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup("tradecore")
		if err != nil {
			app.Logger.Fatal("failed to set up telemetry", "error", err)
		}
		runners = append(runners, metricsRunner{tel: tel, port: app.Cfg.Telemetry.MetricsPort, logger: app.Logger})
	}

	if err := app.Run(runners...); err != nil {
		os.Exit(1)
	}
}

// supervisorRunner restarts every algorithm already registered in the
// ledger at process start, then blocks until ctx is cancelled, stopping
// every active algorithm on the way out.
type supervisorRunner struct {
	sup    *supervisor.Supervisor
	store  *ledger.Ledger
	logger core.ILogger
}

func (r supervisorRunner) Run(ctx context.Context) error {
	ids, err := r.store.AlgorithmIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list algorithms at startup: %w", err)
	}
	startTime := time.Now()
	for _, id := range ids {
		if err := r.sup.Start(ctx, id, startTime); err != nil {
			r.logger.Error("failed to start algorithm at boot", "algorithm_id", id, "error", err)
		}
	}

	<-ctx.Done()

	for _, id := range ids {
		if err := r.sup.Stop(id); err != nil {
			r.logger.Error("failed to stop algorithm during shutdown", "algorithm_id", id, "error", err)
		}
	}
	return nil
}

type priceAnchorRunner struct {
	task *priceanchor.Task
}

func (r priceAnchorRunner) Run(ctx context.Context) error {
	r.task.Start()
	<-ctx.Done()
	r.task.Stop()
	return nil
}

type broadcasterRunner struct {
	broadcaster *broadcaster.Broadcaster
	store       *ledger.Ledger
}

func (r broadcasterRunner) Run(ctx context.Context) error {
	return r.broadcaster.Run(ctx, ":8090", r.store)
}

// metricsRunner serves the Prometheus exporter the OTel SDK registers
// during telemetry.Setup on its own HTTP port, and tears the whole OTel
// provider stack down on shutdown.
type metricsRunner struct {
	tel    *telemetry.Telemetry
	port   int
	logger core.ILogger
}

func (r metricsRunner) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", r.port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("starting metrics server", "port", r.port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("metrics server shutdown failed", "error", err)
	}
	return r.tel.Shutdown(shutdownCtx)
}
