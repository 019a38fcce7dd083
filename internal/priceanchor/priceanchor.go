// Package priceanchor runs the Price-Anchor Task: every configured period
// it writes a zero-delta ledger row at the current price for every known
// algorithm, so a chart with no trades still advances.
package priceanchor

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"tradecore/internal/config"
	"tradecore/internal/core"
	"tradecore/internal/ledger"
	"tradecore/internal/model"
	"tradecore/pkg/concurrency"
)

// Store is the persistence collaborator the task needs: the set of known
// algorithm ids and the ledger append operation.
type Store interface {
	AlgorithmIDs(ctx context.Context) ([]string, error)
	Append(ctx context.Context, entry model.LedgerEntry) error
}

// PriceSource returns the current reference price to anchor with.
type PriceSource func(ctx context.Context) (decimal.Decimal, error)

var _ Store = (*ledger.Ledger)(nil)

// Task schedules the anchor sweep on a cron.
type Task struct {
	store  Store
	price  PriceSource
	period int
	logger core.ILogger

	cron *cron.Cron
	pool *concurrency.WorkerPool
}

// New builds a Task that anchors every cfg.Trading.PriceAnchorPeriodSec
// seconds. Appends for a sweep's algorithm ids fan out across a bounded
// worker pool instead of running one at a time, so one slow append doesn't
// hold up the rest of a sweep with many registered algorithms.
func New(cfg config.Config, store Store, price PriceSource, logger core.ILogger) *Task {
	return &Task{
		store:  store,
		price:  price,
		period: cfg.Trading.PriceAnchorPeriodSec,
		logger: logger,
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:       "price-anchor-append",
			MaxWorkers: 8,
		}, logger),
	}
}

// Start begins the scheduled sweep; it returns immediately.
func (t *Task) Start() {
	t.cron = cron.New()
	spec := fmt.Sprintf("@every %ds", t.period)
	_, _ = t.cron.AddFunc(spec, func() {
		t.sweep(context.Background())
	})
	t.cron.Start()
}

// Stop halts the scheduled sweep, waiting for any in-flight run and its
// fanned-out appends to finish.
func (t *Task) Stop() {
	if t.cron != nil {
		ctx := t.cron.Stop()
		<-ctx.Done()
	}
	t.pool.Stop()
}

// sweep runs one anchor cycle: fetch the current price once, then append a
// zero-delta row for every known algorithm, fanned out across the pool.
func (t *Task) sweep(ctx context.Context) {
	ids, err := t.store.AlgorithmIDs(ctx)
	if err != nil {
		if t.logger != nil {
			t.logger.Error("price anchor failed to list algorithms", "error", err)
		}
		return
	}
	if len(ids) == 0 {
		return
	}

	price, err := t.price(ctx)
	if err != nil {
		if t.logger != nil {
			t.logger.Error("price anchor failed to fetch price", "error", err)
		}
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		entry := model.LedgerEntry{
			AlgorithmID:    id,
			Action:         model.ActionNone,
			DeltaAssetA:    decimal.Zero,
			DeltaAssetB:    decimal.Zero,
			ReferencePrice: price,
		}
		wg.Add(1)
		if err := t.pool.Submit(func() {
			defer wg.Done()
			if err := t.store.Append(ctx, entry); err != nil && t.logger != nil {
				t.logger.Error("price anchor append failed", "algorithm_id", id, "error", err)
			}
		}); err != nil {
			wg.Done()
			if t.logger != nil {
				t.logger.Error("price anchor failed to submit append", "algorithm_id", id, "error", err)
			}
		}
	}
	wg.Wait()
}
