package priceanchor

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/config"
	"tradecore/internal/model"
)

type fakeStore struct {
	ids    []string
	idsErr error

	mu       sync.Mutex
	appended []model.LedgerEntry
}

func (f *fakeStore) AlgorithmIDs(ctx context.Context) ([]string, error) {
	return f.ids, f.idsErr
}

func (f *fakeStore) Append(ctx context.Context, entry model.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, entry)
	return nil
}

func TestSweep_AppendsZeroDeltaRowPerAlgorithm(t *testing.T) {
	store := &fakeStore{ids: []string{"algo-1", "algo-2"}}
	price := decimal.NewFromInt(50000)

	task := New(config.Config{Trading: config.TradingConfig{PriceAnchorPeriodSec: 60}}, store,
		func(ctx context.Context) (decimal.Decimal, error) { return price, nil }, nil)

	task.sweep(context.Background())

	require.Len(t, store.appended, 2)
	for _, entry := range store.appended {
		assert.Equal(t, model.ActionNone, entry.Action)
		assert.True(t, entry.DeltaAssetA.IsZero())
		assert.True(t, entry.DeltaAssetB.IsZero())
		assert.True(t, entry.ReferencePrice.Equal(price))
	}
}

func TestSweep_NoAlgorithmsSkipsPriceFetch(t *testing.T) {
	store := &fakeStore{ids: nil}
	called := false

	task := New(config.Config{}, store, func(ctx context.Context) (decimal.Decimal, error) {
		called = true
		return decimal.Zero, nil
	}, nil)

	task.sweep(context.Background())

	assert.False(t, called)
	assert.Empty(t, store.appended)
}

func TestSweep_PriceFetchFailureSkipsAllAppends(t *testing.T) {
	store := &fakeStore{ids: []string{"algo-1"}}

	task := New(config.Config{}, store, func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.Zero, assert.AnError
	}, nil)

	task.sweep(context.Background())

	assert.Empty(t, store.appended)
}
