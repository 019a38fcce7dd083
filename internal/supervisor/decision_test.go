package supervisor

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/exchange"
	"tradecore/internal/model"
)

type fakeFundsSource struct {
	funds    model.FundView
	appended []model.LedgerEntry
}

func (f *fakeFundsSource) CurrentFunds(ctx context.Context, algorithmID string, startFundsA, currentPrice decimal.Decimal) (model.FundView, error) {
	return f.funds, nil
}

func (f *fakeFundsSource) Append(ctx context.Context, entry model.LedgerEntry) error {
	f.appended = append(f.appended, entry)
	return nil
}

type fakeBalances struct {
	assetA, assetB decimal.Decimal
}

func (f *fakeBalances) Balance(ctx context.Context, assetA, assetB string) (decimal.Decimal, decimal.Decimal, error) {
	return f.assetA, f.assetB, nil
}

type fakeOrders struct {
	submitted bool
}

func (f *fakeOrders) SubmitMarketOrder(symbol, side string, quantity decimal.Decimal, clientOrderID string) (exchange.Receipt, error) {
	f.submitted = true
	return exchange.Receipt{OrderID: "1", ClientOrderID: clientOrderID, Status: "FILLED"}, nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestApplyDecision_ZeroIsNoOp(t *testing.T) {
	store := &fakeFundsSource{funds: model.FundView{CurrentAssetA: d("1000"), CurrentAssetB: d("1")}}
	balances := &fakeBalances{assetA: d("1000"), assetB: d("1")}
	orders := &fakeOrders{}

	err := applyDecision(context.Background(), store, balances, orders, decisionInput{
		algorithmID: "algo-1",
		symbol:      "BTCUSDT",
		assetA:      "USDT",
		assetB:      "BTC",
		price:       d("100"),
		decision:    0,
	})

	require.NoError(t, err)
	assert.False(t, orders.submitted)
	assert.Empty(t, store.appended)
}

func TestApplyDecision_BuyAccepted(t *testing.T) {
	store := &fakeFundsSource{funds: model.FundView{CurrentAssetA: d("1000"), CurrentAssetB: d("1")}}
	balances := &fakeBalances{assetA: d("1000"), assetB: d("1")}
	orders := &fakeOrders{}

	err := applyDecision(context.Background(), store, balances, orders, decisionInput{
		algorithmID: "algo-1",
		symbol:      "BTCUSDT",
		assetA:      "USDT",
		assetB:      "BTC",
		price:       d("100"),
		decision:    2,
	})

	require.NoError(t, err)
	assert.True(t, orders.submitted)
	require.Len(t, store.appended, 1)
	entry := store.appended[0]
	assert.Equal(t, model.ActionBuy, entry.Action)
	assert.True(t, entry.DeltaAssetB.Equal(d("2")))
	assert.True(t, entry.DeltaAssetA.Equal(d("-200")))
}

func TestApplyDecision_OversellRejected_InsufficientAlgorithmFunds(t *testing.T) {
	// Virtual funds show only 1 unit of asset B available; selling 5 must
	// be rejected before any balance check or order submission happens.
	store := &fakeFundsSource{funds: model.FundView{CurrentAssetA: d("1000"), CurrentAssetB: d("1")}}
	balances := &fakeBalances{assetA: d("1000"), assetB: d("100")}
	orders := &fakeOrders{}

	err := applyDecision(context.Background(), store, balances, orders, decisionInput{
		algorithmID: "algo-1",
		symbol:      "BTCUSDT",
		assetA:      "USDT",
		assetB:      "BTC",
		price:       d("100"),
		decision:    -5,
	})

	require.Error(t, err)
	assert.Equal(t, "Insufficient algorithm funds.", err.Error())
	assert.False(t, orders.submitted)
	assert.Empty(t, store.appended)
}

func TestApplyDecision_InsufficientRealAccountFunds(t *testing.T) {
	// Virtual funds allow the buy, but the real account balance does not
	// cover the cost; the order must never be submitted.
	store := &fakeFundsSource{funds: model.FundView{CurrentAssetA: d("1000"), CurrentAssetB: d("1")}}
	balances := &fakeBalances{assetA: d("50"), assetB: d("1")}
	orders := &fakeOrders{}

	err := applyDecision(context.Background(), store, balances, orders, decisionInput{
		algorithmID: "algo-1",
		symbol:      "BTCUSDT",
		assetA:      "USDT",
		assetB:      "BTC",
		price:       d("100"),
		decision:    1,
	})

	require.Error(t, err)
	assert.Equal(t, "Insufficient real account funds.", err.Error())
	assert.False(t, orders.submitted)
	assert.Empty(t, store.appended)
}

func TestApplyDecision_SellAccepted(t *testing.T) {
	store := &fakeFundsSource{funds: model.FundView{CurrentAssetA: d("1000"), CurrentAssetB: d("5")}}
	balances := &fakeBalances{assetA: d("1000"), assetB: d("5")}
	orders := &fakeOrders{}

	err := applyDecision(context.Background(), store, balances, orders, decisionInput{
		algorithmID: "algo-1",
		symbol:      "BTCUSDT",
		assetA:      "USDT",
		assetB:      "BTC",
		price:       d("100"),
		decision:    -2,
	})

	require.NoError(t, err)
	require.Len(t, store.appended, 1)
	entry := store.appended[0]
	assert.Equal(t, model.ActionSell, entry.Action)
	assert.True(t, entry.DeltaAssetB.Equal(d("-2")))
	assert.True(t, entry.DeltaAssetA.Equal(d("200")))
}
