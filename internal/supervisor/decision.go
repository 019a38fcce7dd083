package supervisor

import (
	"context"

	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/exchange"
	"tradecore/internal/model"
)

// balanceChecker is the real-account balance lookup the decision discipline
// needs; exchange.Client satisfies it directly.
type balanceChecker interface {
	Balance(ctx context.Context, assetA, assetB string) (decimal.Decimal, decimal.Decimal, error)
}

// orderSubmitter is the streaming order transport a decision submits a
// market order through; exchange.OrderStream satisfies it directly.
type orderSubmitter interface {
	SubmitMarketOrder(symbol, side string, quantity decimal.Decimal, clientOrderID string) (exchange.Receipt, error)
}

var (
	_ balanceChecker = (*exchange.Client)(nil)
	_ orderSubmitter = (*exchange.OrderStream)(nil)
)

// fundsSource is the ledger aggregation the decision discipline checks
// virtual funds against and appends to; ledger.Ledger satisfies it
// directly.
type fundsSource interface {
	CurrentFunds(ctx context.Context, algorithmID string, startFundsA, currentPrice decimal.Decimal) (model.FundView, error)
	Append(ctx context.Context, entry model.LedgerEntry) error
}

// process applies the BUY/SELL discipline to one decision value read from
// the drain task: zero is a no-op, positive buys that many units of asset
// B, negative sells the absolute value. Both the virtual-fund check and the
// real-account check must pass; neither is ever skipped in favor of the
// other.
func (s *Supervisor) process(ctx context.Context, ra *runningAlgorithm, decision float64) error {
	return applyDecision(ctx, s.store, ra.client, ra.orderStream, decisionInput{
		algorithmID: ra.id,
		startFundsA: ra.algorithm.StartFundsA,
		symbol:      s.cfg.Trading.Symbol,
		assetA:      s.cfg.Trading.AssetA,
		assetB:      s.cfg.Trading.AssetB,
		price:       ra.priceCache.get(),
		decision:    decision,
	})
}

type decisionInput struct {
	algorithmID string
	startFundsA decimal.Decimal
	symbol      string
	assetA      string
	assetB      string
	price       decimal.Decimal
	decision    float64
}

// applyDecision is the pure-dependency core of process: it takes its
// ledger, balance, and order collaborators as narrow interfaces so the
// fund-rejection and order-discipline logic can be exercised without a
// live exchange connection or database.
func applyDecision(ctx context.Context, store fundsSource, balances balanceChecker, orders orderSubmitter, in decisionInput) error {
	r := decimal.NewFromFloat(in.decision)
	if r.IsZero() {
		return nil
	}

	assetBDelta := r
	assetADelta := r.Mul(in.price).Neg()

	funds, err := store.CurrentFunds(ctx, in.algorithmID, in.startFundsA, in.price)
	if err != nil {
		return err
	}
	if funds.CurrentAssetA.Add(assetADelta).IsNegative() || funds.CurrentAssetB.Add(assetBDelta).IsNegative() {
		return apperrors.NewAlgorithmError("Insufficient algorithm funds.")
	}

	balanceA, balanceB, err := balances.Balance(ctx, in.assetA, in.assetB)
	if err != nil {
		return err
	}

	side := "SELL"
	quantity := r.Abs()
	if r.IsPositive() {
		side = "BUY"
		cost := quantity.Mul(in.price)
		if balanceA.LessThan(cost) {
			return apperrors.NewAlgorithmError("Insufficient real account funds.")
		}
	} else {
		if balanceB.LessThan(quantity) {
			return apperrors.NewAlgorithmError("Insufficient real account funds.")
		}
	}

	orderID, err := newClientOrderID()
	if err != nil {
		return apperrors.NewAlgorithmError("failed to generate order id")
	}

	receipt, err := orders.SubmitMarketOrder(in.symbol, side, quantity, orderID)
	if err != nil {
		return err
	}

	entry := model.LedgerEntry{
		AlgorithmID:    in.algorithmID,
		OrderID:        receipt.OrderID,
		Action:         model.Action(side),
		DeltaAssetB:    assetBDelta,
		DeltaAssetA:    assetADelta,
		ReferencePrice: in.price,
	}
	return store.Append(ctx, entry)
}

// FirstOrder places an optional initial BUY of asset B for amountAssetA at
// algorithm creation, via the non-streaming order transport, applying the
// same fund invariants and ledger rules as process.
func (s *Supervisor) FirstOrder(ctx context.Context, algorithmID string, amountAssetA decimal.Decimal) error {
	if !amountAssetA.IsPositive() {
		return apperrors.NewAlgorithmError("first-order amount must be positive")
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

	quantity := amountAssetA.Div(price)
	assetADelta := amountAssetA.Neg()
	assetBDelta := quantity

	funds, err := s.store.CurrentFunds(ctx, algorithmID, algo.StartFundsA, price)
	if err != nil {
		return err
	}
	if funds.CurrentAssetA.Add(assetADelta).IsNegative() {
		return apperrors.NewAlgorithmError("Insufficient algorithm funds.")
	}

	balanceA, _, err := client.Balance(ctx, s.cfg.Trading.AssetA, s.cfg.Trading.AssetB)
	if err != nil {
		return err
	}
	if balanceA.LessThan(amountAssetA) {
		return apperrors.NewAlgorithmError("Insufficient real account funds.")
	}

	orderID, err := newClientOrderID()
	if err != nil {
		return apperrors.NewAlgorithmError("failed to generate order id")
	}

	receipt, err := client.Order(ctx, exchange.OrderParams{
		Symbol:        s.cfg.Trading.Symbol,
		Side:          "BUY",
		Quantity:      quantity,
		ClientOrderID: orderID,
	})
	if err != nil {
		return err
	}

	entry := model.LedgerEntry{
		AlgorithmID:    algorithmID,
		OrderID:        receipt.OrderID,
		Action:         model.ActionBuy,
		DeltaAssetB:    assetBDelta,
		DeltaAssetA:    assetADelta,
		ReferencePrice: price,
	}
	return s.store.Append(ctx, entry)
}
