// Package model defines the entities shared across the execution pipeline:
// Algorithm, Candlestick, LedgerEntry, ScriptHandle, FundView, ChartPoint,
// and the persisted User row the ledger's ownership joins rely on.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval enumerates the supported kline/re-run tick intervals.
type Interval string

// Allowed tick intervals, the closed set an Algorithm's Interval must belong to.
const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// AllowedIntervals is the enumerated set an Algorithm's Interval must belong to.
var AllowedIntervals = map[Interval]bool{
	Interval1m:  true,
	Interval3m:  true,
	Interval5m:  true,
	Interval15m: true,
	Interval30m: true,
	Interval1h:  true,
	Interval4h:  true,
	Interval1d:  true,
}

// Action is the order side recorded in a LedgerEntry; the empty action
// represents a price-anchor ping, never BUY or SELL.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionNone Action = ""
)

// Algorithm is a registered user trading program and its bookkeeping parameters.
type Algorithm struct {
	ID             string
	Description    string
	StartFundsA    decimal.Decimal
	Interval       Interval
	RerunPeriodSec int
	PrependMS      int64
	UserID         string
}

// Candlestick is one OHLCV sample of the exchange's kline stream.
type Candlestick struct {
	Timestamp int64           `json:"t"`
	Open      decimal.Decimal `json:"o"`
	Close     decimal.Decimal `json:"c"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Volume    decimal.Decimal `json:"v"`
}

// LedgerEntry is one append-only row in the Trade Ledger: either an executed
// order or a zero-delta price anchor (Action == ActionNone).
type LedgerEntry struct {
	AlgorithmID    string
	OrderID        string
	Action         Action
	DeltaAssetB    decimal.Decimal
	DeltaAssetA    decimal.Decimal
	ReferencePrice decimal.Decimal
	CreatedAt      time.Time
}

// ScriptHandle identifies one running algorithm's subprocess and IPC endpoints.
type ScriptHandle struct {
	AlgorithmID string
	Pid         int
	SocketPath  string
	ShmemPath   string
}

// FundView is the current virtual-fund snapshot derived from ledger
// aggregation; it is never cached in a separate mutable cell.
type FundView struct {
	CurrentAssetA decimal.Decimal
	CurrentAssetB decimal.Decimal
	Balance       decimal.Decimal
}

// ChartPoint is the derived point sent to subscribed chart clients whenever
// a new LedgerEntry or price anchor is committed.
type ChartPoint struct {
	Timestamp int64           `json:"timestamp"`
	Total     decimal.Decimal `json:"total"`
	AssetA    decimal.Decimal `json:"asset_a"`
	AssetB    decimal.Decimal `json:"asset_b"`
}

// User is the owning account behind a set of algorithms: session/API-key
// auth itself is an external collaborator, but the row shape is needed by
// ledger/ownership joins and the start-funds snapshot on registration.
type User struct {
	ID            string
	SessionToken  string
	APIKey        string
	APISecret     string
	StartFundsA   decimal.Decimal
	StartFundsB   decimal.Decimal
	StartFundsTot decimal.Decimal
}
