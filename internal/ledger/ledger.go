// Package ledger implements the Trade Ledger: an append-only history of
// executed orders and price-anchor pings, the aggregation that derives
// current virtual funds and chart points from it, and the LISTEN/NOTIFY
// based change-notification stream the Chart Broadcaster subscribes to.
package ledger

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"tradecore/internal/apperrors"
	"tradecore/internal/core"
	"tradecore/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaFS embed.FS

// Resolution filters a chart query down to one point per window.
type Resolution string

const (
	ResolutionAll    Resolution = "all"
	ResolutionHourly Resolution = "hourly"
	ResolutionDaily  Resolution = "daily"
)

// Ledger is the Trade Ledger backed by a pooled Postgres connection. All
// access is serialized through the pool's own connection management; no
// package-level lock spans more than a single query.
type Ledger struct {
	pool   *pgxpool.Pool
	logger core.ILogger
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool, logger core.ILogger) *Ledger {
	return &Ledger{pool: pool, logger: logger}
}

// ApplySchema executes schema.sql against the pool; safe to call on every
// startup, every statement in it is idempotent.
func (l *Ledger) ApplySchema(ctx context.Context) error {
	data, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}
	if _, err := l.pool.Exec(ctx, string(data)); err != nil {
		return apperrors.NewDatabaseError("failed to apply ledger schema", err)
	}
	return nil
}

// Append inserts one history row. A null Action (model.ActionNone) records
// a price-anchor ping rather than an executed order.
func (l *Ledger) Append(ctx context.Context, entry model.LedgerEntry) error {
	var action *string
	if entry.Action != model.ActionNone {
		a := string(entry.Action)
		action = &a
	}

	const q = `
		INSERT INTO history (algorithm_id, order_id, action, delta_asset_b, delta_asset_a, reference_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := l.pool.Exec(ctx, q,
		entry.AlgorithmID, nullIfEmpty(entry.OrderID), action,
		entry.DeltaAssetB, entry.DeltaAssetA, entry.ReferencePrice)
	if err != nil {
		return apperrors.NewDatabaseError("failed to append ledger entry", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CurrentFunds computes the algorithm's current virtual funds by summing
// every ledger row against its registered start funds.
func (l *Ledger) CurrentFunds(ctx context.Context, algorithmID string, startFundsA, currentPrice decimal.Decimal) (model.FundView, error) {
	const q = `
		SELECT
			COALESCE(SUM(delta_asset_a), 0),
			COALESCE(SUM(delta_asset_b), 0)
		FROM history
		WHERE algorithm_id = $1`

	var deltaA, deltaB decimal.Decimal
	if err := l.pool.QueryRow(ctx, q, algorithmID).Scan(&deltaA, &deltaB); err != nil {
		return model.FundView{}, apperrors.NewDatabaseError("failed to aggregate ledger funds", err)
	}

	assetA := startFundsA.Add(deltaA)
	assetB := deltaB
	balance := assetA.Add(assetB.Mul(currentPrice))

	return model.FundView{CurrentAssetA: assetA, CurrentAssetB: assetB, Balance: balance}, nil
}

// Chart returns the algorithm's ordered chart points, filtered down to one
// point per resolution window; ResolutionAll returns every point.
func (l *Ledger) Chart(ctx context.Context, algorithmID string, resolution Resolution) ([]model.ChartPoint, error) {
	const q = `
		SELECT created_at, total_asset_a, virtual_asset_a, virtual_asset_b
		FROM history_aggregate
		WHERE algorithm_id = $1
		ORDER BY created_at`

	rows, err := l.pool.Query(ctx, q, algorithmID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to query chart aggregate", err)
	}
	defer rows.Close()

	var all []model.ChartPoint
	for rows.Next() {
		var createdAt time.Time
		var total, assetA, assetB decimal.Decimal
		if err := rows.Scan(&createdAt, &total, &assetA, &assetB); err != nil {
			return nil, apperrors.NewDatabaseError("failed to scan chart row", err)
		}
		all = append(all, model.ChartPoint{
			Timestamp: createdAt.UnixMilli(),
			Total:     total,
			AssetA:    assetA,
			AssetB:    assetB,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("failed reading chart rows", err)
	}

	return filterResolution(all, resolution), nil
}

// filterResolution keeps the first point seen per window; hourly/daily
// bucket by truncated UTC hour/day, "all" passes every point through.
func filterResolution(points []model.ChartPoint, resolution Resolution) []model.ChartPoint {
	if resolution == ResolutionAll || resolution == "" {
		return points
	}

	var out []model.ChartPoint
	var lastBucket int64
	first := true

	for _, p := range points {
		t := time.UnixMilli(p.Timestamp).UTC()
		var bucket int64
		switch resolution {
		case ResolutionHourly:
			bucket = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
		case ResolutionDaily:
			bucket = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
		default:
			out = append(out, p)
			continue
		}

		if first || bucket != lastBucket {
			out = append(out, p)
			lastBucket = bucket
			first = false
		}
	}
	return out
}

// RecentOrders returns up to 25 BUY/SELL rows for algorithmID before the
// given timestamp cursor, most recent first.
func (l *Ledger) RecentOrders(ctx context.Context, algorithmID string, before time.Time) ([]model.LedgerEntry, error) {
	const q = `
		SELECT order_id, action, delta_asset_b, delta_asset_a, reference_price, created_at
		FROM history
		WHERE algorithm_id = $1 AND action IS NOT NULL AND created_at < $2
		ORDER BY created_at DESC
		LIMIT 25`

	rows, err := l.pool.Query(ctx, q, algorithmID, before)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to query recent orders", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var orderID, action *string
		var entry model.LedgerEntry
		if err := rows.Scan(&orderID, &action, &entry.DeltaAssetB, &entry.DeltaAssetA, &entry.ReferencePrice, &entry.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("failed to scan recent order row", err)
		}
		if orderID != nil {
			entry.OrderID = *orderID
		}
		if action != nil {
			entry.Action = model.Action(*action)
		}
		entry.AlgorithmID = algorithmID
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("failed reading recent order rows", err)
	}
	return entries, nil
}

// Reset deletes every history row for algorithmID and returns the fund
// snapshot the caller should treat as the algorithm's new start funds.
func (l *Ledger) Reset(ctx context.Context, algorithmID string, currentPrice decimal.Decimal, startFundsA decimal.Decimal) (decimal.Decimal, error) {
	funds, err := l.CurrentFunds(ctx, algorithmID, startFundsA, currentPrice)
	if err != nil {
		return decimal.Zero, err
	}

	const del = `DELETE FROM history WHERE algorithm_id = $1`
	if _, err := l.pool.Exec(ctx, del, algorithmID); err != nil {
		return decimal.Zero, apperrors.NewDatabaseError("failed to clear ledger history", err)
	}

	const upd = `UPDATE algorithms SET start_funds_a = $2 WHERE id = $1`
	if _, err := l.pool.Exec(ctx, upd, algorithmID, funds.Balance); err != nil {
		return decimal.Zero, apperrors.NewDatabaseError("failed to update algorithm start funds", err)
	}

	return funds.Balance, nil
}

// Notification is one row's change-notification payload.
type Notification struct {
	AlgorithmID    string          `json:"algorithm_id"`
	Action         *string         `json:"action"`
	DeltaAssetA    decimal.Decimal `json:"delta_asset_a"`
	DeltaAssetB    decimal.Decimal `json:"delta_asset_b"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Listen subscribes to history_record_inserted and invokes handler for
// every notification until ctx is cancelled. It holds one dedicated
// connection from the pool for the lifetime of the subscription.
func (l *Ledger) Listen(ctx context.Context, handler func(Notification)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("failed to acquire listen connection", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN history_record_inserted"); err != nil {
		return apperrors.NewDatabaseError("failed to start listening", err)
	}

	for {
		notif, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperrors.NewDatabaseError("listen connection failed", err)
		}

		var payload Notification
		if err := json.Unmarshal([]byte(notif.Payload), &payload); err != nil {
			if l.logger != nil {
				l.logger.Warn("failed to decode history notification", "error", err)
			}
			continue
		}
		handler(payload)
	}
}
