// Package broadcaster is the Chart Broadcaster: a per-connection
// WebSocket server that, after a handshake, forwards either the raw
// candlestick stream or the algorithm's fund/history events to exactly the
// client that asked for them.
package broadcaster

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradecore/internal/apperrors"
	"tradecore/internal/config"
	"tradecore/internal/core"
	"tradecore/internal/exchange"
	"tradecore/internal/ledger"
	"tradecore/internal/model"
	"tradecore/pkg/liveserver"
)

// FundsStore is the persistence collaborator a subscribed algorithm-stats
// connection needs: the algorithm's bookkeeping parameters and the ledger's
// virtual-fund aggregation.
type FundsStore interface {
	AlgorithmByID(ctx context.Context, id string) (model.Algorithm, error)
	CurrentFunds(ctx context.Context, algorithmID string, startFundsA, currentPrice decimal.Decimal) (model.FundView, error)
}

var _ FundsStore = (*ledger.Ledger)(nil)

// Broadcaster serves the chart WebSocket endpoint.
type Broadcaster struct {
	cfg    config.Config
	store  FundsStore
	logger core.ILogger

	upgrader websocket.Upgrader
	hub      *subscriptionHub

	srv *http.Server
	mu  sync.Mutex
}

// New builds a Broadcaster bound to store for algorithm/fund lookups.
func New(cfg config.Config, store FundsStore, logger core.ILogger) *Broadcaster {
	return &Broadcaster{
		cfg:    cfg,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub: newSubscriptionHub(),
	}
}

// Run starts the ledger notification fan-in and the HTTP/WebSocket server,
// blocking until ctx is cancelled or the server fails.
func (b *Broadcaster) Run(ctx context.Context, addr string, source NotificationSource) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- b.hub.run(ctx, source, b.logger)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)

	b.mu.Lock()
	b.srv = &http.Server{Addr: addr, Handler: mux}
	b.mu.Unlock()

	go func() {
		if err := b.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return b.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (b *Broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("chart websocket upgrade failed", "error", err)
		}
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("chart handshake read failed", "error", err)
		}
		return
	}

	hs, err := parseHandshake(raw)
	if err != nil {
		b.sendFatal(conn, err)
		return
	}
	if hs.APIKey != string(b.cfg.Exchange.APIKey) {
		b.sendFatal(conn, apperrors.NewAuthError("invalid api key", nil))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go b.watchClose(conn, cancel)

	switch hs.Action {
	case actionBTCCandlestick:
		b.forwardCandlesticks(ctx, conn, hs.Params)
	case actionAlgorithmStats:
		b.forwardAlgorithmStats(ctx, conn, hs.Params)
	}
}

// watchClose reads (and discards) any further frames so the connection's
// close/ping control frames are still processed, ending cancel once the
// client disconnects.
func (b *Broadcaster) watchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) sendFatal(conn *websocket.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(liveserver.NewMessage("Error", err.Error()))
}

// forwardCandlesticks subscribes to the exchange's raw kline stream for
// params.interval and forwards every candlestick as JSON until ctx ends.
func (b *Broadcaster) forwardCandlesticks(ctx context.Context, conn *websocket.Conn, params handshakeParams) {
	kstream, ticks, err := exchange.StreamKlines(b.cfg.Exchange.WSStreamURL, b.cfg.Trading.Symbol, params.Interval, b.logger)
	if err != nil {
		b.sendFatal(conn, err)
		return
	}
	defer kstream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-ticks:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(liveserver.NewCandlestickMessage(candle)); err != nil {
				return
			}
		}
	}
}

// forwardAlgorithmStats subscribes to params.id's ledger notifications,
// recomputing current funds and forwarding ChartDataPoint (always) and
// HistoryRow (only for a non-anchor action) frames.
func (b *Broadcaster) forwardAlgorithmStats(ctx context.Context, conn *websocket.Conn, params handshakeParams) {
	if params.ID == "" {
		b.sendFatal(conn, apperrors.NewStreamError("algorithm-stats requires params.id", nil))
		return
	}

	algo, err := b.store.AlgorithmByID(ctx, params.ID)
	if err != nil {
		b.sendFatal(conn, err)
		return
	}

	sub := b.hub.subscribe(params.ID)
	defer b.hub.unsubscribe(params.ID, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-sub:
			if !ok {
				return
			}
			if err := b.emitChartEvent(ctx, conn, algo, notif); err != nil {
				return
			}
		}
	}
}

func (b *Broadcaster) emitChartEvent(ctx context.Context, conn *websocket.Conn, algo model.Algorithm, notif ledger.Notification) error {
	funds, err := b.store.CurrentFunds(ctx, algo.ID, algo.StartFundsA, notif.ReferencePrice)
	if err != nil {
		if b.logger != nil {
			b.logger.Error("failed to recompute funds for chart event", "algorithm_id", algo.ID, "error", err)
		}
		return nil
	}

	point := model.ChartPoint{
		Timestamp: notif.CreatedAt.UnixMilli(),
		Total:     funds.Balance,
		AssetA:    funds.CurrentAssetA,
		AssetB:    funds.CurrentAssetB,
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(liveserver.NewChartDataPointMessage(point)); err != nil {
		return err
	}

	if notif.Action != nil {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(liveserver.NewHistoryRowMessage(notif)); err != nil {
			return err
		}
	}
	return nil
}
