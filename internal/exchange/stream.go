package exchange

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"tradecore/internal/apperrors"
	"tradecore/internal/core"
	"tradecore/internal/model"
	tcws "tradecore/pkg/websocket"

	"github.com/shopspring/decimal"
)

// KlineStream is the feed task's source: a reconnecting subscription to the
// exchange's streaming klines for one symbol/interval pair. Reconnect is
// handled by the underlying websocket client on a 5s wait, matching the
// exchange-stream recovery the feed task relies on.
type KlineStream struct {
	ws *tcws.Client
}

// StreamKlines opens a streaming kline subscription; candles arrive on the
// returned channel in stream order, one per tick. Close stops delivery; the
// channel itself is never closed.
func StreamKlines(streamBaseURL, symbol string, interval model.Interval, logger core.ILogger) (*KlineStream, <-chan model.Candlestick, error) {
	out := make(chan model.Candlestick, 10) // bounded exchange->feed buffer

	url := fmt.Sprintf("%s/%s@kline_%s", streamBaseURL, symbol, interval)

	var closed int32
	handler := func(message []byte) {
		candle, ok := parseStreamKline(message)
		if !ok {
			return
		}
		if atomic.LoadInt32(&closed) == 1 {
			return
		}
		select {
		case out <- candle:
		default:
			// Backpressure: drop the stalest pending tick rather than block
			// the reader, then retry delivering the newest one.
			select {
			case <-out:
			default:
			}
			select {
			case out <- candle:
			default:
			}
		}
	}

	ws := tcws.NewClient(url, handler, logger)
	ws.Start()

	stream := &KlineStream{ws: ws}
	return stream, out, nil
}

// Close stops the underlying subscription.
func (s *KlineStream) Close() {
	s.ws.Stop()
}

type rawKlineEnvelope struct {
	K struct {
		T int64  `json:"T"`
		O string `json:"o"`
		C string `json:"c"`
		L string `json:"l"`
		H string `json:"h"`
		V string `json:"v"`
	} `json:"k"`
}

func parseStreamKline(message []byte) (model.Candlestick, bool) {
	var env rawKlineEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return model.Candlestick{}, false
	}

	open, err1 := decimal.NewFromString(env.K.O)
	closeP, err2 := decimal.NewFromString(env.K.C)
	low, err3 := decimal.NewFromString(env.K.L)
	high, err4 := decimal.NewFromString(env.K.H)
	vol, err5 := decimal.NewFromString(env.K.V)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return model.Candlestick{}, false
	}

	return model.Candlestick{
		Timestamp: env.K.T,
		Open:      open,
		Close:     closeP,
		Low:       low,
		High:      high,
		Volume:    vol,
	}, true
}

// OrderStream is the bidirectional streaming order channel the Algorithm
// Supervisor opens once per running algorithm; it is owned by one
// Supervisor incarnation and is closed, not reused, on restart.
type OrderStream struct {
	ws     *tcws.Client
	signer *Signer
	acks   chan orderAck
}

type orderAck struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OpenOrderStream dials the order endpoint and returns a channel ready to
// accept SubmitMarketOrder submissions.
func OpenOrderStream(wsAPIURL string, signer *Signer, logger core.ILogger) *OrderStream {
	acks := make(chan orderAck, 10)

	stream := &OrderStream{signer: signer, acks: acks}

	handler := func(message []byte) {
		var ack orderAck
		if err := json.Unmarshal(message, &ack); err != nil {
			return
		}
		select {
		case acks <- ack:
		default:
		}
	}

	ws := tcws.NewClient(wsAPIURL, handler, logger)
	ws.Start()
	stream.ws = ws
	return stream
}

// Close releases the streaming connection; the Supervisor never reuses it
// across a restart.
func (s *OrderStream) Close() {
	s.ws.Stop()
}

// SubmitMarketOrder places symbol/side/quantity as a MARKET order over the
// streaming order channel and blocks for the exchange's ack. The request's
// correlation id is the signed timestamp, matching the exchange's own
// request/ack correlation convention.
func (s *OrderStream) SubmitMarketOrder(symbol, side string, quantity decimal.Decimal, clientOrderID string) (Receipt, error) {
	params := map[string]string{
		"symbol":           symbol,
		"side":             side,
		"type":             "MARKET",
		"quantity":         quantity.String(),
		"newClientOrderId": clientOrderID,
	}

	signature, timestamp, err := s.signer.SignPayload(params)
	if err != nil {
		return Receipt{}, apperrors.NewAuthError("failed to sign streaming order", err)
	}
	params["timestamp"] = fmt.Sprintf("%d", timestamp)
	params["signature"] = signature

	req := map[string]interface{}{
		"id":     timestamp,
		"method": "order.place",
		"params": params,
	}

	if err := s.ws.Send(req); err != nil {
		return Receipt{}, apperrors.NewStreamError("failed to send streaming order", err)
	}

	ack, ok := <-s.acks
	if !ok {
		return Receipt{}, apperrors.NewStreamError("order stream closed before ack", nil)
	}
	if ack.Error != "" {
		return Receipt{}, apperrors.NewExchangeError(ack.Error, nil)
	}

	return Receipt{OrderID: fmt.Sprintf("%d", ack.ID), ClientOrderID: clientOrderID, Status: ack.Status}, nil
}
