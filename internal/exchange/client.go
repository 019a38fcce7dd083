// Package exchange is the authenticated facade over the exchange's
// market-data, account, and order endpoints: a request/response transport
// for signed REST-style calls, and a streaming transport that yields an
// endless sequence of candlesticks.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"tradecore/internal/apperrors"
	"tradecore/internal/config"
	"tradecore/internal/core"
	"tradecore/internal/model"
	tchttp "tradecore/pkg/http"

	"github.com/shopspring/decimal"
)

// CredentialStore resolves a session token to the owning user's exchange
// credentials; authenticate looks up the caller through this collaborator.
// Session/user authentication itself is an external concern — the store is
// only consulted for the api_key/api_secret pair once a session is already
// considered valid.
type CredentialStore interface {
	UserBySessionToken(ctx context.Context, sessionToken string) (model.User, error)
}

// Receipt is the result of a successfully placed order.
type Receipt struct {
	OrderID       string
	ClientOrderID string
	Status        string
}

// Client is the Exchange Client: REST transport for ping/price/balance/
// klines/order/tradeHistory, plus streaming transports for klines and
// order placement.
type Client struct {
	rest   *tchttp.Client
	signer *Signer
	cfg    config.ExchangeConfig
	logger core.ILogger
}

// NewClient builds an Exchange Client against the configured REST_URL.
func NewClient(cfg config.ExchangeConfig, logger core.ILogger) *Client {
	signer := NewSigner()
	rest := tchttp.NewClient(cfg.RESTURL, 10*time.Second, signer)
	return &Client{rest: rest, signer: signer, cfg: cfg, logger: logger}
}

// Authenticate resolves sessionToken via store and installs the returned
// user's exchange credentials for all subsequent signed calls on this client.
func (c *Client) Authenticate(ctx context.Context, sessionToken string, store CredentialStore) error {
	user, err := store.UserBySessionToken(ctx, sessionToken)
	if err != nil {
		return apperrors.NewAuthError("failed to resolve session", err)
	}
	if user.APIKey == "" || user.APISecret == "" {
		return apperrors.NewAuthError("account has no exchange credentials", nil)
	}
	c.signer.SetCredentials(user.APIKey, user.APISecret)
	return nil
}

// SetCredentials installs an account's exchange credentials directly,
// bypassing the session-token lookup Authenticate performs; used by
// callers that already hold the owning user's row.
func (c *Client) SetCredentials(apiKey, apiSecret string) {
	c.signer.SetCredentials(apiKey, apiSecret)
}

// Signer exposes the underlying request signer so a streaming transport
// opened alongside this client can sign its own payloads the same way.
func (c *Client) Signer() *Signer {
	return c.signer
}

// Ping checks exchange reachability.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.rest.Get(ctx, "/ping", nil)
	if err != nil {
		return mapTransportError(err)
	}
	return nil
}

// Price returns the current asset-B price for symbol.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	body, err := c.rest.Get(ctx, "/ticker/price", map[string]string{"symbol": symbol})
	if err != nil {
		return decimal.Zero, mapTransportError(err)
	}

	var res struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return decimal.Zero, apperrors.NewParseError("malformed price response", err)
	}

	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return decimal.Zero, apperrors.NewParseError("non-numeric price", err)
	}
	return price, nil
}

// Balance returns the account's free asset A and asset B balances.
func (c *Client) Balance(ctx context.Context, assetA, assetB string) (decimal.Decimal, decimal.Decimal, error) {
	if !c.signer.HasCredentials() {
		return decimal.Zero, decimal.Zero, apperrors.NewAuthError("no credentials installed", nil)
	}

	body, err := c.rest.Get(ctx, "/account", map[string]string{})
	if err != nil {
		return decimal.Zero, decimal.Zero, mapTransportError(err)
	}

	var res struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return decimal.Zero, decimal.Zero, apperrors.NewParseError("malformed account response", err)
	}

	var a, b decimal.Decimal
	for _, bal := range res.Balances {
		switch bal.Asset {
		case assetA:
			a, err = decimal.NewFromString(bal.Free)
		case assetB:
			b, err = decimal.NewFromString(bal.Free)
		}
		if err != nil {
			return decimal.Zero, decimal.Zero, apperrors.NewParseError("non-numeric balance", err)
		}
	}
	return a, b, nil
}

// Klines fetches a historical candlestick window, used for the prepend fetch.
func (c *Client) Klines(ctx context.Context, symbol string, interval model.Interval, startTimeMS, endTimeMS int64) ([]model.Candlestick, error) {
	params := map[string]string{
		"symbol":    symbol,
		"interval":  string(interval),
		"startTime": fmt.Sprintf("%d", startTimeMS),
		"endTime":   fmt.Sprintf("%d", endTimeMS),
	}

	body, err := c.rest.Get(ctx, "/klines", params)
	if err != nil {
		return nil, mapTransportError(err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewParseError("malformed klines response", err)
	}

	candles := make([]model.Candlestick, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, apperrors.NewParseError("malformed kline row", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKlineRow(row []interface{}) (model.Candlestick, error) {
	if len(row) < 7 {
		return model.Candlestick{}, fmt.Errorf("kline row has %d fields, want >= 7", len(row))
	}

	closeTime, ok := row[6].(float64)
	if !ok {
		return model.Candlestick{}, fmt.Errorf("close time field is not numeric")
	}

	open, err := decimalFromAny(row[1])
	if err != nil {
		return model.Candlestick{}, err
	}
	high, err := decimalFromAny(row[2])
	if err != nil {
		return model.Candlestick{}, err
	}
	low, err := decimalFromAny(row[3])
	if err != nil {
		return model.Candlestick{}, err
	}
	closePrice, err := decimalFromAny(row[4])
	if err != nil {
		return model.Candlestick{}, err
	}
	volume, err := decimalFromAny(row[5])
	if err != nil {
		return model.Candlestick{}, err
	}

	return model.Candlestick{
		Timestamp: int64(closeTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

func decimalFromAny(v interface{}) (decimal.Decimal, error) {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("expected string numeric field, got %T", v)
	}
	return decimal.NewFromString(s)
}

// OrderParams are the common fields for a market order submission.
type OrderParams struct {
	Symbol        string
	Side          string // BUY or SELL
	Quantity      decimal.Decimal
	ClientOrderID string
}

// Order submits a non-streaming market order used by the first-order helper.
func (c *Client) Order(ctx context.Context, params OrderParams) (Receipt, error) {
	if !c.signer.HasCredentials() {
		return Receipt{}, apperrors.NewAuthError("no credentials installed", nil)
	}

	q := url.Values{}
	q.Set("symbol", params.Symbol)
	q.Set("side", params.Side)
	q.Set("type", "MARKET")
	q.Set("quantity", params.Quantity.String())
	q.Set("newClientOrderId", params.ClientOrderID)

	respBody, err := c.rest.Post(ctx, "/order?"+q.Encode(), nil)
	if err != nil {
		return Receipt{}, mapTransportError(err)
	}

	var res struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return Receipt{}, apperrors.NewParseError("malformed order response", err)
	}

	return Receipt{
		OrderID:       fmt.Sprintf("%d", res.OrderID),
		ClientOrderID: res.ClientOrderID,
		Status:        res.Status,
	}, nil
}

// TradeHistory fetches the account's executed trades.
func (c *Client) TradeHistory(ctx context.Context, symbol string) ([]model.LedgerEntry, error) {
	if !c.signer.HasCredentials() {
		return nil, apperrors.NewAuthError("no credentials installed", nil)
	}

	body, err := c.rest.Get(ctx, "/myTrades", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, mapTransportError(err)
	}

	var raw []struct {
		OrderID  int64  `json:"orderId"`
		IsBuyer  bool   `json:"isBuyer"`
		Price    string `json:"price"`
		Qty      string `json:"qty"`
		QuoteQty string `json:"quoteQty"`
		Time     int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewParseError("malformed trade history response", err)
	}

	entries := make([]model.LedgerEntry, 0, len(raw))
	for _, t := range raw {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, apperrors.NewParseError("non-numeric trade price", err)
		}
		qty, err := decimal.NewFromString(t.Qty)
		if err != nil {
			return nil, apperrors.NewParseError("non-numeric trade quantity", err)
		}
		quoteQty, err := decimal.NewFromString(t.QuoteQty)
		if err != nil {
			return nil, apperrors.NewParseError("non-numeric trade quote quantity", err)
		}

		action := model.ActionSell
		deltaA := quoteQty
		deltaB := qty.Neg()
		if t.IsBuyer {
			action = model.ActionBuy
			deltaA = quoteQty.Neg()
			deltaB = qty
		}

		entries = append(entries, model.LedgerEntry{
			OrderID:        fmt.Sprintf("%d", t.OrderID),
			Action:         action,
			DeltaAssetA:    deltaA,
			DeltaAssetB:    deltaB,
			ReferencePrice: price,
			CreatedAt:      time.UnixMilli(t.Time),
		})
	}
	return entries, nil
}

func mapTransportError(err error) error {
	var apiErr *tchttp.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewExchangeError(fmt.Sprintf("exchange returned status %d", apiErr.StatusCode), apiErr)
	}
	return apperrors.NewExchangeError("transport failure", err)
}
