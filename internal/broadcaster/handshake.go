package broadcaster

import (
	"encoding/json"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

const (
	actionBTCCandlestick = "btc-candlestick"
	actionAlgorithmStats = "algorithm-stats"
)

// handshake is the first frame a chart client must send before any events
// are forwarded to it.
type handshake struct {
	Action       string          `json:"action"`
	SessionToken string          `json:"session_token"`
	APIKey       string          `json:"api_key"`
	Params       handshakeParams `json:"params"`
}

type handshakeParams struct {
	Interval model.Interval `json:"interval"`
	ID       string         `json:"id"`
}

// parseHandshake decodes and validates the shape of a client's first frame.
// SessionToken is carried through but not independently checked here —
// session authentication is an external collaborator; only the static
// platform API key gates this socket.
func parseHandshake(raw []byte) (handshake, error) {
	var h handshake
	if err := json.Unmarshal(raw, &h); err != nil {
		return handshake{}, apperrors.NewParseError("malformed handshake frame", err)
	}
	if h.Action != actionBTCCandlestick && h.Action != actionAlgorithmStats {
		return handshake{}, apperrors.NewStreamError("unknown handshake action: "+h.Action, nil)
	}
	return h, nil
}
