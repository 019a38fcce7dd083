// Package liveserver defines the WebSocket response frame shared by the
// Chart Broadcaster's per-connection handlers.
package liveserver

// Message represents a WebSocket message pushed to a single chart client.
type Message struct {
	Type string      `json:"response_type"`
	Data interface{} `json:"json"`
}

// MessageType constants for the Chart Broadcaster's two emitted event kinds,
// plus the raw candlestick passthrough used by the btc-candlestick branch.
const (
	TypeChartDataPoint = "ChartDataPoint"
	TypeHistoryRow     = "HistoryRow"
	TypeCandlestick    = "Candlestick"
)

// NewMessage builds a response frame of the given type.
func NewMessage(msgType string, data interface{}) Message {
	return Message{Type: msgType, Data: data}
}

// NewChartDataPointMessage builds a ChartDataPoint response frame.
func NewChartDataPointMessage(data interface{}) Message {
	return NewMessage(TypeChartDataPoint, data)
}

// NewHistoryRowMessage builds a HistoryRow response frame.
func NewHistoryRowMessage(data interface{}) Message {
	return NewMessage(TypeHistoryRow, data)
}

// NewCandlestickMessage builds a raw candlestick passthrough frame.
func NewCandlestickMessage(data interface{}) Message {
	return NewMessage(TypeCandlestick, data)
}
