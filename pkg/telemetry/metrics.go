package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal  = "tradecore_orders_placed_total"
	MetricOrdersFilledTotal  = "tradecore_orders_filled_total"
	MetricVolumeTotal        = "tradecore_volume_total"
	MetricLatencyExchange    = "tradecore_latency_exchange_ms"
	MetricLatencyDecision    = "tradecore_latency_tick_to_decision_ms"
	MetricAlgorithmsActive   = "tradecore_algorithms_active"
	MetricAlgorithmRestarts  = "tradecore_algorithm_restarts_total"
	MetricScriptHostCrashes  = "tradecore_scripthost_crashes_total"
	MetricLedgerInsertsTotal = "tradecore_ledger_inserts_total"
	MetricBroadcastClients   = "tradecore_broadcast_clients"
	MetricStreamReconnects   = "tradecore_stream_reconnects_total"
	MetricFundRejections     = "tradecore_fund_rejections_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OrdersPlacedTotal  metric.Int64Counter
	OrdersFilledTotal  metric.Int64Counter
	VolumeTotal        metric.Float64Counter
	LatencyExchange    metric.Float64Histogram
	LatencyDecision    metric.Float64Histogram
	AlgorithmsActive   metric.Int64ObservableGauge
	AlgorithmRestarts  metric.Int64Counter
	ScriptHostCrashes  metric.Int64Counter
	LedgerInsertsTotal metric.Int64Counter
	BroadcastClients   metric.Int64ObservableGauge
	StreamReconnects   metric.Int64Counter
	FundRejections     metric.Int64Counter

	// State for observable gauges
	mu               sync.RWMutex
	algorithmsActive map[string]int64
	broadcastClients map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			algorithmsActive: make(map[string]int64),
			broadcastClients: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed by supervised algorithms"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders filled"))
	if err != nil {
		return err
	}

	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total traded volume in base asset"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of exchange API calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LatencyDecision, err = meter.Float64Histogram(MetricLatencyDecision, metric.WithDescription("Time from candlestick tick to script decision"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.AlgorithmRestarts, err = meter.Int64Counter(MetricAlgorithmRestarts, metric.WithDescription("Total supervised algorithm restarts"))
	if err != nil {
		return err
	}

	m.ScriptHostCrashes, err = meter.Int64Counter(MetricScriptHostCrashes, metric.WithDescription("Total script host subprocess crashes"))
	if err != nil {
		return err
	}

	m.LedgerInsertsTotal, err = meter.Int64Counter(MetricLedgerInsertsTotal, metric.WithDescription("Total ledger rows inserted"))
	if err != nil {
		return err
	}

	m.StreamReconnects, err = meter.Int64Counter(MetricStreamReconnects, metric.WithDescription("Total exchange WebSocket stream reconnects"))
	if err != nil {
		return err
	}

	m.FundRejections, err = meter.Int64Counter(MetricFundRejections, metric.WithDescription("Total decisions rejected by fund validation"))
	if err != nil {
		return err
	}

	// Observables
	m.AlgorithmsActive, err = meter.Int64ObservableGauge(MetricAlgorithmsActive, metric.WithDescription("Number of currently active algorithms"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for id, val := range m.algorithmsActive {
				obs.Observe(val, metric.WithAttributes(attribute.String("algorithm_id", id)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.BroadcastClients, err = meter.Int64ObservableGauge(MetricBroadcastClients, metric.WithDescription("Number of connected chart broadcaster clients"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for channel, val := range m.broadcastClients {
				obs.Observe(val, metric.WithAttributes(attribute.String("channel", channel)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetAlgorithmActive(algorithmID string, active bool) {
	val := int64(0)
	if active {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.algorithmsActive[algorithmID] = val
}

func (m *MetricsHolder) SetBroadcastClients(channel string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastClients[channel] = count
}

func (m *MetricsHolder) GetAlgorithmsActive() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.algorithmsActive {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetBroadcastClients() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.broadcastClients {
		res[k] = v
	}
	return res
}
