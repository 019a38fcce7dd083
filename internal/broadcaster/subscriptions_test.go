package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/ledger"
)

func TestSubscriptionHub_DispatchFiltersByAlgorithmID(t *testing.T) {
	h := newSubscriptionHub()
	subA := h.subscribe("algo-a")
	subB := h.subscribe("algo-b")
	defer h.unsubscribe("algo-a", subA)
	defer h.unsubscribe("algo-b", subB)

	h.dispatch(ledger.Notification{AlgorithmID: "algo-a"})

	select {
	case n := <-subA:
		assert.Equal(t, "algo-a", n.AlgorithmID)
	case <-time.After(time.Second):
		t.Fatal("expected notification on subA")
	}

	select {
	case <-subB:
		t.Fatal("subB should not receive algo-a's notification")
	default:
	}
}

func TestSubscriptionHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := newSubscriptionHub()
	sub := h.subscribe("algo-a")
	h.unsubscribe("algo-a", sub)

	h.dispatch(ledger.Notification{AlgorithmID: "algo-a"})

	select {
	case <-sub:
		t.Fatal("unsubscribed channel should not receive")
	default:
	}
}

type fakeNotificationSource struct {
	notifications []ledger.Notification
}

func (f *fakeNotificationSource) Listen(ctx context.Context, handler func(ledger.Notification)) error {
	for _, n := range f.notifications {
		handler(n)
	}
	<-ctx.Done()
	return nil
}

func TestSubscriptionHub_RunDispatchesFromSource(t *testing.T) {
	h := newSubscriptionHub()
	sub := h.subscribe("algo-a")
	defer h.unsubscribe("algo-a", sub)

	source := &fakeNotificationSource{notifications: []ledger.Notification{{AlgorithmID: "algo-a"}}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = h.run(ctx, source, nil)
	}()
	defer cancel()

	select {
	case n := <-sub:
		assert.Equal(t, "algo-a", n.AlgorithmID)
	case <-time.After(time.Second):
		t.Fatal("expected notification to flow through run")
	}
}

func TestParseHandshake_RejectsUnknownAction(t *testing.T) {
	_, err := parseHandshake([]byte(`{"action":"bogus"}`))
	require.Error(t, err)
}

func TestParseHandshake_AcceptsKnownActions(t *testing.T) {
	h, err := parseHandshake([]byte(`{"action":"btc-candlestick","api_key":"k","params":{"interval":"1m"}}`))
	require.NoError(t, err)
	assert.Equal(t, "btc-candlestick", h.Action)
	assert.Equal(t, "k", h.APIKey)

	h2, err := parseHandshake([]byte(`{"action":"algorithm-stats","api_key":"k","params":{"id":"algo-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "algo-1", h2.Params.ID)
}

func TestParseHandshake_RejectsMalformedJSON(t *testing.T) {
	_, err := parseHandshake([]byte(`not json`))
	require.Error(t, err)
}
