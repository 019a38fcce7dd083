package broadcaster

import (
	"context"
	"sync"

	"tradecore/internal/core"
	"tradecore/internal/ledger"
)

// NotificationSource is the ledger's change-notification feed; ledger.Ledger
// satisfies it directly.
type NotificationSource interface {
	Listen(ctx context.Context, handler func(ledger.Notification)) error
}

// subscriptionHub fans out the ledger's single LISTEN/NOTIFY connection to
// however many algorithm-stats connections currently want it, filtering by
// algorithm id per spec's params.id. One hub instance backs the lifetime of
// a running Broadcaster.
type subscriptionHub struct {
	mu   sync.Mutex
	subs map[string][]chan ledger.Notification
}

func newSubscriptionHub() *subscriptionHub {
	return &subscriptionHub{subs: make(map[string][]chan ledger.Notification)}
}

// subscribe registers a buffered channel for algorithmID's notifications.
// unsubscribe must be called with the same channel when the connection ends.
func (h *subscriptionHub) subscribe(algorithmID string) chan ledger.Notification {
	ch := make(chan ledger.Notification, 16)
	h.mu.Lock()
	h.subs[algorithmID] = append(h.subs[algorithmID], ch)
	h.mu.Unlock()
	return ch
}

func (h *subscriptionHub) unsubscribe(algorithmID string, ch chan ledger.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[algorithmID]
	for i, c := range list {
		if c == ch {
			h.subs[algorithmID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[algorithmID]) == 0 {
		delete(h.subs, algorithmID)
	}
}

func (h *subscriptionHub) dispatch(n ledger.Notification) {
	h.mu.Lock()
	list := h.subs[n.AlgorithmID]
	h.mu.Unlock()
	for _, ch := range list {
		select {
		case ch <- n:
		default:
			// Slow subscriber: drop rather than block the single shared
			// listener connection.
		}
	}
}

// run drives the hub from source's notification feed until ctx is cancelled.
func (h *subscriptionHub) run(ctx context.Context, source NotificationSource, logger core.ILogger) error {
	err := source.Listen(ctx, h.dispatch)
	if err != nil && ctx.Err() == nil && logger != nil {
		logger.Error("ledger notification feed ended", "error", err)
	}
	return err
}
