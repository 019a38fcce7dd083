package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"tradecore/internal/core"
)

// priceCache is a single (price, last-updated) cell behind a dedicated
// mutex, refreshed on a timer rather than threaded through channels.
// Staleness of up to the refresh interval is acceptable.
type priceCache struct {
	mu          sync.RWMutex
	price       decimal.Decimal
	lastUpdated time.Time

	cron   *cron.Cron
	cancel context.CancelFunc
}

func newPriceCache() *priceCache {
	return &priceCache{}
}

// set stores a freshly fetched price.
func (c *priceCache) set(price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.price = price
	c.lastUpdated = time.Now()
}

// get returns the cached price.
func (c *priceCache) get() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price
}

// startRefresh begins a 10s refresh loop that calls fetch and stores
// whatever it returns; fetch errors are logged and the stale price is kept.
func (c *priceCache) startRefresh(fetch func(ctx context.Context) (decimal.Decimal, error), logger core.ILogger) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.cron = cron.New()
	_, _ = c.cron.AddFunc("@every 10s", func() {
		price, err := fetch(ctx)
		if err != nil {
			if logger != nil {
				logger.Warn("price refresh failed, keeping stale price", "error", err)
			}
			return
		}
		c.set(price)
	})
	c.cron.Start()
}

// stop halts the refresh loop.
func (c *priceCache) stop() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
	if c.cancel != nil {
		c.cancel()
	}
}
