package oracle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"crossfund/internal/metrics"
	"crossfund/internal/model"
)

const (
	DefaultStaleness     = 60 * time.Second
	DefaultFeedTimeout   = 5 * time.Second
	DefaultRetryInterval = 5 * time.Second
)

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	Staleness     time.Duration
	FeedTimeout   time.Duration
	RetryInterval time.Duration
	Now           func() time.Time
}

// Cache serves USD prices, refreshing from its feeds once the snapshot is stale.
type Cache struct {
	feeds  map[model.Currency]Feed
	opts   Options
	logger *zap.Logger
	group  singleflight.Group

	mu          sync.Mutex
	snapshot    model.PriceSnapshot
	lastFailure time.Time
}

func NewCache(feeds map[model.Currency]Feed, opts Options, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultStaleness
	}
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = DefaultFeedTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{feeds: feeds, opts: opts, logger: logger}
}

// GetPrices returns a snapshot covering every configured currency. It never fails:
// feed errors degrade to the last known price or the registry default.
func (c *Cache) GetPrices(ctx context.Context) model.PriceSnapshot {
	now := c.opts.Now()

	c.mu.Lock()
	if c.snapshot.FreshAt(now, c.opts.Staleness) || c.backingOff(now) {
		s := c.snapshot.Clone()
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx)), nil
	})
	return v.(model.PriceSnapshot).Clone()
}

// Snapshot returns the current snapshot without fetching.
func (c *Cache) Snapshot() model.PriceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// backingOff reports whether a total failure happened within the retry interval.
// While it holds, stale reads are served without a refetch even past the
// staleness window. A cache that never held a snapshot must not back off
// into an empty result.
func (c *Cache) backingOff(now time.Time) bool {
	if c.lastFailure.IsZero() || c.snapshot.Prices == nil {
		return false
	}
	return now.Sub(c.lastFailure) < c.opts.RetryInterval
}

func (c *Cache) refresh(ctx context.Context) model.PriceSnapshot {
	fetched := make(map[model.Currency]float64, len(c.feeds))
	var fetchedMu sync.Mutex

	var g errgroup.Group
	for cur, feed := range c.feeds {
		g.Go(func() error {
			price, err := c.fetchOne(ctx, feed)
			if err != nil {
				metrics.PriceFeedFailures.WithLabelValues(string(cur)).Inc()
				c.logger.Warn("price feed unavailable",
					zap.String("currency", string(cur)),
					zap.Error(err),
				)
				return nil
			}
			fetchedMu.Lock()
			fetched[cur] = price
			fetchedMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	now := c.opts.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := model.PriceSnapshot{
		Prices:     make(map[model.Currency]float64),
		Sources:    make(map[model.Currency]model.PriceSource),
		CapturedAt: c.snapshot.CapturedAt,
	}
	for _, info := range model.Currencies() {
		cur := info.Currency
		if price, ok := fetched[cur]; ok {
			next.Prices[cur] = price
			next.Sources[cur] = model.SourceLive
			continue
		}
		if price, ok := c.snapshot.Prices[cur]; ok && c.snapshot.Sources[cur] != model.SourceDefault {
			next.Prices[cur] = price
			next.Sources[cur] = model.SourceStale
			continue
		}
		next.Prices[cur] = info.DefaultUSD
		next.Sources[cur] = model.SourceDefault
	}

	switch {
	case len(fetched) == 0:
		c.lastFailure = now
		metrics.SnapshotRefreshes.WithLabelValues("failed").Inc()
		c.logger.Warn("price refresh failed, serving fallback prices",
			zap.Duration("retry_in", c.opts.RetryInterval),
		)
	case len(fetched) < len(next.Prices):
		next.CapturedAt = now
		c.lastFailure = time.Time{}
		metrics.SnapshotRefreshes.WithLabelValues("partial").Inc()
	default:
		next.CapturedAt = now
		c.lastFailure = time.Time{}
		metrics.SnapshotRefreshes.WithLabelValues("ok").Inc()
	}

	c.snapshot = next
	c.logger.Debug("price snapshot refreshed",
		zap.Int("live", len(fetched)),
		zap.Time("captured_at", next.CapturedAt),
	)
	return next.Clone()
}

func (c *Cache) fetchOne(ctx context.Context, feed Feed) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FeedTimeout)
	defer cancel()

	start := time.Now()
	price, err := feed.FetchUSD(ctx)
	metrics.PriceFeedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %v", ErrFeedUnavailable, price)
	}
	return price, nil
}
