package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"kabu/internal/domain"
	"kabu/internal/store"
	"kabu/internal/util"
)

// Cache serves price series from an on-disk cache and fetches only the date
// ranges the cache does not cover yet. Concurrent requests for the same
// (symbol, interval) key are serialized so the source is hit once; requests
// for different keys proceed in parallel.
type Cache struct {
	source     Source
	store      store.SeriesCache
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCache creates a Cache over the given source and series store.
func NewCache(source Source, cache store.SeriesCache, maxRetries int, retryDelay time.Duration) *Cache {
	return &Cache{
		source:     source,
		store:      cache,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        slog.Default().With("component", "fetch-cache"),
		locks:      make(map[string]*sync.Mutex),
	}
}

// span is a contiguous date range still missing from the cache.
type span struct {
	start, end time.Time
}

// Get returns the price series for the symbol restricted to [start, end].
// Cached bars are reused; at most two ranges are fetched, one before and
// one after the cached coverage. When a range fetch fails but other data
// exists, the partial series is returned with a warning. A *FetchError is
// returned only when no bars at all are available for the request.
func (c *Cache) Get(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) (*domain.PriceSeries, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("fetch: invalid interval %q", interval)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("fetch: range end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	unlock := c.lockKey(symbol, interval)
	defer unlock()

	cached, err := c.store.Load(ctx, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("fetch: loading cache for %s: %w", symbol, err)
	}

	merged := cached
	if merged == nil {
		merged = &domain.PriceSeries{Symbol: symbol, Interval: interval}
	}

	var (
		lastErr error
		fetched int
	)
	for _, sp := range missingSpans(merged, start, end) {
		bars, err := c.fetchSpan(ctx, symbol, interval, sp)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("range fetch failed, continuing with partial data",
				"symbol", symbol,
				"interval", interval,
				"from", sp.start.Format("2006-01-02"),
				"to", sp.end.Format("2006-01-02"),
				"err", err,
			)
			lastErr = err
			continue
		}
		merged = c.merge(merged, bars)
		fetched += len(bars)
	}

	if fetched > 0 {
		if err := c.store.Save(ctx, merged); err != nil {
			// The series is still served from memory; only the next session
			// pays for the refetch.
			c.log.Warn("cache write failed",
				"symbol", symbol,
				"interval", interval,
				"err", err,
			)
		}
	}

	result := merged.Slice(start, end)
	if result.Len() == 0 {
		return nil, &FetchError{Symbol: symbol, Interval: interval, Err: lastErr}
	}
	return &result, nil
}

// missingSpans returns the date ranges of [start, end] not covered by the
// series: everything when it is empty, otherwise up to one range before the
// first cached bar and one after the last. Fetching always extends to the
// cache edge so coverage stays contiguous.
func missingSpans(series *domain.PriceSeries, start, end time.Time) []span {
	if series.Len() == 0 {
		return []span{{start: start, end: end}}
	}

	var spans []span
	if first := series.FirstDate(); start.Before(first) {
		spans = append(spans, span{start: start, end: first.AddDate(0, 0, -1)})
	}
	if last := series.LastDate(); end.After(last) {
		spans = append(spans, span{start: last.AddDate(0, 0, 1), end: end})
	}
	return spans
}

// fetchSpan fetches one missing range with bounded exponential backoff.
// Permanent source errors abort the retries immediately.
func (c *Cache) fetchSpan(ctx context.Context, symbol string, interval domain.Interval, sp span) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, c.maxRetries, c.retryDelay, func() error {
		got, err := c.source.Fetch(ctx, symbol, interval, sp.start, sp.end)
		if err != nil {
			return err
		}
		bars = got
		return nil
	})
	return bars, err
}

// merge folds freshly fetched bars into the series, deduplicating by date
// with the fetched bar winning, and re-sorts ascending.
func (c *Cache) merge(series *domain.PriceSeries, incoming []domain.Bar) *domain.PriceSeries {
	seen := make(map[int64]domain.Bar, series.Len()+len(incoming))
	for _, b := range series.Bars {
		seen[b.Date.Unix()] = b
	}

	dups := 0
	for _, b := range incoming {
		if _, ok := seen[b.Date.Unix()]; ok {
			dups++
		}
		seen[b.Date.Unix()] = b
	}
	if dups > 0 {
		c.log.Warn("duplicate dates in fetched data, keeping newest",
			"symbol", series.Symbol,
			"interval", series.Interval,
			"count", dups,
		)
	}

	merged := make([]domain.Bar, 0, len(seen))
	for _, b := range seen {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})

	return &domain.PriceSeries{Symbol: series.Symbol, Interval: series.Interval, Bars: merged}
}

// lockKey acquires the per-key mutex and returns its release function.
func (c *Cache) lockKey(symbol string, interval domain.Interval) func() {
	key := symbol + "/" + string(interval)

	c.mu.Lock()
	m, ok := c.locks[key]
	if !ok {
		m = &sync.Mutex{}
		c.locks[key] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}
