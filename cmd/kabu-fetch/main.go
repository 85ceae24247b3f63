// Cache prefetch tool: warms the price cache for whole index universes so
// later backtest sessions replay without hitting the network.
//
// Usage:
//
//	go build -o bin/kabu-fetch ./cmd/kabu-fetch/
//	bin/kabu-fetch [-indices sp500,nikkei225] [-interval 1d] [-years 5] [-workers 8]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kabu/internal/config"
	"kabu/internal/domain"
	"kabu/internal/fetch"
	"kabu/internal/store"
	"kabu/internal/universe"
	"kabu/internal/util"
)

func main() {
	indicesFlag := flag.String("indices", "sp500,nasdaq100,nikkei225", "comma-separated index universes to prefetch")
	intervalFlag := flag.String("interval", "1d", "bar interval (1d, 1wk, 1mo)")
	years := flag.Int("years", 5, "history depth in years")
	workers := flag.Int("workers", 8, "concurrent fetches")
	flag.Parse()

	interval := domain.Interval(*intervalFlag)
	if !interval.Valid() {
		log.Fatalf("invalid interval %q", *intervalFlag)
	}

	cfgPath := "config/kabu.yaml"
	if p := os.Getenv("KABU_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/kabu-fetch-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	indices := strings.Split(*indicesFlag, ",")
	for i := range indices {
		indices[i] = strings.TrimSpace(indices[i])
	}
	syms, err := universe.NewLoader(cfg.Storage.UniverseDir).LoadAll(indices)
	if err != nil {
		log.Fatalf("loading universe: %v", err)
	}

	var source fetch.Source
	switch cfg.Fetch.Source {
	case "stooq", "":
		source = fetch.NewStooqSource(cfg.Fetch.RatePerMinute)
	case "alpaca":
		source = fetch.NewAlpacaSource(cfg.Fetch.Alpaca.APIKey, cfg.Fetch.Alpaca.APISecret, cfg.Fetch.Alpaca.BaseURL)
	default:
		log.Fatalf("unknown fetch source %q", cfg.Fetch.Source)
	}
	cache := fetch.NewCache(source, store.NewParquetCache(cfg.Storage.CacheDir), cfg.Fetch.MaxRetries, cfg.Fetch.RetryDelay())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start, end := config.BacktestWindow(time.Now(), *years)
	logger.Info("prefetch starting",
		"instruments", len(syms),
		"interval", interval,
		"window_start", start.Format("2006-01-02"),
		"window_end", end.Format("2006-01-02"),
		"workers", *workers,
	)

	began := time.Now()
	var fetched, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, sym := range syms {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			series, err := cache.Get(gctx, sym, interval, start, end)
			if err != nil {
				failed.Add(1)
				logger.Warn("prefetch failed", "symbol", sym, "err", err)
				return nil // keep warming the rest
			}
			fetched.Add(1)
			logger.Debug("prefetched", "symbol", sym, "bars", series.Len())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("prefetch interrupted", "err", err)
	}

	logger.Info("prefetch complete",
		"fetched", fetched.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(began).Round(time.Second).String(),
	)
}
