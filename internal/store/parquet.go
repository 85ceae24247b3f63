package store

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"kabu/internal/domain"
)

// Compile-time interface check.
var _ SeriesCache = (*ParquetCache)(nil)

// ParquetCache implements SeriesCache using one Parquet file per symbol and
// interval on disk.
type ParquetCache struct {
	Dir string

	log *slog.Logger
}

// NewParquetCache creates a ParquetCache rooted at the given directory.
func NewParquetCache(dir string) *ParquetCache {
	return &ParquetCache{
		Dir: dir,
		log: slog.Default().With("component", "series-cache"),
	}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// barRecord is the Parquet schema for one price bar.
type barRecord struct {
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

// ---------------------------------------------------------------------------
// SeriesCache implementation
// ---------------------------------------------------------------------------

// Load reads the cached series for the symbol and interval. A missing file
// is a plain miss; a corrupt or unreadable file is logged and treated as a
// miss so the caller refetches and overwrites it.
func (c *ParquetCache) Load(_ context.Context, symbol string, interval domain.Interval) (*domain.PriceSeries, error) {
	path := c.seriesPath(symbol, interval)

	records, err := readParquetFile[barRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		c.log.Warn("cache read failed, treating as miss",
			"symbol", symbol,
			"interval", interval,
			"err", err,
		)
		return nil, nil
	}

	series := &domain.PriceSeries{
		Symbol:   symbol,
		Interval: interval,
		Bars:     make([]domain.Bar, 0, len(records)),
	}
	for _, r := range records {
		series.Bars = append(series.Bars, domain.Bar{
			Date:   time.UnixMilli(r.Date).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return series, nil
}

// Save writes the series to its Parquet file, replacing any previous entry.
// An empty series is a no-op.
func (c *ParquetCache) Save(_ context.Context, series *domain.PriceSeries) error {
	if series == nil || len(series.Bars) == 0 {
		return nil
	}

	records := make([]barRecord, 0, len(series.Bars))
	for _, b := range series.Bars {
		records = append(records, barRecord{
			Date:   b.Date.UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	path := c.seriesPath(series.Symbol, series.Interval)
	return writeParquetFile(path, records)
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// seriesPath returns the filesystem path for a series Parquet file.
// Layout: <dir>/<market>/<interval>/<SYMBOL>.parquet
func (c *ParquetCache) seriesPath(symbol string, interval domain.Interval) string {
	market := string(domain.MarketOf(symbol))
	return filepath.Join(c.Dir, market, string(interval), strings.ToUpper(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
