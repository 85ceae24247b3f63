// Package store defines storage interfaces for persisting price series
// between sessions and for recording backtest results.
package store

import (
	"context"

	"kabu/internal/domain"
)

// SeriesCache persists and retrieves price series keyed by symbol and
// interval. Load returns a nil series when nothing is cached; a corrupt
// or unreadable file is treated the same way so a fresh fetch can repair it.
type SeriesCache interface {
	// Load returns the cached series for the symbol and interval, or nil
	// when the cache has no usable entry.
	Load(ctx context.Context, symbol string, interval domain.Interval) (*domain.PriceSeries, error)

	// Save persists the series, replacing any previous entry for its key.
	Save(ctx context.Context, series *domain.PriceSeries) error
}

// ResultStore persists backtest sessions, their per-run metrics, and the
// aggregated cross-run statistics.
type ResultStore interface {
	// SaveSession inserts or updates a session record.
	SaveSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a single session by its ID.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns all sessions, most recent first.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// SaveRuns persists the per-run metrics of a session.
	SaveRuns(ctx context.Context, sessionID string, runs []domain.RunMetrics) error

	// ListRuns returns the per-run metrics of a session ordered by run ID.
	ListRuns(ctx context.Context, sessionID string) ([]domain.RunMetrics, error)

	// SaveSummary persists the aggregated metric statistics of a session.
	SaveSummary(ctx context.Context, sessionID string, rows []domain.MetricSummary) error

	// ListSummary returns the aggregated metric statistics of a session.
	ListSummary(ctx context.Context, sessionID string) ([]domain.MetricSummary, error)

	// SaveUsage persists the per-symbol usage counters of a session.
	SaveUsage(ctx context.Context, sessionID string, rows []domain.UsageCount) error

	// ListUsage returns the per-symbol usage counters of a session, most
	// used first.
	ListUsage(ctx context.Context, sessionID string) ([]domain.UsageCount, error)
}
