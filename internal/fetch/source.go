// Package fetch retrieves historical price series from market data sources
// through an incremental on-disk cache. Only the date ranges the cache does
// not already cover are requested from the network.
package fetch

import (
	"context"
	"time"

	"kabu/internal/domain"
)

// Source fetches raw bars for one symbol from a market data provider.
// Implementations classify their failures as transient or permanent so the
// retry loop knows when another attempt is pointless. An empty result with
// a nil error means the range genuinely holds no bars.
type Source interface {
	// Fetch returns the bars for the symbol within [start, end] inclusive,
	// sorted ascending by date.
	Fetch(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Bar, error)
}
