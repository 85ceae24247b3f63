package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"kabu/internal/domain"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches bars from the Alpaca market-data API. Alpaca serves
// US listings only; Tokyo symbols fail permanently so callers fall back to
// another source instead of retrying.
type AlpacaSource struct {
	client *marketdata.Client
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. An
// empty baseURL uses the production data endpoint.
func NewAlpacaSource(apiKey, apiSecret, baseURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	return &AlpacaSource{client: marketdata.NewClient(opts)}
}

// Fetch retrieves bars for a US symbol within [start, end].
func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if market := domain.MarketOf(symbol); market != domain.MarketUS {
		return nil, permanentErr("alpaca", fmt.Errorf("market %s not served for %s", market, symbol))
	}

	tf, err := alpacaTimeFrame(interval)
	if err != nil {
		return nil, permanentErr("alpaca", err)
	}

	alpacaBars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, transientErr("alpaca GetBars", err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Date:   ab.Timestamp.UTC(),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		})
	}
	return bars, nil
}

// alpacaTimeFrame maps an interval to the Alpaca bar timeframe.
func alpacaTimeFrame(interval domain.Interval) (marketdata.TimeFrame, error) {
	switch interval {
	case domain.IntervalDaily:
		return marketdata.OneDay, nil
	case domain.IntervalWeekly:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case domain.IntervalMonthly:
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval %q", interval)
}
