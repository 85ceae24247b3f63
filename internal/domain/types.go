// Package domain defines the core types shared across the kabu backtest
// pipeline: bars, price series, intervals, trades, and market identifiers.
package domain

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

// Market identifies the exchange a symbol trades on.
type Market string

const (
	// MarketUS is the United States market (NYSE/NASDAQ, bare symbols).
	MarketUS Market = "us"
	// MarketJP is the Tokyo Stock Exchange (".T"-suffixed symbols).
	MarketJP Market = "jp"
)

// MarketOf derives the market from a symbol's suffix convention:
// "7203.T" is Tokyo, a bare symbol like "AAPL" is US.
func MarketOf(symbol string) Market {
	if strings.HasSuffix(symbol, ".T") {
		return MarketJP
	}
	return MarketUS
}

// ---------------------------------------------------------------------------
// Intervals
// ---------------------------------------------------------------------------

// Interval is the bar granularity of a price series.
type Interval string

const (
	IntervalDaily   Interval = "1d"
	IntervalWeekly  Interval = "1wk"
	IntervalMonthly Interval = "1mo"
)

// Valid reports whether i is a known interval.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	}
	return false
}

// Annualization returns the number of bars per year for the interval, used
// to scale per-bar return statistics to annual figures.
func (i Interval) Annualization() float64 {
	switch i {
	case IntervalWeekly:
		return 52
	case IntervalMonthly:
		return 12
	default:
		return 252
	}
}

// ---------------------------------------------------------------------------
// Bars and series
// ---------------------------------------------------------------------------

// Bar is one OHLCV observation for a single instrument at one interval.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// PriceSeries is an ordered sequence of bars for one (symbol, interval)
// pair. Bars are strictly ascending by date with no duplicates. Missing
// trading dates are simply absent; the series is never zero-filled.
type PriceSeries struct {
	Symbol   string
	Interval Interval
	Bars     []Bar
}

// Len returns the number of bars in the series.
func (s PriceSeries) Len() int { return len(s.Bars) }

// FirstDate returns the date of the earliest bar, or the zero time for an
// empty series.
func (s PriceSeries) FirstDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Date
}

// LastDate returns the date of the latest bar, or the zero time for an
// empty series.
func (s PriceSeries) LastDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// Slice returns a copy of the series restricted to bars with dates in
// [start, end] inclusive.
func (s PriceSeries) Slice(start, end time.Time) PriceSeries {
	out := PriceSeries{Symbol: s.Symbol, Interval: s.Interval}
	for _, b := range s.Bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// Closes returns the close prices of all bars in order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i := range s.Bars {
		out[i] = s.Bars[i].Close
	}
	return out
}

// Volumes returns the volumes of all bars in order, as float64 for
// indicator math.
func (s PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i := range s.Bars {
		out[i] = float64(s.Bars[i].Volume)
	}
	return out
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop-loss"
	ExitTakeProfit ExitReason = "take-profit"
	ExitTime       ExitReason = "time-exit"
	ExitSignal     ExitReason = "signal-exit"
	ExitEndOfData  ExitReason = "end-of-data"
)

// Trade is one closed round trip: entry to exit, with the realized return.
type Trade struct {
	Symbol     string
	EntryDate  time.Time
	EntryPrice float64
	ExitDate   time.Time
	ExitPrice  float64
	Reason     ExitReason
	Return     float64
}

// Win reports whether the trade closed with a positive return.
func (t Trade) Win() bool { return t.Return > 0 }

// EquityPoint is one sample of an equity curve.
type EquityPoint struct {
	Date   time.Time
	Equity float64
}
