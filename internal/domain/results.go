package domain

import "time"

// ---------------------------------------------------------------------------
// Session bookkeeping
// ---------------------------------------------------------------------------

// Session records one orchestrated batch of backtest runs for a strategy.
type Session struct {
	ID          string
	Strategy    string
	BaseSeed    int64
	Runs        int
	SampleSize  int
	WindowStart time.Time
	WindowEnd   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// RunMetrics holds the reduced metrics of a single run within a session.
// Instruments counts the symbols that produced a backtest result and
// Failures the symbols skipped after a fetch or backtest error.
type RunMetrics struct {
	RunID       int
	Seed        int64
	Instruments int
	Failures    int
	Metrics     map[string]float64
}

// ---------------------------------------------------------------------------
// Cross-run statistics
// ---------------------------------------------------------------------------

// MetricSummary is the distribution of one metric across the runs of a
// session. Stddev is the sample standard deviation and the confidence
// interval bounds are centered on the mean.
type MetricSummary struct {
	Metric string
	Runs   int
	Mean   float64
	Stddev float64
	CILow  float64
	CIHigh float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// UsageCount tracks how often a symbol was drawn into run samples and how
// often it actually traded.
type UsageCount struct {
	Symbol  string
	Sampled int
	Traded  int
}
