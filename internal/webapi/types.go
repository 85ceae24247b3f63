// Package webapi provides the read-only HTTP REST API over the backtest
// results store: sessions, their per-run metrics, and cross-run aggregates
// in JSON format.
package webapi

import (
	"time"

	"kabu/internal/domain"
)

// SessionJSON is the JSON representation of a backtest session.
type SessionJSON struct {
	ID          string `json:"id"`
	Strategy    string `json:"strategy"`
	BaseSeed    int64  `json:"baseSeed"`
	Runs        int    `json:"runs"`
	SampleSize  int    `json:"sampleSize"`
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
	StartedAt   string `json:"startedAt"`
	FinishedAt  string `json:"finishedAt,omitempty"`
}

// RunJSON is the JSON representation of one run's reduced metrics.
type RunJSON struct {
	RunID       int                `json:"runId"`
	Seed        int64              `json:"seed"`
	Instruments int                `json:"instruments"`
	Failures    int                `json:"failures,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
}

// MetricSummaryJSON is the JSON representation of one metric's cross-run
// distribution.
type MetricSummaryJSON struct {
	Metric string  `json:"metric"`
	Runs   int     `json:"runs"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	CILow  float64 `json:"ciLow"`
	CIHigh float64 `json:"ciHigh"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// UsageJSON is the JSON representation of one symbol's sampling counters.
type UsageJSON struct {
	Symbol  string `json:"symbol"`
	Sampled int    `json:"sampled"`
	Traded  int    `json:"traded"`
}

// SessionsResponse lists sessions, most recent first.
type SessionsResponse struct {
	Sessions []SessionJSON `json:"sessions"`
}

// SessionDetailResponse pairs a session with its per-run metrics.
type SessionDetailResponse struct {
	Session SessionJSON `json:"session"`
	Runs    []RunJSON   `json:"runs"`
}

// SummaryResponse holds a session's aggregated metric statistics.
type SummaryResponse struct {
	SessionID string              `json:"sessionId"`
	Summary   []MetricSummaryJSON `json:"summary"`
}

// UsageResponse holds a session's per-symbol usage counters.
type UsageResponse struct {
	SessionID string      `json:"sessionId"`
	Usage     []UsageJSON `json:"usage"`
}

func convertSession(s domain.Session) SessionJSON {
	out := SessionJSON{
		ID:          s.ID,
		Strategy:    s.Strategy,
		BaseSeed:    s.BaseSeed,
		Runs:        s.Runs,
		SampleSize:  s.SampleSize,
		WindowStart: s.WindowStart.Format("2006-01-02"),
		WindowEnd:   s.WindowEnd.Format("2006-01-02"),
		StartedAt:   s.StartedAt.Format(time.RFC3339),
	}
	if !s.FinishedAt.IsZero() {
		out.FinishedAt = s.FinishedAt.Format(time.RFC3339)
	}
	return out
}

func convertRuns(runs []domain.RunMetrics) []RunJSON {
	out := make([]RunJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunJSON{
			RunID:       r.RunID,
			Seed:        r.Seed,
			Instruments: r.Instruments,
			Failures:    r.Failures,
			Metrics:     r.Metrics,
		})
	}
	return out
}

func convertSummary(rows []domain.MetricSummary) []MetricSummaryJSON {
	out := make([]MetricSummaryJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, MetricSummaryJSON{
			Metric: row.Metric,
			Runs:   row.Runs,
			Mean:   row.Mean,
			Stddev: row.Stddev,
			CILow:  row.CILow,
			CIHigh: row.CIHigh,
			Min:    row.Min,
			Q25:    row.Q25,
			Median: row.Median,
			Q75:    row.Q75,
			Max:    row.Max,
		})
	}
	return out
}

func convertUsage(rows []domain.UsageCount) []UsageJSON {
	out := make([]UsageJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, UsageJSON{Symbol: row.Symbol, Sampled: row.Sampled, Traded: row.Traded})
	}
	return out
}
