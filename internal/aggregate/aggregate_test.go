package aggregate

import (
	"math"
	"testing"

	"kabu/internal/domain"
)

func run(id, instruments int, metrics map[string]float64) domain.RunMetrics {
	return domain.RunMetrics{
		RunID:       id,
		Seed:        int64(id),
		Instruments: instruments,
		Metrics:     metrics,
	}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestSummarizeMeanAndStddev(t *testing.T) {
	runs := []domain.RunMetrics{
		run(1, 10, map[string]float64{"total_return": 0.10}),
		run(2, 10, map[string]float64{"total_return": 0.20}),
		run(3, 10, map[string]float64{"total_return": 0.30}),
	}

	got := Summarize(runs, 0.95)
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	s := got[0]
	if s.Metric != "total_return" || s.Runs != 3 {
		t.Fatalf("summary = %+v, want total_return over 3 runs", s)
	}
	approx(t, "mean", s.Mean, 0.20)
	approx(t, "stddev", s.Stddev, 0.10)
	approx(t, "min", s.Min, 0.10)
	approx(t, "max", s.Max, 0.30)
	approx(t, "median", s.Median, 0.20)
	approx(t, "q25", s.Q25, 0.15)
	approx(t, "q75", s.Q75, 0.25)

	half := 1.96 * 0.10 / math.Sqrt(3)
	approx(t, "ci low", s.CILow, 0.20-half)
	approx(t, "ci high", s.CIHigh, 0.20+half)
}

func TestSummarizeExcludesEmptyRuns(t *testing.T) {
	runs := []domain.RunMetrics{
		run(1, 5, map[string]float64{"total_return": 0.10}),
		run(2, 0, map[string]float64{"total_return": 0.99}),
		run(3, 2, map[string]float64{"total_return": 0.30}),
	}

	got := Summarize(runs, 0.95)
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	s := got[0]
	if s.Runs != 2 {
		t.Errorf("Runs = %d, want 2 (zero-instrument run excluded)", s.Runs)
	}
	approx(t, "mean", s.Mean, 0.20)
}

func TestSummarizeEmptyInput(t *testing.T) {
	if got := Summarize(nil, 0.95); len(got) != 0 {
		t.Errorf("Summarize(nil) = %v, want empty", got)
	}
	runs := []domain.RunMetrics{run(1, 0, map[string]float64{"x": 1})}
	if got := Summarize(runs, 0.95); len(got) != 0 {
		t.Errorf("all-empty runs produced %v, want empty", got)
	}
}

func TestSummarizeSingleRun(t *testing.T) {
	runs := []domain.RunMetrics{run(1, 3, map[string]float64{"sharpe_ratio": 1.5})}

	got := Summarize(runs, 0.95)
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	s := got[0]
	if s.Stddev != 0 {
		t.Errorf("Stddev = %v, want 0 for a single run", s.Stddev)
	}
	approx(t, "ci low", s.CILow, 1.5)
	approx(t, "ci high", s.CIHigh, 1.5)
	approx(t, "min", s.Min, 1.5)
	approx(t, "median", s.Median, 1.5)
	approx(t, "max", s.Max, 1.5)
}

func TestSummarizePartialMetrics(t *testing.T) {
	runs := []domain.RunMetrics{
		run(1, 1, map[string]float64{"a": 1}),
		run(2, 1, map[string]float64{"a": 2, "b": 10}),
	}

	got := Summarize(runs, 0.95)
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	// Sorted by metric name.
	if got[0].Metric != "a" || got[1].Metric != "b" {
		t.Fatalf("metrics = %q, %q, want a, b", got[0].Metric, got[1].Metric)
	}
	if got[0].Runs != 2 || got[1].Runs != 1 {
		t.Errorf("runs = %d, %d, want 2, 1", got[0].Runs, got[1].Runs)
	}
	approx(t, "mean a", got[0].Mean, 1.5)
	approx(t, "mean b", got[1].Mean, 10)
}

func TestSummarizeQuartiles(t *testing.T) {
	runs := make([]domain.RunMetrics, 4)
	for i, v := range []float64{4, 1, 3, 2} {
		runs[i] = run(i+1, 1, map[string]float64{"m": v})
	}

	got := Summarize(runs, 0.95)
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	s := got[0]
	approx(t, "median", s.Median, 2.5)
	approx(t, "q25", s.Q25, 1.75)
	approx(t, "q75", s.Q75, 3.25)
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		want       float64
	}{
		{0.90, 1.645},
		{0.95, 1.96},
		{0.99, 2.576},
		{0.50, 1.96},
		{0, 1.96},
	}
	for _, tt := range tests {
		if got := zScore(tt.confidence); got != tt.want {
			t.Errorf("zScore(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestUsage(t *testing.T) {
	runs := []SampleUse{
		{Sampled: []string{"AAPL", "MSFT", "7203.T"}, Traded: []string{"AAPL"}},
		{Sampled: []string{"MSFT", "7203.T"}, Traded: []string{"7203.T", "MSFT"}},
	}

	got := Usage(runs)
	if len(got) != 3 {
		t.Fatalf("got %d usage entries, want 3", len(got))
	}
	// Most sampled first, ties by symbol.
	want := []domain.UsageCount{
		{Symbol: "7203.T", Sampled: 2, Traded: 1},
		{Symbol: "MSFT", Sampled: 2, Traded: 1},
		{Symbol: "AAPL", Sampled: 1, Traded: 1},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("usage[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUsageEmpty(t *testing.T) {
	if got := Usage(nil); len(got) != 0 {
		t.Errorf("Usage(nil) = %v, want empty", got)
	}
}
