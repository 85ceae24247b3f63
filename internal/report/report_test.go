package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kabu/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func points(equities []float64, firstDay int) []domain.EquityPoint {
	pts := make([]domain.EquityPoint, len(equities))
	for i, e := range equities {
		pts[i] = domain.EquityPoint{Date: day(firstDay + i), Equity: e}
	}
	return pts
}

func testData() *Data {
	return &Data{
		Session: domain.Session{
			ID:          "abc123",
			Strategy:    "swing_trading",
			BaseSeed:    42,
			Runs:        2,
			SampleSize:  3,
			WindowStart: day(1),
			WindowEnd:   day(10),
		},
		Runs: []domain.RunMetrics{
			{RunID: 1, Seed: 43, Instruments: 3, Failures: 0},
			{RunID: 2, Seed: 44, Instruments: 2, Failures: 1},
		},
		Summary: []domain.MetricSummary{
			{Metric: "total_return", Runs: 2, Mean: 0.1, Stddev: 0.02, CILow: 0.07, CIHigh: 0.13, Min: 0.08, Q25: 0.09, Median: 0.1, Q75: 0.11, Max: 0.12},
		},
		Usage: []domain.UsageCount{
			{Symbol: "AAPL", Sampled: 2, Traded: 2},
			{Symbol: "7203.T", Sampled: 1, Traded: 0},
		},
		Curves: []RunCurve{
			{RunID: 1, Points: points([]float64{1, 1.1, 1.2}, 1)},
			{RunID: 2, Points: points([]float64{1, 0.9}, 2)},
		},
	}
}

func TestRenderWritesReport(t *testing.T) {
	dir := t.TempDir()
	path, err := NewRenderer(dir).Render(testData())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := filepath.Join(dir, "swing_trading-abc123.html"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	got := string(raw)
	for _, want := range []string{
		"echarts",
		"swing_trading equity curves (2 runs)",
		"mean curve drawdown",
		"Aggregate summary",
		"total_return",
		"AAPL",
		"7203.T",
		"Degraded runs",
		"run 2: 1 of 3 instruments failed to fetch",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRenderNoCurves(t *testing.T) {
	data := testData()
	data.Curves = nil

	path, err := NewRenderer(t.TempDir()).Render(data)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(raw), "Aggregate summary") {
		t.Error("report missing summary table")
	}
}

func TestSampleCurveCarriesForward(t *testing.T) {
	axis := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}
	pts := []domain.EquityPoint{
		{Date: day(2), Equity: 1.1},
		{Date: day(4), Equity: 1.3},
	}
	got := sampleCurve(axis, pts)
	want := []float64{1, 1.1, 1.1, 1.3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sampleCurve[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAlignCurvesUnionAxis(t *testing.T) {
	curves := []RunCurve{
		{RunID: 1, Points: points([]float64{1, 1.2}, 1)},
		{RunID: 2, Points: points([]float64{1, 1.4}, 3)},
	}
	axis, aligned := alignCurves(curves)
	if len(axis) != 4 {
		t.Fatalf("axis length = %d, want 4", len(axis))
	}
	if axis[0] != "2024-01-01" || axis[3] != "2024-01-04" {
		t.Errorf("axis = %v, want 2024-01-01..2024-01-04", axis)
	}
	// Run 2 holds its starting equity until its first date.
	if got := aligned[1]; got[0] != 1 || got[1] != 1 || got[2] != 1 || got[3] != 1.4 {
		t.Errorf("aligned run 2 = %v, want [1 1 1 1.4]", got)
	}
}

func TestMeanSeries(t *testing.T) {
	aligned := [][]float64{
		{1, 1.2, 1.4},
		{1, 0.8, 1.0},
	}
	got := meanSeries(aligned, 3)
	want := []float64{1, 1.0, 1.2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("meanSeries[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDrawdownSeries(t *testing.T) {
	got := drawdownSeries([]float64{1, 1.25, 1.0, 1.5})
	want := []float64{0, 0, -0.2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drawdownSeries[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunWarnings(t *testing.T) {
	runs := []domain.RunMetrics{
		{RunID: 1, Instruments: 3},
		{RunID: 2, Instruments: 0},
		{RunID: 3, Instruments: 4, Failures: 2},
	}
	got := runWarnings(runs)
	if len(got) != 2 {
		t.Fatalf("runWarnings returned %d warnings, want 2", len(got))
	}
	if !strings.Contains(got[0], "run 2") || !strings.Contains(got[0], "excluded") {
		t.Errorf("warning[0] = %q, want run 2 exclusion", got[0])
	}
	if !strings.Contains(got[1], "run 3") || !strings.Contains(got[1], "2 of 6") {
		t.Errorf("warning[1] = %q, want run 3 failure counts", got[1])
	}
}
