// Package aggregate combines per-run backtest metrics into cross-run
// summary statistics.
package aggregate

import (
	"math"
	"sort"

	"kabu/internal/domain"
)

// Summarize computes per-metric statistics across runs: mean, sample
// standard deviation, a confidence interval on the mean, and the min,
// quartile, and max spread. A metric is summarized over the runs that
// report it; runs that produced no instruments are excluded entirely.
// The result is sorted by metric name, and empty input yields an empty
// slice.
func Summarize(runs []domain.RunMetrics, confidence float64) []domain.MetricSummary {
	values := make(map[string][]float64)
	for _, run := range runs {
		if run.Instruments == 0 {
			continue
		}
		for name, v := range run.Metrics {
			values[name] = append(values[name], v)
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	z := zScore(confidence)
	summaries := make([]domain.MetricSummary, 0, len(names))
	for _, name := range names {
		vals := values[name]
		n := len(vals)

		m := mean(vals)
		sd := sampleStddev(vals, m)
		stderr := sd / math.Sqrt(float64(n))

		sorted := make([]float64, n)
		copy(sorted, vals)
		sort.Float64s(sorted)

		summaries = append(summaries, domain.MetricSummary{
			Metric: name,
			Runs:   n,
			Mean:   m,
			Stddev: sd,
			CILow:  m - z*stderr,
			CIHigh: m + z*stderr,
			Min:    sorted[0],
			Q25:    percentileSorted(sorted, 25),
			Median: medianSorted(sorted),
			Q75:    percentileSorted(sorted, 75),
			Max:    sorted[n-1],
		})
	}
	return summaries
}

// SampleUse records one run's sampled instruments and the subset that
// actually traded.
type SampleUse struct {
	Sampled []string
	Traded  []string
}

// Usage tallies how often each instrument was sampled across runs and how
// often it produced at least one trade, most sampled first.
func Usage(runs []SampleUse) []domain.UsageCount {
	counts := make(map[string]*domain.UsageCount)
	tally := func(sym string) *domain.UsageCount {
		c, ok := counts[sym]
		if !ok {
			c = &domain.UsageCount{Symbol: sym}
			counts[sym] = c
		}
		return c
	}
	for _, run := range runs {
		for _, sym := range run.Sampled {
			tally(sym).Sampled++
		}
		for _, sym := range run.Traded {
			tally(sym).Traded++
		}
	}

	out := make([]domain.UsageCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sampled != out[j].Sampled {
			return out[i].Sampled > out[j].Sampled
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// zScore maps a confidence level to its normal z value. Unrecognized
// levels fall back to 95%.
func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.576
	case confidence >= 0.95:
		return 1.96
	case confidence >= 0.90:
		return 1.645
	default:
		return 1.96
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// sampleStddev returns the sample standard deviation, 0 when fewer than
// two values exist.
func sampleStddev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// medianSorted returns the median of an already-sorted slice.
func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentileSorted returns the p-th percentile (0-100) of an already-sorted
// slice using linear interpolation.
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	frac := rank - float64(lower)
	if lower >= n-1 {
		return sorted[n-1]
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
