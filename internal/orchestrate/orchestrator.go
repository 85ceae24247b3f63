// Package orchestrate drives a strategy's backtest runs: it samples the
// instrument universe per run seed, fetches each sampled instrument's price
// series, replays it through the engine, and reduces the per-instrument
// results into run-level metrics.
package orchestrate

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"kabu/internal/aggregate"
	"kabu/internal/domain"
	"kabu/internal/engine"
	"kabu/internal/strategy"
)

// Fetcher obtains a price series for one instrument and window.
// fetch.Cache satisfies this.
type Fetcher interface {
	Get(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) (*domain.PriceSeries, error)
}

// RunOutput is one run's outcome: engine results keyed by instrument for
// every sampled instrument whose series could be fetched, plus the count
// that could not.
type RunOutput struct {
	RunID    int
	Seed     int64
	Sampled  []string
	Results  map[string]*engine.Result
	Failures int
}

// SampleUse extracts the run's sampled instruments and the subset that
// produced at least one trade.
func (r *RunOutput) SampleUse() aggregate.SampleUse {
	use := aggregate.SampleUse{Sampled: r.Sampled}
	for sym, res := range r.Results {
		if len(res.Trades) > 0 {
			use.Traded = append(use.Traded, sym)
		}
	}
	sort.Strings(use.Traded)
	return use
}

// PortfolioCurve merges the run's per-instrument equity curves into one
// equal-weight curve over the union of their dates, carrying an
// instrument's last equity forward across dates it has no bar for.
func (r *RunOutput) PortfolioCurve() []domain.EquityPoint {
	type cursor struct {
		pts  []domain.EquityPoint
		idx  int
		last float64
	}
	var curves []*cursor
	dateSet := make(map[time.Time]struct{})
	for _, sym := range sortedSymbols(r.Results) {
		res := r.Results[sym]
		if len(res.Curve) == 0 {
			continue
		}
		curves = append(curves, &cursor{pts: res.Curve, last: 1})
		for _, p := range res.Curve {
			dateSet[p.Date] = struct{}{}
		}
	}
	if len(curves) == 0 {
		return nil
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]domain.EquityPoint, len(dates))
	for i, d := range dates {
		var sum float64
		for _, c := range curves {
			for c.idx < len(c.pts) && !c.pts[c.idx].Date.After(d) {
				c.last = c.pts[c.idx].Equity
				c.idx++
			}
			sum += c.last
		}
		out[i] = domain.EquityPoint{Date: d, Equity: sum / float64(len(curves))}
	}
	return out
}

// sortedSymbols fixes the iteration order over a result map so float
// accumulation is reproducible between processes.
func sortedSymbols(results map[string]*engine.Result) []string {
	syms := make([]string, 0, len(results))
	for sym := range results {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// Orchestrator runs one strategy over a fixed backtest window. Fetching and
// replay run on separate bounded worker pools so an instrument can replay
// while others are still downloading.
type Orchestrator struct {
	fetcher        Fetcher
	start, end     time.Time
	fetchWorkers   int
	computeWorkers int
	log            *slog.Logger
}

// New creates an Orchestrator fetching over [start, end]. Worker counts
// below one are raised to one.
func New(fetcher Fetcher, start, end time.Time, fetchWorkers, computeWorkers int) *Orchestrator {
	if fetchWorkers < 1 {
		fetchWorkers = 1
	}
	if computeWorkers < 1 {
		computeWorkers = 1
	}
	return &Orchestrator{
		fetcher:        fetcher,
		start:          start,
		end:            end,
		fetchWorkers:   fetchWorkers,
		computeWorkers: computeWorkers,
		log:            slog.Default().With("component", "orchestrate"),
	}
}

// RunStrategy executes one run: sample the universe with the run seed,
// fetch every sampled instrument, and replay each fetched series. A failed
// fetch is logged and counted; it never aborts the run, so the result map
// simply lacks that instrument.
func (o *Orchestrator) RunStrategy(ctx context.Context, rs *strategy.RuleSet, universe []string, seed int64, sampleSize int) *RunOutput {
	sampled := Sample(universe, sampleSize, seed)
	out := &RunOutput{
		Seed:    seed,
		Sampled: sampled,
		Results: make(map[string]*engine.Result, len(sampled)),
	}
	if len(sampled) == 0 {
		return out
	}

	symbolCh := make(chan string, len(sampled))
	for _, sym := range sampled {
		symbolCh <- sym
	}
	close(symbolCh)

	type fetched struct {
		symbol string
		series *domain.PriceSeries
	}
	seriesCh := make(chan fetched, len(sampled))

	var failures atomic.Int64
	var fetchWG sync.WaitGroup
	for w := 0; w < min(o.fetchWorkers, len(sampled)); w++ {
		fetchWG.Add(1)
		go func() {
			defer fetchWG.Done()
			for sym := range symbolCh {
				if ctx.Err() != nil {
					return
				}
				series, err := o.fetcher.Get(ctx, sym, rs.Interval, o.start, o.end)
				if err != nil {
					failures.Add(1)
					o.log.Warn("instrument skipped", "symbol", sym, "seed", seed, "err", err)
					continue
				}
				seriesCh <- fetched{symbol: sym, series: series}
			}
		}()
	}
	go func() {
		fetchWG.Wait()
		close(seriesCh)
	}()

	eng := engine.New(rs)
	var mu sync.Mutex
	var computeWG sync.WaitGroup
	for w := 0; w < o.computeWorkers; w++ {
		computeWG.Add(1)
		go func() {
			defer computeWG.Done()
			for f := range seriesCh {
				res := eng.Run(f.series)
				mu.Lock()
				out.Results[f.symbol] = res
				mu.Unlock()
			}
		}()
	}
	computeWG.Wait()

	out.Failures = int(failures.Load())
	return out
}

// RunMany executes runs sequentially, run r seeded with baseSeed+r for r in
// 1..runs. Each run parallelizes internally. A canceled context stops
// before the next run; completed runs are still returned.
func (o *Orchestrator) RunMany(ctx context.Context, rs *strategy.RuleSet, universe []string, baseSeed int64, runs, sampleSize int) []*RunOutput {
	outputs := make([]*RunOutput, 0, runs)
	for r := 1; r <= runs; r++ {
		if ctx.Err() != nil {
			break
		}
		out := o.RunStrategy(ctx, rs, universe, baseSeed+int64(r), sampleSize)
		out.RunID = r
		o.log.Info("run complete",
			"strategy", rs.Name,
			"run", r,
			"seed", out.Seed,
			"instruments", len(out.Results),
			"failures", out.Failures,
		)
		outputs = append(outputs, out)
	}
	return outputs
}

// ReduceMetrics flattens one run's per-instrument results into the run's
// metric map. Metrics derived from equity curves are averaged across
// instruments; trade statistics are recomputed over the pooled trade log so
// an instrument with many trades weighs accordingly.
func ReduceMetrics(out *RunOutput, interval domain.Interval) domain.RunMetrics {
	rm := domain.RunMetrics{
		RunID:       out.RunID,
		Seed:        out.Seed,
		Instruments: len(out.Results),
		Failures:    out.Failures,
		Metrics:     map[string]float64{},
	}
	if len(out.Results) == 0 {
		return rm
	}

	var pooled []domain.Trade
	var totalReturn, annualReturn, volatility, sharpe, maxDD float64
	for _, sym := range sortedSymbols(out.Results) {
		res := out.Results[sym]
		pooled = append(pooled, res.Trades...)
		totalReturn += res.Metrics.TotalReturn
		annualReturn += res.Metrics.AnnualReturn
		volatility += res.Metrics.Volatility
		sharpe += res.Metrics.SharpeRatio
		maxDD += res.Metrics.MaxDrawdown
	}
	n := float64(len(out.Results))

	m := engine.ComputeMetrics(pooled, nil, interval)
	m.TotalReturn = totalReturn / n
	m.AnnualReturn = annualReturn / n
	m.Volatility = volatility / n
	m.SharpeRatio = sharpe / n
	m.MaxDrawdown = maxDD / n

	rm.Metrics = m.Map()
	return rm
}
