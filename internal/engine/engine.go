// Package engine replays one price series through a rule set's position
// state machine, producing a trade log, an equity curve, and summary
// metrics for that single instrument.
package engine

import (
	"kabu/internal/domain"
	"kabu/internal/strategy"
)

// Result is the output of one replay: every closed trade, one equity point
// per bar, and the metrics derived from both.
type Result struct {
	Symbol  string
	Trades  []domain.Trade
	Curve   []domain.EquityPoint
	Metrics Metrics
}

// Engine replays price series through one rule set. It keeps no state
// between calls, so a single Engine may be shared across goroutines.
type Engine struct {
	rules *strategy.RuleSet
}

// New creates an Engine for the given rule set.
func New(rs *strategy.RuleSet) *Engine {
	return &Engine{rules: rs}
}

// Run replays the series in date order and returns the trades, equity
// curve, and metrics. The replay is deterministic: the same series always
// yields the same Result.
//
// At most one position is open at a time. An entry signal fills at that
// bar's close. While long, exit conditions are checked in priority order:
// stop-loss (the bar's low crossed the stop level), take-profit (the high
// crossed the target), the holding limit, then the exit signal. Every exit
// also fills at the close, and a position cannot re-enter on the bar it
// just exited. A position still open after the last bar is closed there
// with reason end-of-data, so every entry produces exactly one trade.
func (e *Engine) Run(series *domain.PriceSeries) *Result {
	res := &Result{Symbol: series.Symbol}
	n := series.Len()
	if n == 0 {
		res.Metrics = ComputeMetrics(nil, nil, series.Interval)
		return res
	}

	ev := strategy.NewEvaluator(series, e.rules)

	equity := 1.0
	curve := make([]domain.EquityPoint, 0, n)

	long := false
	var entryIdx int
	var entryPrice float64

	for i := 0; i < n; i++ {
		bar := series.Bars[i]

		// Realize the close-to-close move of any position held into this bar.
		if long && i > 0 {
			equity *= bar.Close / series.Bars[i-1].Close
		}

		exited := false
		if long {
			if reason, ok := e.exitReason(ev, bar, i, entryIdx, entryPrice); ok {
				res.Trades = append(res.Trades, domain.Trade{
					Symbol:     series.Symbol,
					EntryDate:  series.Bars[entryIdx].Date,
					EntryPrice: entryPrice,
					ExitDate:   bar.Date,
					ExitPrice:  bar.Close,
					Reason:     reason,
					Return:     bar.Close/entryPrice - 1,
				})
				long = false
				exited = true
			}
		}

		if !long && !exited && ev.Entry(i) {
			long = true
			entryIdx = i
			entryPrice = bar.Close
		}

		curve = append(curve, domain.EquityPoint{Date: bar.Date, Equity: equity})
	}

	if long {
		last := series.Bars[n-1]
		res.Trades = append(res.Trades, domain.Trade{
			Symbol:     series.Symbol,
			EntryDate:  series.Bars[entryIdx].Date,
			EntryPrice: entryPrice,
			ExitDate:   last.Date,
			ExitPrice:  last.Close,
			Reason:     domain.ExitEndOfData,
			Return:     last.Close/entryPrice - 1,
		})
	}

	res.Curve = curve
	res.Metrics = ComputeMetrics(res.Trades, curve, series.Interval)
	return res
}

// exitReason checks the exit conditions for bar i in priority order. A zero
// stop, target, or holding limit disables that condition.
func (e *Engine) exitReason(ev *strategy.Evaluator, bar domain.Bar, i, entryIdx int, entryPrice float64) (domain.ExitReason, bool) {
	if e.rules.StopLoss > 0 && bar.Low <= entryPrice*(1-e.rules.StopLoss) {
		return domain.ExitStopLoss, true
	}
	if e.rules.ProfitTarget > 0 && bar.High >= entryPrice*(1+e.rules.ProfitTarget) {
		return domain.ExitTakeProfit, true
	}
	if e.rules.MaxHoldBars > 0 && i-entryIdx >= e.rules.MaxHoldBars {
		return domain.ExitTime, true
	}
	if ev.Exit(i) {
		return domain.ExitSignal, true
	}
	return "", false
}
