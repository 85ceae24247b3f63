package engine

import (
	"math"

	"kabu/internal/domain"
)

// Metrics summarizes one replay. Curve metrics derive from the per-bar
// equity series, trade metrics from the closed trade log.
type Metrics struct {
	TotalReturn    float64
	AnnualReturn   float64
	Volatility     float64
	SharpeRatio    float64
	MaxDrawdown    float64
	WinRate        float64
	ProfitFactor   float64
	TotalTrades    int
	AvgTradeReturn float64
	AvgWin         float64
	AvgLoss        float64
}

// Map flattens the metrics into named values for aggregation.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"total_return":     m.TotalReturn,
		"annual_return":    m.AnnualReturn,
		"volatility":       m.Volatility,
		"sharpe_ratio":     m.SharpeRatio,
		"max_drawdown":     m.MaxDrawdown,
		"win_rate":         m.WinRate,
		"profit_factor":    m.ProfitFactor,
		"total_trades":     float64(m.TotalTrades),
		"avg_trade_return": m.AvgTradeReturn,
		"avg_win":          m.AvgWin,
		"avg_loss":         m.AvgLoss,
	}
}

// ComputeMetrics derives summary statistics from a trade log and an equity
// curve; either may be empty. MaxDrawdown and AvgLoss are reported as
// non-positive numbers. The Sharpe ratio and annualized volatility use the
// sample standard deviation of per-bar returns and are zero when fewer
// than two returns exist or the deviation is zero.
func ComputeMetrics(trades []domain.Trade, curve []domain.EquityPoint, interval domain.Interval) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)

	var sumAll, sumWin, sumLoss float64
	var wins, losses int
	for _, t := range trades {
		sumAll += t.Return
		switch {
		case t.Return > 0:
			wins++
			sumWin += t.Return
		case t.Return < 0:
			losses++
			sumLoss += t.Return
		}
	}
	if len(trades) > 0 {
		m.WinRate = float64(wins) / float64(len(trades))
		m.AvgTradeReturn = sumAll / float64(len(trades))
	}
	if wins > 0 {
		m.AvgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = sumLoss / float64(losses)
	}
	if m.AvgLoss < 0 {
		m.ProfitFactor = m.AvgWin / -m.AvgLoss
	}

	if len(curve) == 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturn = final - 1

	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := (p.Equity - peak) / peak; dd < m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		returns = append(returns, curve[i].Equity/curve[i-1].Equity-1)
	}
	if len(returns) == 0 {
		return m
	}

	ann := interval.Annualization()
	if final > 0 {
		m.AnnualReturn = math.Pow(final, ann/float64(len(returns))) - 1
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	if len(returns) >= 2 {
		variance := 0.0
		for _, r := range returns {
			d := r - mean
			variance += d * d
		}
		variance /= float64(len(returns) - 1)
		std := math.Sqrt(variance)
		m.Volatility = std * math.Sqrt(ann)
		if std > 0 {
			m.SharpeRatio = mean / std * math.Sqrt(ann)
		}
	}

	return m
}
