// Package builtins provides the built-in rule sets that ship with the kabu
// platform.
package builtins

import (
	"kabu/internal/domain"
	"kabu/internal/strategy"
)

// SwingTrading returns the daily-bar swing rule set: a 5/25 golden cross
// confirmed by a neutral RSI and a volume surge, closed at +7.5% or -5%,
// on an overbought RSI or a close under the slow SMA, and after at most
// 30 bars in position.
func SwingTrading() *strategy.RuleSet {
	return &strategy.RuleSet{
		Name:     "swing_trading",
		Interval: domain.IntervalDaily,
		Entry: []strategy.Rule{
			strategy.SMACross{Fast: 5, Slow: 25},
			strategy.RSIRange{Period: 14, Min: 40, Max: 50},
			strategy.VolumeSurge{Period: 20, Ratio: 1.5},
		},
		Exit: []strategy.Rule{
			strategy.RSIAbove{Period: 14, Level: 70},
			strategy.PriceBelowSMA{Period: 25},
		},
		ProfitTarget: 0.075,
		StopLoss:     0.05,
		MaxHoldBars:  30,
	}
}

// LongTerm returns the weekly-bar trend rule set: entries above the 200-week
// SMA on a volume surge, closed at +30% or -8.5%, on a close under the
// 200-week SMA, and after at most 104 bars (two years) in position.
func LongTerm() *strategy.RuleSet {
	return &strategy.RuleSet{
		Name:     "long_term",
		Interval: domain.IntervalWeekly,
		Entry: []strategy.Rule{
			strategy.PriceAboveSMA{Period: 200},
			strategy.VolumeSurge{Period: 20, Ratio: 1.5},
		},
		Exit: []strategy.Rule{
			strategy.PriceBelowSMA{Period: 200},
		},
		ProfitTarget: 0.30,
		StopLoss:     0.085,
		MaxHoldBars:  104,
	}
}

// Register adds every built-in rule set to the registry.
func Register(r *strategy.Registry) {
	r.Register(SwingTrading())
	r.Register(LongTerm())
}

// NewRegistry returns a registry pre-populated with the built-ins.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
