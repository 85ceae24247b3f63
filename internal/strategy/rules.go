package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"kabu/internal/domain"
)

// Compile-time interface checks.
var _ Rule = SMACross{}
var _ Rule = RSIRange{}
var _ Rule = RSIAbove{}
var _ Rule = VolumeSurge{}
var _ Rule = PriceAboveSMA{}
var _ Rule = PriceBelowSMA{}

// ---------------------------------------------------------------------------
// Moving average rules
// ---------------------------------------------------------------------------

// SMACross fires on the bar where the fast SMA crosses above the slow one.
type SMACross struct {
	Fast int
	Slow int
}

func (r SMACross) Name() string { return fmt.Sprintf("sma-cross-%d-%d", r.Fast, r.Slow) }

// Lookback needs the slow SMA valid on the previous bar as well.
func (r SMACross) Lookback() int { return r.Slow }

func (r SMACross) Validate() error {
	if r.Fast <= 0 || r.Slow <= 0 {
		return fmt.Errorf("periods must be positive, got %d/%d", r.Fast, r.Slow)
	}
	if r.Fast >= r.Slow {
		return fmt.Errorf("fast period %d must be below slow period %d", r.Fast, r.Slow)
	}
	return nil
}

func (r SMACross) Flags(series *domain.PriceSeries) []bool {
	flags := make([]bool, series.Len())
	if series.Len() <= r.Lookback() {
		return flags
	}
	closes := series.Closes()
	fast := talib.Sma(closes, r.Fast)
	slow := talib.Sma(closes, r.Slow)
	for i := r.Slow; i < len(flags); i++ {
		if fast[i] > slow[i] && fast[i-1] <= slow[i-1] {
			flags[i] = true
		}
	}
	return flags
}

// PriceAboveSMA holds while the close sits above its SMA.
type PriceAboveSMA struct {
	Period int
}

func (r PriceAboveSMA) Name() string { return fmt.Sprintf("close-above-sma-%d", r.Period) }

func (r PriceAboveSMA) Lookback() int { return r.Period - 1 }

func (r PriceAboveSMA) Validate() error {
	if r.Period <= 0 {
		return fmt.Errorf("period must be positive, got %d", r.Period)
	}
	return nil
}

func (r PriceAboveSMA) Flags(series *domain.PriceSeries) []bool {
	flags := make([]bool, series.Len())
	if series.Len() <= r.Lookback() {
		return flags
	}
	closes := series.Closes()
	sma := talib.Sma(closes, r.Period)
	for i := r.Period - 1; i < len(flags); i++ {
		if closes[i] > sma[i] {
			flags[i] = true
		}
	}
	return flags
}

// PriceBelowSMA holds while the close sits below its SMA.
type PriceBelowSMA struct {
	Period int
}

func (r PriceBelowSMA) Name() string { return fmt.Sprintf("close-below-sma-%d", r.Period) }

func (r PriceBelowSMA) Lookback() int { return r.Period - 1 }

func (r PriceBelowSMA) Validate() error {
	if r.Period <= 0 {
		return fmt.Errorf("period must be positive, got %d", r.Period)
	}
	return nil
}

func (r PriceBelowSMA) Flags(series *domain.PriceSeries) []bool {
	flags := make([]bool, series.Len())
	if series.Len() <= r.Lookback() {
		return flags
	}
	closes := series.Closes()
	sma := talib.Sma(closes, r.Period)
	for i := r.Period - 1; i < len(flags); i++ {
		if closes[i] < sma[i] {
			flags[i] = true
		}
	}
	return flags
}

// ---------------------------------------------------------------------------
// RSI rules
// ---------------------------------------------------------------------------

// RSIRange holds while the RSI sits inside [Min, Max] inclusive.
type RSIRange struct {
	Period   int
	Min, Max float64
}

func (r RSIRange) Name() string { return fmt.Sprintf("rsi-%d-range", r.Period) }

func (r RSIRange) Lookback() int { return r.Period }

func (r RSIRange) Validate() error {
	if r.Period <= 0 {
		return fmt.Errorf("period must be positive, got %d", r.Period)
	}
	if r.Min > r.Max {
		return fmt.Errorf("min %v above max %v", r.Min, r.Max)
	}
	return nil
}

func (r RSIRange) Flags(series *domain.PriceSeries) []bool {
	flags := make([]bool, series.Len())
	if series.Len() <= r.Lookback() {
		return flags
	}
	rsi := talib.Rsi(series.Closes(), r.Period)
	for i := r.Period; i < len(flags); i++ {
		if rsi[i] >= r.Min && rsi[i] <= r.Max {
			flags[i] = true
		}
	}
	return flags
}

// RSIAbove holds while the RSI sits above Level.
type RSIAbove struct {
	Period int
	Level  float64
}

func (r RSIAbove) Name() string { return fmt.Sprintf("rsi-%d-above-%v", r.Period, r.Level) }

func (r RSIAbove) Lookback() int { return r.Period }

func (r RSIAbove) Validate() error {
	if r.Period <= 0 {
		return fmt.Errorf("period must be positive, got %d", r.Period)
	}
	return nil
}

func (r RSIAbove) Flags(series *domain.PriceSeries) []bool {
	flags := make([]bool, series.Len())
	if series.Len() <= r.Lookback() {
		return flags
	}
	rsi := talib.Rsi(series.Closes(), r.Period)
	for i := r.Period; i < len(flags); i++ {
		if rsi[i] > r.Level {
			flags[i] = true
		}
	}
	return flags
}

// ---------------------------------------------------------------------------
// Volume rules
// ---------------------------------------------------------------------------

// VolumeSurge holds while the bar's volume reaches Ratio times its rolling
// average, current bar included.
type VolumeSurge struct {
	Period int
	Ratio  float64
}

func (r VolumeSurge) Name() string { return fmt.Sprintf("volume-surge-%d", r.Period) }

func (r VolumeSurge) Lookback() int { return r.Period - 1 }

func (r VolumeSurge) Validate() error {
	if r.Period <= 0 {
		return fmt.Errorf("period must be positive, got %d", r.Period)
	}
	if r.Ratio <= 0 {
		return fmt.Errorf("ratio must be positive, got %v", r.Ratio)
	}
	return nil
}

func (r VolumeSurge) Flags(series *domain.PriceSeries) []bool {
	flags := make([]bool, series.Len())
	if series.Len() <= r.Lookback() {
		return flags
	}
	volumes := series.Volumes()
	avg := talib.Sma(volumes, r.Period)
	for i := r.Period - 1; i < len(flags); i++ {
		if avg[i] > 0 && volumes[i] >= r.Ratio*avg[i] {
			flags[i] = true
		}
	}
	return flags
}
