package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMarketOf(t *testing.T) {
	tests := []struct {
		symbol string
		want   Market
	}{
		{"AAPL", MarketUS},
		{"MSFT", MarketUS},
		{"7203.T", MarketJP},
		{"9984.T", MarketJP},
	}
	for _, tt := range tests {
		if got := MarketOf(tt.symbol); got != tt.want {
			t.Errorf("MarketOf(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestIntervalAnnualization(t *testing.T) {
	tests := []struct {
		interval Interval
		want     float64
	}{
		{IntervalDaily, 252},
		{IntervalWeekly, 52},
		{IntervalMonthly, 12},
	}
	for _, tt := range tests {
		if got := tt.interval.Annualization(); got != tt.want {
			t.Errorf("%s.Annualization() = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestIntervalValid(t *testing.T) {
	if !IntervalDaily.Valid() || !IntervalWeekly.Valid() || !IntervalMonthly.Valid() {
		t.Error("known intervals reported invalid")
	}
	if Interval("5m").Valid() {
		t.Error("unknown interval reported valid")
	}
}

func TestPriceSeriesBounds(t *testing.T) {
	var empty PriceSeries
	if !empty.FirstDate().IsZero() || !empty.LastDate().IsZero() {
		t.Error("empty series should have zero first/last dates")
	}

	s := PriceSeries{
		Symbol:   "7203.T",
		Interval: IntervalDaily,
		Bars: []Bar{
			{Date: date(2024, 1, 2), Close: 100},
			{Date: date(2024, 1, 3), Close: 101},
			{Date: date(2024, 1, 4), Close: 102},
		},
	}
	if got := s.FirstDate(); !got.Equal(date(2024, 1, 2)) {
		t.Errorf("FirstDate = %v, want 2024-01-02", got)
	}
	if got := s.LastDate(); !got.Equal(date(2024, 1, 4)) {
		t.Errorf("LastDate = %v, want 2024-01-04", got)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestPriceSeriesSlice(t *testing.T) {
	s := PriceSeries{
		Symbol:   "AAPL",
		Interval: IntervalDaily,
		Bars: []Bar{
			{Date: date(2024, 1, 2), Close: 100},
			{Date: date(2024, 1, 3), Close: 101},
			{Date: date(2024, 1, 4), Close: 102},
			{Date: date(2024, 1, 5), Close: 103},
		},
	}

	got := s.Slice(date(2024, 1, 3), date(2024, 1, 4))
	if got.Len() != 2 {
		t.Fatalf("Slice returned %d bars, want 2", got.Len())
	}
	if !got.Bars[0].Date.Equal(date(2024, 1, 3)) || !got.Bars[1].Date.Equal(date(2024, 1, 4)) {
		t.Error("Slice returned wrong date range")
	}

	// Inclusive bounds: slicing the exact range returns everything.
	full := s.Slice(date(2024, 1, 2), date(2024, 1, 5))
	if full.Len() != 4 {
		t.Errorf("full Slice returned %d bars, want 4", full.Len())
	}
}

func TestTradeWin(t *testing.T) {
	if !(Trade{Return: 0.05}).Win() {
		t.Error("positive return should be a win")
	}
	if (Trade{Return: 0}).Win() {
		t.Error("zero return should not be a win")
	}
	if (Trade{Return: -0.02}).Win() {
		t.Error("negative return should not be a win")
	}
}

func TestExitReasonValues(t *testing.T) {
	if ExitStopLoss != "stop-loss" || ExitTakeProfit != "take-profit" {
		t.Error("risk exit reasons have unexpected values")
	}
	if ExitTime != "time-exit" || ExitSignal != "signal-exit" || ExitEndOfData != "end-of-data" {
		t.Error("exit reasons have unexpected values")
	}
}
