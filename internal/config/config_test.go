package config

import (
	"os"
	"testing"
	"time"
)

func clearEnvOverrides() {
	os.Unsetenv("KABU_CACHE_DIR")
	os.Unsetenv("KABU_RESULTS_DB")
	os.Unsetenv("KABU_REPORT_DIR")
	os.Unsetenv("KABU_UNIVERSE_DIR")
	os.Unsetenv("KABU_FETCH_SOURCE")
	os.Unsetenv("KABU_RUNS")
	os.Unsetenv("KABU_BASE_SEED")
	os.Unsetenv("KABU_API_LISTEN")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("ALPACA_API_SECRET")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "kabu-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  cache_dir: "/tmp/kabu/cache"
  results_db: "/tmp/kabu/kabu.db"
  report_dir: "/tmp/kabu/reports"
  universe_dir: "/tmp/kabu/universe"
fetch:
  source: "stooq"
  max_retries: 5
  retry_delay_seconds: 1
  rate_per_minute: 120
backtest:
  runs: 20
  base_seed: 7
  fetch_workers: 4
  compute_workers: 2
  confidence: 0.99
  initial_capital: 1000000
strategies:
  swing_trading:
    sample_size: 30
    years: 3
    indices: ["sp500"]
schedule:
  cron: "0 7 * * *"
  timezone: "UTC"
api:
  listen: ":9999"
logging:
  level: "debug"
  format: "json"
`)

	clearEnvOverrides()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.CacheDir != "/tmp/kabu/cache" {
		t.Errorf("Storage.CacheDir = %q, want %q", cfg.Storage.CacheDir, "/tmp/kabu/cache")
	}
	if cfg.Storage.ResultsDB != "/tmp/kabu/kabu.db" {
		t.Errorf("Storage.ResultsDB = %q, want %q", cfg.Storage.ResultsDB, "/tmp/kabu/kabu.db")
	}
	if cfg.Storage.ReportDir != "/tmp/kabu/reports" {
		t.Errorf("Storage.ReportDir = %q, want %q", cfg.Storage.ReportDir, "/tmp/kabu/reports")
	}

	// -- Fetch --
	if cfg.Fetch.Source != "stooq" {
		t.Errorf("Fetch.Source = %q, want %q", cfg.Fetch.Source, "stooq")
	}
	if cfg.Fetch.MaxRetries != 5 {
		t.Errorf("Fetch.MaxRetries = %d, want %d", cfg.Fetch.MaxRetries, 5)
	}
	if got, want := cfg.Fetch.RetryDelay(), time.Second; got != want {
		t.Errorf("Fetch.RetryDelay() = %v, want %v", got, want)
	}
	if cfg.Fetch.RatePerMinute != 120 {
		t.Errorf("Fetch.RatePerMinute = %d, want %d", cfg.Fetch.RatePerMinute, 120)
	}

	// -- Backtest --
	if cfg.Backtest.Runs != 20 {
		t.Errorf("Backtest.Runs = %d, want %d", cfg.Backtest.Runs, 20)
	}
	if cfg.Backtest.BaseSeed != 7 {
		t.Errorf("Backtest.BaseSeed = %d, want %d", cfg.Backtest.BaseSeed, 7)
	}
	if cfg.Backtest.FetchWorkers != 4 {
		t.Errorf("Backtest.FetchWorkers = %d, want %d", cfg.Backtest.FetchWorkers, 4)
	}
	if cfg.Backtest.ComputeWorkers != 2 {
		t.Errorf("Backtest.ComputeWorkers = %d, want %d", cfg.Backtest.ComputeWorkers, 2)
	}
	if cfg.Backtest.Confidence != 0.99 {
		t.Errorf("Backtest.Confidence = %f, want %f", cfg.Backtest.Confidence, 0.99)
	}
	if cfg.Backtest.InitialCapital != 1000000 {
		t.Errorf("Backtest.InitialCapital = %f, want %f", cfg.Backtest.InitialCapital, 1000000.0)
	}

	// -- Strategies --
	sc, ok := cfg.Strategies["swing_trading"]
	if !ok {
		t.Fatal("Strategies missing swing_trading entry")
	}
	if sc.SampleSize != 30 {
		t.Errorf("swing_trading.SampleSize = %d, want %d", sc.SampleSize, 30)
	}
	if sc.Years != 3 {
		t.Errorf("swing_trading.Years = %d, want %d", sc.Years, 3)
	}
	if len(sc.Indices) != 1 || sc.Indices[0] != "sp500" {
		t.Errorf("swing_trading.Indices = %v, want [sp500]", sc.Indices)
	}

	// -- Schedule --
	if cfg.Schedule.Cron != "0 7 * * *" {
		t.Errorf("Schedule.Cron = %q, want %q", cfg.Schedule.Cron, "0 7 * * *")
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("Schedule.Timezone = %q, want %q", cfg.Schedule.Timezone, "UTC")
	}

	// -- API --
	if cfg.API.Listen != ":9999" {
		t.Errorf("API.Listen = %q, want %q", cfg.API.Listen, ":9999")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadDefaults(t *testing.T) {
	// A nearly empty file should fall back to defaults for everything else.
	path := writeTempConfig(t, `
fetch:
  source: "alpaca"
`)

	clearEnvOverrides()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Fetch.Source != "alpaca" {
		t.Errorf("Fetch.Source = %q, want %q", cfg.Fetch.Source, "alpaca")
	}
	if cfg.Storage.CacheDir != "cache" {
		t.Errorf("Storage.CacheDir = %q, want %q", cfg.Storage.CacheDir, "cache")
	}
	if cfg.Storage.ReportDir != "reports" {
		t.Errorf("Storage.ReportDir = %q, want %q", cfg.Storage.ReportDir, "reports")
	}
	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("Fetch.MaxRetries = %d, want %d", cfg.Fetch.MaxRetries, 3)
	}
	if got, want := cfg.Fetch.RetryDelay(), 2*time.Second; got != want {
		t.Errorf("Fetch.RetryDelay() = %v, want %v", got, want)
	}
	if cfg.Backtest.Runs != 10 {
		t.Errorf("Backtest.Runs = %d, want %d", cfg.Backtest.Runs, 10)
	}
	if cfg.Backtest.BaseSeed != 42 {
		t.Errorf("Backtest.BaseSeed = %d, want %d", cfg.Backtest.BaseSeed, 42)
	}
	if cfg.Backtest.Confidence != 0.95 {
		t.Errorf("Backtest.Confidence = %f, want %f", cfg.Backtest.Confidence, 0.95)
	}
	if cfg.Backtest.InitialCapital != 10_000_000 {
		t.Errorf("Backtest.InitialCapital = %f, want %f", cfg.Backtest.InitialCapital, 10_000_000.0)
	}

	sc, ok := cfg.Strategies["long_term"]
	if !ok {
		t.Fatal("Strategies missing long_term entry")
	}
	if sc.SampleSize != 50 {
		t.Errorf("long_term.SampleSize = %d, want %d", sc.SampleSize, 50)
	}
	if sc.Years != 20 {
		t.Errorf("long_term.Years = %d, want %d", sc.Years, 20)
	}

	if cfg.Schedule.Cron != "0 6 * * *" {
		t.Errorf("Schedule.Cron = %q, want %q", cfg.Schedule.Cron, "0 6 * * *")
	}
	if cfg.Schedule.Timezone != "Asia/Tokyo" {
		t.Errorf("Schedule.Timezone = %q, want %q", cfg.Schedule.Timezone, "Asia/Tokyo")
	}
}

func TestLoadPartialStrategyOverride(t *testing.T) {
	// Overriding one field of a known strategy keeps the remaining defaults.
	path := writeTempConfig(t, `
strategies:
  swing_trading:
    sample_size: 20
`)

	clearEnvOverrides()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	sc := cfg.Strategies["swing_trading"]
	if sc.SampleSize != 20 {
		t.Errorf("swing_trading.SampleSize = %d, want %d", sc.SampleSize, 20)
	}
	if sc.Years != 5 {
		t.Errorf("swing_trading.Years = %d, want %d", sc.Years, 5)
	}
	if len(sc.Indices) != 3 {
		t.Errorf("swing_trading.Indices = %v, want 3 entries", sc.Indices)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  cache_dir: "/original/cache"
backtest:
  runs: 5
fetch:
  alpaca:
    api_key: "yaml-key"
    api_secret: "yaml-secret"
`)

	clearEnvOverrides()
	os.Setenv("KABU_CACHE_DIR", "/env/cache")
	os.Setenv("KABU_RUNS", "25")
	os.Setenv("KABU_BASE_SEED", "99")
	os.Setenv("ALPACA_API_KEY", "env-key")
	defer clearEnvOverrides()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.CacheDir != "/env/cache" {
		t.Errorf("Storage.CacheDir = %q, want %q (env override)", cfg.Storage.CacheDir, "/env/cache")
	}
	if cfg.Backtest.Runs != 25 {
		t.Errorf("Backtest.Runs = %d, want %d (env override)", cfg.Backtest.Runs, 25)
	}
	if cfg.Backtest.BaseSeed != 99 {
		t.Errorf("Backtest.BaseSeed = %d, want %d (env override)", cfg.Backtest.BaseSeed, 99)
	}
	if cfg.Fetch.Alpaca.APIKey != "env-key" {
		t.Errorf("Fetch.Alpaca.APIKey = %q, want %q (env override)", cfg.Fetch.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Fetch.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Fetch.Alpaca.APISecret = %q, want %q (from YAML)", cfg.Fetch.Alpaca.APISecret, "yaml-secret")
	}
}

func TestLoadBadEnvNumbersIgnored(t *testing.T) {
	path := writeTempConfig(t, `
backtest:
  runs: 5
`)

	clearEnvOverrides()
	os.Setenv("KABU_RUNS", "not-a-number")
	defer clearEnvOverrides()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Backtest.Runs != 5 {
		t.Errorf("Backtest.Runs = %d, want %d (bad env ignored)", cfg.Backtest.Runs, 5)
	}
}

func TestBacktestWindow(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		years     int
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid month",
			now:       time.Date(2025, time.August, 23, 10, 30, 0, 0, time.UTC),
			years:     5,
			wantStart: time.Date(2020, time.July, 31, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.July, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "january rolls to previous year",
			now:       time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
			years:     20,
			wantStart: time.Date(2004, time.December, 31, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "first of month",
			now:       time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			years:     1,
			wantStart: time.Date(2024, time.February, 28, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := BacktestWindow(tt.now, tt.years)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}
