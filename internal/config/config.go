package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the kabu backtesting platform.
type Config struct {
	Storage    Storage                   `yaml:"storage"`
	Fetch      Fetch                     `yaml:"fetch"`
	Backtest   Backtest                  `yaml:"backtest"`
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	Schedule   Schedule                  `yaml:"schedule"`
	API        API                       `yaml:"api"`
	Logging    Logging                   `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	CacheDir    string `yaml:"cache_dir"`
	ResultsDB   string `yaml:"results_db"`
	ReportDir   string `yaml:"report_dir"`
	UniverseDir string `yaml:"universe_dir"`
}

// Fetch controls the market data source and its retry behaviour.
type Fetch struct {
	Source            string `yaml:"source"` // "stooq" or "alpaca"
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	RatePerMinute     int    `yaml:"rate_per_minute"`
	Alpaca            Alpaca `yaml:"alpaca"`
}

// RetryDelay returns the base delay between fetch retries.
func (f Fetch) RetryDelay() time.Duration {
	return time.Duration(f.RetryDelaySeconds) * time.Second
}

// Alpaca holds credentials for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Backtest holds session-level orchestration parameters.
type Backtest struct {
	Runs           int     `yaml:"runs"`
	BaseSeed       int64   `yaml:"base_seed"`
	FetchWorkers   int     `yaml:"fetch_workers"`
	ComputeWorkers int     `yaml:"compute_workers"`
	Confidence     float64 `yaml:"confidence"`
	InitialCapital float64 `yaml:"initial_capital"`
}

// StrategyConfig holds the per-strategy orchestration knobs. Rule parameters
// themselves live with the strategy definitions.
type StrategyConfig struct {
	SampleSize int      `yaml:"sample_size"`
	Years      int      `yaml:"years"`
	Indices    []string `yaml:"indices"`
}

// Schedule configures the daemon's recurring session trigger.
type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// API holds network listener configuration for the results server.
type API struct {
	Listen string `yaml:"listen"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a configuration populated with the stock parameters used
// when a field is absent from the YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			CacheDir:    "cache",
			ResultsDB:   "kabu.db",
			ReportDir:   "reports",
			UniverseDir: "universe",
		},
		Fetch: Fetch{
			Source:            "stooq",
			MaxRetries:        3,
			RetryDelaySeconds: 2,
			RatePerMinute:     60,
		},
		Backtest: Backtest{
			Runs:           10,
			BaseSeed:       42,
			FetchWorkers:   8,
			ComputeWorkers: 8,
			Confidence:     0.95,
			InitialCapital: 10_000_000,
		},
		Strategies: map[string]StrategyConfig{
			"swing_trading": {
				SampleSize: 100,
				Years:      5,
				Indices:    []string{"sp500", "nasdaq100", "nikkei225"},
			},
			"long_term": {
				SampleSize: 50,
				Years:      20,
				Indices:    []string{"sp500", "nikkei225"},
			},
		},
		Schedule: Schedule{
			Cron:     "0 6 * * *",
			Timezone: "Asia/Tokyo",
		},
		API: API{
			Listen: ":8090",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, overlays it on
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	fillStrategyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// fillStrategyDefaults backfills fields a YAML strategy entry left unset.
// Decoding a map entry replaces the whole struct, so a partial override like
// {sample_size: 20} would otherwise zero the years and index list.
func fillStrategyDefaults(cfg *Config) {
	defaults := Default().Strategies
	for name, sc := range cfg.Strategies {
		def, ok := defaults[name]
		if !ok {
			continue
		}
		if sc.SampleSize == 0 {
			sc.SampleSize = def.SampleSize
		}
		if sc.Years == 0 {
			sc.Years = def.Years
		}
		if len(sc.Indices) == 0 {
			sc.Indices = def.Indices
		}
		cfg.Strategies[name] = sc
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KABU_CACHE_DIR"); v != "" {
		cfg.Storage.CacheDir = v
	}
	if v := os.Getenv("KABU_RESULTS_DB"); v != "" {
		cfg.Storage.ResultsDB = v
	}
	if v := os.Getenv("KABU_REPORT_DIR"); v != "" {
		cfg.Storage.ReportDir = v
	}
	if v := os.Getenv("KABU_UNIVERSE_DIR"); v != "" {
		cfg.Storage.UniverseDir = v
	}

	if v := os.Getenv("KABU_FETCH_SOURCE"); v != "" {
		cfg.Fetch.Source = v
	}

	if v := os.Getenv("KABU_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Backtest.Runs = n
		}
	}
	if v := os.Getenv("KABU_BASE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Backtest.BaseSeed = n
		}
	}

	if v := os.Getenv("KABU_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Fetch.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Fetch.Alpaca.APISecret = v
	}

	// The canonical Alpaca SDK variable names win when both forms are set.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Fetch.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Fetch.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Backtest window
// ---------------------------------------------------------------------------

// BacktestWindow returns the date range for a session driven from now: the
// window ends on the last day of the previous month and starts the given
// number of years earlier.
func BacktestWindow(now time.Time, years int) (start, end time.Time) {
	end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	start = end.AddDate(-years, 0, 0)
	return start, end
}
