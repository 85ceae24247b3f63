// Kabu backtest pipeline: one session of seeded strategy runs over sampled
// instrument universes.
//
// For the chosen strategy, draws one seeded instrument sample per run from
// the configured index universes, fetches each instrument's history through
// the incremental price cache, replays the strategy rules bar by bar, and
// reduces every run to a metric map. Per-run metrics, cross-run aggregates,
// and instrument usage are persisted to the results database; the run seeds
// go to a JSON sidecar and an HTML report is rendered for the session.
//
// Usage:
//
//	go build -o bin/kabu-backtest ./cmd/kabu-backtest/
//	bin/kabu-backtest [-strategy swing_trading] [-runs 100] [-seed 42] [-sample 30]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"kabu/internal/aggregate"
	"kabu/internal/config"
	"kabu/internal/domain"
	"kabu/internal/fetch"
	"kabu/internal/orchestrate"
	"kabu/internal/report"
	"kabu/internal/seeds"
	"kabu/internal/store"
	"kabu/internal/strategy/builtins"
	"kabu/internal/universe"
	"kabu/internal/util"
)

func main() {
	strategyName := flag.String("strategy", "swing_trading", "strategy to run")
	runsFlag := flag.Int("runs", 0, "number of runs (0 = config value)")
	seedFlag := flag.Int64("seed", -1, "base seed (-1 = config value)")
	sampleFlag := flag.Int("sample", 0, "instruments per run (0 = config value)")
	flag.Parse()

	cfgPath := "config/kabu.yaml"
	if p := os.Getenv("KABU_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/kabu-backtest-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	reg := builtins.NewRegistry()
	rs, ok := reg.Get(*strategyName)
	if !ok {
		log.Fatalf("unknown strategy %q (have %v)", *strategyName, reg.List())
	}
	sc, ok := cfg.Strategies[rs.Name]
	if !ok {
		log.Fatalf("strategy %q has no configuration", rs.Name)
	}

	runs := cfg.Backtest.Runs
	if *runsFlag > 0 {
		runs = *runsFlag
	}
	baseSeed := cfg.Backtest.BaseSeed
	if *seedFlag >= 0 {
		baseSeed = *seedFlag
	}
	sampleSize := sc.SampleSize
	if *sampleFlag > 0 {
		sampleSize = *sampleFlag
	}

	syms, err := universe.NewLoader(cfg.Storage.UniverseDir).LoadAll(sc.Indices)
	if err != nil {
		log.Fatalf("loading universe: %v", err)
	}
	if len(syms) == 0 {
		log.Fatalf("universe is empty for indices %v", sc.Indices)
	}

	source, err := buildSource(cfg)
	if err != nil {
		log.Fatalf("building data source: %v", err)
	}
	cache := fetch.NewCache(source, store.NewParquetCache(cfg.Storage.CacheDir), cfg.Fetch.MaxRetries, cfg.Fetch.RetryDelay())

	results, err := store.NewSQLiteStore(cfg.Storage.ResultsDB)
	if err != nil {
		log.Fatalf("opening results db: %v", err)
	}
	defer results.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start, end := config.BacktestWindow(time.Now(), sc.Years)
	sess := &domain.Session{
		ID:          uuid.New().String(),
		Strategy:    rs.Name,
		BaseSeed:    baseSeed,
		Runs:        runs,
		SampleSize:  sampleSize,
		WindowStart: start,
		WindowEnd:   end,
		StartedAt:   time.Now().UTC(),
	}
	if err := results.SaveSession(ctx, sess); err != nil {
		log.Fatalf("recording session: %v", err)
	}
	logger.Info("session started",
		"session", sess.ID,
		"strategy", rs.Name,
		"runs", runs,
		"base_seed", baseSeed,
		"sample", sampleSize,
		"universe", len(syms),
		"window_start", start.Format("2006-01-02"),
		"window_end", end.Format("2006-01-02"),
	)

	orch := orchestrate.New(cache, start, end, cfg.Backtest.FetchWorkers, cfg.Backtest.ComputeWorkers)
	outputs := orch.RunMany(ctx, rs, syms, baseSeed, runs, sampleSize)
	if len(outputs) < runs {
		logger.Warn("session interrupted", "completed", len(outputs), "requested", runs)
	}

	runMetrics, uses, curves := reduceOutputs(outputs, rs.Interval)
	summary := aggregate.Summarize(runMetrics, cfg.Backtest.Confidence)
	usage := aggregate.Usage(uses)

	// Persist on a fresh context so an interrupt still leaves the
	// completed runs queryable.
	saveCtx := context.Background()
	if err := results.SaveRuns(saveCtx, sess.ID, runMetrics); err != nil {
		log.Fatalf("saving run metrics: %v", err)
	}
	if err := results.SaveSummary(saveCtx, sess.ID, summary); err != nil {
		log.Fatalf("saving summary: %v", err)
	}
	if err := results.SaveUsage(saveCtx, sess.ID, usage); err != nil {
		log.Fatalf("saving usage: %v", err)
	}
	sess.FinishedAt = time.Now().UTC()
	if err := results.SaveSession(saveCtx, sess); err != nil {
		log.Fatalf("finishing session: %v", err)
	}

	recordSeeds(cfg, sess, outputs, logger)

	data := &report.Data{
		Session: *sess,
		Runs:    runMetrics,
		Summary: summary,
		Usage:   usage,
		Curves:  curves,
	}
	if path, err := report.NewRenderer(cfg.Storage.ReportDir).Render(data); err != nil {
		logger.Error("rendering report", "error", err)
	} else {
		logger.Info("session complete", "session", sess.ID, "report", path)
	}

	printSummary(summary, cfg.Backtest.Confidence, cfg.Backtest.InitialCapital)
}

// buildSource picks the bar source named by the config.
func buildSource(cfg *config.Config) (fetch.Source, error) {
	switch cfg.Fetch.Source {
	case "stooq", "":
		return fetch.NewStooqSource(cfg.Fetch.RatePerMinute), nil
	case "alpaca":
		a := cfg.Fetch.Alpaca
		if a.APIKey == "" || a.APISecret == "" {
			return nil, fmt.Errorf("alpaca source requires api_key and api_secret")
		}
		return fetch.NewAlpacaSource(a.APIKey, a.APISecret, a.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown fetch source %q", cfg.Fetch.Source)
	}
}

// reduceOutputs flattens the run outputs into everything the stores and the
// report consume.
func reduceOutputs(outputs []*orchestrate.RunOutput, interval domain.Interval) ([]domain.RunMetrics, []aggregate.SampleUse, []report.RunCurve) {
	runMetrics := make([]domain.RunMetrics, 0, len(outputs))
	uses := make([]aggregate.SampleUse, 0, len(outputs))
	curves := make([]report.RunCurve, 0, len(outputs))
	for _, out := range outputs {
		runMetrics = append(runMetrics, orchestrate.ReduceMetrics(out, interval))
		uses = append(uses, out.SampleUse())
		if pts := out.PortfolioCurve(); len(pts) > 0 {
			curves = append(curves, report.RunCurve{RunID: out.RunID, Points: pts})
		}
	}
	return runMetrics, uses, curves
}

// recordSeeds writes the session's seeds to the JSON sidecar next to the
// results database.
func recordSeeds(cfg *config.Config, sess *domain.Session, outputs []*orchestrate.RunOutput, log *slog.Logger) {
	runSeeds := make([]seeds.RunSeed, 0, len(outputs))
	for _, out := range outputs {
		runSeeds = append(runSeeds, seeds.RunSeed{RunID: out.RunID, Seed: out.Seed})
	}
	path := filepath.Join(filepath.Dir(cfg.Storage.ResultsDB), "seeds.json")
	seeds.NewStore(path, log).Put(seeds.Record{
		SessionID:   sess.ID,
		Strategy:    sess.Strategy,
		BaseSeed:    sess.BaseSeed,
		SampleSize:  sess.SampleSize,
		WindowStart: sess.WindowStart,
		WindowEnd:   sess.WindowEnd,
		Runs:        runSeeds,
		CreatedAt:   time.Now().UTC(),
	})
}

// printSummary writes the aggregate table to stdout for interactive use.
func printSummary(rows []domain.MetricSummary, confidence, capital float64) {
	if len(rows) == 0 {
		fmt.Println("no aggregate metrics (no run produced results)")
		return
	}
	fmt.Printf("\n%-18s %5s %12s %12s %26s\n", "metric", "runs", "mean", "stddev", fmt.Sprintf("%.0f%% CI", confidence*100))
	for _, row := range rows {
		fmt.Printf("%-18s %5d %12.4f %12.4f [%11.4f, %11.4f]\n",
			row.Metric, row.Runs, row.Mean, row.Stddev, row.CILow, row.CIHigh)
	}
	for _, row := range rows {
		if row.Metric == "total_return" && capital > 0 {
			fmt.Printf("\nmean final capital: %.0f (from %.0f)\n", capital*(1+row.Mean), capital)
		}
	}
}
