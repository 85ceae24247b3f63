// Scheduled backtest daemon: runs every configured strategy's session on a
// cron schedule in the configured timezone.
//
// Usage:
//
//	go build -o bin/kabu-daemon ./cmd/kabu-daemon/
//	bin/kabu-daemon [-now]
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
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"kabu/internal/aggregate"
	"kabu/internal/config"
	"kabu/internal/domain"
	"kabu/internal/fetch"
	"kabu/internal/orchestrate"
	"kabu/internal/report"
	"kabu/internal/seeds"
	"kabu/internal/store"
	"kabu/internal/strategy"
	"kabu/internal/strategy/builtins"
	"kabu/internal/universe"
	"kabu/internal/util"
)

func main() {
	now := flag.Bool("now", false, "run all strategies immediately, then keep the schedule")
	flag.Parse()

	cfgPath := "config/kabu.yaml"
	if p := os.Getenv("KABU_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/kabu-daemon-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		log.Fatalf("loading timezone %q: %v", cfg.Schedule.Timezone, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.Schedule.Cron, func() { runAll(ctx, cfg, logger) }); err != nil {
		log.Fatalf("registering schedule %q: %v", cfg.Schedule.Cron, err)
	}

	if *now {
		runAll(ctx, cfg, logger)
	}

	c.Start()
	logger.Info("daemon scheduled", "cron", cfg.Schedule.Cron, "timezone", cfg.Schedule.Timezone)

	<-ctx.Done()
	logger.Info("shutting down daemon")
	<-c.Stop().Done()
}

// runAll runs one session per configured strategy, in name order.
func runAll(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	reg := builtins.NewRegistry()
	names := make([]string, 0, len(cfg.Strategies))
	for name := range cfg.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		rs, ok := reg.Get(name)
		if !ok {
			logger.Warn("skipping unknown strategy", "strategy", name)
			continue
		}
		if err := runSession(ctx, cfg, rs, cfg.Strategies[name], logger); err != nil {
			logger.Error("session failed", "strategy", name, "err", err)
		}
	}
}

// runSession executes one full backtest session for a strategy and persists
// its results, seeds, and report.
func runSession(ctx context.Context, cfg *config.Config, rs *strategy.RuleSet, sc config.StrategyConfig, logger *slog.Logger) error {
	syms, err := universe.NewLoader(cfg.Storage.UniverseDir).LoadAll(sc.Indices)
	if err != nil {
		return fmt.Errorf("loading universe: %w", err)
	}
	if len(syms) == 0 {
		return fmt.Errorf("universe is empty for indices %v", sc.Indices)
	}

	var source fetch.Source
	switch cfg.Fetch.Source {
	case "stooq", "":
		source = fetch.NewStooqSource(cfg.Fetch.RatePerMinute)
	case "alpaca":
		source = fetch.NewAlpacaSource(cfg.Fetch.Alpaca.APIKey, cfg.Fetch.Alpaca.APISecret, cfg.Fetch.Alpaca.BaseURL)
	default:
		return fmt.Errorf("unknown fetch source %q", cfg.Fetch.Source)
	}
	cache := fetch.NewCache(source, store.NewParquetCache(cfg.Storage.CacheDir), cfg.Fetch.MaxRetries, cfg.Fetch.RetryDelay())

	results, err := store.NewSQLiteStore(cfg.Storage.ResultsDB)
	if err != nil {
		return fmt.Errorf("opening results db: %w", err)
	}
	defer results.Close()

	start, end := config.BacktestWindow(time.Now(), sc.Years)
	sess := &domain.Session{
		ID:          uuid.New().String(),
		Strategy:    rs.Name,
		BaseSeed:    cfg.Backtest.BaseSeed,
		Runs:        cfg.Backtest.Runs,
		SampleSize:  sc.SampleSize,
		WindowStart: start,
		WindowEnd:   end,
		StartedAt:   time.Now().UTC(),
	}
	if err := results.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}
	logger.Info("session started", "session", sess.ID, "strategy", rs.Name, "runs", sess.Runs, "sample", sess.SampleSize)

	orch := orchestrate.New(cache, start, end, cfg.Backtest.FetchWorkers, cfg.Backtest.ComputeWorkers)
	outputs := orch.RunMany(ctx, rs, syms, sess.BaseSeed, sess.Runs, sess.SampleSize)

	runMetrics := make([]domain.RunMetrics, 0, len(outputs))
	uses := make([]aggregate.SampleUse, 0, len(outputs))
	curves := make([]report.RunCurve, 0, len(outputs))
	runSeeds := make([]seeds.RunSeed, 0, len(outputs))
	for _, out := range outputs {
		runMetrics = append(runMetrics, orchestrate.ReduceMetrics(out, rs.Interval))
		uses = append(uses, out.SampleUse())
		runSeeds = append(runSeeds, seeds.RunSeed{RunID: out.RunID, Seed: out.Seed})
		if pts := out.PortfolioCurve(); len(pts) > 0 {
			curves = append(curves, report.RunCurve{RunID: out.RunID, Points: pts})
		}
	}
	summary := aggregate.Summarize(runMetrics, cfg.Backtest.Confidence)
	usage := aggregate.Usage(uses)

	saveCtx := context.Background()
	if err := results.SaveRuns(saveCtx, sess.ID, runMetrics); err != nil {
		return fmt.Errorf("saving run metrics: %w", err)
	}
	if err := results.SaveSummary(saveCtx, sess.ID, summary); err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	if err := results.SaveUsage(saveCtx, sess.ID, usage); err != nil {
		return fmt.Errorf("saving usage: %w", err)
	}
	sess.FinishedAt = time.Now().UTC()
	if err := results.SaveSession(saveCtx, sess); err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}

	seeds.NewStore(filepath.Join(filepath.Dir(cfg.Storage.ResultsDB), "seeds.json"), logger).Put(seeds.Record{
		SessionID:   sess.ID,
		Strategy:    sess.Strategy,
		BaseSeed:    sess.BaseSeed,
		SampleSize:  sess.SampleSize,
		WindowStart: sess.WindowStart,
		WindowEnd:   sess.WindowEnd,
		Runs:        runSeeds,
		CreatedAt:   time.Now().UTC(),
	})

	data := &report.Data{Session: *sess, Runs: runMetrics, Summary: summary, Usage: usage, Curves: curves}
	path, err := report.NewRenderer(cfg.Storage.ReportDir).Render(data)
	if err != nil {
		logger.Error("rendering report", "session", sess.ID, "error", err)
	}

	logger.Info("session complete", "session", sess.ID, "strategy", rs.Name, "runs", len(outputs), "report", path)
	return nil
}
