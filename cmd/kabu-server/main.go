// HTTP API server exposing persisted backtest sessions, summaries, and
// instrument usage.
//
// Usage:
//
//	go build -o bin/kabu-server ./cmd/kabu-server/
//	bin/kabu-server
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kabu/internal/config"
	"kabu/internal/store"
	"kabu/internal/util"
	"kabu/internal/webapi"
)

func main() {
	cfgPath := "config/kabu.yaml"
	if p := os.Getenv("KABU_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/kabu-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	results, err := store.NewSQLiteStore(cfg.Storage.ResultsDB)
	if err != nil {
		log.Fatalf("opening results db: %v", err)
	}
	defer results.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := webapi.NewServer(results, logger)
	srv := &http.Server{Addr: cfg.API.Listen, Handler: api.Handler()}

	go func() {
		logger.Info("api listening", "addr", cfg.API.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
