package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/electricitymaps/carbonshift/internal/config"
	"github.com/electricitymaps/carbonshift/internal/deferral"
	"github.com/electricitymaps/carbonshift/internal/emaps"
	"github.com/electricitymaps/carbonshift/internal/engine"
	"github.com/electricitymaps/carbonshift/internal/logging"
	"github.com/electricitymaps/carbonshift/internal/server"
	"github.com/electricitymaps/carbonshift/internal/store"
	"github.com/electricitymaps/carbonshift/internal/telemetry"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text, json (overrides config)")
	optimizerURL := flag.String("optimizer-url", "", "Optimizer endpoint (overrides config)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *optimizerURL != "" {
		cfg.OptimizerURL = *optimizerURL
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Resolve database path.
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".carbonshift")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		cfg.DBPath = filepath.Join(dir, "carbonshift.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	// Resolve the optimizer token; steps fail with AUTHENTICATION
	// errors at evaluation time when none is available.
	token := cfg.Token
	if token == "" {
		if tok, err := emaps.ResolveToken(); err == nil {
			token = tok
		} else {
			logger.Warn("optimizer token not available", "hint", "set EMAPS_TOKEN")
		}
	}

	client := emaps.NewHTTPOptimizerClient(emaps.ClientConfig{
		OptimizerURL: cfg.OptimizerURL,
		Token:        token,
	}, logger)

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	ctrl := deferral.NewController(client, st, logger)
	loop := engine.NewLoop(st, ctrl, engine.Config{PollInterval: cfg.PollInterval}, metrics, logger)

	srv := server.New(cfg, st, telemetry.Handler(registry), logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := loop.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("engine stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
