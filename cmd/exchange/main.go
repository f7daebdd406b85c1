package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/toyexchange/internal/config"
	"github.com/efreitasn/toyexchange/internal/fabric"
	"github.com/efreitasn/toyexchange/internal/handler"
	"github.com/efreitasn/toyexchange/internal/pipeline"
	"github.com/efreitasn/toyexchange/internal/pricing"
	"github.com/efreitasn/toyexchange/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load .env if present, then configuration.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger store: connect and bootstrap the schema.
	st, err := store.DialPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Bootstrap(ctx); err != nil {
		logger.Error("failed to bootstrap schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Message fabric: connect and declare the routing topology.
	fab, err := fabric.DialAMQP(ctx, cfg.AMQPURL, cfg.Prefetch)
	if err != nil {
		logger.Error("failed to connect to broker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer fab.Close()

	// Pipeline: risk → matching → settlement consumer pools.
	prices := pricing.NewTable()
	pipe := pipeline.New(fab, st, prices, logger, cfg.Consumers)
	pipeDone := make(chan error, 1)
	go func() {
		pipeDone <- pipe.Run(ctx)
	}()

	// Intake and balance-query API.
	orderH := handler.NewOrderHandler(fab)
	balanceH := handler.NewBalanceHandler(st)
	router := handler.NewRouter(orderH, balanceH, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM or a pipeline failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-pipeDone:
		if err != nil {
			logger.Error("pipeline stopped", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown: stop HTTP server, cancel context (stops consumers).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
