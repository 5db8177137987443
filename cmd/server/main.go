package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/cryptostats-backend/internal/api"
	"github.com/kjannette/cryptostats-backend/internal/config"
	"github.com/kjannette/cryptostats-backend/internal/external"
	"github.com/kjannette/cryptostats-backend/internal/logging"
	"github.com/kjannette/cryptostats-backend/internal/models"
	"github.com/kjannette/cryptostats-backend/internal/repository"
	"github.com/kjannette/cryptostats-backend/internal/scheduler"
	"github.com/kjannette/cryptostats-backend/internal/stats"
)

const banner = `
╔══════════════════════════════════════╗
║      Crypto Stats Service v1.0       ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	log := logging.For("main")

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	cfg.Print()

	if err := run(cfg); err != nil {
		log.WithError(err).Error("exiting")
		os.Exit(1)
	}
}

// run owns every resource opened after config, so its deferred cleanup runs
// before main decides the exit code.
func run(cfg *config.Config) error {
	log := logging.For("main")

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, closeStore, err := repository.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store setup: %w", err)
	}
	defer closeStore()

	coins := models.NewCoinSet(cfg.Coins)

	// 1. API server
	srv := api.NewServer(stats.NewService(store, coins), store, cfg.Port, cfg.CORSAllowOrigin)
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// 2. Fetch scheduler
	gecko := external.NewCoinGeckoClient(external.CoinGeckoOptions{
		BaseURL:     cfg.CoinGeckoBaseURL,
		APIKey:      cfg.CoinGeckoAPIKey,
		APIKeyParam: cfg.CoinGeckoAPIKeyParam,
	})
	fetcher := scheduler.NewFetcher(gecko, store, coins.IDs())
	sched, err := scheduler.NewScheduler(fetcher, scheduler.Config{
		Schedule:   cfg.FetchSchedule,
		RunOnStart: cfg.FetchOnStartup,
	})
	if err != nil {
		return fmt.Errorf("scheduler setup: %w", err)
	}
	sched.Start()

	log.Info("all services started successfully")

	runErr := awaitShutdown(ctx, srvErr)

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API shutdown error")
	}
	log.Info("shutdown complete")
	return runErr
}

// awaitShutdown blocks until a shutdown signal or a listener failure and
// returns the failure, if any.
func awaitShutdown(ctx context.Context, srvErr <-chan error) error {
	log := logging.For("main")
	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully...")
		return nil
	case err := <-srvErr:
		log.WithError(err).Error("API server failed, shutting down")
		return fmt.Errorf("API server: %w", err)
	}
}
