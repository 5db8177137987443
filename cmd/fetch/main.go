// Command fetch runs a single fetch-and-store pass against the configured
// store and exits non-zero if it fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kjannette/cryptostats-backend/internal/config"
	"github.com/kjannette/cryptostats-backend/internal/external"
	"github.com/kjannette/cryptostats-backend/internal/logging"
	"github.com/kjannette/cryptostats-backend/internal/repository"
	"github.com/kjannette/cryptostats-backend/internal/scheduler"
)

func main() {
	var coinsCSV string
	var timeout time.Duration

	flag.StringVar(&coinsCSV, "coins", "", "comma-separated coin ids (defaults to COINS)")
	flag.DurationVar(&timeout, "timeout", 90*time.Second, "overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if coinsCSV != "" {
		cfg.Coins = cfg.Coins[:0]
		for _, c := range strings.Split(coinsCSV, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.Coins = append(cfg.Coins, c)
			}
		}
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	log := logging.For("fetch")

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, closeStore, err := repository.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("store setup failed")
	}

	gecko := external.NewCoinGeckoClient(external.CoinGeckoOptions{
		BaseURL:     cfg.CoinGeckoBaseURL,
		APIKey:      cfg.CoinGeckoAPIKey,
		APIKeyParam: cfg.CoinGeckoAPIKeyParam,
	})

	err = scheduler.NewFetcher(gecko, store, cfg.Coins).Run(ctx)
	closeStore()
	if err != nil {
		log.WithError(err).Error("fetch failed")
		os.Exit(1)
	}
	log.Info("fetch complete")
}
