// Command perpsplit runs the multi-venue perpetual order router and the position valuation engine.
//
// Usage:
//
//	perpsplit --config config.yaml
//	perpsplit --setup (interactive wizard, then starts with the generated config)
//
// Environment variables:
//
//	PERPSPLIT_SESSION_KEY                  session key signing bundles (required unless simulating)
//	BINANCE_API_KEY, BINANCE_API_SECRET    optional, mark prices
//	BYBIT_API_KEY, BYBIT_API_SECRET        optional, mark prices
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vadiminshakov/perpsplit/config"
	"github.com/vadiminshakov/perpsplit/internal/setup"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	runSetup := flag.Bool("setup", false, "run the interactive configuration wizard")
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(setup.DefaultPath); err != nil {
			log.Fatal(err)
		}
		*configPath = setup.DefaultPath
	}
	if *configPath == "" {
		log.Fatal("--config is required (or run with --setup)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	// logger.Fatal exits without running deferred calls, so the app is closed before it
	if err := runAndClose(ctx, app); err != nil {
		logger.Fatal("app stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

type runCloser interface {
	Run(ctx context.Context) error
	Close()
}

// runAndClose runs r until it stops and always closes it before returning.
func runAndClose(ctx context.Context, r runCloser) error {
	err := r.Run(ctx)
	r.Close()
	return err
}
