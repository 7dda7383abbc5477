// Command position-reconciler runs the interval-gated reconciliation
// loop that keeps the position cache in sync with the broker, using the
// broker as source of truth on any mismatch.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/cache"
	"tqsdk-broker-bridge/internal/config"
	"tqsdk-broker-bridge/internal/reconciler"
	"tqsdk-broker-bridge/internal/skeleton"
	"tqsdk-broker-bridge/internal/store"
	"tqsdk-broker-bridge/internal/universe"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "position-reconciler").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("migrate store")
	}

	ch := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer ch.Close()

	gw := broker.NewSimulated(broker.SimulatedConfig{PartialFillOdds: 0.2}, 0)

	rec := &reconciler.Reconciler{
		Cache:       ch,
		Universe:    universe.NewLoader(st.DB),
		PortfolioID: cfg.PortfolioID,
		Logger:      logger,
	}

	svc := &skeleton.Service{
		Gateway: gw,
		Handoff: skeleton.NewHandoff(),
		Logger:  logger,
		OnTick:  rec.Tick,
	}
	go svc.Run(ctx)

	waitForShutdown(logger)
	cancel()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.IsDryRun() {
		return store.OpenDryRun(cfg.Database.DryRunPath)
	}
	return store.Open(cfg.Database.DSN)
}

func waitForShutdown(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
}
