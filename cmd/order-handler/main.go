// Command order-handler consumes order update events off the internal
// events exchange and persists them idempotently, never touching a
// broker.Gateway itself.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/config"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/handler"
	"tqsdk-broker-bridge/internal/skeleton"
	"tqsdk-broker-bridge/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "order-handler").Logger()

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

	conn, err := bus.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial bus")
	}
	defer conn.Close()

	consumer, err := conn.DeclareInternalQueue(constants.OrderUpdatesQueue, constants.RoutingKeyOrderUpdates)
	if err != nil {
		logger.Fatal().Err(err).Msg("declare order updates queue")
	}

	h := &handler.OrderHandler{Store: st, Logger: logger}
	svc := &skeleton.HandlerService{Consumer: consumer, Handle: h.Handle, Logger: logger}

	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("handler stopped")
		}
	}()

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
