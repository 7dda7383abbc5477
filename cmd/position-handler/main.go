// Command position-handler consumes position update events off the
// internal events exchange and writes them to the position cache. It
// runs alongside cmd/position-reconciler, the interval-gated source of
// truth; either can lapse without losing correctness since both write
// the same cache keys.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/cache"
	"tqsdk-broker-bridge/internal/config"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/handler"
	"tqsdk-broker-bridge/internal/skeleton"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "position-handler").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer ch.Close()

	conn, err := bus.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial bus")
	}
	defer conn.Close()

	consumer, err := conn.DeclareInternalQueue(constants.PositionUpdatesQueue, constants.RoutingKeyPositionUpdates)
	if err != nil {
		logger.Fatal().Err(err).Msg("declare position updates queue")
	}

	h := &handler.PositionHandler{Cache: ch, Logger: logger}
	svc := &skeleton.HandlerService{Consumer: consumer, Handle: h.Handle, Logger: logger}

	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("handler stopped")
		}
	}()

	waitForShutdown(logger)
	cancel()
}

func waitForShutdown(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
}
