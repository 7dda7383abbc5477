// Command order-canceller consumes cancel requests off the bus and
// applies them to the broker session this process owns.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/canceller"
	"tqsdk-broker-bridge/internal/config"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
	"tqsdk-broker-bridge/internal/skeleton"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "order-canceller").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	conn, err := bus.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial bus")
	}
	defer conn.Close()

	consumer, err := conn.DeclareOrderQueue(constants.OrderCancelQueue, constants.OrderRoutingKey(cfg.PortfolioID))
	if err != nil {
		logger.Fatal().Err(err).Msg("declare order cancel queue")
	}

	gw := broker.NewSimulated(broker.SimulatedConfig{PartialFillOdds: 0.2}, 0)
	cx := &canceller.Canceller{Logger: logger, PerOrderDeadline: time.Second}

	handoff := skeleton.NewHandoff()
	svc := &skeleton.Service{
		Gateway:          gw,
		Handoff:          handoff,
		InTradingSession: nil,
		Logger:           logger,
		OnHandoff: func(ctx context.Context, gw broker.Gateway, env bus.Envelope) {
			var req model.OrderCancelRequest
			if err := json.Unmarshal(env.Body, &req); err != nil {
				logger.Error().Err(err).Msg("malformed cancel request, dropping")
				env.Nack(false)
				return
			}
			if req.PortfolioID == "" {
				req.PortfolioID = cfg.PortfolioID
			}
			if err := cx.Cancel(ctx, gw, req); err != nil {
				logger.Error().Err(err).Msg("cancel failed")
				env.Nack(false)
				return
			}
			env.Ack()
		},
	}

	go func() {
		if err := consumer.Run(ctx, func(ctx context.Context, env bus.Envelope) {
			select {
			case handoff <- env:
			default:
				logger.Warn().Msg("handoff queue full, dropping cancel request")
				env.Nack(false)
			}
		}); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("bus consumer stopped")
		}
	}()

	go svc.Run(ctx)

	waitForShutdown(logger)
	cancelCtx()
}

func waitForShutdown(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
}
