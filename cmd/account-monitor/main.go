// Command account-monitor watches the broker's account snapshot each
// drain cycle and publishes a change event whenever it differs from the
// previously observed one.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/acctmonitor"
	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/config"
	"tqsdk-broker-bridge/internal/skeleton"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "account-monitor").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := bus.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial bus")
	}
	defer conn.Close()
	pub := bus.NewPublisher(conn)

	gw := broker.NewSimulated(broker.SimulatedConfig{PartialFillOdds: 0.2}, 0)
	mon := acctmonitor.New(cfg.PortfolioID, pub)
	mon.Logger = logger

	svc := &skeleton.Service{
		Gateway: gw,
		Handoff: skeleton.NewHandoff(),
		Logger:  logger,
		OnTick:  mon.Tick,
	}
	go svc.Run(ctx)

	waitForShutdown(logger)
	cancel()
}

func waitForShutdown(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
}
