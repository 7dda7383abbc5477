// Command order-submitter consumes order submit requests off the bus,
// runs them through the six-stage submit pipeline, and talks to the
// broker session this process owns for its lifetime.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/cache"
	"tqsdk-broker-bridge/internal/config"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
	"tqsdk-broker-bridge/internal/skeleton"
	"tqsdk-broker-bridge/internal/store"
	"tqsdk-broker-bridge/internal/submitter"
	"tqsdk-broker-bridge/internal/universe"
)

type universeAdapter struct {
	loader *universe.Loader
}

func (u universeAdapter) ExchangeFor(ctx context.Context, symbol string) (string, error) {
	symbols, err := u.loader.Load(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range symbols {
		if s.BrokerSymbol == symbol {
			return s.Exchange, nil
		}
	}
	return "", nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "order-submitter").Logger()

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

	conn, err := bus.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial bus")
	}
	defer conn.Close()

	consumer, err := conn.DeclareOrderQueue(constants.OrderSubmitQueue, constants.OrderRoutingKey(cfg.PortfolioID))
	if err != nil {
		logger.Fatal().Err(err).Msg("declare order submit queue")
	}

	gw := broker.NewSimulated(broker.SimulatedConfig{PartialFillOdds: 0.2}, 0)

	pipeline := &submitter.Pipeline{
		Store:    st,
		Cache:    ch,
		Universe: universeAdapter{loader: universe.NewLoader(st.DB)},
		Logger:   logger,
	}

	handoff := skeleton.NewHandoff()
	svc := &skeleton.Service{
		Gateway:          gw,
		Handoff:          handoff,
		InTradingSession: submitter.InSession,
		Logger:           logger,
		OnHandoff: func(ctx context.Context, gw broker.Gateway, env bus.Envelope) {
			var req model.OrderRequest
			if err := json.Unmarshal(env.Body, &req); err != nil {
				logger.Error().Err(err).Msg("malformed submit request, dropping")
				env.Nack(false)
				return
			}
			if req.OrderID == "" {
				req.OrderID = submitter.NewOrderID()
			}
			if req.PortfolioID == "" {
				req.PortfolioID = cfg.PortfolioID
			}
			if err := pipeline.Submit(ctx, gw, req, req.Timestamp); err != nil {
				logger.Error().Err(err).Str("order_id", req.OrderID).Msg("submit failed")
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
				logger.Warn().Msg("handoff queue full, dropping submit request")
				env.Nack(false)
			}
		}); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("bus consumer stopped")
		}
	}()

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
