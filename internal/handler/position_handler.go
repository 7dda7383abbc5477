package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/model"
)

// PositionCache is the subset of internal/cache.Cache PositionHandler
// needs.
type PositionCache interface {
	SetPosition(ctx context.Context, portfolioID, symbol string, p model.FullPosition) error
}

// PositionHandler writes position updates straight to the cache. This is
// the legacy bus-driven path kept alongside the interval-gated Position
// Reconciler (see SPEC_FULL.md §4.6); both write the same cache keys with
// the same TTL, so either can lapse without losing correctness.
type PositionHandler struct {
	Cache  PositionCache
	Logger zerolog.Logger
}

// Handle decodes env and writes it to the cache.
func (h *PositionHandler) Handle(ctx context.Context, env bus.Envelope) {
	var msg model.PositionUpdate
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		h.Logger.Error().Err(err).Msg("position handler: malformed message, dropping")
		env.Nack(false)
		return
	}
	if err := h.Cache.SetPosition(ctx, msg.PortfolioID, msg.Symbol, msg.Position); err != nil {
		h.Logger.Error().Err(err).Str("portfolio_id", msg.PortfolioID).Str("symbol", msg.Symbol).Msg("position handler: cache write failed, requeueing")
		env.Nack(true)
		return
	}
	env.Ack()
}
