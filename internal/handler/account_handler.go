package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/model"
)

// AccountCache is the subset of internal/cache.Cache AccountHandler needs.
type AccountCache interface {
	SetAccount(ctx context.Context, portfolioID string, a model.Account) error
}

// AccountHandler writes account updates to the cache with the fixed
// account TTL (constants.AccountTTL, applied inside Cache.SetAccount).
type AccountHandler struct {
	Cache  AccountCache
	Logger zerolog.Logger
}

// Handle decodes env and writes it to the cache.
func (h *AccountHandler) Handle(ctx context.Context, env bus.Envelope) {
	var msg model.AccountUpdate
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		h.Logger.Error().Err(err).Msg("account handler: malformed message, dropping")
		env.Nack(false)
		return
	}
	if err := h.Cache.SetAccount(ctx, msg.PortfolioID, msg.Account); err != nil {
		h.Logger.Error().Err(err).Str("portfolio_id", msg.PortfolioID).Msg("account handler: cache write failed, requeueing")
		env.Nack(true)
		return
	}
	env.Ack()
}
