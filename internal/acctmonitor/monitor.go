// Package acctmonitor watches the broker's account snapshot each drain
// cycle and publishes an update whenever it changes, per SPEC_FULL.md §4.2.
package acctmonitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
)

// Publisher is the subset of internal/bus.Publisher the monitor needs.
type Publisher interface {
	PublishInternal(ctx context.Context, routingKey string, v any) error
}

// Monitor detects account changes and publishes model.AccountUpdate
// events. The account is a single value per portfolio, so no diff.Tracker
// is needed; a plain previous-value comparison suffices.
type Monitor struct {
	PortfolioID string
	Publisher   Publisher
	Logger      zerolog.Logger

	previous    broker.AccountView
	hasPrevious bool
}

// New returns a ready-to-use Monitor.
func New(portfolioID string, pub Publisher) *Monitor {
	return &Monitor{PortfolioID: portfolioID, Publisher: pub}
}

// Tick publishes an update if gw's account snapshot differs from the
// last one observed.
func (m *Monitor) Tick(ctx context.Context, gw broker.Gateway) {
	current := gw.Account()
	if m.hasPrevious && current == m.previous {
		return
	}
	m.previous = current
	m.hasPrevious = true

	update := model.AccountUpdate{
		Type:        "account_update",
		Timestamp:   time.Now(),
		PortfolioID: m.PortfolioID,
		Account: model.Account{
			Balance:        decimal.NewFromFloat(current.Balance),
			Available:      decimal.NewFromFloat(current.Available),
			Margin:         decimal.NewFromFloat(current.Margin),
			RiskRatio:      decimal.NewFromFloat(current.RiskRatio),
			PositionProfit: decimal.NewFromFloat(current.PositionProfit),
		},
	}
	if err := m.Publisher.PublishInternal(ctx, constants.RoutingKeyAccountUpdates, update); err != nil {
		m.Logger.Error().Err(err).Msg("publish account update failed")
	}
}
