// Package posmonitor watches the broker's position book each drain cycle
// and publishes one update per changed symbol, per SPEC_FULL.md §4.2.
package posmonitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/diff"
	"tqsdk-broker-bridge/internal/model"
)

// Publisher is the subset of internal/bus.Publisher the monitor needs.
type Publisher interface {
	PublishInternal(ctx context.Context, routingKey string, v any) error
}

// Monitor detects position changes and publishes model.PositionUpdate
// events.
type Monitor struct {
	PortfolioID string
	Publisher   Publisher
	Logger      zerolog.Logger

	tracker *diff.Tracker[string, diff.PositionSnapshot]
}

// New returns a ready-to-use Monitor.
func New(portfolioID string, pub Publisher) *Monitor {
	return &Monitor{
		PortfolioID: portfolioID,
		Publisher:   pub,
		tracker:     diff.NewTracker[string, diff.PositionSnapshot](),
	}
}

// Tick projects gw's live position book, diffs it against the previous
// cycle, and publishes an update for every changed symbol (including a
// zero-position update once a position fully closes).
func (m *Monitor) Tick(ctx context.Context, gw broker.Gateway) {
	current := gw.Positions()
	for _, change := range m.tracker.Tick(current) {
		update := model.PositionUpdate{
			Type:        "position_update",
			Timestamp:   time.Now(),
			PortfolioID: m.PortfolioID,
			Symbol:      change.Key,
			Position:    change.Value,
		}
		if err := m.Publisher.PublishInternal(ctx, constants.RoutingKeyPositionUpdates, update); err != nil {
			m.Logger.Error().Err(err).Str("symbol", change.Key).Msg("publish position update failed")
		}
	}
}
