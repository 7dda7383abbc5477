// Package ordermonitor watches the broker's order book each drain cycle
// and publishes one event per change, per SPEC_FULL.md §4.2.
package ordermonitor

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

// Monitor detects order changes and publishes model.Order updates.
type Monitor struct {
	PortfolioID string
	Publisher   Publisher
	Logger      zerolog.Logger

	tracker *diff.Tracker[string, diff.OrderSnapshot]
}

// New returns a ready-to-use Monitor.
func New(portfolioID string, pub Publisher) *Monitor {
	return &Monitor{
		PortfolioID: portfolioID,
		Publisher:   pub,
		tracker:     diff.NewTracker[string, diff.OrderSnapshot](),
	}
}

// Tick projects gw's live order book, diffs it against the previous
// cycle, classifies each change, and publishes an update for it.
// Intended to be wired as a skeleton.Service's OnTick.
func (m *Monitor) Tick(ctx context.Context, gw broker.Gateway) {
	current := make(map[string]diff.OrderSnapshot)
	views := gw.Orders()
	for id, ov := range views {
		current[id] = diff.OrderSnapshot{
			Status:          ov.Status,
			VolumeLeft:      ov.VolumeLeft,
			VolumeOrign:     ov.VolumeOrign,
			ExchangeOrderID: ov.ExchangeOrderID,
			ExchangeID:      ov.ExchangeID,
		}
	}

	for _, change := range m.tracker.Tick(current) {
		ov := views[change.Key]
		eventType := diff.ClassifyOrderEvent(ov.Status, ov.VolumeOrign, ov.VolumeLeft)
		order := model.Order{
			OrderID:         change.Key,
			PortfolioID:     m.PortfolioID,
			ExchangeOrderID: ov.ExchangeOrderID,
			ExchangeID:      ov.ExchangeID,
			InstrumentID:    ov.InstrumentID,
			Direction:       ov.Direction,
			Offset:          ov.Offset,
			VolumeOrign:     ov.VolumeOrign,
			VolumeLeft:      ov.VolumeLeft,
			Status:          ov.Status,
			LastMsg:         ov.LastMsg,
			InsertDateTime:  time.Now(),
		}
		if err := m.Publisher.PublishInternal(ctx, constants.RoutingKeyOrderUpdates, orderEventEnvelope{
			EventType: eventType,
			Order:     order,
		}); err != nil {
			m.Logger.Error().Err(err).Str("order_id", change.Key).Msg("publish order update failed")
		}
	}
}

type orderEventEnvelope struct {
	EventType model.OrderEventType `json:"event_type"`
	Order     model.Order          `json:"order"`
}
