// Package handler implements the three persistence sinks from
// SPEC_FULL.md §4.6: order (idempotent-monotonic + audit trail), account
// (cache write), and position (cache write, legacy parallel path to the
// Reconciler).
package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/model"
)

// OrderStore is the subset of internal/store.Store OrderHandler needs,
// kept as an interface so it is unit-testable without a live database.
type OrderStore interface {
	UpsertOrderMonotonic(ctx context.Context, o model.Order) (applied bool, err error)
	InsertOrderEvent(ctx context.Context, orderID, portfolioID string, eventType model.OrderEventType, status model.OrderStatus, volumeLeft int) error
	InsertTrade(ctx context.Context, t model.Trade) error
}

// orderEventEnvelope mirrors internal/ordermonitor's publish shape.
type orderEventEnvelope struct {
	EventType model.OrderEventType `json:"event_type"`
	Order     model.Order          `json:"order"`
}

// OrderHandler persists order updates idempotently and appends one audit
// row per update, then inserts a trade row when the event represents a
// fill.
type OrderHandler struct {
	Store  OrderStore
	Logger zerolog.Logger
}

// Handle decodes env and applies it. Decode failures never requeue
// (SPEC_FULL.md §7); persistence failures do.
func (h *OrderHandler) Handle(ctx context.Context, env bus.Envelope) {
	var msg orderEventEnvelope
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		h.Logger.Error().Err(err).Msg("order handler: malformed message, dropping")
		env.Nack(false)
		return
	}

	if err := h.apply(ctx, msg); err != nil {
		h.Logger.Error().Err(err).Str("order_id", msg.Order.OrderID).Msg("order handler: persistence failed, requeueing")
		env.Nack(true)
		return
	}
	env.Ack()
}

func (h *OrderHandler) apply(ctx context.Context, msg orderEventEnvelope) error {
	applied, err := h.Store.UpsertOrderMonotonic(ctx, msg.Order)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	if !applied {
		h.Logger.Debug().Str("order_id", msg.Order.OrderID).Msg("order handler: dropped stale out-of-order update")
		return nil
	}

	if err := h.Store.InsertOrderEvent(ctx, msg.Order.OrderID, msg.Order.PortfolioID, msg.EventType, msg.Order.Status, msg.Order.VolumeLeft); err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}

	if msg.EventType == model.OrderEventPartialFill || msg.EventType == model.OrderEventCompleteFill {
		trade := model.Trade{
			TradeID:         msg.Order.OrderID + "-" + string(msg.Order.Status) + "-" + msg.Order.ExchangeOrderID,
			OrderID:         msg.Order.OrderID,
			PortfolioID:     msg.Order.PortfolioID,
			ExchangeTradeID: msg.Order.ExchangeOrderID,
			ExchangeID:      msg.Order.ExchangeID,
			InstrumentID:    msg.Order.InstrumentID,
			Direction:       msg.Order.Direction,
			Offset:          msg.Order.Offset,
			Price:           msg.Order.LimitPrice,
			Volume:          msg.Order.VolumeOrign - msg.Order.VolumeLeft,
			TradeDateTime:   msg.Order.InsertDateTime,
		}
		if err := h.Store.InsertTrade(ctx, trade); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return nil
}
