// Package broker defines the seam between this bridge and the
// single-threaded, blocking Broker Gateway session described in
// SPEC_FULL.md §4.8. The real SDK binding is outside the retrieval pack;
// Gateway is the interface a production build would satisfy, and
// simulated.go provides a deterministic in-memory implementation used by
// the package tests and by every broker-owning cmd/ binary.
package broker

import (
	"context"
	"time"

	"tqsdk-broker-bridge/internal/model"
)

// OrderView is the broker's live view of one order.
type OrderView struct {
	OrderID         string
	ExchangeOrderID string
	ExchangeID      string
	InstrumentID    string
	Direction       model.Direction
	Offset          model.Offset
	LimitPrice      float64
	VolumeOrign     int
	VolumeLeft      int
	Status          model.OrderStatus
	LastMsg         string
}

// PositionView is the broker's live view of one symbol's position.
type PositionView = model.FullPosition

// AccountView is the broker's live view of the account.
type AccountView struct {
	Balance        float64
	Available      float64
	Margin         float64
	RiskRatio      float64
	PositionProfit float64
}

// Gateway is the single-threaded broker session. Orders, Positions and
// Account are cheap reads of the session's last-drained snapshot; only
// Drain and the two submit/cancel calls talk to the broker.
type Gateway interface {
	// Drain pumps the broker's event loop until deadline elapses or new
	// data arrives, returning ok=false on a stalled/failed pump.
	Drain(ctx context.Context, deadline time.Duration) (ok bool, err error)

	Orders() map[string]OrderView
	Positions() map[string]PositionView
	Account() AccountView

	InsertOrder(ctx context.Context, req model.OrderRequest, orderID string) error
	CancelOrder(ctx context.Context, orderID string) error
}
