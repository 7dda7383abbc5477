// Package canceller implements the three cancel-request variants from
// SPEC_FULL.md §4.5: by order_id, by contract_code, and all.
package canceller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/model"
)

// Canceller cancels orders against a broker session. Every method is
// called from the owning skeleton.Service's Worker Loop.
type Canceller struct {
	Logger zerolog.Logger

	// PerOrderDeadline bounds how long each cancel mode waits for each
	// order's ALIVE->FINISHED transition (default 1s).
	PerOrderDeadline time.Duration
}

func (c *Canceller) deadline() time.Duration {
	if c.PerOrderDeadline > 0 {
		return c.PerOrderDeadline
	}
	return time.Second
}

// Cancel dispatches req to the handler for its CancelType.
func (c *Canceller) Cancel(ctx context.Context, gw broker.Gateway, req model.OrderCancelRequest) error {
	switch req.CancelType {
	case model.CancelByOrderID, "":
		return c.cancelByOrderID(ctx, gw, req.OrderID)
	case model.CancelByContractCode:
		return c.cancelByContractCode(ctx, gw, req.ContractCode)
	case model.CancelAll:
		c.cancelAll(ctx, gw)
		return nil
	default:
		return fmt.Errorf("canceller: unknown cancel_type %q", req.CancelType)
	}
}

// cancelByOrderID cancels a single order and polls until it leaves
// ALIVE, acking only once the broker confirms the transition.
func (c *Canceller) cancelByOrderID(ctx context.Context, gw broker.Gateway, orderID string) error {
	if err := gw.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return c.waitFinished(ctx, gw, orderID, c.deadline())
}

// cancelByContractCode cancels every ALIVE order on contractCode and
// waits for all of them to finish.
func (c *Canceller) cancelByContractCode(ctx context.Context, gw broker.Gateway, contractCode string) error {
	targets := make([]string, 0)
	for id, ov := range gw.Orders() {
		if ov.InstrumentID == contractCode && ov.Status == model.OrderStatusAlive {
			targets = append(targets, id)
		}
	}
	for _, id := range targets {
		if err := gw.CancelOrder(ctx, id); err != nil {
			return fmt.Errorf("cancel order %s on %s: %w", id, contractCode, err)
		}
	}
	for _, id := range targets {
		if err := c.waitFinished(ctx, gw, id, c.deadline()); err != nil {
			return err
		}
	}
	return nil
}

// cancelAll cancels every ALIVE order, applying a 1s-per-order deadline
// and logging (never returning) individual failures: "all" always
// reports success to the caller.
func (c *Canceller) cancelAll(ctx context.Context, gw broker.Gateway) {
	for id, ov := range gw.Orders() {
		if ov.Status != model.OrderStatusAlive {
			continue
		}
		if err := gw.CancelOrder(ctx, id); err != nil {
			c.Logger.Warn().Str("order_id", id).Err(err).Msg("cancel-all: cancel failed")
			continue
		}
		if err := c.waitFinished(ctx, gw, id, c.deadline()); err != nil {
			c.Logger.Warn().Str("order_id", id).Err(err).Msg("cancel-all: order did not finish before deadline")
		}
	}
}

func (c *Canceller) waitFinished(ctx context.Context, gw broker.Gateway, orderID string, deadline time.Duration) error {
	cutoff := time.Now().Add(deadline)
	for {
		if ov, ok := gw.Orders()[orderID]; !ok || ov.Status == model.OrderStatusFinished {
			return nil
		}
		if time.Now().After(cutoff) {
			return fmt.Errorf("order %s did not finish within %s", orderID, deadline)
		}
		if _, err := gw.Drain(ctx, 200*time.Millisecond); err != nil {
			return fmt.Errorf("drain while awaiting cancel of %s: %w", orderID, err)
		}
	}
}
