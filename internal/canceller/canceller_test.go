package canceller

import (
	"context"
	"testing"
	"time"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/model"
)

func newGatewayWithOrder(t *testing.T, orderID, symbol string) *broker.Simulated {
	t.Helper()
	gw := broker.NewSimulated(broker.SimulatedConfig{PartialFillOdds: 1}, 1)
	req := model.OrderRequest{
		OrderID:     orderID,
		PortfolioID: "p1",
		Symbol:      symbol,
		Direction:   model.DirectionBuy,
		Offset:      model.OffsetOpen,
		Volume:      10,
	}
	if err := gw.InsertOrder(context.Background(), req, orderID); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return gw
}

func TestCancelByOrderID(t *testing.T) {
	gw := newGatewayWithOrder(t, "o1", "SHFE.rb2501")
	c := &Canceller{PerOrderDeadline: time.Second}
	err := c.Cancel(context.Background(), gw, model.OrderCancelRequest{
		CancelType: model.CancelByOrderID,
		OrderID:    "o1",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if gw.Orders()["o1"].Status != model.OrderStatusFinished {
		t.Fatalf("expected order to be finished, got %+v", gw.Orders()["o1"])
	}
}

func TestCancelByContractCode(t *testing.T) {
	gw := broker.NewSimulated(broker.SimulatedConfig{PartialFillOdds: 1}, 2)
	for _, id := range []string{"a", "b"} {
		req := model.OrderRequest{OrderID: id, PortfolioID: "p1", Symbol: "SHFE.rb2501", Direction: model.DirectionBuy, Offset: model.OffsetOpen, Volume: 5}
		if err := gw.InsertOrder(context.Background(), req, id); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	c := &Canceller{PerOrderDeadline: time.Second}
	if err := c.Cancel(context.Background(), gw, model.OrderCancelRequest{
		CancelType:   model.CancelByContractCode,
		ContractCode: "SHFE.rb2501",
	}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if gw.Orders()[id].Status != model.OrderStatusFinished {
			t.Fatalf("expected %s finished, got %+v", id, gw.Orders()[id])
		}
	}
}

func TestCancelAllNeverReturnsError(t *testing.T) {
	gw := newGatewayWithOrder(t, "o1", "SHFE.rb2501")
	c := &Canceller{PerOrderDeadline: time.Second}
	err := c.Cancel(context.Background(), gw, model.OrderCancelRequest{CancelType: model.CancelAll})
	if err != nil {
		t.Fatalf("expected CancelAll to never return an error, got %v", err)
	}
}
