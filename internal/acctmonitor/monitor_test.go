package acctmonitor

import (
	"context"
	"sync"
	"testing"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/model"
)

type capturingPublisher struct {
	mu        sync.Mutex
	published []model.AccountUpdate
}

func (c *capturingPublisher) PublishInternal(ctx context.Context, routingKey string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, v.(model.AccountUpdate))
	return nil
}

// stubGateway lets the test drive a fixed account snapshot directly,
// independent of order fills.
type stubGateway struct {
	broker.Simulated
	account broker.AccountView
}

func (s *stubGateway) Account() broker.AccountView { return s.account }

func TestMonitorTickPublishesOnlyOnAccountChange(t *testing.T) {
	pub := &capturingPublisher{}
	mon := New("p1", pub)
	gw := &stubGateway{account: broker.AccountView{Balance: 1000}}

	mon.Tick(context.Background(), gw)
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish for the first observed account, got %d", len(pub.published))
	}

	mon.Tick(context.Background(), gw)
	if len(pub.published) != 1 {
		t.Fatalf("expected no publish for an unchanged account, got %d total", len(pub.published))
	}

	gw.account.Balance = 900
	mon.Tick(context.Background(), gw)
	if len(pub.published) != 2 {
		t.Fatalf("expected a publish after balance changed, got %d total", len(pub.published))
	}
}
