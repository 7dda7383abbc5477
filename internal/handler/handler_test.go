package handler

import (
	"context"
	"encoding/json"
	"testing"

	"tqsdk-broker-bridge/internal/bus"
	"tqsdk-broker-bridge/internal/model"
)

func makeEnvelope(t *testing.T, v any) (bus.Envelope, *bool) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	acked := false
	return bus.Envelope{
		Body: raw,
		Ack:  func() { acked = true },
		Nack: func(requeue bool) { t.Fatal("did not expect Nack") },
	}, &acked
}

type fakeAccountCache struct {
	set         bool
	lastAccount model.Account
}

func (f *fakeAccountCache) SetAccount(ctx context.Context, portfolioID string, a model.Account) error {
	f.set = true
	f.lastAccount = a
	return nil
}

func TestAccountHandlerHandleWritesCache(t *testing.T) {
	cache := &fakeAccountCache{}
	h := &AccountHandler{Cache: cache}

	env, acked := makeEnvelope(t, model.AccountUpdate{PortfolioID: "p1"})
	h.Handle(context.Background(), env)

	if !cache.set {
		t.Fatal("expected cache.SetAccount to be called")
	}
	if !*acked {
		t.Fatal("expected envelope to be acked")
	}
}

type fakePositionCache struct {
	set bool
}

func (f *fakePositionCache) SetPosition(ctx context.Context, portfolioID, symbol string, p model.FullPosition) error {
	f.set = true
	return nil
}

func TestPositionHandlerHandleWritesCache(t *testing.T) {
	cache := &fakePositionCache{}
	h := &PositionHandler{Cache: cache}

	env, acked := makeEnvelope(t, model.PositionUpdate{PortfolioID: "p1", Symbol: "SHFE.rb2501"})
	h.Handle(context.Background(), env)

	if !cache.set {
		t.Fatal("expected cache.SetPosition to be called")
	}
	if !*acked {
		t.Fatal("expected envelope to be acked")
	}
}

type fakeOrderStore struct {
	orders      map[string]model.Order
	events      int
	trades      int
	upsertErr   error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]model.Order)}
}

func (f *fakeOrderStore) UpsertOrderMonotonic(ctx context.Context, o model.Order) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	existing, ok := f.orders[o.OrderID]
	if ok && o.VolumeLeft > existing.VolumeLeft {
		return false, nil
	}
	f.orders[o.OrderID] = o
	return true, nil
}

func (f *fakeOrderStore) InsertOrderEvent(ctx context.Context, orderID, portfolioID string, eventType model.OrderEventType, status model.OrderStatus, volumeLeft int) error {
	f.events++
	return nil
}

func (f *fakeOrderStore) InsertTrade(ctx context.Context, t model.Trade) error {
	f.trades++
	return nil
}

func TestOrderHandlerAppliesFillsAndDropsStaleUpdates(t *testing.T) {
	st := newFakeOrderStore()
	h := &OrderHandler{Store: st}

	env, acked := makeEnvelope(t, orderEventEnvelope{
		EventType: model.OrderEventPartialFill,
		Order:     model.Order{OrderID: "o1", VolumeOrign: 10, VolumeLeft: 6, Status: model.OrderStatusAlive},
	})
	h.Handle(context.Background(), env)
	if !*acked || st.events != 1 || st.trades != 1 {
		t.Fatalf("expected partial fill applied with one event and one trade, got events=%d trades=%d", st.events, st.trades)
	}

	// A stale update (less filled than what's already persisted) is
	// dropped: no new event, no new trade, but still acked.
	env2, acked2 := makeEnvelope(t, orderEventEnvelope{
		EventType: model.OrderEventCanceled,
		Order:     model.Order{OrderID: "o1", VolumeOrign: 10, VolumeLeft: 10, Status: model.OrderStatusFinished},
	})
	h.Handle(context.Background(), env2)
	if !*acked2 || st.events != 1 || st.trades != 1 {
		t.Fatalf("expected stale update to be dropped, got events=%d trades=%d", st.events, st.trades)
	}
}

func TestOrderHandlerRequeuesOnPersistenceFailure(t *testing.T) {
	st := newFakeOrderStore()
	st.upsertErr = context.DeadlineExceeded
	h := &OrderHandler{Store: st}

	nacked := false
	raw, _ := json.Marshal(orderEventEnvelope{Order: model.Order{OrderID: "o1"}})
	env := bus.Envelope{
		Body: raw,
		Ack:  func() { t.Fatal("did not expect Ack on persistence failure") },
		Nack: func(requeue bool) {
			nacked = true
			if !requeue {
				t.Fatal("expected persistence failure to requeue")
			}
		},
	}
	h.Handle(context.Background(), env)
	if !nacked {
		t.Fatal("expected Nack to be called")
	}
}

func TestOrderAndPositionHandlersDropMalformedMessages(t *testing.T) {
	nacked := false
	env := bus.Envelope{
		Body: []byte("not json"),
		Ack:  func() { t.Fatal("expected Nack(false), not Ack, for a malformed message") },
		Nack: func(requeue bool) {
			nacked = true
			if requeue {
				t.Fatal("expected malformed message to be dropped, not requeued")
			}
		},
	}

	h := &PositionHandler{Cache: &fakePositionCache{}}
	h.Handle(context.Background(), env)
	if !nacked {
		t.Fatal("expected malformed message to be nacked without requeue")
	}

	nacked = false
	oh := &OrderHandler{Store: newFakeOrderStore()}
	oh.Handle(context.Background(), env)
	if !nacked {
		t.Fatal("expected malformed order message to be nacked without requeue")
	}
}
