package reconciler

import (
	"context"
	"testing"
	"time"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/model"
)

type fakeCache struct {
	values   map[string]model.FullPosition
	refreshed map[string]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]model.FullPosition), refreshed: make(map[string]int)}
}

func (f *fakeCache) GetPosition(ctx context.Context, portfolioID, symbol string) (model.FullPosition, bool, error) {
	p, ok := f.values[symbol]
	return p, ok, nil
}

func (f *fakeCache) SetPosition(ctx context.Context, portfolioID, symbol string, p model.FullPosition) error {
	f.values[symbol] = p
	return nil
}

func (f *fakeCache) RefreshPositionTTL(ctx context.Context, portfolioID, symbol string) error {
	f.refreshed[symbol]++
	return nil
}

type fakeUniverse struct {
	symbols []model.UniverseSymbol
}

func (f fakeUniverse) Load(ctx context.Context) ([]model.UniverseSymbol, error) { return f.symbols, nil }

func TestReconcileCycleFillsMissingAndOverwritesMismatch(t *testing.T) {
	cache := newFakeCache()
	cache.values["SHFE.rb2501"] = model.FullPosition{PosLong: 1}

	gw := broker.NewSimulated(broker.SimulatedConfig{}, 1)
	ctx := context.Background()
	if err := gw.InsertOrder(ctx, model.OrderRequest{OrderID: "o1", Symbol: "SHFE.rb2501", Volume: 10, Direction: model.DirectionBuy, Offset: model.OffsetOpen}, "o1"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := gw.InsertOrder(ctx, model.OrderRequest{OrderID: "o2", Symbol: "DCE.m2501", Volume: 5, Direction: model.DirectionBuy, Offset: model.OffsetOpen}, "o2"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := &Reconciler{
		Cache:       cache,
		Universe:    fakeUniverse{symbols: []model.UniverseSymbol{{BrokerSymbol: "CZCE.cf501"}}},
		PortfolioID: "p1",
	}
	r.reconcileCycle(ctx, gw)

	if cache.values["SHFE.rb2501"].PosLong != 10 {
		t.Fatalf("expected mismatch to be overwritten with broker value, got %+v", cache.values["SHFE.rb2501"])
	}
	if cache.values["DCE.m2501"].PosLong != 5 {
		t.Fatalf("expected missing cache entry to be filled, got %+v", cache.values["DCE.m2501"])
	}
	if _, ok := cache.values["CZCE.cf501"]; !ok {
		t.Fatal("expected untouched universe symbol to get a zero-position backstop entry")
	}
	if !cache.values["CZCE.cf501"].Zero() {
		t.Fatalf("expected backstop entry to be zero, got %+v", cache.values["CZCE.cf501"])
	}
}

func TestReconcileCycleRefreshesTTLOnMatch(t *testing.T) {
	cache := newFakeCache()
	gw := broker.NewSimulated(broker.SimulatedConfig{}, 1)
	ctx := context.Background()
	if err := gw.InsertOrder(ctx, model.OrderRequest{OrderID: "o1", Symbol: "SHFE.rb2501", Volume: 10, Direction: model.DirectionBuy, Offset: model.OffsetOpen}, "o1"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cache.values["SHFE.rb2501"] = gw.Positions()["SHFE.rb2501"]

	r := &Reconciler{Cache: cache, Universe: fakeUniverse{}, PortfolioID: "p1"}
	r.reconcileCycle(ctx, gw)

	if cache.refreshed["SHFE.rb2501"] != 1 {
		t.Fatalf("expected TTL refresh for a matching position, got %d", cache.refreshed["SHFE.rb2501"])
	}
}

func TestTickIsIntervalGated(t *testing.T) {
	cache := newFakeCache()
	gw := broker.NewSimulated(broker.SimulatedConfig{}, 1)
	ctx := context.Background()
	if err := gw.InsertOrder(ctx, model.OrderRequest{OrderID: "o1", Symbol: "SHFE.rb2501", Volume: 10, Direction: model.DirectionBuy, Offset: model.OffsetOpen}, "o1"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	calls := 0
	r := &Reconciler{
		Cache:    countingCache{fakeCache: cache, calls: &calls},
		Universe: fakeUniverse{},
		Interval: 5 * time.Second,
		Now:      func() time.Time { return now },
	}
	r.Tick(context.Background(), gw)
	r.Tick(context.Background(), gw) // same `now`, should be gated
	if calls != 1 {
		t.Fatalf("expected exactly 1 reconcile cycle within the interval, got %d", calls)
	}

	now = now.Add(6 * time.Second)
	r.Tick(context.Background(), gw)
	if calls != 2 {
		t.Fatalf("expected a second cycle after the interval elapsed, got %d", calls)
	}
}

// countingCache wraps fakeCache to count GetPosition calls as a proxy
// for "a reconcile cycle ran".
type countingCache struct {
	*fakeCache
	calls *int
}

func (c countingCache) GetPosition(ctx context.Context, portfolioID, symbol string) (model.FullPosition, bool, error) {
	*c.calls++
	return c.fakeCache.GetPosition(ctx, portfolioID, symbol)
}
