package submitter

import (
	"context"
	"testing"
	"time"

	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
)

func TestInSession(t *testing.T) {
	loc := constants.ShanghaiLocation()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc) // a Monday

	cases := []struct {
		name string
		hm   time.Duration
		want bool
	}{
		{"before open", 8*time.Hour + 59*time.Minute, false},
		{"at open", 9 * time.Hour, true},
		{"mid morning session", 9*time.Hour + 30*time.Minute, true},
		{"inside end buffer", 10*time.Hour + 14*time.Minute + 50*time.Second, false},
		{"just after morning close", 10*time.Hour + 16*time.Minute, false},
		{"second session", 10*time.Hour + 30*time.Minute, true},
		{"between sessions", 12 * time.Hour, false},
		{"afternoon session", 14 * time.Hour, true},
		{"after close", 15*time.Hour + 1*time.Minute, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := InSession(day.Add(c.hm))
			if got != c.want {
				t.Fatalf("InSession at %v = %v, want %v", c.hm, got, c.want)
			}
		})
	}
}

type fakeUniverse struct {
	exchange string
}

func (f fakeUniverse) ExchangeFor(ctx context.Context, symbol string) (string, error) {
	return f.exchange, nil
}

type fakeCache struct {
	pos model.FullPosition
	ok  bool
}

func (f fakeCache) GetPosition(ctx context.Context, portfolioID, symbol string) (model.FullPosition, bool, error) {
	return f.pos, f.ok, nil
}

func TestSplitCloseNonCloseOrderPassesThrough(t *testing.T) {
	p := &Pipeline{Universe: fakeUniverse{exchange: "SHFE"}}
	req := model.OrderRequest{Offset: model.OffsetOpen, Volume: 5}
	out, err := p.splitClose(context.Background(), req)
	if err != nil {
		t.Fatalf("splitClose: %v", err)
	}
	if len(out) != 1 || out[0] != req {
		t.Fatalf("expected passthrough, got %+v", out)
	}
}

func TestSplitCloseNonSplitExchangePassesThrough(t *testing.T) {
	p := &Pipeline{
		Universe: fakeUniverse{exchange: "DCE"},
		Cache:    fakeCache{ok: true, pos: model.FullPosition{PosLongToday: 5, PosLongHis: 5}},
	}
	req := model.OrderRequest{Offset: model.OffsetClose, Direction: model.DirectionSell, Volume: 5}
	out, err := p.splitClose(context.Background(), req)
	if err != nil {
		t.Fatalf("splitClose: %v", err)
	}
	if len(out) != 1 || out[0] != req {
		t.Fatalf("expected passthrough for non-split exchange, got %+v", out)
	}
}

func TestSplitCloseSellClosesLongTodayThenHistory(t *testing.T) {
	p := &Pipeline{
		Universe: fakeUniverse{exchange: "SHFE"},
		Cache:    fakeCache{ok: true, pos: model.FullPosition{PosLongToday: 3, PosLongHis: 10}},
	}
	req := model.OrderRequest{OrderID: "o1", Offset: model.OffsetClose, Direction: model.DirectionSell, Volume: 5}
	out, err := p.splitClose(context.Background(), req)
	if err != nil {
		t.Fatalf("splitClose: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 child orders, got %d: %+v", len(out), out)
	}
	if out[0].OrderID != "o1_closetoday" || out[0].Offset != model.OffsetCloseToday || out[0].Volume != 3 {
		t.Fatalf("unexpected closetoday child: %+v", out[0])
	}
	if out[1].OrderID != "o1_close" || out[1].Volume != 2 {
		t.Fatalf("unexpected close child: %+v", out[1])
	}
}

func TestSplitCloseBuyClosesShort(t *testing.T) {
	p := &Pipeline{
		Universe: fakeUniverse{exchange: "INE"},
		Cache:    fakeCache{ok: true, pos: model.FullPosition{PosShortToday: 0, PosShortHis: 4}},
	}
	req := model.OrderRequest{OrderID: "o2", Offset: model.OffsetClose, Direction: model.DirectionBuy, Volume: 4}
	out, err := p.splitClose(context.Background(), req)
	if err != nil {
		t.Fatalf("splitClose: %v", err)
	}
	if len(out) != 1 || out[0].OrderID != "o2_close" || out[0].Volume != 4 {
		t.Fatalf("unexpected child orders: %+v", out)
	}
}

func TestSplitCloseNoPositionPassesThrough(t *testing.T) {
	p := &Pipeline{
		Universe: fakeUniverse{exchange: "SHFE"},
		Cache:    fakeCache{ok: false},
	}
	req := model.OrderRequest{OrderID: "o3", Offset: model.OffsetClose, Direction: model.DirectionSell, Volume: 5}
	out, err := p.splitClose(context.Background(), req)
	if err != nil {
		t.Fatalf("splitClose: %v", err)
	}
	if len(out) != 1 || out[0] != req {
		t.Fatalf("expected passthrough when no cached position, got %+v", out)
	}
}

func TestCheckAgeExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 10, 0, time.UTC)
	p := &Pipeline{Now: func() time.Time { return now }}
	origin := now.Add(-6 * time.Second)
	if err := p.checkAge(origin); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	origin = now.Add(-4 * time.Second)
	if err := p.checkAge(origin); err != nil {
		t.Fatalf("expected no error within allowance, got %v", err)
	}
}

func TestCheckAgeMissingTimestampRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 10, 0, time.UTC)
	p := &Pipeline{Now: func() time.Time { return now }}
	if err := p.checkAge(time.Time{}); err != ErrMissingTimestamp {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}
}
