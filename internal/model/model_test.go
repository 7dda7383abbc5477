package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFullPositionZero(t *testing.T) {
	if !(FullPosition{}).Zero() {
		t.Fatal("expected zero-value FullPosition to report Zero")
	}
	p := FullPosition{PosLong: 1}
	if p.Zero() {
		t.Fatal("expected non-zero FullPosition to not report Zero")
	}
}

func TestFullPositionEquals(t *testing.T) {
	a := FullPosition{PosLong: 3, PosLongToday: 1, PosLongHis: 2}
	b := a
	if !a.Equals(b) {
		t.Fatal("expected identical positions to be equal")
	}
	b.PosLongToday = 2
	if a.Equals(b) {
		t.Fatal("expected differing positions to not be equal")
	}
}

func TestOrderRoundTrip(t *testing.T) {
	o := Order{
		OrderID:      "abc123",
		PortfolioID:  "p1",
		InstrumentID: "SHFE.rb2501",
		Direction:    DirectionBuy,
		Offset:       OffsetOpen,
		LimitPrice:   decimal.NewFromFloat(3500.5),
		VolumeOrign:  10,
		VolumeLeft:   4,
		Status:       OrderStatusAlive,
		InsertDateTime: time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Order
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.InsertDateTime.Equal(o.InsertDateTime) {
		t.Fatalf("insert time mismatch: got %v want %v", out.InsertDateTime, o.InsertDateTime)
	}
	out.InsertDateTime = o.InsertDateTime
	if !out.LimitPrice.Equal(o.LimitPrice) {
		t.Fatalf("limit price mismatch: got %v want %v", out.LimitPrice, o.LimitPrice)
	}
	out.LimitPrice = o.LimitPrice
	if out != o {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, o)
	}
}

func TestFullPositionRoundTrip(t *testing.T) {
	p := FullPosition{PosLong: 5, PosShort: 2, Pos: 3, PosLongToday: 2, PosLongHis: 3, PosShortToday: 1, PosShortHis: 1}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out FullPosition
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != p {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, p)
	}
}
