package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tqsdk-broker-bridge/internal/model"
)

// SimulatedConfig tunes Simulated's fill behavior.
type SimulatedConfig struct {
	FillLatencyMinMs int // simulated broker latency lower bound
	FillLatencyMaxMs int // simulated broker latency upper bound
	PartialFillOdds  float64 // 0..1 chance a filled order only partially fills
}

// Simulated is a deterministic in-memory Gateway used by every
// broker-owning cmd/ binary and by the package tests, in place of the real
// broker SDK binding (see SPEC_FULL.md §4.8).
type Simulated struct {
	mu        sync.Mutex
	cfg       SimulatedConfig
	rng       *rand.Rand
	orders    map[string]OrderView
	positions map[string]PositionView
	account   AccountView
}

// NewSimulated returns a Simulated gateway seeded with a zero account.
func NewSimulated(cfg SimulatedConfig, seed int64) *Simulated {
	return &Simulated{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		orders:    make(map[string]OrderView),
		positions: make(map[string]PositionView),
	}
}

// Drain simulates the broker's blocking event pump: it sleeps a bounded,
// randomized latency then returns ok=true. It fails only when ctx is
// canceled during that sleep.
func (s *Simulated) Drain(ctx context.Context, deadline time.Duration) (bool, error) {
	min, max := s.cfg.FillLatencyMinMs, s.cfg.FillLatencyMaxMs
	if max > 0 {
		if min > max {
			min, max = max, min
		}
		delayMs := min
		if span := max - min; span > 0 {
			delayMs += s.rng.Intn(span + 1)
		}
		delay := time.Duration(delayMs) * time.Millisecond
		if delay > deadline {
			delay = deadline
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
	return true, nil
}

// Orders returns a snapshot copy of the current order book.
func (s *Simulated) Orders() map[string]OrderView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OrderView, len(s.orders))
	for k, v := range s.orders {
		out[k] = v
	}
	return out
}

// Positions returns a snapshot copy of the current position book.
func (s *Simulated) Positions() map[string]PositionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PositionView, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// Account returns the current account snapshot.
func (s *Simulated) Account() AccountView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// InsertOrder simulates order acceptance: it either fully fills or, with
// PartialFillOdds chance, partially fills and stays ALIVE.
func (s *Simulated) InsertOrder(ctx context.Context, req model.OrderRequest, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	volumeLeft := 0
	status := model.OrderStatusFinished
	if s.rng.Float64() < s.cfg.PartialFillOdds {
		volumeLeft = req.Volume / 2
		status = model.OrderStatusAlive
	}

	limit := 0.0
	if req.LimitPrice != nil {
		limit, _ = req.LimitPrice.Float64()
	}

	s.orders[orderID] = OrderView{
		OrderID:      orderID,
		ExchangeOrderID: "SIM-" + orderID,
		ExchangeID:   "SIM",
		InstrumentID: req.Symbol,
		Direction:    req.Direction,
		Offset:       req.Offset,
		LimitPrice:   limit,
		VolumeOrign:  req.Volume,
		VolumeLeft:   volumeLeft,
		Status:       status,
	}
	s.applyFill(req, req.Volume-volumeLeft)
	return nil
}

// CancelOrder marks orderID FINISHED, leaving any remaining volume
// un-filled.
func (s *Simulated) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("simulated gateway: unknown order %s", orderID)
	}
	ov.Status = model.OrderStatusFinished
	s.orders[orderID] = ov
	return nil
}

// applyFill updates the in-memory position book for a fill of size qty.
// Caller holds s.mu.
func (s *Simulated) applyFill(req model.OrderRequest, qty int) {
	if qty == 0 {
		return
	}
	pos := s.positions[req.Symbol]
	signedOpen := qty
	switch {
	case req.Offset == model.OffsetOpen && req.Direction == model.DirectionBuy:
		pos.PosLongToday += signedOpen
	case req.Offset == model.OffsetOpen && req.Direction == model.DirectionSell:
		pos.PosShortToday += signedOpen
	case req.Offset != model.OffsetOpen && req.Direction == model.DirectionSell:
		pos.PosLongToday, pos.PosLongHis = closeOut(pos.PosLongToday, pos.PosLongHis, signedOpen)
	case req.Offset != model.OffsetOpen && req.Direction == model.DirectionBuy:
		pos.PosShortToday, pos.PosShortHis = closeOut(pos.PosShortToday, pos.PosShortHis, signedOpen)
	}
	pos.PosLong = pos.PosLongToday + pos.PosLongHis
	pos.PosShort = pos.PosShortToday + pos.PosShortHis
	pos.Pos = pos.PosLong - pos.PosShort
	s.positions[req.Symbol] = pos
}

func closeOut(today, his, qty int) (int, int) {
	fromToday := min(today, qty)
	today -= fromToday
	qty -= fromToday
	his -= min(his, qty)
	return today, his
}
