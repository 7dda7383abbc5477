// Package submitter implements the Order Submitter's six-stage pipeline
// from SPEC_FULL.md §4.3: age check, trading-session check, close-today/
// close-historical split, persist, recheck, broker submit.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
	"tqsdk-broker-bridge/internal/store"
)

// ErrExpired is returned when an order command is older than
// constants.OrderExpireAllowMax by the time the pipeline looks at it.
var ErrExpired = errors.New("submitter: order request expired")

// ErrOutOfSession is returned when the market is not in a trading window
// (including the session-end buffer).
var ErrOutOfSession = errors.New("submitter: market is not in a trading session")

// ErrMissingTimestamp is returned when a submit request carries no origin
// timestamp: the age check has nothing to measure from, so the request is
// rejected rather than treated as fresh.
var ErrMissingTimestamp = errors.New("submitter: order request missing timestamp")

// Pipeline runs the six submit stages against a single broker session.
// Every method is called from the owning skeleton.Service's Worker Loop.
type Pipeline struct {
	Store    *store.Store
	Cache    PositionCache
	Universe Universe
	Now      func() time.Time
	Logger   zerolog.Logger
}

// PositionCache is the subset of internal/cache.Cache the close split
// needs, kept as an interface so the pipeline is unit-testable without a
// live Redis connection.
type PositionCache interface {
	GetPosition(ctx context.Context, portfolioID, symbol string) (model.FullPosition, bool, error)
}

// Universe resolves an instrument symbol's exchange, used by the
// close-today split to decide whether it applies.
type Universe interface {
	ExchangeFor(ctx context.Context, symbol string) (string, error)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Submit runs req through all six stages against gw, the broker session
// the caller's Worker Loop owns. originTimestamp is the order's own
// timestamp (req.Timestamp), used for the age checks; it is not when the
// bus envelope happened to be decoded.
func (p *Pipeline) Submit(ctx context.Context, gw broker.Gateway, req model.OrderRequest, originTimestamp time.Time) error {
	if err := p.checkAge(originTimestamp); err != nil {
		return err
	}
	if err := p.checkSession(); err != nil {
		return err
	}

	children, err := p.splitClose(ctx, req)
	if err != nil {
		return fmt.Errorf("split close order: %w", err)
	}

	for _, child := range children {
		if err := p.persist(ctx, child); err != nil {
			return fmt.Errorf("persist order %s: %w", child.OrderID, err)
		}
	}

	// Stage 5: recheck immediately before touching the broker, since
	// persistence can take long enough to cross a session boundary.
	if err := p.checkAge(originTimestamp); err != nil {
		return err
	}
	if err := p.checkSession(); err != nil {
		return err
	}

	for _, child := range children {
		if err := p.submitToBroker(ctx, gw, child); err != nil {
			return fmt.Errorf("submit order %s to broker: %w", child.OrderID, err)
		}
	}
	return nil
}

func (p *Pipeline) checkAge(originTimestamp time.Time) error {
	if originTimestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if p.now().Sub(originTimestamp) > constants.OrderExpireAllowMax {
		return ErrExpired
	}
	return nil
}

func (p *Pipeline) checkSession() error {
	if !InSession(p.now()) {
		return ErrOutOfSession
	}
	return nil
}

// InSession reports whether t falls inside a trading window, closed
// constants.SessionEndBuffer before the window's nominal end.
func InSession(t time.Time) bool {
	loc := constants.ShanghaiLocation()
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	sinceMidnight := local.Sub(midnight)

	for _, session := range constants.TradingSessions {
		closeBoundary := session.Close - constants.SessionEndBuffer
		if sinceMidnight >= session.Open && sinceMidnight < closeBoundary {
			return true
		}
	}
	return false
}

// splitClose applies the close-today/close-historical split for
// exchanges that distinguish them (SHFE/INE), grounded on the bridge's
// original closetoday_splitter: only CLOSE orders on those exchanges are
// split, direction SELL closes a long position (today before historical),
// direction BUY closes a short position. The CLOSETODAY child requests
// min(volume, today qty) and the CLOSE child min(remaining volume, his qty).
func (p *Pipeline) splitClose(ctx context.Context, req model.OrderRequest) ([]model.OrderRequest, error) {
	if req.Offset != model.OffsetClose {
		return []model.OrderRequest{req}, nil
	}

	exchange, err := p.Universe.ExchangeFor(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if !constants.CloseTodayExchanges[exchange] {
		return []model.OrderRequest{req}, nil
	}

	pos, ok, err := p.Cache.GetPosition(ctx, req.PortfolioID, req.Symbol)
	if err != nil {
		return nil, err
	}
	if !ok || pos.Zero() {
		return []model.OrderRequest{req}, nil
	}

	var todayQty, hisQty int
	switch req.Direction {
	case model.DirectionSell:
		todayQty, hisQty = pos.PosLongToday, pos.PosLongHis
	case model.DirectionBuy:
		todayQty, hisQty = pos.PosShortToday, pos.PosShortHis
	}

	wanted := req.Volume
	todayFill := minInt(wanted, todayQty)
	remaining := wanted - todayFill
	hisFill := minInt(remaining, hisQty)

	if todayFill == 0 && hisFill == 0 {
		return []model.OrderRequest{req}, nil
	}

	var children []model.OrderRequest
	if todayFill > 0 {
		c := req
		c.OrderID = req.OrderID + "_closetoday"
		c.Offset = model.OffsetCloseToday
		c.Volume = todayFill
		children = append(children, c)
	}
	if hisFill > 0 {
		c := req
		c.OrderID = req.OrderID + "_close"
		c.Offset = model.OffsetCloseHistory
		c.Volume = hisFill
		children = append(children, c)
	}
	return children, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// persist writes the order row before the broker is ever contacted, per
// the ordering guarantee in SPEC_FULL.md §5.
func (p *Pipeline) persist(ctx context.Context, req model.OrderRequest) error {
	limit := decimal.Zero
	if req.LimitPrice != nil {
		limit = *req.LimitPrice
	}
	return p.Store.InsertOrder(ctx, model.Order{
		OrderID:        req.OrderID,
		PortfolioID:    req.PortfolioID,
		InstrumentID:   req.Symbol,
		Direction:      req.Direction,
		Offset:         req.Offset,
		LimitPrice:     limit,
		VolumeOrign:    req.Volume,
		VolumeLeft:     req.Volume,
		Status:         model.OrderStatusAlive,
		InsertDateTime: p.now(),
	})
}

func (p *Pipeline) submitToBroker(ctx context.Context, gw broker.Gateway, req model.OrderRequest) error {
	if _, err := gw.Drain(ctx, time.Second); err != nil {
		return fmt.Errorf("pre-submit drain: %w", err)
	}
	if err := gw.InsertOrder(ctx, req, req.OrderID); err != nil {
		return err
	}
	_, err := gw.Drain(ctx, time.Second)
	return err
}

// NewOrderID generates a fresh order identifier for submit requests that
// arrive without one.
func NewOrderID() string { return uuid.NewString() }
