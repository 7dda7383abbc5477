package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tqsdk-broker-bridge/internal/model"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// InsertOrder inserts a brand-new order row. Used by the Submitter before
// it ever talks to the broker (SPEC_FULL.md §5, ordering guarantee).
func (s *Store) InsertOrder(ctx context.Context, o model.Order) error {
	q := s.rebind(`
		INSERT INTO orders (order_id, portfolio_id, exchange_order_id, exchange_id,
			instrument_id, direction, offset_flag, limit_price, volume_orign,
			volume_left, status, last_msg, insert_date_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.DB.ExecContext(ctx, q,
		o.OrderID, o.PortfolioID, o.ExchangeOrderID, o.ExchangeID,
		o.InstrumentID, o.Direction, o.Offset, o.LimitPrice.String(), o.VolumeOrign,
		o.VolumeLeft, o.Status, o.LastMsg, o.InsertDateTime)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	return nil
}

// UpsertOrderMonotonic applies an order-monitor update idempotently: the
// update is only written if it does not regress filled volume (i.e.
// VolumeLeft may only stay the same or decrease versus what is already
// persisted). A missing row is inserted outright. Returns applied=false
// when the update was dropped as stale.
func (s *Store) UpsertOrderMonotonic(ctx context.Context, o model.Order) (applied bool, err error) {
	existing, err := s.GetOrder(ctx, o.OrderID)
	if errors.Is(err, ErrNotFound) {
		if err := s.InsertOrder(ctx, o); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if o.VolumeLeft > existing.VolumeLeft {
		// Stale out-of-order update: the order has already filled more
		// than this message reflects. Drop it.
		return false, nil
	}

	q := s.rebind(`
		UPDATE orders SET exchange_order_id = ?, exchange_id = ?, volume_left = ?,
			status = ?, last_msg = ?, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?
	`)
	_, err = s.DB.ExecContext(ctx, q, o.ExchangeOrderID, o.ExchangeID, o.VolumeLeft, o.Status, o.LastMsg, o.OrderID)
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", o.OrderID, err)
	}
	return true, nil
}

// GetOrder loads one order by id.
func (s *Store) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	q := s.rebind(`
		SELECT order_id, portfolio_id, exchange_order_id, exchange_id, instrument_id,
			direction, offset_flag, limit_price, volume_orign, volume_left, status,
			last_msg, insert_date_time
		FROM orders WHERE order_id = ?
	`)
	row := s.DB.QueryRowContext(ctx, q, orderID)

	var o model.Order
	var limitPrice string
	var exchangeOrderID, exchangeID, lastMsg sql.NullString
	err := row.Scan(&o.OrderID, &o.PortfolioID, &exchangeOrderID, &exchangeID, &o.InstrumentID,
		&o.Direction, &o.Offset, &limitPrice, &o.VolumeOrign, &o.VolumeLeft, &o.Status,
		&lastMsg, &o.InsertDateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	o.ExchangeOrderID = exchangeOrderID.String
	o.ExchangeID = exchangeID.String
	o.LastMsg = lastMsg.String
	if err := o.LimitPrice.UnmarshalText([]byte(limitPrice)); err != nil {
		return model.Order{}, fmt.Errorf("parse limit_price for %s: %w", orderID, err)
	}
	return o, nil
}

// InsertTrade inserts a trade row, deduplicating by trade_id.
func (s *Store) InsertTrade(ctx context.Context, t model.Trade) error {
	q := s.rebind(ignoreConflictSQL(`
		INSERT INTO trades (trade_id, order_id, portfolio_id, exchange_trade_id,
			exchange_id, instrument_id, direction, offset_flag, price, volume,
			commission, trade_date_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, "trade_id"))
	_, err := s.DB.ExecContext(ctx, q,
		t.TradeID, t.OrderID, t.PortfolioID, t.ExchangeTradeID, t.ExchangeID,
		t.InstrumentID, t.Direction, t.Offset, t.Price.String(), t.Volume,
		t.Commission.String(), t.TradeDateTime)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

// InsertOrderEvent appends one audit row for an order state change.
func (s *Store) InsertOrderEvent(ctx context.Context, orderID, portfolioID string, eventType model.OrderEventType, status model.OrderStatus, volumeLeft int) error {
	q := s.rebind(`
		INSERT INTO order_events (order_id, portfolio_id, event_type, status, volume_left)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := s.DB.ExecContext(ctx, q, orderID, portfolioID, eventType, status, volumeLeft)
	if err != nil {
		return fmt.Errorf("insert order event for %s: %w", orderID, err)
	}
	return nil
}

// AliveOrderIDs returns the IDs of the orders persisted with status ALIVE
// for a portfolio.
func (s *Store) AliveOrderIDs(ctx context.Context, portfolioID string) ([]string, error) {
	q := s.rebind(`SELECT order_id FROM orders WHERE portfolio_id = ? AND status = ?`)
	rows, err := s.DB.QueryContext(ctx, q, portfolioID, model.OrderStatusAlive)
	if err != nil {
		return nil, fmt.Errorf("query alive orders for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan alive order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
