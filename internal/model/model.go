// Package model defines the wire and storage representation of every
// entity the bridge moves between the strategy engine, the broker session,
// the cache and the relational store.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the buy/sell side of an order or trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Offset distinguishes opening a position from closing one, and (for
// exchanges in constants.CloseTodayExchanges) closing today's volume from
// closing historical volume.
type Offset string

const (
	OffsetOpen        Offset = "OPEN"
	OffsetClose       Offset = "CLOSE"
	OffsetCloseToday  Offset = "CLOSETODAY"
	OffsetCloseHistory Offset = "CLOSE"
)

// OrderStatus is the broker-reported lifecycle state. ALIVE orders may
// still receive fills or be canceled; FINISHED is terminal.
type OrderStatus string

const (
	OrderStatusAlive    OrderStatus = "ALIVE"
	OrderStatusFinished OrderStatus = "FINISHED"
)

// OrderEventType classifies a change observed between two order snapshots.
type OrderEventType string

const (
	OrderEventNew          OrderEventType = "NEW"
	OrderEventPartialFill  OrderEventType = "PARTIAL_FILL"
	OrderEventCompleteFill OrderEventType = "COMPLETE_FILL"
	OrderEventCanceled     OrderEventType = "CANCELED"
)

// OrderRequest is the inbound submit command consumed from the external
// orders exchange. Cancel commands use OrderCancelRequest.
type OrderRequest struct {
	OrderID     string          `json:"order_id"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	Offset      Offset          `json:"offset"`
	Volume      int             `json:"volume"`
	LimitPrice  *decimal.Decimal `json:"limit_price,omitempty"`
	// Timestamp is the order's origin time, set by the upstream caller.
	// The age check measures from this, not from when the bridge happened
	// to receive it.
	Timestamp time.Time `json:"timestamp"`
}

// CancelType selects which orders a cancel request targets.
type CancelType string

const (
	CancelByOrderID     CancelType = "order_id"
	CancelByContractCode CancelType = "contract_code"
	CancelAll           CancelType = "all"
)

// OrderCancelRequest is the inbound cancel command.
type OrderCancelRequest struct {
	OrderID      string     `json:"order_id,omitempty"`
	CancelType   CancelType `json:"cancel_type"`
	ContractCode string     `json:"contract_code,omitempty"`
	PortfolioID  string     `json:"portfolio_id"`
}

// Order is the persisted and broadcast representation of a single broker
// order, keyed by OrderID (which may carry a "_closetoday"/"_close"
// suffix for a split child order).
type Order struct {
	OrderID         string          `json:"order_id"`
	PortfolioID     string          `json:"portfolio_id"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	ExchangeID      string          `json:"exchange_id,omitempty"`
	InstrumentID    string          `json:"instrument_id"`
	Direction       Direction       `json:"direction"`
	Offset          Offset          `json:"offset"`
	LimitPrice      decimal.Decimal `json:"limit_price"`
	VolumeOrign     int             `json:"volume_orign"`
	VolumeLeft      int             `json:"volume_left"`
	Status          OrderStatus     `json:"status"`
	InsertDateTime  time.Time       `json:"insert_date_time"`
	LastMsg         string          `json:"last_msg,omitempty"`
}

// IsFinished reports whether the order can no longer change.
func (o Order) IsFinished() bool { return o.Status == OrderStatusFinished }

// Trade is a single fill, unique by TradeID.
type Trade struct {
	TradeID          string          `json:"trade_id"`
	OrderID          string          `json:"order_id"`
	PortfolioID      string          `json:"portfolio_id"`
	ExchangeTradeID  string          `json:"exchange_trade_id,omitempty"`
	ExchangeID       string          `json:"exchange_id,omitempty"`
	InstrumentID     string          `json:"instrument_id"`
	Direction        Direction       `json:"direction"`
	Offset           Offset          `json:"offset"`
	Price            decimal.Decimal `json:"price"`
	Volume           int             `json:"volume"`
	Commission       decimal.Decimal `json:"commission"`
	TradeDateTime    time.Time       `json:"trade_date_time"`
}

// FullPosition is the seven-field position schema cached per portfolio and
// symbol, and the schema the Reconciler and Handlers both write against
// (see SPEC_FULL.md §9 on the resolved duplicate-schema question).
type FullPosition struct {
	PosLong       int `json:"pos_long"`
	PosShort      int `json:"pos_short"`
	Pos           int `json:"pos"`
	PosLongToday  int `json:"pos_long_today"`
	PosLongHis    int `json:"pos_long_his"`
	PosShortToday int `json:"pos_short_today"`
	PosShortHis   int `json:"pos_short_his"`
}

// Zero reports whether every field of the position is zero.
func (p FullPosition) Zero() bool {
	return p == FullPosition{}
}

// Equals is an explicit field-wise comparison (positions are plain ints,
// so == would already work, but this keeps the intent visible at call
// sites that compare broker-reported vs cached state).
func (p FullPosition) Equals(other FullPosition) bool {
	return p == other
}

// PositionUpdate is the broadcast envelope for a position change.
type PositionUpdate struct {
	Type        string       `json:"type"`
	Timestamp   time.Time    `json:"timestamp"`
	PortfolioID string       `json:"portfolio_id"`
	Symbol      string       `json:"symbol"`
	Position    FullPosition `json:"position"`
}

// Account is the account-level snapshot cached per portfolio.
type Account struct {
	Balance        decimal.Decimal `json:"balance"`
	Available      decimal.Decimal `json:"available"`
	Margin         decimal.Decimal `json:"margin"`
	RiskRatio      decimal.Decimal `json:"risk_ratio"`
	PositionProfit decimal.Decimal `json:"position_profit"`
}

// AccountUpdate is the broadcast envelope for an account change.
type AccountUpdate struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	PortfolioID string    `json:"portfolio_id"`
	Account     Account   `json:"account"`
}

// UniverseSymbol is one broker-tradable instrument the Reconciler must
// guarantee a (possibly zero) cached position for.
type UniverseSymbol struct {
	ProductID    string
	ContractCode string
	BrokerSymbol string
	Exchange     string
}
