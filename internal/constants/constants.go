// Package constants holds the fixed values the bridge is tuned against:
// queue/exchange names, routing keys, cache key patterns and timing
// thresholds. Keeping them here instead of scattering literals gives every
// service the same numbers without importing each other.
package constants

import "time"

// Bus topology.
const (
	ExternalOrdersExchange = "tq_order_request_exchange"
	InternalEventsExchange = "tq_internal_exchange"

	OrderSubmitQueue = "tq_order_submit_requests"
	OrderCancelQueue = "tq_order_cancel_requests"

	OrderUpdatesQueue   = "tq_internal_order_updates"
	AccountUpdatesQueue = "tq_internal_account_updates"
	PositionUpdatesQueue = "tq_internal_position_updates"

	RoutingKeyOrderUpdates    = "order_updates"
	RoutingKeyAccountUpdates  = "account_updates"
	RoutingKeyPositionUpdates = "position_updates"
)

// OrderRoutingKey builds the per-portfolio topic routing key used on the
// external.orders exchange.
func OrderRoutingKey(portfolioID string) string {
	return "PortfolioId_" + portfolioID
}

// Cache key patterns (see internal/cache).
const (
	PositionKeyPrefix = "TQ_Position_PortfolioId_"
	AccountKeyPrefix  = "TQ_Account_PortfolioId_"
)

// TTLs and timing thresholds, all drawn from the bridge's original tuning.
const (
	PositionTTL = 15 * time.Second
	AccountTTL  = 3600 * time.Second

	OrderExpireAllowMax = 5 * time.Second

	PositionLoopInterval = 5 * time.Second

	UniverseRefreshInterval = 1800 * time.Second

	SessionEndBuffer = 15 * time.Second

	BlockCounterMax = 3

	HandoffQueueCapacity = 100
)

// CloseTodayExchanges lists the exchanges that distinguish today's
// open-volume from historical open-volume on close orders (CLOSETODAY vs
// CLOSE), and therefore require the order submitter's close-split stage.
var CloseTodayExchanges = map[string]bool{
	"SHFE": true,
	"INE":  true,
}

// TradingSession is a half-open [Open, Close) window expressed as offsets
// from local midnight, Asia/Shanghai.
type TradingSession struct {
	Open  time.Duration
	Close time.Duration
}

// TradingSessions are the three daytime windows the futures market trades
// in. Night session is intentionally out of scope (see spec Non-goals).
var TradingSessions = []TradingSession{
	{Open: 9 * time.Hour, Close: 10*time.Hour + 15*time.Minute},
	{Open: 10*time.Hour + 30*time.Minute, Close: 11*time.Hour + 30*time.Minute},
	{Open: 13*time.Hour + 30*time.Minute, Close: 15 * time.Hour},
}

// ShanghaiLocation is the timezone every session boundary is evaluated in.
func ShanghaiLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}
