// Package reconciler implements the Position Reconciler from
// SPEC_FULL.md §4.4: an interval-gated loop that walks the broker's
// position book and the tracked universe, keeping the cache in sync with
// the broker (the broker is always the source of truth on mismatch).
package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tqsdk-broker-bridge/internal/broker"
	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
)

// Cache is the subset of internal/cache.Cache the reconciler needs.
type Cache interface {
	GetPosition(ctx context.Context, portfolioID, symbol string) (model.FullPosition, bool, error)
	SetPosition(ctx context.Context, portfolioID, symbol string, p model.FullPosition) error
	RefreshPositionTTL(ctx context.Context, portfolioID, symbol string) error
}

// Universe is the subset of internal/universe.Loader the reconciler
// needs.
type Universe interface {
	Load(ctx context.Context) ([]model.UniverseSymbol, error)
}

// Reconciler runs the interval-gated reconciliation cycle.
type Reconciler struct {
	Cache       Cache
	Universe    Universe
	PortfolioID string
	Interval    time.Duration
	Logger      zerolog.Logger
	Now         func() time.Time

	lastRun time.Time
}

func (r *Reconciler) interval() time.Duration {
	if r.Interval > 0 {
		return r.Interval
	}
	return constants.PositionLoopInterval
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Tick is wired as a skeleton.Service's OnTick; it runs a reconciliation
// cycle only if at least Interval has elapsed since the last one.
func (r *Reconciler) Tick(ctx context.Context, gw broker.Gateway) {
	now := r.now()
	if !r.lastRun.IsZero() && now.Sub(r.lastRun) < r.interval() {
		return
	}
	r.lastRun = now
	r.reconcileCycle(ctx, gw)
}

func (r *Reconciler) reconcileCycle(ctx context.Context, gw broker.Gateway) {
	universe, err := r.Universe.Load(ctx)
	if err != nil {
		r.Logger.Error().Err(err).Msg("reconciler: failed to load universe")
		universe = nil
	}

	processed := make(map[string]bool)
	for symbol, pos := range gw.Positions() {
		r.reconcilePosition(ctx, symbol, pos)
		processed[symbol] = true
	}

	for _, sym := range universe {
		if processed[sym.BrokerSymbol] {
			continue
		}
		r.ensurePositionExists(ctx, sym.BrokerSymbol)
	}
}

// reconcilePosition applies the no-value/equal/mismatch branches from
// SPEC_FULL.md §4.4: missing cache entry gets the broker value; an equal
// entry just has its TTL refreshed; a mismatched entry is overwritten
// since the broker is authoritative.
func (r *Reconciler) reconcilePosition(ctx context.Context, symbol string, live model.FullPosition) {
	cached, ok, err := r.Cache.GetPosition(ctx, r.PortfolioID, symbol)
	if err != nil {
		r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: cache read failed")
		return
	}
	if !ok {
		if err := r.Cache.SetPosition(ctx, r.PortfolioID, symbol, live); err != nil {
			r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: cache write failed")
		}
		return
	}
	if cached.Equals(live) {
		if err := r.Cache.RefreshPositionTTL(ctx, r.PortfolioID, symbol); err != nil {
			r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: ttl refresh failed")
		}
		return
	}
	r.Logger.Warn().Str("symbol", symbol).Interface("cached", cached).Interface("broker", live).
		Msg("reconciler: cache diverged from broker, overwriting")
	if err := r.Cache.SetPosition(ctx, r.PortfolioID, symbol, live); err != nil {
		r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: cache overwrite failed")
	}
}

// ensurePositionExists backstops universe symbols the broker reported no
// position for at all: absent cache entries get a zero position, present
// ones just have their TTL refreshed.
func (r *Reconciler) ensurePositionExists(ctx context.Context, symbol string) {
	_, ok, err := r.Cache.GetPosition(ctx, r.PortfolioID, symbol)
	if err != nil {
		r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: cache read failed")
		return
	}
	if !ok {
		if err := r.Cache.SetPosition(ctx, r.PortfolioID, symbol, model.FullPosition{}); err != nil {
			r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: zero-position write failed")
		}
		return
	}
	if err := r.Cache.RefreshPositionTTL(ctx, r.PortfolioID, symbol); err != nil {
		r.Logger.Error().Err(err).Str("symbol", symbol).Msg("reconciler: ttl refresh failed")
	}
}
