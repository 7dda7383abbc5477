// Package universe loads the set of broker-tradable symbols the Position
// Reconciler must guarantee a cached entry for, refreshed on an interval
// rather than on every cycle (SPEC_FULL.md §4.7).
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
)

// Loader loads the universe from product_info/contract_info and caches
// the result in memory for constants.UniverseRefreshInterval.
type Loader struct {
	db *sql.DB

	mu        sync.Mutex
	symbols   []model.UniverseSymbol
	loadedAt  time.Time
}

// NewLoader returns a Loader backed by db.
func NewLoader(db *sql.DB) *Loader { return &Loader{db: db} }

// Load returns the cached universe, refreshing it from the store if the
// cache is older than constants.UniverseRefreshInterval.
func (l *Loader) Load(ctx context.Context) ([]model.UniverseSymbol, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.loadedAt) < constants.UniverseRefreshInterval && l.symbols != nil {
		return l.symbols, nil
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT p.product_id, c.contract_code, c.broker_symbol, c.exchange
		FROM product_info p
		JOIN contract_info c ON c.contract_code IN (p.current_main, p.next_main)
	`)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	defer rows.Close()

	var out []model.UniverseSymbol
	for rows.Next() {
		var u model.UniverseSymbol
		if err := rows.Scan(&u.ProductID, &u.ContractCode, &u.BrokerSymbol, &u.Exchange); err != nil {
			return nil, fmt.Errorf("scan universe row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universe rows: %w", err)
	}

	l.symbols = out
	l.loadedAt = time.Now()
	return out, nil
}

// Invalidate forces the next Load to re-query the store.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadedAt = time.Time{}
}
