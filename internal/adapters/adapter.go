// Package adapters contains the per-venue ingestion layer. Every venue,
// on-chain or REST, is hidden behind the same Adapter contract and emits
// canonical bets: 18-dec integer amounts, lowercase addresses, bull/bear
// directions.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/truthplane/engine/internal/models"
)

// BetHandler receives canonical bets from backfills and subscriptions.
type BetHandler func(*models.Bet)

// Disposer stops a live subscription. Safe to call more than once.
type Disposer func()

// Adapter is the uniform capability set every venue implements.
type Adapter interface {
	// Platform identifies the venue.
	Platform() models.Platform

	// Initialize verifies connectivity: chain-id check for EVM venues, a
	// probe request for REST venues. Idempotent.
	Initialize(ctx context.Context) error

	// CurrentSequence is the freshness probe: chain head for on-chain
	// venues, current epoch or a server timestamp for the rest.
	CurrentSequence(ctx context.Context) (uint64, error)

	// GetBetsForUser returns a user's bets since the cutoff. API-first;
	// venues with on-chain primitives fall back to event logs when the API
	// returns nothing.
	GetBetsForUser(ctx context.Context, address string, since time.Time) ([]*models.Bet, error)

	// GetBetsForMarket returns every bet on one market.
	GetBetsForMarket(ctx context.Context, marketID string) ([]*models.Bet, error)

	// GetTraderBets returns a trader's most recent bets.
	GetTraderBets(ctx context.Context, address string, limit int) ([]*models.Bet, error)

	// GetRecentBets returns venue-wide bets inside the window.
	GetRecentBets(ctx context.Context, window time.Duration, limit int) ([]*models.Bet, error)

	// GetMarketOutcome returns the resolution state. Winner stays nil for
	// draws and voided rounds.
	GetMarketOutcome(ctx context.Context, marketID string) (models.Outcome, error)

	// GetActiveMarkets returns open markets, largest first.
	GetActiveMarkets(ctx context.Context, limit int) ([]*models.Market, error)

	// IsMarketActive reports whether a market still accepts bets.
	IsMarketActive(ctx context.Context, marketID string) (bool, error)

	// Backfill streams historical bets between two sequence points in
	// chunks. Restartable from any fromBlock.
	Backfill(ctx context.Context, fromBlock, toBlock uint64, onBet BetHandler) error

	// Subscribe starts a live feed and returns its disposer. A lost
	// connection never crashes the process; reconnection is the caller's
	// policy.
	Subscribe(onBet BetHandler) (Disposer, error)
}

// Registry holds the configured adapters keyed by platform.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Platform]Adapter)}
}

// Register adds an adapter. Registering the same platform twice is a
// programming error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Platform()]; ok {
		return fmt.Errorf("adapter for %s already registered", a.Platform())
	}
	r.adapters[a.Platform()] = a
	return nil
}

// Get returns the adapter for a platform.
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// All returns every registered adapter in platform order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Platform() < out[j].Platform()
	})
	return out
}
