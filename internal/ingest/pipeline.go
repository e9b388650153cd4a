// Package ingest connects the adapter layer to the store and the event
// bus: live bets flow in through subscriptions, get persisted under their
// natural keys, and fan out as BET_DETECTED events. Resolution marking
// settles bets, rolls up per-trader stats, and recomputes TruthScores.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/adapters"
	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/cache"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/metrics"
	"github.com/truthplane/engine/internal/models"
	"github.com/truthplane/engine/internal/scoring"
)

// Pipeline owns the adapter subscriptions and the write path.
type Pipeline struct {
	store    *db.DB
	cache    *cache.Cache // nil disables score caching
	bus      *bus.Bus
	registry *adapters.Registry
	log      zerolog.Logger

	mu        sync.Mutex
	disposers []adapters.Disposer
}

// New builds the pipeline. cache may be nil.
func New(store *db.DB, c *cache.Cache, b *bus.Bus, registry *adapters.Registry, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		cache:    c,
		bus:      b,
		registry: registry,
		log:      log,
	}
}

// Start initializes every adapter and opens its live subscription. A venue
// that fails to initialize is logged and skipped; it never blocks the rest.
func (p *Pipeline) Start(ctx context.Context) {
	for _, a := range p.registry.All() {
		adapter := a
		if err := adapter.Initialize(ctx); err != nil {
			p.log.Warn().Err(err).Str("platform", string(adapter.Platform())).
				Msg("Adapter failed to initialize, skipping subscription")
			metrics.AdapterErrors.WithLabelValues(string(adapter.Platform())).Inc()
			_ = p.store.RecordSyncError(ctx, adapter.Platform(), err.Error())
			continue
		}

		dispose, err := adapter.Subscribe(func(bet *models.Bet) {
			p.HandleBet(ctx, bet)
		})
		if err != nil {
			p.log.Warn().Err(err).Str("platform", string(adapter.Platform())).
				Msg("Adapter subscription failed")
			metrics.AdapterErrors.WithLabelValues(string(adapter.Platform())).Inc()
			continue
		}

		p.mu.Lock()
		p.disposers = append(p.disposers, dispose)
		p.mu.Unlock()
		metrics.ActiveAdapters.Inc()
		p.log.Info().Str("platform", string(adapter.Platform())).Msg("Adapter subscribed")
	}
}

// Stop disposes every live subscription.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, dispose := range p.disposers {
		dispose()
		metrics.ActiveAdapters.Dec()
	}
	p.disposers = nil
}

// HandleBet persists one canonical bet and emits BET_DETECTED for new rows.
// Duplicate deliveries are absorbed by the natural-key upsert, so replays
// never double-emit.
func (p *Pipeline) HandleBet(ctx context.Context, bet *models.Bet) {
	if err := p.store.UpsertUser(ctx, bet.Trader, bet.Timestamp); err != nil {
		p.log.Error().Err(err).Str("trader", bet.Trader).Msg("Failed to upsert user")
		return
	}

	inserted, err := p.store.InsertBet(ctx, bet)
	if err != nil {
		p.log.Error().Err(err).Str("key", bet.NaturalKey()).Msg("Failed to insert bet")
		return
	}
	if !inserted {
		return
	}

	_ = p.store.UpdateSyncStatus(ctx, bet.Platform, bet.BlockNumber, 1, time.Now())
	metrics.BetsIngested.WithLabelValues(string(bet.Platform)).Inc()
	p.bus.Emit(bus.EventBetDetected, bet)
}

// Backfill replays a historical range through the same write path.
func (p *Pipeline) Backfill(ctx context.Context, platform models.Platform, from, to uint64) error {
	adapter, ok := p.registry.Get(platform)
	if !ok {
		return db.ErrNotFound
	}
	return adapter.Backfill(ctx, from, to, func(bet *models.Bet) {
		p.HandleBet(ctx, bet)
	})
}

// ResolveMarket settles every bet on a resolved market, refreshes the
// affected traders' stats and scores, and emits ROUND_ENDED. A nil winner
// (draw or void) settles all bets as pushes.
func (p *Pipeline) ResolveMarket(ctx context.Context, platform models.Platform, marketID string, outcome models.Outcome) error {
	if err := p.store.ResolveMarket(ctx, platform, marketID, outcome); err != nil {
		return err
	}

	bets, err := p.store.GetBetsForMarket(ctx, platform, marketID)
	if err != nil {
		return err
	}

	touched := make(map[string]struct{})
	for _, bet := range bets {
		won := outcome.Settle(bet.Direction)
		if err := p.store.SettleBet(ctx, bet.NaturalKey(), won, nil); err != nil {
			p.log.Error().Err(err).Str("key", bet.NaturalKey()).Msg("Failed to settle bet")
			continue
		}
		touched[bet.Trader] = struct{}{}
	}

	for trader := range touched {
		if err := p.RefreshTrader(ctx, trader, platform); err != nil {
			p.log.Error().Err(err).Str("trader", trader).Msg("Failed to refresh trader stats")
		}
	}

	p.bus.Emit(bus.EventRoundEnded, map[string]interface{}{
		"platform":  platform,
		"market_id": marketID,
		"winner":    outcome.Winner,
	})
	return nil
}

// RefreshTrader recomputes one trader's per-platform rollup and unified
// TruthScore from their stored bets, then invalidates the cached score.
func (p *Pipeline) RefreshTrader(ctx context.Context, address string, platform models.Platform) error {
	bets, err := p.store.GetBetsForTrader(ctx, address, platform, 0)
	if err != nil {
		return err
	}

	stats := BuildStats(address, platform, bets)
	stats.Score = scoring.PlatformScore(stats)
	if err := p.store.UpsertUserStats(ctx, stats); err != nil {
		return err
	}

	all, err := p.store.GetUserStats(ctx, address)
	if err != nil {
		return err
	}
	ts := scoring.Compute(address, all, time.Now())
	if err := p.store.UpdateUserScore(ctx, ts); err != nil {
		return err
	}

	if p.cache != nil {
		if err := p.cache.InvalidateScore(ctx, address); err != nil {
			p.log.Warn().Err(err).Str("trader", address).Msg("Failed to invalidate cached score")
		}
	}
	return nil
}

// BuildStats derives the per-(trader, platform) rollup from raw bets.
// Pending bets count toward totals and volume but not the win rate.
func BuildStats(address string, platform models.Platform, bets []*models.Bet) *models.UserStats {
	stats := &models.UserStats{
		Address:  models.NormalizeAddress(address),
		Platform: platform,
		Volume:   decimal.Zero,
	}
	for _, bet := range bets {
		stats.TotalBets++
		stats.Volume = stats.Volume.Add(bet.Amount)
		switch {
		case bet.Won == nil:
			stats.Pending++
		case *bet.Won:
			stats.Wins++
		default:
			stats.Losses++
		}
		if stats.FirstBetAt.IsZero() || bet.Timestamp.Before(stats.FirstBetAt) {
			stats.FirstBetAt = bet.Timestamp
		}
		if bet.Timestamp.After(stats.LastBetAt) {
			stats.LastBetAt = bet.Timestamp
		}
	}
	stats.WinRate = scoring.WinRate(stats.Wins, stats.Losses)
	if stats.Resolved() == 0 {
		stats.WinRate = 0
	}
	return stats
}
