package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/metrics"
)

// Runner wires the replay engine to the store and its result cache.
type Runner struct {
	store *db.DB
	ttl   time.Duration
	log   zerolog.Logger
}

// NewRunner builds a runner caching results for ttl.
func NewRunner(store *db.DB, ttl time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		store: store,
		ttl:   ttl,
		log:   log.With().Str("component", "backtest").Logger(),
	}
}

// Run replays the leader's history under settings, serving an exact
// settings match from the cache when one is fresh.
func (r *Runner) Run(ctx context.Context, settings Settings) (*Result, error) {
	settings.Normalize()
	key := settings.Hash()
	now := time.Now()

	raw, err := r.store.GetBacktestCache(ctx, key, now)
	switch {
	case err == nil:
		var cached Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			r.log.Debug().Str("leader", settings.Leader).Msg("Backtest cache hit")
			metrics.BacktestRuns.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		r.log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cached backtest")
	case !errors.Is(err, db.ErrNotFound):
		r.log.Warn().Err(err).Msg("Backtest cache lookup failed")
	}

	bets, err := r.store.GetBetsInRange(ctx, settings.Leader, settings.Start, settings.End)
	if err != nil {
		return nil, err
	}

	result := Run(settings, bets, now)
	metrics.BacktestRuns.WithLabelValues("miss").Inc()

	if encoded, err := json.Marshal(result); err == nil {
		if err := r.store.PutBacktestCache(ctx, key, settings.Leader,
			settings.Start, settings.End, encoded, r.ttl, now); err != nil {
			r.log.Warn().Err(err).Msg("Failed to cache backtest result")
		}
	}
	return result, nil
}
