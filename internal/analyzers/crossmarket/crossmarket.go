// Package crossmarket fuses same-topic markets across venues into a single
// probability with a confidence grade. Two platforms pricing the same
// question is the closest thing to a cross-checked forecast the engine can
// produce.
package crossmarket

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/analyzers/trends"
	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/cache"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
)

// minConfidence drops fusions too weak to act on.
const minConfidence = 20

// Fuser runs the fusion cycle on a timer.
type Fuser struct {
	store *db.DB
	cache *cache.Cache // nil disables the strongest-signals cache page
	bus   *bus.Bus
	cfg   config.CrossConfig
	log   zerolog.Logger
}

// New builds the fuser. c may be nil.
func New(store *db.DB, c *cache.Cache, b *bus.Bus, cfg config.CrossConfig, log zerolog.Logger) *Fuser {
	return &Fuser{
		store: store,
		cache: c,
		bus:   b,
		cfg:   cfg,
		log:   log.With().Str("analyzer", "cross_market").Logger(),
	}
}

// Start blocks running fusion cycles until ctx is cancelled.
func (f *Fuser) Start(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := f.Cycle(ctx, time.Now()); err != nil {
			f.log.Error().Err(err).Msg("Cross-market cycle failed")
		}
	}
}

// Cycle clusters active markets by topic and fuses every cluster spanning
// at least two venues.
func (f *Fuser) Cycle(ctx context.Context, now time.Time) error {
	markets, err := f.store.GetAllActiveMarkets(ctx)
	if err != nil {
		return err
	}

	for topic, cluster := range trends.Cluster(markets) {
		signal := Fuse(topic, cluster, f.cfg.SignalTTL, now)
		if signal == nil {
			continue
		}
		if err := f.store.UpsertCrossSignal(ctx, signal); err != nil {
			f.log.Error().Err(err).Str("topic", topic).Msg("Failed to persist cross signal")
			continue
		}
		f.bus.Emit(bus.EventCrossSignal, signal)
	}

	if f.cache != nil {
		rows, err := f.store.GetActiveCrossSignals(ctx, now, 100)
		if err != nil {
			return err
		}
		if err := f.cache.SetStrongestCrossSignals(ctx, rows, f.cfg.CycleInterval); err != nil {
			f.log.Warn().Err(err).Msg("Failed to cache strongest cross signals")
		}
	}
	return nil
}

// Fuse folds one topic cluster into a cross-platform signal, or nil when the
// cluster spans fewer than two venues, carries no volume, or fuses below the
// confidence floor. Each venue contributes its highest-volume market's YES
// probability, weighted by that market's volume.
func Fuse(topic string, cluster []*models.Market, ttl time.Duration, now time.Time) *models.CrossPlatformSignal {
	best := make(map[models.Platform]*models.Market)
	for _, m := range cluster {
		if cur, ok := best[m.Platform]; !ok || m.VolumeUSD > cur.VolumeUSD {
			best[m.Platform] = m
		}
	}
	if len(best) < 2 {
		return nil
	}

	picks := make([]models.PlatformSignal, 0, len(best))
	var weightedSum, totalVolume float64
	for platform, m := range best {
		picks = append(picks, models.PlatformSignal{
			Platform:       platform,
			MarketID:       m.ID,
			ProbabilityBps: m.YesPriceBps,
			VolumeUSD:      m.VolumeUSD,
		})
		weightedSum += float64(m.YesPriceBps) / 10_000 * m.VolumeUSD
		totalVolume += m.VolumeUSD
	}
	if totalVolume <= 0 {
		return nil
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].VolumeUSD > picks[j].VolumeUSD })

	p := weightedSum / totalVolume

	avgDeviation := 0.0
	for _, pick := range picks {
		avgDeviation += math.Abs(float64(pick.ProbabilityBps)/10_000 - p)
	}
	avgDeviation /= float64(len(picks))

	confidence := math.Floor(
		math.Abs(p-0.5)*2*40 +
			math.Max(0, 30-avgDeviation*60) +
			math.Min(float64(len(picks))*10, 30))
	if confidence < minConfidence {
		return nil
	}

	return &models.CrossPlatformSignal{
		Topic:          topic,
		Consensus:      consensusFor(p, confidence),
		Confidence:     int(confidence),
		ProbabilityBps: int64(math.Round(p * 10_000)),
		Platforms:      picks,
		TotalVolume:    totalVolume,
		MarketCount:    len(cluster),
		GeneratedAt:    now,
		ExpiresAt:      now.Add(ttl),
	}
}

func consensusFor(p, confidence float64) models.CrossConsensus {
	switch {
	case p >= 0.75 && confidence >= 60:
		return models.CrossStrongYes
	case p <= 0.25 && confidence >= 60:
		return models.CrossStrongNo
	case p >= 0.55:
		return models.CrossLeanYes
	case p <= 0.45:
		return models.CrossLeanNo
	default:
		return models.CrossMixed
	}
}
