// Package smartmoney aggregates the live bets of top-ranked traders into a
// tier-weighted consensus signal per round. The tracked set is rebuilt from
// the leaderboard on a timer and swapped atomically, so the hot path never
// touches the store.
package smartmoney

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/cache"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/metrics"
	"github.com/truthplane/engine/internal/models"
)

type roundKey struct {
	Platform models.Platform
	Epoch    int64
}

// Aggregator watches BET_DETECTED events for tracked traders and maintains
// one SmartMoneySignal per open round.
type Aggregator struct {
	store *db.DB
	cache *cache.Cache // nil disables signal caching
	bus   *bus.Bus
	cfg   config.SmartMoneyConfig
	log   zerolog.Logger

	tracked atomic.Value // map[string]models.Tier

	mu     sync.Mutex
	rounds map[roundKey]map[string]models.SignalBet // latest bet per trader

	subs []*bus.Subscription
}

// New builds the aggregator. cache may be nil.
func New(store *db.DB, c *cache.Cache, b *bus.Bus, cfg config.SmartMoneyConfig, log zerolog.Logger) *Aggregator {
	a := &Aggregator{
		store:  store,
		cache:  c,
		bus:    b,
		cfg:    cfg,
		log:    log.With().Str("analyzer", "smart_money").Logger(),
		rounds: make(map[roundKey]map[string]models.SignalBet),
	}
	a.tracked.Store(map[string]models.Tier{})
	return a
}

// Start loads the tracked set, subscribes to the bus, and blocks refreshing
// the set until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) {
	if err := a.RefreshTracked(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Initial tracked-trader load failed")
	}

	a.subs = append(a.subs,
		a.bus.Subscribe(bus.EventBetDetected, a.onBet),
		a.bus.Subscribe(bus.EventRoundEnded, a.onRoundEnded),
	)
	defer func() {
		for _, s := range a.subs {
			s.Unsubscribe()
		}
	}()

	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RefreshTracked(ctx); err != nil {
				a.log.Warn().Err(err).Msg("Tracked-trader refresh failed")
			}
		}
	}
}

// RefreshTracked rebuilds the tracked set from the leaderboard and swaps it
// in atomically.
func (a *Aggregator) RefreshTracked(ctx context.Context) error {
	rows, err := a.store.GetLeaderboard(ctx, a.cfg.TrackedTraders)
	if err != nil {
		return err
	}
	next := make(map[string]models.Tier, len(rows))
	for _, r := range rows {
		next[models.NormalizeAddress(r.Address)] = r.Tier
	}
	a.tracked.Store(next)
	a.log.Debug().Int("tracked", len(next)).Msg("Tracked-trader set refreshed")
	return nil
}

// Tracked reports whether an address is in the current tracked set.
func (a *Aggregator) Tracked(address string) (models.Tier, bool) {
	set := a.tracked.Load().(map[string]models.Tier)
	tier, ok := set[models.NormalizeAddress(address)]
	return tier, ok
}

func (a *Aggregator) onBet(ev bus.Event) {
	bet, ok := ev.Payload.(*models.Bet)
	if !ok {
		return
	}
	tier, tracked := a.Tracked(bet.Trader)
	if !tracked {
		return
	}

	sb := models.SignalBet{
		Trader:    bet.Trader,
		Tier:      tier,
		Amount:    bet.Amount,
		Direction: bet.Direction,
		Weight:    BetWeight(tier, bet.Amount),
	}
	key := roundKey{Platform: bet.Platform, Epoch: EpochFor(bet.MarketID)}

	a.mu.Lock()
	round := a.rounds[key]
	if round == nil {
		round = make(map[string]models.SignalBet)
		a.rounds[key] = round
	}
	round[bet.Trader] = sb // a later bet replaces the trader's earlier one
	bets := make([]models.SignalBet, 0, len(round))
	for _, b := range round {
		bets = append(bets, b)
	}
	a.mu.Unlock()

	a.bus.Emit(bus.EventSmartMoneyMove, bet)

	signal := BuildSignal(key.Platform, key.Epoch, bets, time.Now())
	a.publish(context.Background(), signal)
}

func (a *Aggregator) onRoundEnded(ev bus.Event) {
	payload, ok := ev.Payload.(map[string]interface{})
	if !ok {
		return
	}
	platform, _ := payload["platform"].(models.Platform)
	marketID, _ := payload["market_id"].(string)
	if platform == "" || marketID == "" {
		return
	}
	a.mu.Lock()
	delete(a.rounds, roundKey{Platform: platform, Epoch: EpochFor(marketID)})
	a.mu.Unlock()
}

func (a *Aggregator) publish(ctx context.Context, s *models.SmartMoneySignal) {
	if err := a.store.UpsertSignal(ctx, s); err != nil {
		a.log.Error().Err(err).Str("platform", string(s.Platform)).
			Int64("epoch", s.Epoch).Msg("Failed to persist signal")
		return
	}
	if a.cache != nil {
		if err := a.cache.SetCurrentSignal(ctx, s); err != nil {
			a.log.Warn().Err(err).Msg("Failed to cache current signal")
		}
	}
	metrics.SignalsGenerated.WithLabelValues(string(s.Platform)).Inc()
	a.bus.Emit(bus.EventSignalGenerated, s)
}

// BetWeight is the per-bet contribution: the trader's tier multiplier scaled
// by the log of the native-unit amount, so whales lead without drowning out
// everyone else.
func BetWeight(tier models.Tier, amount decimal.Decimal) float64 {
	native := models.NativeUnits(amount)
	if native < 0 {
		native = 0
	}
	return models.TierWeight(tier) * math.Log1p(native)
}

// BuildSignal folds the tracked bets on one round into a consensus signal.
// Pure, so the same bets always produce the same signal.
func BuildSignal(platform models.Platform, epoch int64, bets []models.SignalBet, now time.Time) *models.SmartMoneySignal {
	s := &models.SmartMoneySignal{
		Platform:    platform,
		Epoch:       epoch,
		Consensus:   models.ConsensusNeutral,
		Strength:    models.StrengthWeak,
		TotalVolume: decimal.Zero,
		Bets:        bets,
		GeneratedAt: now,
	}

	var bullWeight, totalWeight float64
	for _, b := range bets {
		s.Participants++
		s.TotalVolume = s.TotalVolume.Add(b.Amount)
		totalWeight += b.Weight
		if b.Direction == models.DirectionBull {
			bullWeight += b.Weight
		}
		switch b.Tier {
		case models.TierDiamond:
			s.DiamondTraders++
		case models.TierPlatinum:
			s.PlatinumTraders++
		}
	}
	if totalWeight == 0 {
		return s
	}

	s.WeightedBullPercent = bullWeight / totalWeight * 100

	// Lopsidedness sets the ceiling, but a thin round can never be fully
	// confident: participation and total stake weight each cap it.
	deviation := math.Abs(s.WeightedBullPercent-50) * 2
	s.Confidence = math.Min(math.Min(deviation, 100),
		math.Min(20*float64(s.Participants), 25*totalWeight))

	switch {
	case s.WeightedBullPercent > 60:
		s.Consensus = models.ConsensusBull
	case s.WeightedBullPercent < 40:
		s.Consensus = models.ConsensusBear
	}

	onConsensus := 0
	for _, b := range bets {
		if (s.Consensus == models.ConsensusBull && b.Direction == models.DirectionBull) ||
			(s.Consensus == models.ConsensusBear && b.Direction == models.DirectionBear) {
			onConsensus++
		}
	}
	if s.Consensus != models.ConsensusNeutral {
		s.TopTraderAgreement = float64(onConsensus) / float64(s.Participants) * 100
	}

	switch {
	case s.Consensus != models.ConsensusNeutral &&
		s.Confidence >= 70 && s.Participants >= 5 &&
		(s.DiamondTraders >= 2 || s.PlatinumTraders >= 3):
		s.Strength = models.StrengthStrong
	case s.Consensus != models.ConsensusNeutral &&
		s.Confidence >= 50 && s.Participants >= 3:
		s.Strength = models.StrengthModerate
	}
	return s
}

// EpochFor maps a market id to the signal's epoch key. Numeric round ids
// pass through; everything else gets a stable hash so odds markets still key
// uniquely per (platform, epoch).
func EpochFor(marketID string) int64 {
	if n, err := strconv.ParseInt(marketID, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	h.Write([]byte(marketID))
	return int64(h.Sum64() & math.MaxInt64)
}
