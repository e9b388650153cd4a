// Package antigaming scans bet flow for manipulation patterns: wash
// trading, Sybil clusters, statistically impossible win rates, and wallet
// pairs that move together. Findings become review-queue alerts; the
// detector never blocks or bans on its own.
package antigaming

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/metrics"
	"github.com/truthplane/engine/internal/models"
)

const (
	// sybilMinWallets is the distinct-wallet floor for a cluster finding.
	sybilMinWallets = 3

	// sybilAmountStepNative buckets amounts in 0.1 native-unit steps.
	sybilAmountStepNative = 0.1

	// sybilTimeStep buckets timestamps in 5 second windows.
	sybilTimeStep = 5 * time.Second

	// anomalyMinResolved is the sample floor for the win-rate z test.
	anomalyMinResolved = 50

	// anomalyZ is the one-tailed 99.95% threshold.
	anomalyZ = 3.29

	// collusionMinRounds is the shared-round floor for a pair finding.
	collusionMinRounds = 20

	// collusionMinRate is the co-occurrence rate over the pair's combined
	// round set.
	collusionMinRate = 0.8

	// suppressWindow drops re-detections of an open finding.
	suppressWindow = 24 * time.Hour

	// scanLookback bounds how much history each periodic scan reads.
	scanLookback = 24 * time.Hour

	// scanBetLimit caps bets fetched per platform per scan.
	scanBetLimit = 5000
)

// Detector runs the periodic scan plus the per-bet wash fast path.
type Detector struct {
	store *db.DB
	bus   *bus.Bus
	cfg   config.AntiGamingConfig
	log   zerolog.Logger

	sub *bus.Subscription
}

// New builds the detector.
func New(store *db.DB, b *bus.Bus, cfg config.AntiGamingConfig, log zerolog.Logger) *Detector {
	return &Detector{
		store: store,
		bus:   b,
		cfg:   cfg,
		log:   log.With().Str("analyzer", "anti_gaming").Logger(),
	}
}

// Start subscribes the fast path and blocks running periodic scans until ctx
// is cancelled.
func (d *Detector) Start(ctx context.Context) {
	d.sub = d.bus.Subscribe(bus.EventBetDetected, func(ev bus.Event) {
		if bet, ok := ev.Payload.(*models.Bet); ok {
			d.fastPath(ctx, bet)
		}
	})
	defer d.sub.Unsubscribe()

	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.Scan(ctx, time.Now()); err != nil {
			d.log.Error().Err(err).Msg("Anti-gaming scan failed")
		}
	}
}

// Scan runs every detector over the recent bet window of every platform.
func (d *Detector) Scan(ctx context.Context, now time.Time) error {
	since := now.Add(-scanLookback)
	for _, platform := range models.AllPlatforms() {
		bets, err := d.store.GetRecentBets(ctx, platform, since, scanBetLimit)
		if err != nil {
			d.log.Warn().Err(err).Str("platform", string(platform)).
				Msg("Failed to load bets for scan")
			continue
		}
		if len(bets) == 0 {
			continue
		}

		findings := DetectWash(bets, d.cfg.WashThreshold)
		findings = append(findings, DetectSybil(bets)...)
		findings = append(findings, DetectAnomalies(bets)...)
		findings = append(findings, DetectCollusion(bets)...)
		for _, f := range findings {
			d.raise(ctx, f, now)
		}
	}
	return nil
}

// fastPath re-checks just the betting wallet for wash trading on every
// ingested bet, so two-sided wallets surface within one round instead of one
// scan interval.
func (d *Detector) fastPath(ctx context.Context, bet *models.Bet) {
	bets, err := d.store.GetBetsForTrader(ctx, bet.Trader, bet.Platform, 200)
	if err != nil {
		d.log.Warn().Err(err).Str("trader", bet.Trader).Msg("Wash fast path load failed")
		return
	}
	for _, f := range DetectWash(bets, d.cfg.WashThreshold) {
		d.raise(ctx, f, time.Now())
	}
}

// raise persists one finding unless an unresolved alert of the same type
// already touches any implicated wallet inside the suppression window.
func (d *Detector) raise(ctx context.Context, alert *models.GamingAlert, now time.Time) {
	dup, err := d.store.HasRecentAlert(ctx, alert.Type, alert.Wallets, now.Add(-suppressWindow))
	if err != nil {
		d.log.Warn().Err(err).Str("type", string(alert.Type)).Msg("Duplicate check failed")
		return
	}
	if dup {
		return
	}

	alert.ID = uuid.New()
	alert.Status = models.AlertPending
	alert.CreatedAt = now
	if err := d.store.InsertAlert(ctx, alert); err != nil {
		d.log.Error().Err(err).Str("type", string(alert.Type)).Msg("Failed to persist alert")
		return
	}
	metrics.AlertsCreated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	d.bus.Emit(bus.EventAlertCreated, alert)
}

// DetectWash finds wallets that bet both sides of the same round in at least
// threshold rounds.
func DetectWash(bets []*models.Bet, threshold int) []*models.GamingAlert {
	type sides struct{ bull, bear bool }
	perWallet := make(map[string]map[string]*sides)
	var platform models.Platform

	for _, b := range bets {
		platform = b.Platform
		rounds := perWallet[b.Trader]
		if rounds == nil {
			rounds = make(map[string]*sides)
			perWallet[b.Trader] = rounds
		}
		s := rounds[b.MarketID]
		if s == nil {
			s = &sides{}
			rounds[b.MarketID] = s
		}
		if b.Direction == models.DirectionBull {
			s.bull = true
		} else {
			s.bear = true
		}
	}

	var out []*models.GamingAlert
	for wallet, rounds := range perWallet {
		washRounds := make([]string, 0)
		for market, s := range rounds {
			if s.bull && s.bear {
				washRounds = append(washRounds, market)
			}
		}
		if len(washRounds) < threshold {
			continue
		}
		sort.Strings(washRounds)
		out = append(out, &models.GamingAlert{
			Type:     models.AlertWashTrading,
			Severity: models.SeverityCritical,
			Platform: platform,
			Wallets:  []string{wallet},
			Evidence: map[string]interface{}{
				"wash_rounds": washRounds,
				"round_count": len(washRounds),
			},
			RecommendedAction: "Exclude wallet from scoring and review both-sided rounds",
		})
	}
	sortAlerts(out)
	return out
}

// DetectSybil finds groups of distinct wallets placing near-identical bets:
// same round, same side, same 0.1-native amount bucket, within the same 5s
// window.
func DetectSybil(bets []*models.Bet) []*models.GamingAlert {
	type bucket struct {
		market string
		side   models.Direction
		amount int64
		window int64
	}
	wallets := make(map[bucket]map[string]struct{})
	var platform models.Platform

	for _, b := range bets {
		platform = b.Platform
		key := bucket{
			market: b.MarketID,
			side:   b.Direction,
			amount: int64(math.Floor(models.NativeUnits(b.Amount) / sybilAmountStepNative)),
			window: b.Timestamp.Unix() / int64(sybilTimeStep.Seconds()),
		}
		if wallets[key] == nil {
			wallets[key] = make(map[string]struct{})
		}
		wallets[key][b.Trader] = struct{}{}
	}

	var out []*models.GamingAlert
	for key, set := range wallets {
		if len(set) < sybilMinWallets {
			continue
		}
		members := make([]string, 0, len(set))
		for w := range set {
			members = append(members, w)
		}
		sort.Strings(members)
		out = append(out, &models.GamingAlert{
			Type:     models.AlertSybilCluster,
			Severity: models.SeverityWarning,
			Platform: platform,
			Wallets:  members,
			Evidence: map[string]interface{}{
				"market_id":    key.market,
				"direction":    key.side,
				"wallet_count": len(members),
				"window_start": key.window * int64(sybilTimeStep.Seconds()),
			},
			RecommendedAction: "Review cluster for shared funding source",
		})
	}
	sortAlerts(out)
	return out
}

// DetectAnomalies flags wallets whose resolved win rate is implausible
// against the coin-flip baseline: z > 3.29 one-tailed on 50+ resolved bets.
func DetectAnomalies(bets []*models.Bet) []*models.GamingAlert {
	type record struct{ wins, resolved int }
	perWallet := make(map[string]*record)
	var platform models.Platform

	for _, b := range bets {
		platform = b.Platform
		if b.Won == nil {
			continue
		}
		r := perWallet[b.Trader]
		if r == nil {
			r = &record{}
			perWallet[b.Trader] = r
		}
		r.resolved++
		if *b.Won {
			r.wins++
		}
	}

	var out []*models.GamingAlert
	for wallet, r := range perWallet {
		if r.resolved < anomalyMinResolved {
			continue
		}
		z := (float64(r.wins) - float64(r.resolved)/2) / (math.Sqrt(float64(r.resolved)) / 2)
		if z <= anomalyZ {
			continue
		}
		out = append(out, &models.GamingAlert{
			Type:     models.AlertStatisticalAnomaly,
			Severity: models.SeverityInfo,
			Platform: platform,
			Wallets:  []string{wallet},
			Evidence: map[string]interface{}{
				"resolved_bets": r.resolved,
				"wins":          r.wins,
				"z_score":       math.Round(z*100) / 100,
				"p_one_tailed":  fmt.Sprintf("%.2g", oneTailedP(z)),
			},
			RecommendedAction: "Check for oracle front-running or leaked resolution data",
		})
	}
	sortAlerts(out)
	return out
}

// DetectCollusion flags wallet pairs that share at least 20 rounds and
// co-occur in more than 80% of the rounds either participates in.
func DetectCollusion(bets []*models.Bet) []*models.GamingAlert {
	rounds := make(map[string]map[string]struct{}) // wallet -> round set
	var platform models.Platform
	for _, b := range bets {
		platform = b.Platform
		if rounds[b.Trader] == nil {
			rounds[b.Trader] = make(map[string]struct{})
		}
		rounds[b.Trader][b.MarketID] = struct{}{}
	}

	wallets := make([]string, 0, len(rounds))
	for w := range rounds {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	var out []*models.GamingAlert
	for i := 0; i < len(wallets); i++ {
		for j := i + 1; j < len(wallets); j++ {
			a, b := rounds[wallets[i]], rounds[wallets[j]]
			shared := 0
			for r := range a {
				if _, ok := b[r]; ok {
					shared++
				}
			}
			if shared < collusionMinRounds {
				continue
			}
			union := len(a) + len(b) - shared
			rate := float64(shared) / float64(union)
			if rate <= collusionMinRate {
				continue
			}
			out = append(out, &models.GamingAlert{
				Type:     models.AlertCollusion,
				Severity: models.SeverityWarning,
				Platform: platform,
				Wallets:  []string{wallets[i], wallets[j]},
				Evidence: map[string]interface{}{
					"shared_rounds":      shared,
					"co_occurrence_rate": math.Round(rate*1000) / 1000,
				},
				RecommendedAction: "Review pair for coordinated betting",
			})
		}
	}
	return out
}

// oneTailedP approximates the upper-tail normal probability for z > 0.
func oneTailedP(z float64) float64 {
	return 0.5 * math.Erfc(z/math.Sqrt2)
}

// sortAlerts orders findings by first implicated wallet so scan output is
// deterministic.
func sortAlerts(alerts []*models.GamingAlert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Wallets[0] < alerts[j].Wallets[0]
	})
}
