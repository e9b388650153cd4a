// Package trends clusters active markets across venues into normalized
// topics and scores them by volume, spread, and velocity. A topic that shows
// up on several platforms at once is the strongest lead the engine has for
// where attention is moving.
package trends

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
)

const (
	// minClusterMarkets drops single-market "topics": one market is a
	// question, two is a trend.
	minClusterMarkets = 2

	// minClusterVolumeUSD drops dust clusters.
	minClusterVolumeUSD = 100

	// updateScoreRatio is how much a known topic's score must grow before
	// TREND_UPDATED fires again.
	updateScoreRatio = 1.1

	// topMarketsPerPlatform caps the market ids listed per platform.
	topMarketsPerPlatform = 3
)

// stopWords are dropped during topic normalization.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "will": {}, "be": {}, "by": {}, "in": {},
	"on": {}, "at": {}, "of": {}, "to": {}, "for": {}, "and": {}, "or": {},
	"is": {}, "are": {}, "was": {}, "before": {}, "after": {}, "above": {},
	"below": {}, "vs": {}, "win": {}, "reach": {}, "hit": {}, "end": {},
	"price": {}, "market": {}, "this": {}, "next": {}, "year": {},
}

// aliases folds common synonyms onto one token so "BTC $100k" and "Bitcoin
// to 100k" land in the same cluster.
var aliases = map[string]string{
	"btc":          "bitcoin",
	"xbt":          "bitcoin",
	"eth":          "ethereum",
	"ether":        "ethereum",
	"sol":          "solana",
	"doge":         "dogecoin",
	"potus":        "president",
	"presidential": "president",
	"elections":    "election",
	"fed":          "fomc",
	"rates":        "rate",
}

// NormalizeTopic reduces a market title to its cluster key: lower-cased,
// punctuation stripped, stop words and short or pure-numeric tokens removed,
// aliases applied, tokens sorted and deduplicated. Returns "" when nothing
// significant survives.
func NormalizeTopic(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	seen := map[string]struct{}{}
	tokens := make([]string, 0, 8)
	for _, tok := range strings.Fields(b.String()) {
		if alias, ok := aliases[tok]; ok {
			tok = alias
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if len(tok) < 3 || pureNumeric(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// pureNumeric reports whether a token is digits only. Bare round numbers
// ("100000", "2025") cluster unrelated markets; mixed tokens like "100k"
// stay.
func pureNumeric(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Cluster groups markets by normalized topic. Markets whose titles normalize
// to nothing are dropped.
func Cluster(markets []*models.Market) map[string][]*models.Market {
	clusters := make(map[string][]*models.Market)
	for _, m := range markets {
		topic := NormalizeTopic(m.Title)
		if topic == "" {
			continue
		}
		clusters[topic] = append(clusters[topic], m)
	}
	return clusters
}

// Score rates a topic from capped volume, breadth, spread, and velocity
// components, rounded to 2 decimals.
func Score(totalVolumeUSD float64, marketCount, platformCount int, velocityUSDPerMin float64) float64 {
	volumeScore := math.Min(totalVolumeUSD/10_000, 40)
	marketScore := math.Min(float64(marketCount)*4, 20)
	platformScore := math.Min(float64(platformCount)*5, 25)
	velocityScore := math.Min(math.Max(velocityUSDPerMin, 0)/100, 15)
	return math.Round((volumeScore+marketScore+platformScore+velocityScore)*100) / 100
}

type snapshot struct {
	volumeUSD float64
	score     float64
	at        time.Time
}

// Detector runs the clustering cycle on a timer and publishes topic events.
type Detector struct {
	store *db.DB
	bus   *bus.Bus
	cfg   config.TrendsConfig
	log   zerolog.Logger

	mu   sync.Mutex
	prev map[string]snapshot
}

// New builds the detector.
func New(store *db.DB, b *bus.Bus, cfg config.TrendsConfig, log zerolog.Logger) *Detector {
	return &Detector{
		store: store,
		bus:   b,
		cfg:   cfg,
		log:   log.With().Str("analyzer", "trends").Logger(),
		prev:  make(map[string]snapshot),
	}
}

// Start blocks running detection cycles until ctx is cancelled.
func (d *Detector) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.Cycle(ctx, time.Now()); err != nil {
			d.log.Error().Err(err).Msg("Trend cycle failed")
		}
	}
}

// Cycle runs one full detection pass: cluster, score, persist, publish.
func (d *Detector) Cycle(ctx context.Context, now time.Time) error {
	markets, err := d.store.GetAllActiveMarkets(ctx)
	if err != nil {
		return err
	}

	for topic, cluster := range Cluster(markets) {
		t := d.buildTopic(topic, cluster, now)
		if t == nil {
			continue
		}
		if err := d.store.UpsertTopic(ctx, t); err != nil {
			d.log.Error().Err(err).Str("topic", topic).Msg("Failed to persist topic")
			continue
		}
		d.publish(t)
	}

	// Only the top N by score stay persisted; the table never outgrows what
	// the leaderboard of topics can show.
	if d.cfg.TopN > 0 {
		if err := d.store.PruneTopics(ctx, d.cfg.TopN); err != nil {
			d.log.Warn().Err(err).Msg("Failed to prune topics")
		}
	}
	return nil
}

// buildTopic folds one cluster into a TrendingTopic, or nil when the cluster
// is below the size or volume floor.
func (d *Detector) buildTopic(topic string, cluster []*models.Market, now time.Time) *models.TrendingTopic {
	if len(cluster) < minClusterMarkets {
		return nil
	}

	byPlatform := make(map[models.Platform][]*models.Market)
	totalVolume := 0.0
	categories := map[string]int{}
	for _, m := range cluster {
		byPlatform[m.Platform] = append(byPlatform[m.Platform], m)
		totalVolume += m.VolumeUSD
		if m.Category != "" {
			categories[m.Category]++
		}
	}
	if totalVolume < minClusterVolumeUSD {
		return nil
	}

	presences := make([]models.PlatformPresence, 0, len(byPlatform))
	for platform, ms := range byPlatform {
		sort.Slice(ms, func(i, j int) bool { return ms[i].VolumeUSD > ms[j].VolumeUSD })
		p := models.PlatformPresence{Platform: platform, MarketCount: len(ms)}
		for i, m := range ms {
			p.VolumeUSD += m.VolumeUSD
			if i < topMarketsPerPlatform {
				p.TopMarkets = append(p.TopMarkets, m.ID)
			}
		}
		presences = append(presences, p)
	}
	sort.Slice(presences, func(i, j int) bool {
		return presences[i].VolumeUSD > presences[j].VolumeUSD
	})

	d.mu.Lock()
	last, known := d.prev[topic]
	d.mu.Unlock()

	velocity := 0.0
	if known && now.After(last.at) {
		if mins := now.Sub(last.at).Minutes(); mins > 0 {
			velocity = math.Max(0, (totalVolume-last.volumeUSD)/mins)
		}
	}

	category := ""
	best := 0
	for c, n := range categories {
		if n > best || (n == best && c < category) {
			category, best = c, n
		}
	}

	return &models.TrendingTopic{
		Topic:        topic,
		Score:        Score(totalVolume, len(cluster), len(byPlatform), velocity),
		Velocity:     velocity,
		TotalVolume:  totalVolume,
		TotalMarkets: len(cluster),
		Category:     category,
		Platforms:    presences,
		FirstSeen:    now,
		LastUpdated:  now,
	}
}

// publish emits TREND_DETECTED for unseen topics and TREND_UPDATED when a
// known topic's score grows past the update ratio, then records the
// snapshot for the next cycle's velocity.
func (d *Detector) publish(t *models.TrendingTopic) {
	d.mu.Lock()
	last, known := d.prev[t.Topic]
	d.prev[t.Topic] = snapshot{volumeUSD: t.TotalVolume, score: t.Score, at: t.LastUpdated}
	d.mu.Unlock()

	switch {
	case !known:
		d.bus.Emit(bus.EventTrendDetected, t)
	case t.Score > last.score*updateScoreRatio:
		d.bus.Emit(bus.EventTrendUpdated, t)
	}
}
