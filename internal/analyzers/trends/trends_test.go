package trends

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
)

func newTestDetector() (*Detector, *bus.Bus) {
	b := bus.New()
	cfg := config.TrendsConfig{CycleInterval: time.Minute, MarketsLimit: 100, TopN: 100}
	return New(nil, b, cfg, zerolog.Nop()), b
}

func TestNormalizeTopicAliasesAndStopWords(t *testing.T) {
	// "BTC" and "Bitcoin" phrasings normalize to the same key.
	a := NormalizeTopic("Will BTC reach $100k by March?")
	b := NormalizeTopic("Bitcoin $100K in March")
	assert.Equal(t, a, b)
	assert.Equal(t, "100k bitcoin march", a)
}

func TestNormalizeTopicDropsNumericAndShortTokens(t *testing.T) {
	// Bare numbers and one/two-letter leftovers never become cluster keys.
	assert.Equal(t, "bitcoin", NormalizeTopic("Will Bitcoin reach $100000 by 2025?"))
	assert.Equal(t, "cpi may", NormalizeTopic("US CPI above 3% in May"))
}

func TestNormalizeTopicEmpty(t *testing.T) {
	assert.Equal(t, "", NormalizeTopic("Will the...?"))
	assert.Equal(t, "", NormalizeTopic(""))
}

func TestClusterGroupsAcrossPlatforms(t *testing.T) {
	markets := []*models.Market{
		{ID: "m1", Platform: models.PlatformPolymarket, Title: "Will BTC reach $100k?"},
		{ID: "m2", Platform: models.PlatformKalshi, Title: "Bitcoin 100k"},
		{ID: "m3", Platform: models.PlatformManifold, Title: "Solana flips Ethereum"},
	}

	clusters := Cluster(markets)
	require.Len(t, clusters, 2)
	assert.Len(t, clusters["100k bitcoin"], 2)
	assert.Len(t, clusters["ethereum flips solana"], 1)
}

func TestScoreRewardsSpread(t *testing.T) {
	single := Score(10_000, 2, 1, 0)
	spread := Score(10_000, 2, 3, 0)
	assert.Greater(t, spread, single)
	// Ten times the volume adds one log decade, not 10x the score.
	assert.Less(t, Score(100_000, 2, 1, 0), 2*single)
}

func TestBuildTopicFloors(t *testing.T) {
	d, _ := newTestDetector()
	now := time.Now()

	// One market is never a trend.
	assert.Nil(t, d.buildTopic("bitcoin", []*models.Market{
		{ID: "m1", Platform: models.PlatformPolymarket, VolumeUSD: 5000},
	}, now))

	// Two markets below the volume floor.
	assert.Nil(t, d.buildTopic("bitcoin", []*models.Market{
		{ID: "m1", Platform: models.PlatformPolymarket, VolumeUSD: 40},
		{ID: "m2", Platform: models.PlatformKalshi, VolumeUSD: 40},
	}, now))
}

func TestBuildTopicAggregates(t *testing.T) {
	d, _ := newTestDetector()
	now := time.Now()

	topic := d.buildTopic("100k bitcoin", []*models.Market{
		{ID: "m1", Platform: models.PlatformPolymarket, VolumeUSD: 9000, Category: "crypto"},
		{ID: "m2", Platform: models.PlatformPolymarket, VolumeUSD: 1000, Category: "crypto"},
		{ID: "m3", Platform: models.PlatformKalshi, VolumeUSD: 2000, Category: "crypto"},
	}, now)
	require.NotNil(t, topic)

	assert.Equal(t, 12_000.0, topic.TotalVolume)
	assert.Equal(t, 3, topic.TotalMarkets)
	assert.Equal(t, "crypto", topic.Category)
	require.Len(t, topic.Platforms, 2)
	// Ordered by platform volume, markets ordered by volume within.
	assert.Equal(t, models.PlatformPolymarket, topic.Platforms[0].Platform)
	assert.Equal(t, []string{"m1", "m2"}, topic.Platforms[0].TopMarkets)
	assert.Greater(t, topic.Score, 0.0)
}

func TestPublishDetectThenUpdateThreshold(t *testing.T) {
	d, b := newTestDetector()

	var detected, updated int
	b.Subscribe(bus.EventTrendDetected, func(bus.Event) { detected++ })
	b.Subscribe(bus.EventTrendUpdated, func(bus.Event) { updated++ })

	base := &models.TrendingTopic{Topic: "bitcoin", Score: 100, TotalVolume: 1000, LastUpdated: time.Now()}
	d.publish(base)
	assert.Equal(t, 1, detected)

	// Under 1.1x growth: silent.
	d.publish(&models.TrendingTopic{Topic: "bitcoin", Score: 105, TotalVolume: 1100, LastUpdated: time.Now()})
	assert.Equal(t, 0, updated)

	// At or past 1.1x of the last published score: TREND_UPDATED.
	d.publish(&models.TrendingTopic{Topic: "bitcoin", Score: 116, TotalVolume: 1500, LastUpdated: time.Now()})
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, detected)
}

func TestVelocityFromPreviousSnapshot(t *testing.T) {
	d, _ := newTestDetector()
	start := time.Now()

	first := d.buildTopic("bitcoin", []*models.Market{
		{ID: "m1", Platform: models.PlatformPolymarket, VolumeUSD: 1000},
		{ID: "m2", Platform: models.PlatformKalshi, VolumeUSD: 1000},
	}, start)
	require.NotNil(t, first)
	assert.Equal(t, 0.0, first.Velocity)
	d.publish(first)

	// Ten minutes later the cluster grew by $600: 60 USD/min.
	second := d.buildTopic("bitcoin", []*models.Market{
		{ID: "m1", Platform: models.PlatformPolymarket, VolumeUSD: 1400},
		{ID: "m2", Platform: models.PlatformKalshi, VolumeUSD: 1200},
	}, start.Add(10*time.Minute))
	require.NotNil(t, second)
	assert.InDelta(t, 60.0, second.Velocity, 0.001)
}

func marketRows() *pgxmock.Rows {
	cols := []string{"platform", "market_id", "title", "category", "start_time",
		"lock_time", "close_time", "bull_amount", "bear_amount", "total_amount",
		"yes_price_bps", "volume_usd", "oracle_called", "winner", "resolved_at",
		"active"}
	return pgxmock.NewRows(cols).
		AddRow("polymarket", "m1", "Will BTC reach $100k?", "crypto",
			(*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil),
			"0", "0", "0", int64(6200), 9000.0, false, (*string)(nil),
			(*time.Time)(nil), true).
		AddRow("kalshi", "m2", "Bitcoin 100k", "crypto",
			(*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil),
			"0", "0", "0", int64(5800), 2000.0, false, (*string)(nil),
			(*time.Time)(nil), true)
}

func anyArgs(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestCycleUpsertsAndPrunesTopics(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cfg := config.TrendsConfig{CycleInterval: time.Minute, MarketsLimit: 100, TopN: 100}
	d := New(db.NewWithPool(mock), bus.New(), cfg, zerolog.Nop())

	mock.ExpectQuery("FROM markets").WillReturnRows(marketRows())
	mock.ExpectExec("INSERT INTO trending_topics").WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM trending_topics").WithArgs(100).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	require.NoError(t, d.Cycle(context.Background(), time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
