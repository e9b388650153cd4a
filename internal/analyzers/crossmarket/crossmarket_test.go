package crossmarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/models"
)

func electionCluster() []*models.Market {
	return []*models.Market{
		{ID: "pm1", Platform: models.PlatformPolymarket, YesPriceBps: 7200, VolumeUSD: 10_000},
		{ID: "k1", Platform: models.PlatformKalshi, YesPriceBps: 6800, VolumeUSD: 8_000},
		{ID: "mf1", Platform: models.PlatformManifold, YesPriceBps: 7000, VolumeUSD: 2_000},
	}
}

func TestFuseVolumeWeightedLeanYes(t *testing.T) {
	now := time.Now()
	s := Fuse("election", electionCluster(), time.Hour, now)
	require.NotNil(t, s)

	// (0.72*10k + 0.68*8k + 0.70*2k) / 20k = 0.705
	assert.Equal(t, int64(7050), s.ProbabilityBps)
	assert.Equal(t, 75, s.Confidence)
	assert.Equal(t, models.CrossLeanYes, s.Consensus)
	assert.Equal(t, 20_000.0, s.TotalVolume)
	assert.Equal(t, 3, s.MarketCount)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)

	// Picks ordered by venue volume descending.
	require.Len(t, s.Platforms, 3)
	assert.Equal(t, models.PlatformPolymarket, s.Platforms[0].Platform)
	assert.Equal(t, models.PlatformManifold, s.Platforms[2].Platform)
}

func TestFuseHighestVolumeMarketPerPlatform(t *testing.T) {
	cluster := []*models.Market{
		{ID: "pm-big", Platform: models.PlatformPolymarket, YesPriceBps: 8000, VolumeUSD: 10_000},
		{ID: "pm-small", Platform: models.PlatformPolymarket, YesPriceBps: 2000, VolumeUSD: 100},
		{ID: "k1", Platform: models.PlatformKalshi, YesPriceBps: 8000, VolumeUSD: 10_000},
	}

	s := Fuse("topic", cluster, time.Hour, time.Now())
	require.NotNil(t, s)
	// The small opposing market is ignored, not averaged in.
	assert.Equal(t, int64(8000), s.ProbabilityBps)
	assert.Len(t, s.Platforms, 2)
	assert.Equal(t, 3, s.MarketCount)
}

func TestFuseStrongConsensusBands(t *testing.T) {
	cluster := []*models.Market{
		{ID: "a", Platform: models.PlatformPolymarket, YesPriceBps: 8000, VolumeUSD: 10_000},
		{ID: "b", Platform: models.PlatformKalshi, YesPriceBps: 7900, VolumeUSD: 10_000},
	}
	s := Fuse("topic", cluster, time.Hour, time.Now())
	require.NotNil(t, s)
	assert.Equal(t, models.CrossStrongYes, s.Consensus)

	for i := range cluster {
		cluster[i].YesPriceBps = 10_000 - cluster[i].YesPriceBps
	}
	s = Fuse("topic", cluster, time.Hour, time.Now())
	require.NotNil(t, s)
	assert.Equal(t, models.CrossStrongNo, s.Consensus)
}

func TestFuseMixedNearCoinFlip(t *testing.T) {
	cluster := []*models.Market{
		{ID: "a", Platform: models.PlatformPolymarket, YesPriceBps: 5100, VolumeUSD: 5_000},
		{ID: "b", Platform: models.PlatformKalshi, YesPriceBps: 4900, VolumeUSD: 5_000},
	}
	s := Fuse("topic", cluster, time.Hour, time.Now())
	require.NotNil(t, s)
	assert.Equal(t, models.CrossMixed, s.Consensus)
}

func TestFuseRequiresTwoPlatforms(t *testing.T) {
	cluster := []*models.Market{
		{ID: "a", Platform: models.PlatformPolymarket, YesPriceBps: 9000, VolumeUSD: 50_000},
		{ID: "b", Platform: models.PlatformPolymarket, YesPriceBps: 9100, VolumeUSD: 40_000},
	}
	assert.Nil(t, Fuse("topic", cluster, time.Hour, time.Now()))
}

func TestFuseDropsZeroVolume(t *testing.T) {
	cluster := []*models.Market{
		{ID: "a", Platform: models.PlatformPolymarket, YesPriceBps: 9000},
		{ID: "b", Platform: models.PlatformKalshi, YesPriceBps: 9000},
	}
	assert.Nil(t, Fuse("topic", cluster, time.Hour, time.Now()))
}
