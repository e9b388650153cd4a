package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/models"
)

func bnb(units float64) decimal.Decimal {
	return decimal.NewFromFloat(units).Shift(18)
}

// Single resolved winning bet of 0.1 BNB on PancakeSwap:
// 100 win points + (100-55)*10 bonus + floor(0.1*10) volume + 0 consistency.
func TestPlatformScoreSingleWin(t *testing.T) {
	stats := &models.UserStats{
		Address:   "0xa",
		Platform:  models.PlatformPancakeSwap,
		TotalBets: 1,
		Wins:      1,
		WinRate:   100,
		Volume:    bnb(0.1),
		LastBetAt: time.Now(),
	}

	assert.Equal(t, 551.0, PlatformScore(stats))
}

func TestComputeSingleWinReachesPlatinum(t *testing.T) {
	now := time.Now()
	stats := map[models.Platform]*models.UserStats{
		models.PlatformPancakeSwap: {
			Address:   "0xA",
			Platform:  models.PlatformPancakeSwap,
			TotalBets: 1,
			Wins:      1,
			WinRate:   100,
			Volume:    bnb(0.1),
			LastBetAt: now,
		},
	}

	ts := Compute("0xA", stats, now)
	// 551 platform score + 100 recency bonus.
	assert.Equal(t, 651.0, ts.TotalScore)
	assert.Equal(t, models.TierPlatinum, ts.Tier)
	assert.Equal(t, "0xa", ts.Address)
	require.Len(t, ts.Breakdown, 1)
	assert.Equal(t, 551.0, ts.Breakdown[0].Score)
}

func TestComputeIsDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	stats := map[models.Platform]*models.UserStats{
		models.PlatformPolymarket: {
			Address: "0xB", Platform: models.PlatformPolymarket,
			TotalBets: 60, Wins: 40, Losses: 20, WinRate: WinRate(40, 20),
			Volume: bnb(12), LastBetAt: now.Add(-time.Hour),
		},
		models.PlatformPancakeSwap: {
			Address: "0xB", Platform: models.PlatformPancakeSwap,
			TotalBets: 25, Wins: 10, Losses: 15, WinRate: WinRate(10, 15),
			Volume: bnb(3), LastBetAt: now.Add(-48 * time.Hour),
		},
	}

	a := Compute("0xB", stats, now)
	b := Compute("0xB", stats, now)
	assert.Equal(t, a, b)
}

func TestComputeToleratesMissingStats(t *testing.T) {
	ts := Compute("0xC", nil, time.Now())
	assert.Equal(t, 0.0, ts.TotalScore)
	assert.Equal(t, models.TierBronze, ts.Tier)
	assert.Empty(t, ts.Breakdown)
}

func TestWinRateFloorsDenominator(t *testing.T) {
	assert.Equal(t, 0.0, WinRate(0, 0))
	assert.Equal(t, 100.0, WinRate(1, 0))
	assert.Equal(t, 60.0, WinRate(6, 4))
}

func TestConsistencyThresholds(t *testing.T) {
	cases := []struct {
		bets int
		want float64
	}{
		{19, 0}, {20, 100}, {49, 100}, {50, 200}, {99, 200}, {100, 300},
	}
	for _, tc := range cases {
		stats := &models.UserStats{
			Platform:  models.PlatformPolymarket,
			TotalBets: tc.bets,
			Wins:      0,
			WinRate:   0,
			Volume:    decimal.Zero,
		}
		assert.Equal(t, tc.want, PlatformScore(stats), "bets=%d", tc.bets)
	}
}

func TestVolumeBonusCapped(t *testing.T) {
	stats := &models.UserStats{
		Platform:  models.PlatformPancakeSwap,
		TotalBets: 1,
		Wins:      0,
		WinRate:   0,
		Volume:    bnb(1000), // would be 10000 uncapped
	}
	assert.Equal(t, 500.0, PlatformScore(stats))
}

func TestWilsonLowerBoundDampsSmallSamples(t *testing.T) {
	// 1/1 looks perfect but the lower bound is far below certainty.
	small := wilsonLowerBound(1, 1, wilsonZ)
	big := wilsonLowerBound(90, 100, wilsonZ)
	assert.Less(t, small, 0.25)
	assert.Greater(t, big, 0.8)
}

func TestBinaryRankScoreZeroForCoinFlippers(t *testing.T) {
	stats := &models.UserStats{
		Platform:  models.PlatformPancakeSwap,
		TotalBets: 100,
		Wins:      50,
		Losses:    50,
		WinRate:   50,
		Volume:    bnb(10),
	}
	// Wilson lower bound of 50/100 sits below 0.5: no demonstrated skill.
	assert.Equal(t, 0.0, BinaryRankScore(stats))
}

func TestBinaryRankScoreRewardsProvenEdge(t *testing.T) {
	stats := &models.UserStats{
		Platform:  models.PlatformPancakeSwap,
		TotalBets: 200,
		Wins:      140,
		Losses:    60,
		WinRate:   70,
		Volume:    bnb(50),
	}
	assert.Greater(t, BinaryRankScore(stats), 0.0)
}

func TestOddsRankScoreRecencyMultiplier(t *testing.T) {
	now := time.Now()
	stats := &models.UserStats{
		Platform:  models.PlatformPolymarket,
		TotalBets: 40,
		Wins:      24,
		Losses:    16,
		WinRate:   60,
		Volume:    bnb(5),
		LastBetAt: now.Add(-24 * time.Hour),
	}
	recent := OddsRankScore(stats, 10, now)

	stats.LastBetAt = now.Add(-120 * 24 * time.Hour)
	stale := OddsRankScore(stats, 10, now)

	assert.Greater(t, recent, stale)
}

func TestTierThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  models.Tier
	}{
		{0, models.TierBronze},
		{199, models.TierBronze},
		{200, models.TierSilver},
		{400, models.TierGold},
		{649, models.TierGold},
		{650, models.TierPlatinum},
		{900, models.TierDiamond},
		{1300, models.TierDiamond},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.TierForScore(tc.score), "score=%v", tc.score)
	}
}

func TestSortLeaderboardTieBreaksOnPlatforms(t *testing.T) {
	rows := []models.UnifiedTrader{
		{Address: "0x1", TotalScore: 500, ActivePlatforms: 1},
		{Address: "0x2", TotalScore: 500, ActivePlatforms: 3},
		{Address: "0x3", TotalScore: 900, ActivePlatforms: 1},
	}
	SortLeaderboard(rows)
	assert.Equal(t, "0x3", rows[0].Address)
	assert.Equal(t, "0x2", rows[1].Address)
	assert.Equal(t, "0x1", rows[2].Address)
}
