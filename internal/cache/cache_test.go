package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestScoreRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ts := &models.TruthScore{
		Address:    "0xabc",
		TotalScore: 651,
		Tier:       models.TierPlatinum,
		Breakdown: []models.PlatformScore{
			{Platform: models.PlatformPancakeSwap, Score: 551, Weight: 1},
		},
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, c.SetScore(ctx, ts))

	// Address lookups are case-insensitive.
	got, err := c.GetScore(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, ts.TotalScore, got.TotalScore)
	assert.Equal(t, ts.Tier, got.Tier)
	require.Len(t, got.Breakdown, 1)
	assert.Equal(t, models.PlatformPancakeSwap, got.Breakdown[0].Platform)
}

func TestScoreMiss(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.GetScore(context.Background(), "0xnothere")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestScoreExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetScore(ctx, &models.TruthScore{Address: "0xabc", TotalScore: 100}))
	mr.FastForward(scoreTTL + time.Second)

	_, err := c.GetScore(ctx, "0xabc")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInvalidateScore(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetScore(ctx, &models.TruthScore{Address: "0xabc", TotalScore: 100}))
	require.NoError(t, c.InvalidateScore(ctx, "0xABC"))

	_, err := c.GetScore(ctx, "0xabc")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCurrentSignalRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sig := &models.SmartMoneySignal{
		Platform:   models.PlatformPancakeSwap,
		Epoch:      4102,
		Consensus:  models.ConsensusBull,
		Confidence: 82,
		Strength:   models.StrengthStrong,
	}
	require.NoError(t, c.SetCurrentSignal(ctx, sig))

	got, err := c.GetCurrentSignal(ctx, models.PlatformPancakeSwap)
	require.NoError(t, err)
	assert.Equal(t, int64(4102), got.Epoch)
	assert.Equal(t, models.ConsensusBull, got.Consensus)

	// Other platforms stay cold.
	_, err = c.GetCurrentSignal(ctx, models.PlatformPolymarket)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLeaderboardRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	rows := []models.UnifiedTrader{
		{Address: "0x1", TotalScore: 900, Tier: models.TierDiamond, ActivePlatforms: 3},
		{Address: "0x2", TotalScore: 500, Tier: models.TierGold, ActivePlatforms: 1},
	}
	require.NoError(t, c.SetLeaderboard(ctx, rows))

	got, err := c.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0x1", got[0].Address)
}
