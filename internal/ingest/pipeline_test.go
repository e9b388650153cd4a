package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/adapters"
	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
)

func newTestPipeline(t *testing.T) (*Pipeline, pgxmock.PgxPoolIface, *bus.Bus) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	b := bus.New()
	p := New(db.NewWithPool(mock), nil, b, adapters.NewRegistry(), zerolog.Nop())
	return p, mock, b
}

func anyArgs(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func testBet() *models.Bet {
	return &models.Bet{
		ID:        "b1",
		Trader:    "0xa",
		Platform:  models.PlatformPancakeSwap,
		MarketID:  "1001",
		Direction: models.DirectionBull,
		Amount:    decimal.New(1, 17),
		Timestamp: time.Now(),
		TxHash:    "0xh",
		LogIndex:  0,
	}
}

func TestHandleBetEmitsOncePerNaturalKey(t *testing.T) {
	p, mock, b := newTestPipeline(t)

	var events int
	b.Subscribe(bus.EventBetDetected, func(bus.Event) { events++ })

	// First delivery: new row, one event.
	mock.ExpectExec("INSERT INTO users").WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO bets").WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO platform_sync_status").WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Redelivery: conflict, zero rows, no event.
	mock.ExpectExec("INSERT INTO users").WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO bets").WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	bet := testBet()
	p.HandleBet(context.Background(), bet)
	p.HandleBet(context.Background(), bet)

	assert.Equal(t, 1, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildStatsSingleResolvedWin(t *testing.T) {
	won := true
	bets := []*models.Bet{{
		Trader:    "0xA",
		Platform:  models.PlatformPancakeSwap,
		Direction: models.DirectionBull,
		Amount:    decimal.New(1, 17),
		Timestamp: time.Now(),
		Won:       &won,
	}}

	stats := BuildStats("0xA", models.PlatformPancakeSwap, bets)
	assert.Equal(t, 1, stats.TotalBets)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 0, stats.Losses)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 100.0, stats.WinRate)
	assert.Equal(t, "0xa", stats.Address)
	assert.Equal(t, 0.1, models.NativeUnits(stats.Volume))
}

func TestBuildStatsPendingExcludedFromWinRate(t *testing.T) {
	won := true
	lost := false
	bets := []*models.Bet{
		{Amount: decimal.New(1, 18), Won: &won, Timestamp: time.Now()},
		{Amount: decimal.New(1, 18), Won: &lost, Timestamp: time.Now()},
		{Amount: decimal.New(1, 18), Won: nil, Timestamp: time.Now()}, // pending
	}

	stats := BuildStats("0xb", models.PlatformPolymarket, bets)
	assert.Equal(t, 3, stats.TotalBets)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 50.0, stats.WinRate)
	assert.Equal(t, 3.0, models.NativeUnits(stats.Volume))
}

func TestBuildStatsEmpty(t *testing.T) {
	stats := BuildStats("0xc", models.PlatformKalshi, nil)
	assert.Equal(t, 0, stats.TotalBets)
	assert.Equal(t, 0.0, stats.WinRate)
}

func TestSettleOutcomeDrawIsPush(t *testing.T) {
	outcome := models.Outcome{Resolved: true, Winner: nil}
	assert.Nil(t, outcome.Settle(models.DirectionBull))
	assert.Nil(t, outcome.Settle(models.DirectionBear))
}
