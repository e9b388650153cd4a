package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/adapters"
	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
)

// stubVenue serves canned active markets, or fails outright.
type stubVenue struct {
	platform models.Platform
	markets  []*models.Market
	err      error
}

func (s *stubVenue) Platform() models.Platform { return s.platform }

func (s *stubVenue) Initialize(context.Context) error { return nil }

func (s *stubVenue) CurrentSequence(context.Context) (uint64, error) { return 0, nil }

func (s *stubVenue) GetBetsForUser(context.Context, string, time.Time) ([]*models.Bet, error) {
	return nil, nil
}

func (s *stubVenue) GetBetsForMarket(context.Context, string) ([]*models.Bet, error) {
	return nil, nil
}

func (s *stubVenue) GetTraderBets(context.Context, string, int) ([]*models.Bet, error) {
	return nil, nil
}

func (s *stubVenue) GetRecentBets(context.Context, time.Duration, int) ([]*models.Bet, error) {
	return nil, nil
}

func (s *stubVenue) GetMarketOutcome(context.Context, string) (models.Outcome, error) {
	return models.Outcome{}, nil
}

func (s *stubVenue) GetActiveMarkets(context.Context, int) ([]*models.Market, error) {
	return s.markets, s.err
}

func (s *stubVenue) IsMarketActive(context.Context, string) (bool, error) { return false, nil }

func (s *stubVenue) Backfill(context.Context, uint64, uint64, adapters.BetHandler) error {
	return nil
}

func (s *stubVenue) Subscribe(adapters.BetHandler) (adapters.Disposer, error) {
	return func() {}, nil
}

func TestSyncMarketsToleratesFailingVenue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	// The fan-out is concurrent; venue order is not fixed.
	mock.MatchExpectationsInOrder(false)

	registry := adapters.NewRegistry()
	require.NoError(t, registry.Register(&stubVenue{
		platform: models.PlatformPolymarket,
		markets: []*models.Market{
			{ID: "m1", Platform: models.PlatformPolymarket, Title: "Bitcoin 100k", VolumeUSD: 9000, Active: true},
			{ID: "m2", Platform: models.PlatformPolymarket, Title: "Fed cuts in June", VolumeUSD: 4000, Active: true},
		},
	}))
	require.NoError(t, registry.Register(&stubVenue{
		platform: models.PlatformKalshi,
		err:      errors.New("api down"),
	}))

	p := New(db.NewWithPool(mock), nil, bus.New(), registry, zerolog.Nop())

	// The healthy venue lands both snapshots; the dead one records its error.
	mock.ExpectExec("INSERT INTO markets").WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO markets").WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO platform_sync_status").WithArgs("kalshi", "api down").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p.SyncMarkets(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}
