package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/models"
)

func newTestPolymarket(dataURL, gammaURL string) *PolymarketAdapter {
	cfg := RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, RequestTimeout: time.Second}
	a := &PolymarketAdapter{
		data:    newRESTClient(dataURL, time.Second),
		gamma:   newRESTClient(gammaURL, time.Second),
		retrier: NewRetrier("polymarket-test", cfg, zerolog.Nop()),
		poll:    time.Second,
		log:     zerolog.Nop(),
	}
	return a
}

func TestPolymarketNormalizeTradeScalesUSDC(t *testing.T) {
	a := newTestPolymarket("http://unused", "http://unused")

	bet, err := a.normalizeTrade(&polymarketTrade{
		ID:              "t1",
		ProxyWallet:     "0xABCDEF",
		Side:            "BUY",
		OutcomeIndex:    0,
		Size:            "25000000", // 25 USDC at 6 decimals
		ConditionID:     "0xc0ffee",
		Timestamp:       1_700_000_000,
		TransactionHash: "0xbeef",
	})
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef", bet.Trader)
	assert.Equal(t, models.DirectionBull, bet.Direction)
	// 25 USDC scaled from 6 to 18 decimals.
	assert.Equal(t, "25000000000000000000", bet.Amount.String())
	// Round-trip back to native precision is lossless.
	assert.Equal(t, "25000000", models.FromCanonical(bet.Amount, usdcDecimals).String())
}

func TestPolymarketDirectionMapping(t *testing.T) {
	a := newTestPolymarket("http://unused", "http://unused")

	cases := []struct {
		side    string
		outcome int
		want    models.Direction
	}{
		{"BUY", 0, models.DirectionBull},  // buying YES
		{"SELL", 0, models.DirectionBear}, // selling YES
		{"BUY", 1, models.DirectionBear},  // buying NO
		{"SELL", 1, models.DirectionBull}, // selling NO
	}
	for _, tc := range cases {
		bet, err := a.normalizeTrade(&polymarketTrade{
			ID: "x", Side: tc.side, OutcomeIndex: tc.outcome, Size: "1000000",
		})
		require.NoError(t, err)
		assert.Equal(t, tc.want, bet.Direction, "side=%s outcome=%d", tc.side, tc.outcome)
	}
}

func TestPolymarketGetBetsForUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "0xabc", r.URL.Query().Get("user"))
		json.NewEncoder(w).Encode([]polymarketTrade{
			{ID: "t1", ProxyWallet: "0xAbC", Side: "BUY", OutcomeIndex: 0,
				Size: "1000000", ConditionID: "m1", Timestamp: time.Now().Unix()},
		})
	}))
	defer srv.Close()

	a := newTestPolymarket(srv.URL, srv.URL)
	bets, err := a.GetBetsForUser(context.Background(), "0xABC", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, models.PlatformPolymarket, bets[0].Platform)
	assert.Equal(t, "0xabc", bets[0].Trader)
}

func TestPolymarketOutcomeFromTerminalPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]polymarketMarket{
			{ConditionID: "m1", Closed: true, OutcomePrices: `["1", "0"]`},
		})
	}))
	defer srv.Close()

	a := newTestPolymarket(srv.URL, srv.URL)
	out, err := a.GetMarketOutcome(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, out.Resolved)
	require.NotNil(t, out.Winner)
	assert.Equal(t, models.DirectionBull, *out.Winner)
}

func TestParseYesPrice(t *testing.T) {
	assert.Equal(t, 0.705, parseYesPrice(`["0.705", "0.295"]`))
	assert.Equal(t, 0.5, parseYesPrice(``))
	assert.Equal(t, 0.5, parseYesPrice(`garbage`))
}
