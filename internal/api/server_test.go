package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
	"github.com/truthplane/engine/pkg/backtest"
)

const testKey = "secret-key"

func newTestServer(t *testing.T) (*Server, pgxmock.PgxPoolIface, *bus.Bus) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := db.NewWithPool(mock)
	b := bus.New()
	runner := backtest.NewRunner(store, time.Hour, zerolog.Nop())

	cfg := config.APIConfig{SharedKey: testKey}
	s := NewServer(cfg, store, nil, b, runner, zerolog.Nop())
	return s, mock, b
}

func do(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-API-Key", testKey)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestAuthRejectsMissingKey(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/pending", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthBypassesAuth(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status"`)
	assert.Contains(t, w.Body.String(), `"bots"`)
}

func TestCurrentSignalUnknownPlatform(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/api/signals/current/enron", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func signalColumns() []string {
	return []string{"platform", "epoch", "consensus", "confidence",
		"weighted_bull_pct", "participants", "diamond_traders",
		"platinum_traders", "total_volume", "strength", "top_agreement",
		"bets", "generated_at"}
}

func TestCurrentSignalNoneYet(t *testing.T) {
	s, mock, _ := newTestServer(t)
	mock.ExpectQuery("SELECT (.+) FROM signals").
		WithArgs(anyArgs(2)...).
		WillReturnRows(pgxmock.NewRows(signalColumns()))

	w := do(s, http.MethodGet, "/api/signals/current/pancakeswap", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true, "data": null}`, w.Body.String())
}

func TestCurrentSignalFromStore(t *testing.T) {
	s, mock, _ := newTestServer(t)
	mock.ExpectQuery("SELECT (.+) FROM signals").
		WithArgs(anyArgs(2)...).
		WillReturnRows(pgxmock.NewRows(signalColumns()).AddRow(
			"pancakeswap", int64(42), "BULL", 85.0, 92.5, 6, 2, 1,
			"1.5", "STRONG", 80.0, []byte("[]"), time.Now()))

	w := do(s, http.MethodGet, "/api/signals/current/pancakeswap", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                     `json:"success"`
		Data    *models.SmartMoneySignal `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, int64(42), resp.Data.Epoch)
	assert.Equal(t, models.ConsensusBull, resp.Data.Consensus)
}

func TestSignalHistoryPagination(t *testing.T) {
	s, mock, _ := newTestServer(t)
	mock.ExpectQuery("SELECT (.+) FROM signals").
		WithArgs(anyArgs(2)...).
		WillReturnRows(pgxmock.NewRows(signalColumns()).AddRow(
			"pancakeswap", int64(42), "BULL", 85.0, 92.5, 6, 2, 1,
			"1.5", "STRONG", 80.0, []byte("[]"), time.Now()))

	w := do(s, http.MethodGet, "/api/signals/history?platform=pancakeswap&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pagination"`)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestBacktestRequiresLeader(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodPost, "/api/backtest", map[string]interface{}{
		"startDate": "2026-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "leader")
}

func TestBacktestEmptyHistory(t *testing.T) {
	s, mock, _ := newTestServer(t)

	mock.ExpectQuery("SELECT result FROM backtest_cache").
		WithArgs(anyArgs(2)...).
		WillReturnRows(pgxmock.NewRows([]string{"result"}))
	mock.ExpectQuery("SELECT (.+) FROM bets").
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows([]string{"natural_key"}))
	mock.ExpectExec("INSERT INTO backtest_cache").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := do(s, http.MethodPost, "/api/backtest", map[string]interface{}{
		"leader":    "0xLeader",
		"startDate": "2026-01-01",
		"endDate":   "2026-02-01",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool             `json:"success"`
		Data    *backtest.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data.Trades)
	assert.Equal(t, "0xleader", resp.Data.Settings.Leader)
}

func TestDismissAlert(t *testing.T) {
	s, mock, _ := newTestServer(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE gaming_alerts").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := do(s, http.MethodPost, "/api/alerts/"+id.String()+"/dismiss",
		map[string]string{"reviewedBy": "ops", "notes": "false positive"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfirmUnknownAlertIs404(t *testing.T) {
	s, mock, _ := newTestServer(t)

	mock.ExpectExec("UPDATE gaming_alerts").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	w := do(s, http.MethodPost, "/api/alerts/"+uuid.NewString()+"/confirm", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewAlertBadID(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodPost, "/api/alerts/not-a-uuid/dismiss", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func statsColumns() []string {
	return []string{"address", "platform", "total_bets", "wins", "losses",
		"pending", "win_rate", "volume", "score", "first_bet_at", "last_bet_at"}
}

func TestTraderNotFound(t *testing.T) {
	s, mock, _ := newTestServer(t)
	mock.ExpectQuery("SELECT (.+) FROM user_platform_stats").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows(statsColumns()))

	w := do(s, http.MethodGet, "/api/trader/0xnobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTraderAggregatesPlatforms(t *testing.T) {
	s, mock, _ := newTestServer(t)
	earlier := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM user_platform_stats").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows(statsColumns()).
			AddRow("0xa", "pancakeswap", 60, 40, 20, 0, 66.7, "5.0", 70.0, &earlier, &earlier).
			AddRow("0xa", "polymarket", 40, 24, 16, 0, 60.0, "3.0", 65.0, &earlier, &later))

	w := do(s, http.MethodGet, "/api/trader/0xA", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.UnifiedTrader `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0xa", resp.Data.Address)
	assert.Equal(t, 2, resp.Data.ActivePlatforms)
	assert.Equal(t, 100, resp.Data.TotalBets)
	// 64 wins over 100 resolved bets.
	assert.InDelta(t, 64.0, resp.Data.WinRate, 0.001)
	assert.Equal(t, later, resp.Data.LastActiveAt)
}

func TestWalletAnalyzeFlagsOpenAlerts(t *testing.T) {
	s, mock, _ := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM user_platform_stats").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows(statsColumns()).
			AddRow("0xw", "pancakeswap", 10, 5, 5, 0, 50.0, "1.0", 30.0, &now, &now))
	mock.ExpectQuery("SELECT (.+) FROM gaming_alerts").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "alert_type", "severity",
			"platform", "wallets", "evidence", "recommended_action", "status",
			"reviewed_by", "notes", "created_at", "reviewed_at"}).
			AddRow(uuid.New(), "WASH_TRADING", "CRITICAL", "pancakeswap",
				[]byte(`["0xw"]`), []byte(`{}`), "Exclude from scoring",
				"pending", "", "", now, (*time.Time)(nil)))

	w := do(s, http.MethodGet, "/api/wallet/0xW/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data WalletAnalysis `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Flagged)
	assert.Len(t, resp.Data.OpenAlerts, 1)
	assert.Equal(t, "0xw", resp.Data.Address)
}

func TestLeaderboardFromStore(t *testing.T) {
	s, mock, _ := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM leaderboard_view").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"address", "total_score",
			"tier", "active_platforms", "total_bets", "total_volume",
			"win_rate", "last_active_at"}).
			AddRow("0xa", 920.0, "DIAMOND", 3, 500, "42.0", 68.0, &now).
			AddRow("0xb", 700.0, "PLATINUM", 2, 300, "20.0", 62.0, &now))

	w := do(s, http.MethodGet, "/api/leaderboard/unified?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []models.UnifiedTrader `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, models.TierDiamond, resp.Data[0].Tier)
}

func TestPlatformStatus(t *testing.T) {
	s, mock, _ := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM platform_sync_status").
		WillReturnRows(pgxmock.NewRows([]string{"platform", "last_synced_at",
			"last_block", "last_error", "bets_ingested"}).
			AddRow("pancakeswap", &now, int64(1000), "", int64(250)))

	w := do(s, http.MethodGet, "/api/platforms/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pancakeswap"`)
	assert.Contains(t, w.Body.String(), `"bets_ingested":250`)
}

func TestWebsocketStreamsSignals(t *testing.T) {
	s, _, b := newTestServer(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/signals/subscribe"
	header := http.Header{"X-API-Key": []string{testKey}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	// Let the subscription attach before emitting.
	time.Sleep(50 * time.Millisecond)
	b.Emit(bus.EventSignalGenerated, &models.SmartMoneySignal{
		Platform:  models.PlatformPancakeSwap,
		Epoch:     7,
		Consensus: models.ConsensusBull,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, string(bus.EventSignalGenerated), msg.Type)
	assert.Contains(t, string(msg.Data), `"epoch":7`)
}

func anyArgs(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}
