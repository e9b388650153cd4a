package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/models"
	"github.com/truthplane/engine/internal/scoring"
	"github.com/truthplane/engine/pkg/backtest"
)

const defaultListLimit = 20

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func limitParam(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if err := s.store.Health(c.Request.Context()); err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"bots":      s.bus.Stats(),
	})
}

func (s *Server) handleCurrentSignal(c *gin.Context) {
	platform, err := models.ParsePlatform(c.Param("platform"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	if s.cache != nil {
		if sig, err := s.cache.GetCurrentSignal(ctx, platform); err == nil && sig != nil {
			ok(c, sig)
			return
		}
	}

	history, err := s.store.GetSignalHistory(ctx, platform, 1)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if len(history) == 0 {
		ok(c, nil)
		return
	}
	ok(c, history[0])
}

func (s *Server) handleSignalHistory(c *gin.Context) {
	limit := limitParam(c, defaultListLimit, 200)
	ctx := c.Request.Context()

	var (
		signals []*models.SmartMoneySignal
		err     error
	)
	if raw := c.Query("platform"); raw != "" {
		platform, perr := models.ParsePlatform(raw)
		if perr != nil {
			fail(c, http.StatusBadRequest, perr.Error())
			return
		}
		signals, err = s.store.GetSignalHistory(ctx, platform, limit)
	} else {
		signals, err = s.store.GetSignalsSince(ctx, time.Now().Add(-24*time.Hour))
		if err == nil && len(signals) > limit {
			signals = signals[:limit]
		}
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    signals,
		"pagination": gin.H{
			"limit": limit,
			"count": len(signals),
		},
	})
}

type backtestRequest struct {
	Leader            string  `json:"leader"`
	StartDate         string  `json:"startDate"`
	EndDate           string  `json:"endDate"`
	InitialCapital    float64 `json:"initialCapital"`
	AllocationPercent float64 `json:"allocationPercent"`
	MaxBetSize        float64 `json:"maxBetSize"`
	Compounding       bool    `json:"compounding"`
	StopLossPercent   float64 `json:"stopLossPercent"`
}

// parseDate accepts RFC 3339 or a plain date.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Leader == "" {
		fail(c, http.StatusBadRequest, "leader address is required")
		return
	}

	settings := backtest.Settings{
		Leader:            req.Leader,
		InitialCapital:    req.InitialCapital,
		AllocationPercent: req.AllocationPercent,
		MaxBetSize:        req.MaxBetSize,
		Compounding:       req.Compounding,
		StopLossPercent:   req.StopLossPercent,
	}

	now := time.Now().UTC()
	settings.Start = now.AddDate(0, -3, 0)
	settings.End = now
	if req.StartDate != "" {
		t, err := parseDate(req.StartDate)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid startDate: "+err.Error())
			return
		}
		settings.Start = t
	}
	if req.EndDate != "" {
		t, err := parseDate(req.EndDate)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid endDate: "+err.Error())
			return
		}
		settings.End = t
	}

	result, err := s.runner.Run(c.Request.Context(), settings)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, result)
}

func (s *Server) handlePendingAlerts(c *gin.Context) {
	alerts, err := s.store.GetAlertsByStatus(c.Request.Context(), models.AlertPending, limitParam(c, 50, 200))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, alerts)
}

type alertReviewRequest struct {
	ReviewedBy string `json:"reviewedBy"`
	Notes      string `json:"notes"`
}

func (s *Server) reviewAlertHandler(confirm bool) gin.HandlerFunc {
	status := models.AlertDismissed
	if confirm {
		status = models.AlertConfirmed
	}
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid alert id")
			return
		}

		var req alertReviewRequest
		// Body is optional; a bare POST reviews anonymously.
		_ = c.ShouldBindJSON(&req)

		err = s.store.ReviewAlert(c.Request.Context(), id, status, req.ReviewedBy, req.Notes, time.Now().UTC())
		if errors.Is(err, db.ErrNotFound) {
			fail(c, http.StatusNotFound, "alert not found")
			return
		}
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// WalletAnalysis bundles everything the review UI shows about one wallet.
type WalletAnalysis struct {
	Address    string                                `json:"address"`
	TruthScore models.TruthScore                     `json:"truth_score"`
	Stats      map[models.Platform]*models.UserStats `json:"stats"`
	OpenAlerts []*models.GamingAlert                 `json:"open_alerts"`
	Flagged    bool                                  `json:"flagged"`
}

func (s *Server) handleWalletAnalyze(c *gin.Context) {
	address := models.NormalizeAddress(c.Param("address"))
	ctx := c.Request.Context()

	stats, err := s.store.GetUserStats(ctx, address)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	alerts, err := s.store.GetOpenAlertsForWallet(ctx, address)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	ok(c, WalletAnalysis{
		Address:    address,
		TruthScore: scoring.Compute(address, stats, time.Now().UTC()),
		Stats:      stats,
		OpenAlerts: alerts,
		Flagged:    len(alerts) > 0,
	})
}

func (s *Server) handleTrends(c *gin.Context) {
	topics, err := s.store.GetTopTopics(c.Request.Context(), c.Query("category"), limitParam(c, defaultListLimit, 100))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, topics)
}

func (s *Server) handleStrongestCrossSignals(c *gin.Context) {
	ctx := c.Request.Context()
	limit := limitParam(c, 10, 100)

	if s.cache != nil {
		if rows, err := s.cache.GetStrongestCrossSignals(ctx); err == nil && len(rows) > 0 {
			if len(rows) > limit {
				rows = rows[:limit]
			}
			ok(c, rows)
			return
		}
	}

	rows, err := s.store.GetActiveCrossSignals(ctx, time.Now().UTC(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, rows)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	limit := limitParam(c, 50, 500)

	if s.cache != nil {
		if rows, err := s.cache.GetLeaderboard(ctx); err == nil && len(rows) > 0 {
			if len(rows) > limit {
				rows = rows[:limit]
			}
			ok(c, rows)
			return
		}
	}

	rows, err := s.store.GetLeaderboard(ctx, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, rows)
}

func (s *Server) handleTrader(c *gin.Context) {
	address := models.NormalizeAddress(c.Param("address"))
	ctx := c.Request.Context()

	stats, err := s.store.GetUserStats(ctx, address)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if len(stats) == 0 {
		fail(c, http.StatusNotFound, "trader not found")
		return
	}

	ok(c, buildTrader(address, stats, time.Now().UTC()))
}

// buildTrader assembles a leaderboard row from per-platform stats, for
// traders not yet materialized in the leaderboard view.
func buildTrader(address string, stats map[models.Platform]*models.UserStats, now time.Time) models.UnifiedTrader {
	ts := scoring.Compute(address, stats, now)

	trader := models.UnifiedTrader{
		Address:    address,
		TotalScore: ts.TotalScore,
		Tier:       ts.Tier,
	}
	var wins, resolved int
	for _, st := range stats {
		trader.ActivePlatforms++
		trader.TotalBets += st.TotalBets
		trader.TotalVolume = trader.TotalVolume.Add(st.Volume)
		wins += st.Wins
		resolved += st.Resolved()
		if st.LastBetAt.After(trader.LastActiveAt) {
			trader.LastActiveAt = st.LastBetAt
		}
	}
	if resolved > 0 {
		trader.WinRate = float64(wins) / float64(resolved) * 100
	}
	return trader
}

func (s *Server) handlePlatformStatus(c *gin.Context) {
	rows, err := s.store.GetSyncStatus(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, rows)
}
