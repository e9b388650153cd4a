// Package api exposes the engine over REST and WebSocket: current and
// historical signals, trends, cross-platform signals, the unified
// leaderboard, wallet analysis, the alert review queue, backtests, and a
// live projection of the event bus.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/cache"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/metrics"
	"github.com/truthplane/engine/pkg/backtest"
)

// Server is the REST/WebSocket front of the engine.
type Server struct {
	router *gin.Engine
	store  *db.DB
	cache  *cache.Cache // nil disables read-through caching
	bus    *bus.Bus
	runner *backtest.Runner
	cfg    config.APIConfig
	log    zerolog.Logger
	server *http.Server
}

// NewServer wires the routes. cache may be nil.
func NewServer(cfg config.APIConfig, store *db.DB, c *cache.Cache, b *bus.Bus, runner *backtest.Runner, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router: router,
		store:  store,
		cache:  c,
		bus:    b,
		runner: runner,
		cfg:    cfg,
		log:    log.With().Str("component", "api").Logger(),
	}
	router.Use(s.loggerMiddleware())
	s.setupRoutes()
	return s
}

// Start serves until Stop or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.GetAPIAddr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.cfg.GetAPIAddr()).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully, cancelling in-flight requests when
// ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info().Msg("Stopping API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		evt := s.log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if len(c.Errors) > 0 {
			evt.Str("errors", c.Errors.String())
		}
		evt.Msg("API request")
	}
}

// authMiddleware enforces the shared key on everything but /health. An
// empty configured key disables auth entirely.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.SharedKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != s.cfg.SharedKey {
			s.log.Warn().Str("ip", c.ClientIP()).Str("path", c.Request.URL.Path).
				Msg("Rejected request with missing or wrong API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid API key",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.authMiddleware())
	{
		signals := api.Group("/signals")
		{
			signals.GET("/current/:platform", s.handleCurrentSignal)
			signals.GET("/history", s.handleSignalHistory)
			signals.GET("/subscribe", s.handleSubscribe)
		}

		api.POST("/backtest", s.handleBacktest)

		alerts := api.Group("/alerts")
		{
			alerts.GET("/pending", s.handlePendingAlerts)
			alerts.POST("/:id/dismiss", s.reviewAlertHandler(false))
			alerts.POST("/:id/confirm", s.reviewAlertHandler(true))
		}

		api.GET("/wallet/:address/analyze", s.handleWalletAnalyze)
		api.GET("/trends", s.handleTrends)
		api.GET("/cross-signals/strongest", s.handleStrongestCrossSignals)
		api.GET("/leaderboard/unified", s.handleLeaderboard)
		api.GET("/trader/:address", s.handleTrader)
		api.GET("/platforms/status", s.handlePlatformStatus)
	}
}
