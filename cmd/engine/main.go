// The engine binary runs the whole intelligence plane in one process:
// adapter ingestion, the analyzer bots, alert delivery, and the REST and
// WebSocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/truthplane/engine/internal/adapters"
	"github.com/truthplane/engine/internal/alertsink"
	"github.com/truthplane/engine/internal/analyzers/antigaming"
	"github.com/truthplane/engine/internal/analyzers/crossmarket"
	"github.com/truthplane/engine/internal/analyzers/smartmoney"
	"github.com/truthplane/engine/internal/analyzers/trends"
	"github.com/truthplane/engine/internal/api"
	"github.com/truthplane/engine/internal/bus"
	"github.com/truthplane/engine/internal/cache"
	"github.com/truthplane/engine/internal/chain"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/copytrade"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/internal/ingest"
	"github.com/truthplane/engine/internal/metrics"
	"github.com/truthplane/engine/internal/vault"
	"github.com/truthplane/engine/pkg/backtest"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("engine")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resolveSecrets(ctx, cfg)

	store, err := db.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	var c *cache.Cache
	if cfg.Redis.Enabled {
		c, err = cache.New(ctx, cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// The store is authoritative; run without the cache.
			logger.Warn().Err(err).Msg("Redis unavailable, caching disabled")
			c = nil
		} else {
			defer c.Close()
		}
	}

	b := bus.New()
	b.Subscribe(bus.Wildcard, func(ev bus.Event) {
		metrics.BusEvents.WithLabelValues(string(ev.Type)).Inc()
	})

	if cfg.NATS.Enabled {
		bridge, err := bus.NewNATSBridge(b, bus.NATSBridgeConfig{
			URL:    cfg.NATS.URL,
			Prefix: cfg.NATS.Prefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("NATS unavailable, event mirror disabled")
		} else {
			defer bridge.Close()
		}
	}

	var bscChain *chain.Client
	if bsc, ok := cfg.Chains["bsc"]; ok && cfg.Adapters.IsEnabled("pancakeswap") {
		bscChain, err = chain.Dial(ctx, bsc.RPCURL, chain.Options{
			ChainID:    bsc.ChainID,
			BlockChunk: bsc.BlockChunk,
			ChunkDelay: time.Duration(bsc.ChunkDelay) * time.Millisecond,
		}, config.NewLogger("chain"))
		if err != nil {
			logger.Warn().Err(err).Msg("BSC unavailable, on-chain adapters disabled")
		}
	}

	registry, err := adapters.BuildRegistry(&cfg.Adapters, bscChain, config.NewLogger("adapters"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build adapter registry")
	}

	pipeline := ingest.New(store, c, b, registry, config.NewLogger("ingest"))
	pipeline.Start(ctx)
	defer pipeline.Stop()

	sinks := []alertsink.Sink{alertsink.NewLogSink(config.NewLogger("alerts"))}
	if cfg.Alerting.TelegramToken != "" {
		tg, err := alertsink.NewTelegramSink(cfg.Alerting.TelegramToken, cfg.Alerting.TelegramChatID)
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram unavailable, alert channel disabled")
		} else {
			sinks = append(sinks, tg)
		}
	}
	router := alertsink.NewRouter(b, config.NewLogger("alerts"), sinks...)
	router.Start()
	defer router.Stop()

	runner := backtest.NewRunner(store, cfg.Bots.Backtest.CacheTTL, config.NewLogger("backtest"))
	server := api.NewServer(cfg.API, store, c, b, runner, config.NewLogger("api"))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pipeline.WatchMarkets(ctx, cfg.Adapters.PollInterval)
		return nil
	})

	g.Go(func() error {
		pipeline.WatchResolutions(ctx, cfg.Adapters.PollInterval)
		return nil
	})

	g.Go(func() error {
		refreshLeaderboard(ctx, store, c, logger)
		return nil
	})

	if cfg.Bots.SmartMoney.Enabled {
		sm := smartmoney.New(store, c, b, cfg.Bots.SmartMoney, config.NewLogger("smart_money"))
		g.Go(func() error { sm.Start(ctx); return nil })
	}
	if cfg.Bots.Trends.Enabled {
		td := trends.New(store, b, cfg.Bots.Trends, config.NewLogger("trends"))
		g.Go(func() error { td.Start(ctx); return nil })
	}
	if cfg.Bots.Cross.Enabled {
		cm := crossmarket.New(store, c, b, cfg.Bots.Cross, config.NewLogger("cross_market"))
		g.Go(func() error { cm.Start(ctx); return nil })
	}
	if cfg.Bots.AntiGaming.Enabled {
		ag := antigaming.New(store, b, cfg.Bots.AntiGaming, config.NewLogger("anti_gaming"))
		g.Go(func() error { ag.Start(ctx); return nil })
	}
	if cfg.Bots.CopyTrade.Enabled {
		ct := copytrade.New(b, cfg.Bots.CopyTrade, cfg.Bots.CopyTrade.Portfolio, nil,
			config.NewLogger("copy_trade"))
		g.Go(func() error { ct.Start(ctx); return nil })
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Port) })
	}

	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Stop(shutdownCtx)
	})

	logger.Info().Str("environment", cfg.App.Environment).Msg("Engine started")

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Engine exited with error")
	}
	logger.Info().Msg("Engine stopped")
}

// resolveSecrets overlays Vault secrets onto the loaded config. Missing
// keys leave the file/env values in place.
func resolveSecrets(ctx context.Context, cfg *config.Config) {
	if !cfg.Vault.Enabled {
		return
	}
	client, err := vault.NewClient(vault.Config{
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
		Mount:   cfg.Vault.Mount,
		Path:    cfg.Vault.Path,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Vault unavailable, using config secrets")
		return
	}
	secrets, err := client.Secrets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Vault secret read failed, using config secrets")
		return
	}
	vault.Resolve(secrets, "database_password", &cfg.Database.Password)
	vault.Resolve(secrets, "redis_password", &cfg.Redis.Password)
	vault.Resolve(secrets, "api_shared_key", &cfg.API.SharedKey)
	vault.Resolve(secrets, "telegram_token", &cfg.Alerting.TelegramToken)
}

// refreshLeaderboard periodically rebuilds the denormalized leaderboard
// view and re-warms its cache page until ctx is cancelled.
func refreshLeaderboard(ctx context.Context, store *db.DB, c *cache.Cache, logger zerolog.Logger) {
	const interval = 5 * time.Minute
	const cachedRows = 500

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := store.RefreshLeaderboard(ctx, time.Now()); err != nil {
			logger.Warn().Err(err).Msg("Leaderboard refresh failed")
			continue
		}
		if c == nil {
			continue
		}
		rows, err := store.GetLeaderboard(ctx, cachedRows)
		if err != nil {
			logger.Warn().Err(err).Msg("Leaderboard reload failed")
			continue
		}
		if err := c.SetLeaderboard(ctx, rows); err != nil {
			logger.Warn().Err(err).Msg("Leaderboard cache write failed")
		}
	}
}

// serveMetrics runs the Prometheus scrape endpoint on its own port so the
// API shared key never gates monitoring.
func serveMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	}
}
