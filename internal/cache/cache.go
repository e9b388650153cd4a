// Package cache is the Redis layer in front of derived data: TruthScores,
// current signals, and leaderboard pages. Everything here is rebuildable
// from PostgreSQL, so cache loss is never data loss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/truthplane/engine/internal/models"
)

// ErrMiss is returned on a cache miss.
var ErrMiss = errors.New("cache miss")

const (
	keyScore       = "truthscore:%s"     // address
	keySignal      = "signal:%s:current" // platform
	keyLeaderboard = "leaderboard:unified"
	keyCrossTop    = "crosssignals:strongest"

	scoreTTL       = 5 * time.Minute
	signalTTL      = 10 * time.Minute
	leaderboardTTL = time.Minute
)

// Cache wraps the Redis client.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", addr).Msg("Redis cache connected")
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client. Tests pass a miniredis-backed one.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks connectivity.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetScore returns a cached TruthScore.
func (c *Cache) GetScore(ctx context.Context, address string) (*models.TruthScore, error) {
	var ts models.TruthScore
	if err := c.getJSON(ctx, fmt.Sprintf(keyScore, models.NormalizeAddress(address)), &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// SetScore caches a TruthScore.
func (c *Cache) SetScore(ctx context.Context, ts *models.TruthScore) error {
	return c.setJSON(ctx, fmt.Sprintf(keyScore, ts.Address), ts, scoreTTL)
}

// InvalidateScore drops a trader's cached score, forcing recompute on the
// next read. Called after every settled bet.
func (c *Cache) InvalidateScore(ctx context.Context, address string) error {
	return c.client.Del(ctx, fmt.Sprintf(keyScore, models.NormalizeAddress(address))).Err()
}

// GetCurrentSignal returns the cached current signal for a platform.
func (c *Cache) GetCurrentSignal(ctx context.Context, platform models.Platform) (*models.SmartMoneySignal, error) {
	var s models.SmartMoneySignal
	if err := c.getJSON(ctx, fmt.Sprintf(keySignal, platform), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetCurrentSignal caches the latest signal for a platform.
func (c *Cache) SetCurrentSignal(ctx context.Context, s *models.SmartMoneySignal) error {
	return c.setJSON(ctx, fmt.Sprintf(keySignal, s.Platform), s, signalTTL)
}

// GetLeaderboard returns the cached unified leaderboard page.
func (c *Cache) GetLeaderboard(ctx context.Context) ([]models.UnifiedTrader, error) {
	var rows []models.UnifiedTrader
	if err := c.getJSON(ctx, keyLeaderboard, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SetLeaderboard caches the unified leaderboard page.
func (c *Cache) SetLeaderboard(ctx context.Context, rows []models.UnifiedTrader) error {
	return c.setJSON(ctx, keyLeaderboard, rows, leaderboardTTL)
}

// GetStrongestCrossSignals returns cached fused signals.
func (c *Cache) GetStrongestCrossSignals(ctx context.Context) ([]*models.CrossPlatformSignal, error) {
	var rows []*models.CrossPlatformSignal
	if err := c.getJSON(ctx, keyCrossTop, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SetStrongestCrossSignals caches fused signals until the next fusion cycle.
func (c *Cache) SetStrongestCrossSignals(ctx context.Context, rows []*models.CrossPlatformSignal, ttl time.Duration) error {
	return c.setJSON(ctx, keyCrossTop, rows, ttl)
}

func (c *Cache) getJSON(ctx context.Context, key string, dst interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}
