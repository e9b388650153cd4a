package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

// UpsertUser registers a trader address, refreshing last_active_at on
// conflict. Addresses are normalized before insert.
func (db *DB) UpsertUser(ctx context.Context, address string, activeAt time.Time) error {
	address = models.NormalizeAddress(address)
	_, err := db.pool.Exec(ctx, `
		INSERT INTO users (address, first_seen_at, last_active_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (address) DO UPDATE
		SET last_active_at = GREATEST(users.last_active_at, EXCLUDED.last_active_at)`,
		address, activeAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", address, err)
	}
	return nil
}

// UpdateUserScore persists a freshly computed unified score and tier.
func (db *DB) UpdateUserScore(ctx context.Context, ts models.TruthScore) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE users SET truth_score = $2, tier = $3 WHERE address = $1`,
		ts.Address, ts.TotalScore, string(ts.Tier))
	if err != nil {
		return fmt.Errorf("failed to update score for %s: %w", ts.Address, err)
	}
	return nil
}

// UpsertUserStats writes the per-(trader, platform) rollup.
func (db *DB) UpsertUserStats(ctx context.Context, stats *models.UserStats) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO user_platform_stats
			(address, platform, total_bets, wins, losses, pending, win_rate,
			 volume, score, first_bet_at, last_bet_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (address, platform) DO UPDATE SET
			total_bets   = EXCLUDED.total_bets,
			wins         = EXCLUDED.wins,
			losses       = EXCLUDED.losses,
			pending      = EXCLUDED.pending,
			win_rate     = EXCLUDED.win_rate,
			volume       = EXCLUDED.volume,
			score        = EXCLUDED.score,
			first_bet_at = LEAST(user_platform_stats.first_bet_at, EXCLUDED.first_bet_at),
			last_bet_at  = GREATEST(user_platform_stats.last_bet_at, EXCLUDED.last_bet_at)`,
		stats.Address, string(stats.Platform), stats.TotalBets, stats.Wins,
		stats.Losses, stats.Pending, stats.WinRate, stats.Volume.String(),
		stats.Score, stats.FirstBetAt, stats.LastBetAt)
	if err != nil {
		return fmt.Errorf("failed to upsert stats for %s on %s: %w", stats.Address, stats.Platform, err)
	}
	return nil
}

// GetUserStats returns every per-platform rollup for a trader, keyed by
// platform. Unknown traders return an empty map, not an error.
func (db *DB) GetUserStats(ctx context.Context, address string) (map[models.Platform]*models.UserStats, error) {
	address = models.NormalizeAddress(address)
	rows, err := db.pool.Query(ctx, `
		SELECT address, platform, total_bets, wins, losses, pending, win_rate,
		       volume, score, first_bet_at, last_bet_at
		FROM user_platform_stats
		WHERE address = $1`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for %s: %w", address, err)
	}
	defer rows.Close()

	out := make(map[models.Platform]*models.UserStats)
	for rows.Next() {
		s, err := scanUserStats(rows)
		if err != nil {
			return nil, err
		}
		out[s.Platform] = s
	}
	return out, rows.Err()
}

// GetPlatformStats returns one trader's rollup on one platform.
func (db *DB) GetPlatformStats(ctx context.Context, address string, platform models.Platform) (*models.UserStats, error) {
	address = models.NormalizeAddress(address)
	rows, err := db.pool.Query(ctx, `
		SELECT address, platform, total_bets, wins, losses, pending, win_rate,
		       volume, score, first_bet_at, last_bet_at
		FROM user_platform_stats
		WHERE address = $1 AND platform = $2`, address, string(platform))
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for %s on %s: %w", address, platform, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanUserStats(rows)
}

// TopTradersByScore returns the highest-scored rollups on one platform,
// for tracked-trader selection.
func (db *DB) TopTradersByScore(ctx context.Context, platform models.Platform, limit int) ([]*models.UserStats, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT address, platform, total_bets, wins, losses, pending, win_rate,
		       volume, score, first_bet_at, last_bet_at
		FROM user_platform_stats
		WHERE platform = $1
		ORDER BY score DESC, address ASC
		LIMIT $2`, string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top traders on %s: %w", platform, err)
	}
	defer rows.Close()

	var out []*models.UserStats
	for rows.Next() {
		s, err := scanUserStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanUserStats(rows pgx.Rows) (*models.UserStats, error) {
	var (
		s          models.UserStats
		platform   string
		volume     string
		firstBetAt *time.Time
		lastBetAt  *time.Time
	)
	err := rows.Scan(&s.Address, &platform, &s.TotalBets, &s.Wins, &s.Losses,
		&s.Pending, &s.WinRate, &volume, &s.Score, &firstBetAt, &lastBetAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user stats: %w", err)
	}

	p, err := models.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	s.Platform = p

	s.Volume, err = decimal.NewFromString(volume)
	if err != nil {
		return nil, fmt.Errorf("invalid volume %q: %w", volume, err)
	}
	if firstBetAt != nil {
		s.FirstBetAt = *firstBetAt
	}
	if lastBetAt != nil {
		s.LastBetAt = *lastBetAt
	}
	return &s, nil
}
