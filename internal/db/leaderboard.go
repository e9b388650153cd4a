package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truthplane/engine/internal/models"
)

// RefreshLeaderboard rebuilds the denormalized leaderboard rows from
// users and user_platform_stats. Called periodically, not per-request.
func (db *DB) RefreshLeaderboard(ctx context.Context, now time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO leaderboard_view
			(address, total_score, tier, active_platforms, total_bets,
			 total_volume, win_rate, last_active_at, refreshed_at)
		SELECT u.address,
		       u.truth_score,
		       u.tier,
		       COUNT(s.platform),
		       COALESCE(SUM(s.total_bets), 0),
		       COALESCE(SUM(s.volume), 0),
		       CASE WHEN COALESCE(SUM(s.wins + s.losses), 0) = 0 THEN 0
		            ELSE SUM(s.wins)::float / SUM(s.wins + s.losses) * 100 END,
		       u.last_active_at,
		       $1
		FROM users u
		LEFT JOIN user_platform_stats s ON s.address = u.address
		GROUP BY u.address, u.truth_score, u.tier, u.last_active_at
		ON CONFLICT (address) DO UPDATE SET
			total_score      = EXCLUDED.total_score,
			tier             = EXCLUDED.tier,
			active_platforms = EXCLUDED.active_platforms,
			total_bets       = EXCLUDED.total_bets,
			total_volume     = EXCLUDED.total_volume,
			win_rate         = EXCLUDED.win_rate,
			last_active_at   = EXCLUDED.last_active_at,
			refreshed_at     = EXCLUDED.refreshed_at`, now)
	if err != nil {
		return fmt.Errorf("failed to refresh leaderboard: %w", err)
	}
	return nil
}

// GetLeaderboard returns the top unified traders by score.
func (db *DB) GetLeaderboard(ctx context.Context, limit int) ([]models.UnifiedTrader, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT address, total_score, tier, active_platforms, total_bets,
		       total_volume, win_rate, last_active_at
		FROM leaderboard_view
		ORDER BY total_score DESC, active_platforms DESC, address ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.UnifiedTrader
	for rows.Next() {
		var (
			t          models.UnifiedTrader
			tier       string
			volume     string
			lastActive *time.Time
		)
		err := rows.Scan(&t.Address, &t.TotalScore, &tier, &t.ActivePlatforms,
			&t.TotalBets, &volume, &t.WinRate, &lastActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		t.Tier = models.Tier(tier)
		if t.TotalVolume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("invalid leaderboard volume %q: %w", volume, err)
		}
		if lastActive != nil {
			t.LastActiveAt = *lastActive
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
