package db

import (
	"context"
	"fmt"
	"time"

	"github.com/truthplane/engine/internal/models"
)

// SyncStatus is one adapter's ingest checkpoint, reported on the platform
// status endpoint and used to resume chain backfills.
type SyncStatus struct {
	Platform     models.Platform `json:"platform"`
	LastSyncedAt *time.Time      `json:"last_synced_at"`
	LastBlock    uint64          `json:"last_block"`
	LastError    string          `json:"last_error,omitempty"`
	BetsIngested int64           `json:"bets_ingested"`
}

// UpdateSyncStatus records a successful ingest cycle, clearing any prior
// error and adding to the running bet count.
func (db *DB) UpdateSyncStatus(ctx context.Context, platform models.Platform, lastBlock uint64, ingested int64, at time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO platform_sync_status
			(platform, last_synced_at, last_block, last_error, bets_ingested)
		VALUES ($1, $2, $3, '', $4)
		ON CONFLICT (platform) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_block     = GREATEST(platform_sync_status.last_block, EXCLUDED.last_block),
			last_error     = '',
			bets_ingested  = platform_sync_status.bets_ingested + EXCLUDED.bets_ingested`,
		string(platform), at, int64(lastBlock), ingested)
	if err != nil {
		return fmt.Errorf("failed to update sync status for %s: %w", platform, err)
	}
	return nil
}

// RecordSyncError notes an adapter failure without touching the checkpoint.
func (db *DB) RecordSyncError(ctx context.Context, platform models.Platform, syncErr string) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO platform_sync_status (platform, last_error)
		VALUES ($1, $2)
		ON CONFLICT (platform) DO UPDATE SET last_error = EXCLUDED.last_error`,
		string(platform), syncErr)
	if err != nil {
		return fmt.Errorf("failed to record sync error for %s: %w", platform, err)
	}
	return nil
}

// GetSyncStatus returns every platform's checkpoint.
func (db *DB) GetSyncStatus(ctx context.Context) ([]SyncStatus, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT platform, last_synced_at, last_block, last_error, bets_ingested
		FROM platform_sync_status
		ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync status: %w", err)
	}
	defer rows.Close()

	var out []SyncStatus
	for rows.Next() {
		var (
			s        SyncStatus
			platform string
			block    int64
		)
		if err := rows.Scan(&platform, &s.LastSyncedAt, &block, &s.LastError, &s.BetsIngested); err != nil {
			return nil, fmt.Errorf("failed to scan sync status: %w", err)
		}
		s.Platform = models.Platform(platform)
		s.LastBlock = uint64(block)
		out = append(out, s)
	}
	return out, rows.Err()
}
