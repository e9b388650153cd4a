package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/truthplane/engine/internal/models"
)

// InsertAlert writes a new gaming alert.
func (db *DB) InsertAlert(ctx context.Context, a *models.GamingAlert) error {
	wallets, err := json.Marshal(a.Wallets)
	if err != nil {
		return fmt.Errorf("failed to marshal alert wallets: %w", err)
	}
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal alert evidence: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO gaming_alerts
			(id, alert_type, severity, platform, wallets, evidence,
			 recommended_action, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, string(a.Type), string(a.Severity), string(a.Platform),
		wallets, evidence, a.RecommendedAction, string(a.Status), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
	}
	return nil
}

// HasRecentAlert reports whether an alert of the same type already touches
// any of the wallets inside the suppression window. Used to avoid
// re-raising the same finding every detection cycle.
func (db *DB) HasRecentAlert(ctx context.Context, alertType models.AlertType, wallets []string, since time.Time) (bool, error) {
	walletsJSON, err := json.Marshal(wallets)
	if err != nil {
		return false, fmt.Errorf("failed to marshal wallets: %w", err)
	}

	var exists bool
	err = db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM gaming_alerts
			WHERE alert_type = $1
			  AND created_at >= $2
			  AND wallets ?| ARRAY(SELECT jsonb_array_elements_text($3::jsonb))
		)`, string(alertType), since, walletsJSON).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent alerts: %w", err)
	}
	return exists, nil
}

// GetAlertsByStatus returns alerts in one review state, newest first.
func (db *DB) GetAlertsByStatus(ctx context.Context, status models.AlertStatus, limit int) ([]*models.GamingAlert, error) {
	rows, err := db.pool.Query(ctx, alertSelect+`
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts by status: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// GetOpenAlertsForWallet returns pending or investigating alerts that name
// the wallet.
func (db *DB) GetOpenAlertsForWallet(ctx context.Context, address string) ([]*models.GamingAlert, error) {
	rows, err := db.pool.Query(ctx, alertSelect+`
		WHERE status IN ('pending', 'investigating')
		  AND wallets ? $1
		ORDER BY created_at DESC`, models.NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for %s: %w", address, err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ReviewAlert transitions an alert to a terminal or investigating state.
func (db *DB) ReviewAlert(ctx context.Context, id uuid.UUID, status models.AlertStatus, reviewedBy, notes string, at time.Time) error {
	tag, err := db.pool.Exec(ctx, `
		UPDATE gaming_alerts
		SET status = $2, reviewed_by = $3, notes = $4, reviewed_at = $5
		WHERE id = $1`, id, string(status), reviewedBy, notes, at)
	if err != nil {
		return fmt.Errorf("failed to review alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const alertSelect = `
		SELECT id, alert_type, severity, platform, wallets, evidence,
		       recommended_action, status, reviewed_by, notes, created_at,
		       reviewed_at
		FROM gaming_alerts`

func scanAlerts(rows pgx.Rows) ([]*models.GamingAlert, error) {
	var out []*models.GamingAlert
	for rows.Next() {
		var (
			a         models.GamingAlert
			alertType string
			severity  string
			platform  string
			status    string
			wallets   []byte
			evidence  []byte
		)
		err := rows.Scan(&a.ID, &alertType, &severity, &platform, &wallets,
			&evidence, &a.RecommendedAction, &status, &a.ReviewedBy,
			&a.Notes, &a.CreatedAt, &a.ReviewedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = models.AlertType(alertType)
		a.Severity = models.AlertSeverity(severity)
		a.Platform = models.Platform(platform)
		a.Status = models.AlertStatus(status)
		if err := json.Unmarshal(wallets, &a.Wallets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert wallets: %w", err)
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal alert evidence: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
