package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/truthplane/engine/internal/models"
)

// UpsertTopic writes a trending topic keyed by its normalized phrase,
// preserving the original first_seen across refreshes.
func (db *DB) UpsertTopic(ctx context.Context, t *models.TrendingTopic) error {
	platforms, err := json.Marshal(t.Platforms)
	if err != nil {
		return fmt.Errorf("failed to marshal topic platforms: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO trending_topics
			(topic, score, velocity, total_volume, total_markets, category,
			 platforms, first_seen, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (topic) DO UPDATE SET
			score         = EXCLUDED.score,
			velocity      = EXCLUDED.velocity,
			total_volume  = EXCLUDED.total_volume,
			total_markets = EXCLUDED.total_markets,
			category      = EXCLUDED.category,
			platforms     = EXCLUDED.platforms,
			first_seen    = LEAST(trending_topics.first_seen, EXCLUDED.first_seen),
			last_updated  = EXCLUDED.last_updated`,
		t.Topic, t.Score, t.Velocity, t.TotalVolume, t.TotalMarkets,
		t.Category, platforms, t.FirstSeen, t.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert topic %q: %w", t.Topic, err)
	}
	return nil
}

// PruneTopics deletes every topic ranked below the keep cutoff by score.
func (db *DB) PruneTopics(ctx context.Context, keep int) error {
	_, err := db.pool.Exec(ctx, `
		DELETE FROM trending_topics
		WHERE topic NOT IN (
			SELECT topic FROM trending_topics
			ORDER BY score DESC
			LIMIT $1)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune topics: %w", err)
	}
	return nil
}

// GetTopTopics returns the highest-scored topics, optionally filtered by
// category. Empty category means all.
func (db *DB) GetTopTopics(ctx context.Context, category string, limit int) ([]*models.TrendingTopic, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if category == "" {
		rows, err = db.pool.Query(ctx, `
			SELECT topic, score, velocity, total_volume, total_markets,
			       category, platforms, first_seen, last_updated
			FROM trending_topics
			ORDER BY score DESC
			LIMIT $1`, limit)
	} else {
		rows, err = db.pool.Query(ctx, `
			SELECT topic, score, velocity, total_volume, total_markets,
			       category, platforms, first_seen, last_updated
			FROM trending_topics
			WHERE category = $1
			ORDER BY score DESC
			LIMIT $2`, category, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trending topics: %w", err)
	}
	defer rows.Close()

	var out []*models.TrendingTopic
	for rows.Next() {
		var (
			t         models.TrendingTopic
			platforms []byte
		)
		err := rows.Scan(&t.Topic, &t.Score, &t.Velocity, &t.TotalVolume,
			&t.TotalMarkets, &t.Category, &platforms, &t.FirstSeen, &t.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		if len(platforms) > 0 {
			if err := json.Unmarshal(platforms, &t.Platforms); err != nil {
				return nil, fmt.Errorf("failed to unmarshal topic platforms: %w", err)
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// GetTopic fetches one topic by its normalized phrase.
func (db *DB) GetTopic(ctx context.Context, topic string) (*models.TrendingTopic, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT topic, score, velocity, total_volume, total_markets,
		       category, platforms, first_seen, last_updated
		FROM trending_topics
		WHERE topic = $1`, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic %q: %w", topic, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var (
		t         models.TrendingTopic
		platforms []byte
	)
	err = rows.Scan(&t.Topic, &t.Score, &t.Velocity, &t.TotalVolume,
		&t.TotalMarkets, &t.Category, &platforms, &t.FirstSeen, &t.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to scan topic: %w", err)
	}
	if len(platforms) > 0 {
		if err := json.Unmarshal(platforms, &t.Platforms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topic platforms: %w", err)
		}
	}
	return &t, nil
}
