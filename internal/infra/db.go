package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDBPool initializes a new pgx connection pool using the provided configuration.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return pool, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id               TEXT PRIMARY KEY,
		status           TEXT NOT NULL,
		original_prompt  TEXT NOT NULL,
		refined_prompt   TEXT NOT NULL DEFAULT '',
		identity_hash    TEXT NOT NULL,
		result_image_ref TEXT NOT NULL DEFAULT '',
		failure_reason   TEXT NOT NULL DEFAULT '',
		webhook_payload  JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS gallery_items (
		id                TEXT PRIMARY KEY,
		image_url         TEXT NOT NULL,
		prompt            TEXT NOT NULL,
		creator_name      TEXT NOT NULL,
		creator_instagram TEXT NOT NULL DEFAULT '',
		provider          TEXT NOT NULL DEFAULT '',
		generation_id     TEXT NOT NULL DEFAULT '',
		is_public         BOOLEAN NOT NULL DEFAULT TRUE,
		total_rating_sum  BIGINT NOT NULL DEFAULT 0,
		rating_count      BIGINT NOT NULL DEFAULT 0,
		average_rating    DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_gallery_public_created
		ON gallery_items (created_at DESC, id DESC) WHERE is_public;`,
	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		identity_hash TEXT PRIMARY KEY,
		count         INT NOT NULL,
		window_start  TIMESTAMPTZ NOT NULL
	);`,
}

// EnsureSchema creates the tables the service needs when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
