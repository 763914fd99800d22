package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gallinga/internal/domain"
)

// RateLimitRepositoryPG implements domain.RateLimitRepository with one row
// per identity, evaluated under a row lock so concurrent submissions from
// the same identity serialize.
type RateLimitRepositoryPG struct {
	pool     *pgxpool.Pool
	limit    int
	duration time.Duration
	now      func() time.Time
}

// NewRateLimitRepository creates a quota repository with the configured
// per-window limit and window duration.
func NewRateLimitRepository(pool *pgxpool.Pool, limit int, duration time.Duration) *RateLimitRepositoryPG {
	return &RateLimitRepositoryPG{pool: pool, limit: limit, duration: duration, now: time.Now}
}

// CheckAndConsume atomically evaluates the identity's window and consumes one
// unit when allowed.
func (r *RateLimitRepositoryPG) CheckAndConsume(ctx context.Context, identityHash string) (bool, int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	var win *domain.RateLimitWindow
	row := tx.QueryRow(ctx, `SELECT count, window_start FROM rate_limit_windows WHERE identity_hash = $1 FOR UPDATE;`, identityHash)
	var current domain.RateLimitWindow
	switch err := row.Scan(&current.Count, &current.WindowStart); {
	case errors.Is(err, pgx.ErrNoRows):
		win = nil
	case err != nil:
		return false, 0, err
	default:
		current.IdentityHash = identityHash
		win = &current
	}

	decision := domain.DecideWindow(win, r.now(), r.limit, r.duration)
	if decision.Allowed {
		upsert := `
INSERT INTO rate_limit_windows (identity_hash, count, window_start)
VALUES ($1, $2, $3)
ON CONFLICT (identity_hash) DO UPDATE SET count = $2, window_start = $3;
`
		if _, err := tx.Exec(ctx, upsert, identityHash, decision.Count, decision.WindowStart); err != nil {
			return false, 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, err
	}
	return decision.Allowed, decision.Remaining, nil
}

// Refund hands one quota unit back, clamped at zero.
func (r *RateLimitRepositoryPG) Refund(ctx context.Context, identityHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE rate_limit_windows SET count = GREATEST(count - 1, 0) WHERE identity_hash = $1;`,
		identityHash)
	return err
}
