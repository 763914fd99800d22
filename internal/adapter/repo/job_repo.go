package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gallinga/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new pending job row.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, status, original_prompt, refined_prompt, identity_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.OriginalPrompt,
		job.RefinedPrompt,
		job.IdentityHash,
		job.CreatedAt,
	)
	return err
}

// GetByID fetches a job by its provider generation id.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, status, original_prompt, refined_prompt, identity_hash, result_image_ref, failure_reason, webhook_payload, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.OriginalPrompt,
		&job.RefinedPrompt,
		&job.IdentityHash,
		&job.ResultImageRef,
		&job.FailureReason,
		&job.WebhookPayload,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ApplyTerminal writes a terminal transition. Redelivered webhooks re-apply
// the same fields, so the write is a plain last-write-wins update.
func (r *JobRepositoryPG) ApplyTerminal(ctx context.Context, jobID string, update domain.TerminalUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	query := `
UPDATE jobs
SET status = $2,
    result_image_ref = $3,
    failure_reason = $4,
    webhook_payload = COALESCE($5, webhook_payload),
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		jobID,
		update.Status,
		update.ResultImageRef,
		update.FailureReason,
		nullableBytes(update.WebhookPayload),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
