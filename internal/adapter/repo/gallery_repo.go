package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"gallinga/internal/domain"
)

const galleryColumns = `id, image_url, prompt, creator_name, creator_instagram, provider, generation_id, is_public, total_rating_sum, rating_count, average_rating, created_at`

// GalleryRepositoryPG implements domain.GalleryRepository.
type GalleryRepositoryPG struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewGalleryRepository creates a new gallery repository backed by PostgreSQL.
func NewGalleryRepository(pool *pgxpool.Pool, logger zerolog.Logger) *GalleryRepositoryPG {
	return &GalleryRepositoryPG{pool: pool, logger: logger}
}

// Create inserts a freshly published item.
func (r *GalleryRepositoryPG) Create(ctx context.Context, item *domain.GalleryItem) error {
	query := `
INSERT INTO gallery_items (id, image_url, prompt, creator_name, creator_instagram, provider, generation_id, is_public, total_rating_sum, rating_count, average_rating, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		item.ID,
		item.ImageURL,
		item.Prompt,
		item.CreatorName,
		item.CreatorInstagram,
		item.Provider,
		item.GenerationID,
		item.IsPublic,
		item.TotalRatingSum,
		item.RatingCount,
		item.AverageRating,
		item.CreatedAt,
	)
	return err
}

// GetPublicByID fetches a single public item.
func (r *GalleryRepositoryPG) GetPublicByID(ctx context.Context, id string) (*domain.GalleryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM gallery_items WHERE id = $1 AND is_public;`, galleryColumns)
	return r.getOne(ctx, query, id)
}

// GetByID fetches an item regardless of visibility.
func (r *GalleryRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GalleryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM gallery_items WHERE id = $1;`, galleryColumns)
	return r.getOne(ctx, query, id)
}

func (r *GalleryRepositoryPG) getOne(ctx context.Context, query, id string) (*domain.GalleryItem, error) {
	item, err := scanGalleryItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// List serves one feed page in creation-time descending order using keyset
// pagination on (created_at, id). A cursor naming a since-deleted item is
// logged and ignored, which restarts the feed from the top.
func (r *GalleryRepositoryPG) List(ctx context.Context, limit int, cursor string) (*domain.GalleryPage, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if cursor != "" {
		var anchor time.Time
		lookErr := r.pool.QueryRow(ctx, `SELECT created_at FROM gallery_items WHERE id = $1;`, cursor).Scan(&anchor)
		switch {
		case errors.Is(lookErr, pgx.ErrNoRows):
			r.logger.Warn().Str("cursor", cursor).Msg("gallery cursor references a missing item, serving from the top")
			cursor = ""
		case lookErr != nil:
			return nil, lookErr
		default:
			query := fmt.Sprintf(`
SELECT %s FROM gallery_items
WHERE is_public AND (created_at, id) < ($1, $2)
ORDER BY created_at DESC, id DESC
LIMIT $3;`, galleryColumns)
			rows, err = r.pool.Query(ctx, query, anchor, cursor, limit)
		}
	}
	if cursor == "" {
		query := fmt.Sprintf(`
SELECT %s FROM gallery_items
WHERE is_public
ORDER BY created_at DESC, id DESC
LIMIT $1;`, galleryColumns)
		rows, err = r.pool.Query(ctx, query, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &domain.GalleryPage{Items: make([]domain.GalleryItem, 0, limit)}
	for rows.Next() {
		item, err := scanGalleryItem(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(page.Items) == limit {
		page.NextCursor = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}

// Rate folds one rating into an item inside a transaction with a row lock,
// so concurrent raters on the same item serialize.
func (r *GalleryRepositoryPG) Rate(ctx context.Context, id string, rating int) (*domain.GalleryItem, error) {
	if err := domain.ValidateRating(rating); err != nil {
		return nil, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`SELECT %s FROM gallery_items WHERE id = $1 FOR UPDATE;`, galleryColumns)
	item, err := scanGalleryItem(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := item.ApplyRating(rating); err != nil {
		return nil, err
	}

	update := `
UPDATE gallery_items
SET total_rating_sum = $2, rating_count = $3, average_rating = $4
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, update, id, item.TotalRatingSum, item.RatingCount, item.AverageRating); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes the document record.
func (r *GalleryRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM gallery_items WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanGalleryItem(row pgx.Row) (*domain.GalleryItem, error) {
	var item domain.GalleryItem
	if err := row.Scan(
		&item.ID,
		&item.ImageURL,
		&item.Prompt,
		&item.CreatorName,
		&item.CreatorInstagram,
		&item.Provider,
		&item.GenerationID,
		&item.IsPublic,
		&item.TotalRatingSum,
		&item.RatingCount,
		&item.AverageRating,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}
