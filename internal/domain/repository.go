package domain

import "context"

// JobRepository persists generation jobs keyed by provider generation id.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// ApplyTerminal writes a terminal transition. It must be safe to call
	// again with the same update (webhook redelivery).
	ApplyTerminal(ctx context.Context, jobID string, update TerminalUpdate) error
}

// GalleryRepository persists published items and serves the public feed.
type GalleryRepository interface {
	Create(ctx context.Context, item *GalleryItem) error
	// GetPublicByID is the feed's point lookup; it hides private items.
	GetPublicByID(ctx context.Context, id string) (*GalleryItem, error)
	// GetByID looks up any item regardless of visibility (admin paths).
	GetByID(ctx context.Context, id string) (*GalleryItem, error)
	// List returns public items ordered by creation time descending,
	// resuming strictly after the item named by cursor when non-empty.
	List(ctx context.Context, limit int, cursor string) (*GalleryPage, error)
	// Rate folds one rating into an item under the store's transactional
	// read-modify-write; concurrent calls on the same item serialize.
	Rate(ctx context.Context, id string, rating int) (*GalleryItem, error)
	Delete(ctx context.Context, id string) error
}

// RateLimitRepository tracks per-identity submission quota windows.
type RateLimitRepository interface {
	// CheckAndConsume atomically evaluates and, when allowed, consumes one
	// quota unit for the identity.
	CheckAndConsume(ctx context.Context, identityHash string) (allowed bool, remaining int, err error)
	// Refund hands one unit back, clamped at zero. Used only to compensate
	// a submission rejected before provider dispatch.
	Refund(ctx context.Context, identityHash string) error
}
