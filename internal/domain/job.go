package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusFailed   JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are permitted from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Job tracks one attempt to generate an image from a user prompt. The
// identifier is assigned by the image provider and doubles as the webhook
// correlation key. Jobs are an audit trail and are never deleted.
type Job struct {
	ID             string
	Status         JobStatus
	OriginalPrompt string
	RefinedPrompt  string
	IdentityHash   string
	ResultImageRef string
	FailureReason  string
	WebhookPayload []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	// PromptMinLen and PromptMaxLen bound the user prompt after trimming.
	PromptMinLen = 5
	PromptMaxLen = 250
)

// ValidatePrompt returns the trimmed prompt or ErrInvalidPrompt when it falls
// outside the accepted length bounds.
func ValidatePrompt(prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < PromptMinLen || len(trimmed) > PromptMaxLen {
		return "", fmt.Errorf("prompt must be between %d and %d characters: %w", PromptMinLen, PromptMaxLen, ErrInvalidPrompt)
	}
	return trimmed, nil
}

// NewPendingJob builds the job row persisted at submission time.
func NewPendingJob(generationID, originalPrompt, refinedPrompt, identityHash string, now time.Time) *Job {
	return &Job{
		ID:             generationID,
		Status:         JobStatusPending,
		OriginalPrompt: originalPrompt,
		RefinedPrompt:  refinedPrompt,
		IdentityHash:   identityHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TerminalUpdate carries the fields a webhook delivery writes onto a job.
// Re-delivery of the same terminal event re-applies the same fields
// (last-write-wins), so applying an update to an already-terminal job is not
// an error.
type TerminalUpdate struct {
	Status         JobStatus
	ResultImageRef string
	FailureReason  string
	WebhookPayload []byte
}

// Validate enforces the terminal-state field invariants: a result reference
// exactly when COMPLETE, a failure reason exactly when FAILED.
func (u TerminalUpdate) Validate() error {
	switch u.Status {
	case JobStatusComplete:
		if u.ResultImageRef == "" {
			return fmt.Errorf("complete update without result reference: %w", ErrInvalidArgument)
		}
		if u.FailureReason != "" {
			return fmt.Errorf("complete update with failure reason: %w", ErrInvalidArgument)
		}
	case JobStatusFailed:
		if u.FailureReason == "" {
			return fmt.Errorf("failed update without reason: %w", ErrInvalidArgument)
		}
		if u.ResultImageRef != "" {
			return fmt.Errorf("failed update with result reference: %w", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("status %q is not terminal: %w", u.Status, ErrInvalidArgument)
	}
	return nil
}
