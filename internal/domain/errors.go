package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidPrompt   = errors.New("invalid prompt")
	ErrInvalidRating   = errors.New("invalid rating")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrProviderFailure = errors.New("provider failure")
)
