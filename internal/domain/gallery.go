package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// GalleryItem is a published story chapter. Rating fields are the only
// mutable part after creation; everything else is written once by the
// publication step.
type GalleryItem struct {
	ID               string
	ImageURL         string
	Prompt           string
	CreatorName      string
	CreatorInstagram string
	Provider         string
	GenerationID     string
	IsPublic         bool
	TotalRatingSum   int64
	RatingCount      int64
	AverageRating    float64
	CreatedAt        time.Time
}

const (
	RatingMin = 1
	RatingMax = 5

	creatorFieldMaxLen = 30
)

// ValidateRating checks a rating value against the accepted 1..5 range.
func ValidateRating(rating int) error {
	if rating < RatingMin || rating > RatingMax {
		return fmt.Errorf("rating %d outside [%d,%d]: %w", rating, RatingMin, RatingMax, ErrInvalidRating)
	}
	return nil
}

// ApplyRating folds one rating into the aggregate and recomputes the average
// rounded to two decimals. Callers must run it inside the store's
// read-modify-write primitive; the arithmetic itself is pure.
func (g *GalleryItem) ApplyRating(rating int) error {
	if err := ValidateRating(rating); err != nil {
		return err
	}
	g.TotalRatingSum += int64(rating)
	g.RatingCount++
	g.AverageRating = RoundAverage(g.TotalRatingSum, g.RatingCount)
	return nil
}

// RoundAverage computes sum/count rounded to two decimals, zero when count
// is zero.
func RoundAverage(sum, count int64) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*100) / 100
}

// SanitizeCreatorName strips everything but letters, digits and spaces
// (accented Spanish characters included) and caps the length, defaulting to
// the anonymous byline.
func SanitizeCreatorName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			return r
		}
		return -1
	}, strings.TrimSpace(name))
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "Anónimo"
	}
	return truncateRunes(cleaned, creatorFieldMaxLen)
}

// SanitizeInstagramHandle keeps the usual handle alphabet and caps the length.
func SanitizeInstagramHandle(handle string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, strings.TrimSpace(strings.TrimPrefix(handle, "@")))
	return truncateRunes(cleaned, creatorFieldMaxLen)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// GalleryPage is one slice of the public feed. NextCursor is empty once a
// page comes back short, which the feed treats as end-of-feed even though a
// concurrent insert can make that signal fire one page early.
type GalleryPage struct {
	Items      []GalleryItem
	NextCursor string
}
