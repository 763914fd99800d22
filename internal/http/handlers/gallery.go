package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gallinga/internal/domain"
)

const (
	galleryDefaultLimit = 12
	galleryMaxLimit     = 50
)

type galleryItemResponse struct {
	ID               string  `json:"id"`
	ImageURL         string  `json:"imageUrl"`
	Prompt           string  `json:"prompt"`
	CreatorName      string  `json:"creatorName"`
	CreatorInstagram string  `json:"creatorInstagram,omitempty"`
	AverageRating    float64 `json:"averageRating"`
	RatingCount      int64   `json:"ratingCount"`
	CreatedAt        string  `json:"createdAt"`
}

type galleryPageResponse struct {
	Images     []galleryItemResponse `json:"images"`
	NextCursor *string               `json:"nextCursor"`
}

// GalleryFeed serves the public feed, or a single item when the id query
// parameter is present.
func (a *App) GalleryFeed(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		item, err := a.Gallery.GetPublicByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.error(w, http.StatusNotFound, "not_found", "image not found")
				return
			}
			a.Log.Error().Err(err).Str("item_id", id).Msg("failed to load gallery item")
			a.error(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		a.json(w, http.StatusOK, toGalleryItemResponse(item))
		return
	}

	limit := galleryDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > galleryMaxLimit {
		limit = galleryMaxLimit
	}

	page, err := a.Gallery.List(r.Context(), limit, r.URL.Query().Get("startAfter"))
	if err != nil {
		a.Log.Error().Err(err).Msg("failed to list gallery")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	resp := galleryPageResponse{Images: make([]galleryItemResponse, 0, len(page.Items))}
	for i := range page.Items {
		resp.Images = append(resp.Images, toGalleryItemResponse(&page.Items[i]))
	}
	if page.NextCursor != "" {
		cursor := page.NextCursor
		resp.NextCursor = &cursor
	}
	a.json(w, http.StatusOK, resp)
}

type rateRequest struct {
	ItemID string `json:"itemId"`
	Rating int    `json:"rating"`
}

type rateResponse struct {
	NewAverageRating float64 `json:"newAverageRating"`
	NewRatingCount   int64   `json:"newRatingCount"`
}

// RateImage records one rating against a published item. Rating is not
// quota-limited; abuse control applies to generation only.
func (a *App) RateImage(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.ItemID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "itemId is required")
		return
	}

	item, err := a.Gallery.Rate(r.Context(), req.ItemID, req.Rating)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRating):
			a.error(w, http.StatusBadRequest, "invalid_rating", "rating must be an integer between 1 and 5")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "image not found")
		default:
			a.Log.Error().Err(err).Str("item_id", req.ItemID).Msg("failed to save rating")
			a.error(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	a.json(w, http.StatusOK, rateResponse{
		NewAverageRating: item.AverageRating,
		NewRatingCount:   item.RatingCount,
	})
}

func toGalleryItemResponse(item *domain.GalleryItem) galleryItemResponse {
	return galleryItemResponse{
		ID:               item.ID,
		ImageURL:         item.ImageURL,
		Prompt:           item.Prompt,
		CreatorName:      item.CreatorName,
		CreatorInstagram: item.CreatorInstagram,
		AverageRating:    item.AverageRating,
		RatingCount:      item.RatingCount,
		CreatedAt:        item.CreatedAt.Format(time.RFC3339),
	}
}
