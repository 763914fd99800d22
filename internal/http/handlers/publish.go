package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"gallinga/internal/domain"
)

// ArtifactFetcher downloads a rendered image from the provider's ephemeral
// URL.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPArtifactFetcher fetches artifacts over plain HTTP.
type HTTPArtifactFetcher struct {
	Client *http.Client
}

const artifactMaxBytes = 25 << 20

// Fetch downloads the artifact, capping the size it will accept.
func (f *HTTPArtifactFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch artifact: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch artifact: %v: %w", err, domain.ErrProviderFailure)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch artifact: status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, artifactMaxBytes))
	if err != nil {
		return nil, "", fmt.Errorf("fetch artifact: read body: %w", domain.ErrProviderFailure)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}

type publishRequest struct {
	JobID            string `json:"jobId"`
	ImageRef         string `json:"imageRef"`
	Prompt           string `json:"prompt"`
	CreatorName      string `json:"creatorName"`
	CreatorInstagram string `json:"creatorInstagram"`
}

type publishResponse struct {
	FinalImageURL string `json:"finalImageUrl"`
	ItemID        string `json:"itemId"`
}

type publishErrorResponse struct {
	Error errorBody         `json:"error"`
	Steps map[string]string `json:"steps"`
}

// Publish copies a completed job's artifact into permanent storage and
// creates the gallery item. There is no rollback once the blob write has
// succeeded: a document-write failure afterward is reported step by step for
// manual remediation.
func (a *App) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.JobID == "" || req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId and prompt are required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Log.Error().Err(err).Str("job_id", req.JobID).Msg("failed to load job for publication")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if job.Status != domain.JobStatusComplete {
		a.error(w, http.StatusBadRequest, "job_not_complete", "job has no completed image to publish")
		return
	}

	steps := map[string]string{"fetch": "not attempted", "blob": "not attempted", "store": "not attempted"}

	data, contentType, err := a.Fetch.Fetch(r.Context(), job.ResultImageRef)
	if err != nil {
		a.Log.Error().Err(err).Str("job_id", job.ID).Msg("failed to fetch artifact")
		steps["fetch"] = "error: provider artifact could not be downloaded"
		a.json(w, http.StatusBadGateway, publishErrorResponse{
			Error: errorBody{Code: "upstream_failure", Message: "failed to retrieve the generated image"},
			Steps: steps,
		})
		return
	}
	steps["fetch"] = "ok"

	objectName := "gallinga-" + uuid.NewString() + ".png"
	finalURL, err := a.Blobs.Put(r.Context(), objectName, data, contentType)
	if err != nil {
		a.Log.Error().Err(err).Str("job_id", job.ID).Str("object", objectName).Msg("failed to store artifact")
		steps["blob"] = "error: permanent storage write failed"
		a.json(w, http.StatusBadGateway, publishErrorResponse{
			Error: errorBody{Code: "upstream_failure", Message: "failed to store the image"},
			Steps: steps,
		})
		return
	}
	steps["blob"] = "stored as " + objectName

	item := &domain.GalleryItem{
		ID:               uuid.NewString(),
		ImageURL:         finalURL,
		Prompt:           req.Prompt,
		CreatorName:      domain.SanitizeCreatorName(req.CreatorName),
		CreatorInstagram: domain.SanitizeInstagramHandle(req.CreatorInstagram),
		Provider:         "LEONARDO",
		GenerationID:     job.ID,
		IsPublic:         true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := a.Gallery.Create(r.Context(), item); err != nil {
		// The blob is already written and stays in place; the step report
		// tells the operator what to clean up.
		a.Log.Error().Err(err).Str("job_id", job.ID).Str("object", objectName).Msg("gallery document write failed after blob write")
		steps["store"] = "error: document write failed, blob requires manual cleanup"
		a.json(w, http.StatusBadGateway, publishErrorResponse{
			Error: errorBody{Code: "upstream_failure", Message: "failed to save the approved image"},
			Steps: steps,
		})
		return
	}
	steps["store"] = "ok"

	a.Log.Info().Str("job_id", job.ID).Str("item_id", item.ID).Msg("job published to gallery")
	a.json(w, http.StatusOK, publishResponse{FinalImageURL: finalURL, ItemID: item.ID})
}

type discardRequest struct {
	JobID string `json:"jobId"`
}

// Discard asks the provider to purge the ephemeral artifact of a rejected
// job. The job document itself stays: jobs are an audit trail.
func (a *App) Discard(w http.ResponseWriter, r *http.Request) {
	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.JobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId is required")
		return
	}

	if err := a.Images.DeleteGeneration(r.Context(), req.JobID); err != nil {
		a.Log.Error().Err(err).Str("job_id", req.JobID).Msg("provider purge failed")
		a.error(w, http.StatusBadGateway, "upstream_failure", "failed to delete the image at the provider")
		return
	}

	a.Log.Info().Str("job_id", req.JobID).Msg("provider artifact discarded")
	a.json(w, http.StatusOK, map[string]string{"message": "image discarded"})
}

type purgeTargets struct {
	Store    *bool `json:"store"`
	Blob     *bool `json:"blob"`
	Provider *bool `json:"provider"`
}

type purgeRequest struct {
	ItemID  string        `json:"itemId"`
	Token   string        `json:"token"`
	Targets *purgeTargets `json:"deleteTargets"`
}

// AdminPurge removes a published item's traces across the document store,
// the object store and the provider. Each target is attempted independently
// and the caller gets a per-target report instead of a single pass/fail.
func (a *App) AdminPurge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(a.Secrets.AdminToken)) != 1 {
		a.auditFields(r, a.Log.Warn()).Str("credential", credentialPrefix(req.Token)).Msg("admin token mismatch")
		a.error(w, http.StatusForbidden, "unauthorized", "invalid token")
		return
	}
	if req.ItemID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "itemId is required")
		return
	}

	item, err := a.Gallery.GetByID(r.Context(), req.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		a.Log.Error().Err(err).Str("item_id", req.ItemID).Msg("failed to load item for purge")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	results := map[string]string{
		"blob":     "not requested",
		"provider": "not requested",
		"store":    "not requested",
	}

	if targetRequested(req.Targets, func(t *purgeTargets) *bool { return t.Blob }) {
		results["blob"] = a.purgeBlob(r.Context(), item)
	}
	if targetRequested(req.Targets, func(t *purgeTargets) *bool { return t.Provider }) {
		results["provider"] = a.purgeProvider(r.Context(), item)
	}
	if targetRequested(req.Targets, func(t *purgeTargets) *bool { return t.Store }) {
		results["store"] = a.purgeStore(r.Context(), item)
	}

	a.Log.Info().Str("item_id", item.ID).Interface("results", results).Msg("cascade delete finished")
	a.json(w, http.StatusOK, map[string]any{"message": "delete process finished", "results": results})
}

// targetRequested treats an absent targets object or an absent key as true,
// so a bare request purges everything.
func targetRequested(targets *purgeTargets, pick func(*purgeTargets) *bool) bool {
	if targets == nil {
		return true
	}
	flag := pick(targets)
	if flag == nil {
		return true
	}
	return *flag
}

func (a *App) purgeBlob(ctx context.Context, item *domain.GalleryItem) string {
	objectName, ok := a.Blobs.ObjectNameFromURL(item.ImageURL)
	if !ok {
		return "skipped: image url is outside the object store"
	}
	if err := a.Blobs.Remove(ctx, objectName); err != nil {
		a.Log.Error().Err(err).Str("item_id", item.ID).Str("object", objectName).Msg("blob deletion failed")
		return "error: " + err.Error()
	}
	return "deleted " + objectName
}

func (a *App) purgeProvider(ctx context.Context, item *domain.GalleryItem) string {
	if item.GenerationID == "" {
		return "skipped: no provider generation id on record"
	}
	if err := a.Images.DeleteGeneration(ctx, item.GenerationID); err != nil {
		a.Log.Error().Err(err).Str("item_id", item.ID).Str("generation_id", item.GenerationID).Msg("provider deletion failed")
		return "error: " + err.Error()
	}
	return "deleted generation " + item.GenerationID
}

func (a *App) purgeStore(ctx context.Context, item *domain.GalleryItem) string {
	if err := a.Gallery.Delete(ctx, item.ID); err != nil {
		a.Log.Error().Err(err).Str("item_id", item.ID).Msg("document deletion failed")
		return "error: " + err.Error()
	}
	return "deleted document " + item.ID
}
