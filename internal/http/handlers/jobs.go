package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gallinga/internal/domain"
	"gallinga/internal/middleware"
)

type submitJobRequest struct {
	Prompt           string `json:"prompt"`
	CreatorName      string `json:"creatorName"`
	CreatorInstagram string `json:"creatorInstagram"`
}

type submitJobResponse struct {
	JobID             string `json:"jobId"`
	Status            string `json:"status"`
	RemainingAttempts int    `json:"remainingAttempts"`
}

type submitErrorResponse struct {
	Error             errorBody `json:"error"`
	RemainingAttempts int       `json:"remainingAttempts"`
}

// SubmitJob accepts a story continuation, refines it into an image prompt
// and dispatches a generation. The response never waits for the render: the
// provider reports completion through the webhook and clients poll
// JobStatus.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())

	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	cleanPrompt, err := domain.ValidatePrompt(req.Prompt)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_prompt",
			localized(locale,
				"El texto debe tener entre 5 y 250 caracteres.",
				"The text must be between 5 and 250 characters."))
		return
	}

	identity := identityHash(r)
	allowed, remaining, err := a.Limits.CheckAndConsume(r.Context(), identity)
	if err != nil {
		a.Log.Error().Err(err).Msg("rate limit check failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if !allowed {
		a.auditFields(r, a.Log.Warn()).Msg("submission quota exhausted")
		a.json(w, http.StatusTooManyRequests, submitErrorResponse{
			Error: errorBody{Code: "quota_exceeded", Message: localized(locale,
				"Límite de solicitudes excedido. Intenta más tarde.",
				"Request limit exceeded. Try again later.")},
			RemainingAttempts: 0,
		})
		return
	}

	refinement, err := a.Refiner.Refine(r.Context(), cleanPrompt, locale)
	if err != nil {
		a.Log.Error().Err(err).Msg("prompt refinement unavailable")
		a.error(w, http.StatusBadGateway, "upstream_failure", localized(locale,
			"El intérprete creativo no está disponible en este momento.",
			"The creative interpreter is unavailable right now."))
		return
	}
	if refinement.Rejected() {
		// The attempt never reached the provider, so the consumed quota
		// unit is handed back.
		if err := a.Limits.Refund(r.Context(), identity); err != nil {
			a.Log.Error().Err(err).Msg("quota refund failed")
		}
		a.auditFields(r, a.Log.Info()).Msg("prompt rejected by refiner")
		a.json(w, http.StatusBadRequest, submitErrorResponse{
			Error:             errorBody{Code: "invalid_prompt", Message: refinement.Feedback},
			RemainingAttempts: remaining + 1,
		})
		return
	}

	generationID, err := a.Images.Generate(r.Context(), refinement.RefinedPrompt)
	if err != nil {
		a.Log.Error().Err(err).Msg("generation dispatch failed")
		a.error(w, http.StatusBadGateway, "upstream_failure", localized(locale,
			"Ocurrió un error mágico inesperado.",
			"An unexpected magical error occurred."))
		return
	}

	job := domain.NewPendingJob(generationID, cleanPrompt, refinement.RefinedPrompt, identity, time.Now().UTC())
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Log.Error().Err(err).Str("job_id", generationID).Msg("failed to persist job")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	a.auditFields(r, a.Log.Info()).Str("job_id", generationID).Msg("job submitted")
	a.json(w, http.StatusAccepted, submitJobResponse{
		JobID:             job.ID,
		Status:            string(job.Status),
		RemainingAttempts: remaining,
	})
}

type jobStatusResponse struct {
	JobID          string `json:"jobId"`
	Status         string `json:"status"`
	OriginalPrompt string `json:"originalPrompt"`
	RefinedPrompt  string `json:"refinedPrompt,omitempty"`
	ImageRef       string `json:"imageRef,omitempty"`
	FailureReason  string `json:"failureReason,omitempty"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// JobStatus is a pure read; polling cadence and give-up policy belong to the
// client. A PENDING answer after the webhook has fired is expected and the
// client re-polls.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId is required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Log.Error().Err(err).Str("job_id", jobID).Msg("failed to load job")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	resp := jobStatusResponse{
		JobID:          job.ID,
		Status:         string(job.Status),
		OriginalPrompt: job.OriginalPrompt,
		RefinedPrompt:  job.RefinedPrompt,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
	switch job.Status {
	case domain.JobStatusComplete:
		resp.ImageRef = job.ResultImageRef
	case domain.JobStatusFailed:
		resp.FailureReason = job.FailureReason
	}
	a.json(w, http.StatusOK, resp)
}
