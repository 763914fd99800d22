package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gallinga/internal/domain"
)

const webhookEventComplete = "image_generation.complete"

type webhookEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object webhookGeneration `json:"object"`
	} `json:"data"`
}

type webhookGeneration struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Error         string `json:"error"`
	FailureReason string `json:"failureReason"`
}

// WebhookCallback ingests asynchronous completion notifications from the
// image provider. The provider retries on any non-2xx answer, so everything
// that is not an auth failure or a malformed body is answered 200 even when
// nothing mutates.
func (a *App) WebhookCallback(w http.ResponseWriter, r *http.Request) {
	received := r.Header.Get("Authorization")
	expected := "Bearer " + a.Secrets.WebhookSharedKey
	if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		a.Log.Warn().Str("credential", credentialPrefix(received)).Msg("webhook authorization mismatch")
		a.error(w, http.StatusForbidden, "unauthorized", "unauthorized")
		return
	}

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "malformed payload")
		return
	}

	if envelope.Type != webhookEventComplete {
		// Unhandled event kinds are acknowledged so the provider stops
		// redelivering them.
		a.Log.Warn().Str("event_type", envelope.Type).Msg("webhook event type not handled")
		a.json(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	generation := envelope.Data.Object
	if generation.ID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "payload without generation id")
		return
	}

	if _, err := a.Jobs.GetByID(r.Context(), generation.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Could be a redelivery for an id we never issued, or real
			// data loss. Logged so operators can tell the two apart.
			a.Log.Warn().Str("job_id", generation.ID).Msg("webhook job not found, acknowledging without mutation")
			a.json(w, http.StatusOK, map[string]string{"message": "job unknown, webhook received"})
			return
		}
		a.Log.Error().Err(err).Str("job_id", generation.ID).Msg("failed to load job for webhook")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	update, ok := terminalUpdateFromGeneration(generation)
	if !ok {
		a.Log.Warn().Str("job_id", generation.ID).Str("status", generation.Status).Msg("webhook status not terminal, acknowledging without mutation")
		a.json(w, http.StatusOK, map[string]string{"message": "status ignored"})
		return
	}

	if err := a.Jobs.ApplyTerminal(r.Context(), generation.ID, update); err != nil {
		a.Log.Error().Err(err).Str("job_id", generation.ID).Msg("failed to apply webhook transition")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	a.Log.Info().Str("job_id", generation.ID).Str("status", string(update.Status)).Msg("webhook processed")
	a.json(w, http.StatusOK, map[string]string{"message": "webhook processed"})
}

// terminalUpdateFromGeneration maps the provider's report onto a terminal
// transition. A COMPLETE report without an image reference is a malformed
// success and is forced to FAILED rather than silently dropped.
func terminalUpdateFromGeneration(generation webhookGeneration) (domain.TerminalUpdate, bool) {
	payload, _ := json.Marshal(generation)
	switch strings.ToUpper(generation.Status) {
	case "COMPLETE":
		if len(generation.Images) == 0 || generation.Images[0].URL == "" {
			return domain.TerminalUpdate{
				Status:         domain.JobStatusFailed,
				FailureReason:  "provider reported completion without an image reference",
				WebhookPayload: payload,
			}, true
		}
		return domain.TerminalUpdate{
			Status:         domain.JobStatusComplete,
			ResultImageRef: generation.Images[0].URL,
			WebhookPayload: payload,
		}, true
	case "FAILED":
		reason := generation.Error
		if reason == "" {
			reason = generation.FailureReason
		}
		if reason == "" {
			reason = "provider reported a failure without details"
		}
		return domain.TerminalUpdate{
			Status:         domain.JobStatusFailed,
			FailureReason:  reason,
			WebhookPayload: payload,
		}, true
	}
	return domain.TerminalUpdate{}, false
}

// credentialPrefix returns enough of a credential for audit logs without
// disclosing it.
func credentialPrefix(credential string) string {
	if credential == "" {
		return "absent"
	}
	if len(credential) <= 15 {
		return credential
	}
	return credential[:15] + "..."
}
