package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gallinga/internal/domain"
	"gallinga/internal/providers/prompt"
)

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSubmitJobCreatesPendingJob(t *testing.T) {
	ta := newTestApp()

	rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{
		"prompt":      "the hen discovers a cave",
		"creatorName": "Orla",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	resp := decodeBody[submitJobResponse](t, rec)
	if resp.JobID == "" {
		t.Fatal("response without jobId")
	}
	if resp.Status != string(domain.JobStatusPending) {
		t.Fatalf("status = %q, want PENDING", resp.Status)
	}
	if resp.RemainingAttempts != 1 {
		t.Fatalf("remainingAttempts = %d, want 1", resp.RemainingAttempts)
	}

	job, err := ta.jobs.GetByID(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("persisted status = %q, want PENDING", job.Status)
	}
	if job.OriginalPrompt != "the hen discovers a cave" {
		t.Fatalf("original prompt = %q", job.OriginalPrompt)
	}
	if !strings.Contains(job.RefinedPrompt, "witch hat") {
		t.Fatalf("refined prompt = %q, want the protagonist woven in", job.RefinedPrompt)
	}
	if job.IdentityHash == "" {
		t.Fatal("job persisted without identity hash")
	}
}

func TestSubmitJobRejectsOutOfBoundsPrompt(t *testing.T) {
	ta := newTestApp()

	for _, text := range []string{"hi", strings.Repeat("x", 251)} {
		rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{"prompt": text})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("prompt %q: status = %d, want 400", text, rec.Code)
		}
	}
	// Length validation happens before the quota layer.
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
	if got := ta.limits.count(identityHash(req)); got != 0 {
		t.Fatalf("quota consumed = %d, want 0", got)
	}
}

func TestSubmitJobQuotaAllowsTwoThenDenies(t *testing.T) {
	ta := newTestApp()

	body := map[string]string{"prompt": "the hen discovers a cave"}
	wantRemaining := []int{1, 0}
	for i, want := range wantRemaining {
		rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("submission %d: status = %d, want 202", i+1, rec.Code)
		}
		resp := decodeBody[submitJobResponse](t, rec)
		if resp.RemainingAttempts != want {
			t.Fatalf("submission %d: remainingAttempts = %d, want %d", i+1, resp.RemainingAttempts, want)
		}
	}

	rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third submission: status = %d, want 429", rec.Code)
	}
	resp := decodeBody[submitErrorResponse](t, rec)
	if resp.RemainingAttempts != 0 {
		t.Fatalf("third submission: remainingAttempts = %d, want 0", resp.RemainingAttempts)
	}
}

func TestSubmitJobRefinerRejectionRefundsQuotaOnce(t *testing.T) {
	ta := newTestApp()
	ta.refiner.refine = func(_ context.Context, _, _ string) (*prompt.Refinement, error) {
		return &prompt.Refinement{Feedback: "No logré entender la escena que quieres crear."}, nil
	}

	rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{"prompt": "completely uninterpretable"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[submitErrorResponse](t, rec)
	if resp.Error.Message == "" {
		t.Fatal("rejection without user feedback")
	}
	if resp.RemainingAttempts != 2 {
		t.Fatalf("remainingAttempts = %d, want the full quota back", resp.RemainingAttempts)
	}

	// A valid submission right after must show quota consumed exactly once net.
	ta.refiner.refine = func(_ context.Context, userPrompt, _ string) (*prompt.Refinement, error) {
		return &prompt.Refinement{RefinedPrompt: userPrompt}, nil
	}
	rec = postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{"prompt": "the hen flies over the village"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("follow-up submission: status = %d, want 202", rec.Code)
	}
	ok := decodeBody[submitJobResponse](t, rec)
	if ok.RemainingAttempts != 1 {
		t.Fatalf("follow-up remainingAttempts = %d, want 1", ok.RemainingAttempts)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
	if got := ta.limits.count(identityHash(req)); got != 1 {
		t.Fatalf("net quota consumed = %d, want 1", got)
	}
}

func TestSubmitJobUpstreamFailures(t *testing.T) {
	t.Run("refiner unavailable", func(t *testing.T) {
		ta := newTestApp()
		ta.refiner.refine = func(_ context.Context, _, _ string) (*prompt.Refinement, error) {
			return nil, domain.ErrProviderFailure
		}
		rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{"prompt": "the hen discovers a cave"})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
	})

	t.Run("generator unavailable", func(t *testing.T) {
		ta := newTestApp()
		ta.generator.genErr = errors.New("leonardo timeout")
		rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{"prompt": "the hen discovers a cave"})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "leonardo timeout") {
			t.Fatal("upstream error detail leaked to the client")
		}
	})
}

func TestJobStatus(t *testing.T) {
	ta := newTestApp()

	rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{"prompt": "the hen discovers a cave"})
	created := decodeBody[submitJobResponse](t, rec)

	get := func(jobID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs/status?jobId="+jobID, nil)
		rec := httptest.NewRecorder()
		ta.app.JobStatus(rec, req)
		return rec
	}

	rec2 := get(created.JobID)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec2.Code)
	}
	pending := decodeBody[jobStatusResponse](t, rec2)
	if pending.Status != "PENDING" || pending.ImageRef != "" || pending.FailureReason != "" {
		t.Fatalf("pending response = %+v", pending)
	}

	update := domain.TerminalUpdate{Status: domain.JobStatusComplete, ResultImageRef: "https://cdn.test/out.png"}
	if err := ta.jobs.ApplyTerminal(context.Background(), created.JobID, update); err != nil {
		t.Fatalf("apply terminal: %v", err)
	}
	rec3 := get(created.JobID)
	complete := decodeBody[jobStatusResponse](t, rec3)
	if complete.Status != "COMPLETE" || complete.ImageRef != "https://cdn.test/out.png" {
		t.Fatalf("complete response = %+v", complete)
	}

	rec4 := get("missing-job")
	if rec4.Code != http.StatusNotFound {
		t.Fatalf("unknown job: status = %d, want 404", rec4.Code)
	}
}
