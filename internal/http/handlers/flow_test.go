package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestStoryChapterLifecycle walks one chapter from submission through the
// provider webhook, publication, the public feed and a first rating.
func TestStoryChapterLifecycle(t *testing.T) {
	ta := newTestApp()

	rec := postJSON(t, ta.app.SubmitJob, "/v1/jobs", map[string]string{
		"prompt":      "the hen discovers a cave",
		"creatorName": "Orla",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit: status = %d, body %s", rec.Code, rec.Body)
	}
	submitted := decodeBody[submitJobResponse](t, rec)

	rec = deliverWebhook(ta, "Bearer hook-secret",
		completeEnvelope(submitted.JobID, "https://cdn.leonardo.ai/ephemeral/cave.png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/status?jobId="+submitted.JobID, nil)
	statusRec := httptest.NewRecorder()
	ta.app.JobStatus(statusRec, req)
	status := decodeBody[jobStatusResponse](t, statusRec)
	if status.Status != "COMPLETE" || status.ImageRef == "" {
		t.Fatalf("poll after webhook: %+v", status)
	}

	rec = postJSON(t, ta.app.Publish, "/v1/gallery/publish", publishRequest{
		JobID:       submitted.JobID,
		Prompt:      "the hen discovers a cave",
		CreatorName: "Orla",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: status = %d, body %s", rec.Code, rec.Body)
	}
	published := decodeBody[publishResponse](t, rec)

	req = httptest.NewRequest(http.MethodGet, "/v1/gallery?limit=1", nil)
	feedRec := httptest.NewRecorder()
	ta.app.GalleryFeed(feedRec, req)
	feed := decodeBody[galleryPageResponse](t, feedRec)
	if len(feed.Images) != 1 || feed.Images[0].ID != published.ItemID {
		t.Fatalf("feed after publish: %+v", feed.Images)
	}
	if feed.Images[0].ImageURL != published.FinalImageURL {
		t.Fatalf("feed serves %q, want the stored copy %q", feed.Images[0].ImageURL, published.FinalImageURL)
	}

	rec = postJSON(t, ta.app.RateImage, "/v1/gallery/rate", rateRequest{ItemID: published.ItemID, Rating: 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("rate: status = %d", rec.Code)
	}
	rated := decodeBody[rateResponse](t, rec)
	if rated.NewAverageRating != 4 || rated.NewRatingCount != 1 {
		t.Fatalf("rate: average = %v count = %d", rated.NewAverageRating, rated.NewRatingCount)
	}
}
