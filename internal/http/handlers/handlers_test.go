package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gallinga/internal/domain"
	"gallinga/internal/infra"
	"gallinga/internal/providers/prompt"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*domain.Job)}
}

func (f *fakeJobs) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) ApplyTerminal(_ context.Context, jobID string, update domain.TerminalUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = update.Status
	job.ResultImageRef = update.ResultImageRef
	job.FailureReason = update.FailureReason
	if len(update.WebhookPayload) > 0 {
		job.WebhookPayload = append([]byte(nil), update.WebhookPayload...)
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

type fakeGallery struct {
	mu    sync.Mutex
	items map[string]*domain.GalleryItem
}

func newFakeGallery() *fakeGallery {
	return &fakeGallery{items: make(map[string]*domain.GalleryItem)}
}

func (f *fakeGallery) Create(_ context.Context, item *domain.GalleryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeGallery) GetPublicByID(_ context.Context, id string) (*domain.GalleryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || !item.IsPublic {
		return nil, domain.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeGallery) GetByID(_ context.Context, id string) (*domain.GalleryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeGallery) List(_ context.Context, limit int, cursor string) (*domain.GalleryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ordered := make([]*domain.GalleryItem, 0, len(f.items))
	for _, item := range f.items {
		if item.IsPublic {
			ordered = append(ordered, item)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})
	start := 0
	if cursor != "" {
		for i, item := range ordered {
			if item.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	page := &domain.GalleryPage{}
	for i := start; i < len(ordered) && len(page.Items) < limit; i++ {
		page.Items = append(page.Items, *ordered[i])
	}
	if len(page.Items) == limit {
		page.NextCursor = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}

func (f *fakeGallery) Rate(_ context.Context, id string, rating int) (*domain.GalleryItem, error) {
	if err := domain.ValidateRating(rating); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := item.ApplyRating(rating); err != nil {
		return nil, err
	}
	copied := *item
	return &copied, nil
}

func (f *fakeGallery) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeLimits struct {
	mu       sync.Mutex
	windows  map[string]*domain.RateLimitWindow
	limit    int
	duration time.Duration
	now      func() time.Time
}

func newFakeLimits(limit int, duration time.Duration) *fakeLimits {
	return &fakeLimits{
		windows:  make(map[string]*domain.RateLimitWindow),
		limit:    limit,
		duration: duration,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (f *fakeLimits) CheckAndConsume(_ context.Context, identityHash string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	decision := domain.DecideWindow(f.windows[identityHash], f.now(), f.limit, f.duration)
	if decision.Allowed {
		f.windows[identityHash] = &domain.RateLimitWindow{
			IdentityHash: identityHash,
			Count:        decision.Count,
			WindowStart:  decision.WindowStart,
		}
	}
	return decision.Allowed, decision.Remaining, nil
}

func (f *fakeLimits) Refund(_ context.Context, identityHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if win, ok := f.windows[identityHash]; ok && win.Count > 0 {
		win.Count--
	}
	return nil
}

func (f *fakeLimits) count(identityHash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if win, ok := f.windows[identityHash]; ok {
		return win.Count
	}
	return 0
}

type fakeRefiner struct {
	refine func(ctx context.Context, userPrompt, locale string) (*prompt.Refinement, error)
}

func (f *fakeRefiner) Refine(ctx context.Context, userPrompt, locale string) (*prompt.Refinement, error) {
	return f.refine(ctx, userPrompt, locale)
}

type fakeGenerator struct {
	mu        sync.Mutex
	generated []string
	deleted   []string
	genErr    error
	delErr    error
	nextID    int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return "", f.genErr
	}
	f.nextID++
	id := fmt.Sprintf("gen-%04d", f.nextID)
	f.generated = append(f.generated, prompt)
	return id, nil
}

func (f *fakeGenerator) DeleteGeneration(_ context.Context, generationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, generationID)
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	rmErr   error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

const fakeBlobBase = "https://blobs.test/gallinga-images/"

func (f *fakeBlobs) Put(_ context.Context, objectName string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[objectName] = append([]byte(nil), data...)
	return fakeBlobBase + objectName, nil
}

func (f *fakeBlobs) Remove(_ context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rmErr != nil {
		return f.rmErr
	}
	delete(f.objects, objectName)
	return nil
}

func (f *fakeBlobs) ObjectNameFromURL(publicURL string) (string, bool) {
	if !strings.HasPrefix(publicURL, fakeBlobBase) {
		return "", false
	}
	return strings.TrimPrefix(publicURL, fakeBlobBase), true
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, "image/png", nil
}

type testApp struct {
	app       *App
	jobs      *fakeJobs
	gallery   *fakeGallery
	limits    *fakeLimits
	refiner   *fakeRefiner
	generator *fakeGenerator
	blobs     *fakeBlobs
	fetcher   *fakeFetcher
}

func newTestApp() *testApp {
	t := &testApp{
		jobs:      newFakeJobs(),
		gallery:   newFakeGallery(),
		limits:    newFakeLimits(2, 24*time.Hour),
		refiner:   &fakeRefiner{},
		generator: &fakeGenerator{},
		blobs:     newFakeBlobs(),
		fetcher:   &fakeFetcher{data: []byte("png-bytes")},
	}
	t.refiner.refine = func(_ context.Context, userPrompt, _ string) (*prompt.Refinement, error) {
		return &prompt.Refinement{RefinedPrompt: "a white hen wearing a witch hat, " + userPrompt}, nil
	}
	t.app = &App{
		Config: &infra.Config{},
		Secrets: infra.Secrets{
			LeonardoAPIKey:   "leo-key",
			GeminiAPIKey:     "gem-key",
			WebhookSharedKey: "hook-secret",
			AdminToken:       "admin-secret",
		},
		Log:     zerolog.Nop(),
		Jobs:    t.jobs,
		Gallery: t.gallery,
		Limits:  t.limits,
		Refiner: t.refiner,
		Images:  t.generator,
		Blobs:   t.blobs,
		Fetch:   t.fetcher,
	}
	return t
}
