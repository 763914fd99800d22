package httpapi

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gallinga/internal/http/handlers"
	"gallinga/internal/middleware"
)

// Options carries the router's middleware knobs.
type Options struct {
	AllowedOrigins []string
	PreviewOrigins *regexp.Regexp
	ThrottlePerMin int
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
}

// NewRouter assembles the route table and the shared middleware chain.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Log),
		middleware.CORS(opts.AllowedOrigins, opts.PreviewOrigins),
		middleware.RateLimit(opts.ThrottlePerMin, time.Minute),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.SubmitJob)
		r.Get("/status", app.JobStatus)
		r.Post("/discard", app.Discard)
		r.Delete("/discard", app.Discard)
	})

	r.Post("/v1/webhooks/leonardo", app.WebhookCallback)

	r.Route("/v1/gallery", func(r chi.Router) {
		r.Get("/", app.GalleryFeed)
		r.Post("/publish", app.Publish)
		r.Post("/rate", app.RateImage)
	})

	r.Post("/v1/admin/purge", app.AdminPurge)

	return r
}
