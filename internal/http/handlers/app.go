package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"gallinga/internal/domain"
	"gallinga/internal/infra"
	"gallinga/internal/middleware"
	"gallinga/internal/providers/image"
	"gallinga/internal/providers/prompt"
	"gallinga/internal/storage/objectstore"
)

// App bundles the dependencies the HTTP handlers need. Everything is
// injected at startup; handlers hold no mutable state of their own.
type App struct {
	Config  *infra.Config
	Secrets infra.Secrets
	Log     zerolog.Logger

	Jobs    domain.JobRepository
	Gallery domain.GalleryRepository
	Limits  domain.RateLimitRepository

	Refiner prompt.Refiner
	Images  image.Generator
	Blobs   objectstore.Store
	Fetch   ArtifactFetcher
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// identityHash anonymizes the requester: an irreversible fingerprint of the
// client IP used only for quota accounting and abuse audit logs.
func identityHash(r *http.Request) string {
	sum := sha256.Sum256([]byte(middleware.ClientIP(r)))
	return hex.EncodeToString(sum[:])
}

// auditFields trims the identity hash for logs and attaches the resolved
// country when one is available.
func (a *App) auditFields(r *http.Request, e *zerolog.Event) *zerolog.Event {
	e = e.Str("identity", identityHash(r)[:12])
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		e = e.Str("country", country)
	}
	return e
}

func localized(locale, es, en string) string {
	if locale == "en" {
		return en
	}
	return es
}
