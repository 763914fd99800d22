package infra

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Secrets bundles the credentials the service needs. It is loaded once at
// startup and passed down explicitly; nothing reads secrets ad hoc afterward.
type Secrets struct {
	LeonardoAPIKey   string
	GeminiAPIKey     string
	WebhookSharedKey string
	AdminToken       string
}

// Validate checks that every required credential is present.
func (s Secrets) Validate() error {
	missing := make([]string, 0, 4)
	if s.LeonardoAPIKey == "" {
		missing = append(missing, "LEONARDO_API_KEY")
	}
	if s.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if s.WebhookSharedKey == "" {
		missing = append(missing, "LEONARDO_WEBHOOK_SHARED_KEY")
	}
	if s.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SecretProvider fetches the credential bundle from wherever it lives.
type SecretProvider interface {
	Load(ctx context.Context) (Secrets, error)
}

// EnvSecretProvider reads secrets from process environment variables.
type EnvSecretProvider struct{}

// Load returns the validated secret bundle.
func (EnvSecretProvider) Load(_ context.Context) (Secrets, error) {
	s := Secrets{
		LeonardoAPIKey:   strings.TrimSpace(os.Getenv("LEONARDO_API_KEY")),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		WebhookSharedKey: strings.TrimSpace(os.Getenv("LEONARDO_WEBHOOK_SHARED_KEY")),
		AdminToken:       strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
	}
	if err := s.Validate(); err != nil {
		return Secrets{}, err
	}
	return s, nil
}
