// Package image wraps the external image-generation provider. Generation is
// fire-and-forget: dispatch returns a generation id and the result arrives
// later through the provider's webhook.
package image

import "context"

// Generator dispatches and purges ephemeral generations at the provider.
type Generator interface {
	// Generate starts a render and returns the provider generation id
	// without waiting for completion.
	Generate(ctx context.Context, prompt string) (string, error)
	// DeleteGeneration purges the provider-side artifact for a generation.
	DeleteGeneration(ctx context.Context, generationID string) error
}
