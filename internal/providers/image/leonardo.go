package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gallinga/internal/domain"
)

const (
	leonardoDefaultTimeout = 30 * time.Second
	leonardoDefaultBaseURL = "https://cloud.leonardo.ai/api/rest/v1"

	// Flux Dev with the Creative preset style.
	leonardoModelID   = "b2614463-296c-462a-9586-aafdb8f00e36"
	leonardoStyleUUID = "6fedbf1f-4a17-45ec-84fb-92fe524a29ef"

	leonardoPromptPrefix   = "photorealistic, cinematic, dynamic action scene, high detail. The scene is based on this short story: "
	leonardoNegativePrompt = "text, watermark, deformed, blurry, ugly, duplicate, morbid, mutilated, out of frame, cartoon, 3d, painting, illustration"
)

// LeonardoOptions configures the Leonardo client.
type LeonardoOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// LeonardoClient talks to the Leonardo REST API. Completion notifications
// arrive through the webhook configured on the API key, so Generate only
// starts the render.
type LeonardoClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewLeonardoClient validates options and builds a client.
func NewLeonardoClient(opts LeonardoOptions) (*LeonardoClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("leonardo api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = leonardoDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: leonardoDefaultTimeout}
	}
	return &LeonardoClient{apiKey: opts.APIKey, baseURL: baseURL, client: client}, nil
}

type leonardoGenerationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	ModelID        string  `json:"modelId"`
	NumImages      int     `json:"num_images"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	StyleUUID      string  `json:"styleUUID"`
	Contrast       float64 `json:"contrast"`
	EnhancePrompt  bool    `json:"enhancePrompt"`
}

type leonardoGenerationResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

// Generate starts a render for the given prompt and returns the generation id.
func (c *LeonardoClient) Generate(ctx context.Context, prompt string) (string, error) {
	payload := leonardoGenerationRequest{
		Prompt:         leonardoPromptPrefix + prompt,
		NegativePrompt: leonardoNegativePrompt,
		ModelID:        leonardoModelID,
		NumImages:      1,
		Width:          512,
		Height:         512,
		StyleUUID:      leonardoStyleUUID,
		Contrast:       3.5,
		EnhancePrompt:  false,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("leonardo: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", &buf)
	if err != nil {
		return "", fmt.Errorf("leonardo: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("leonardo: %v: %w", err, domain.ErrProviderFailure)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("leonardo: read response: %w", domain.ErrProviderFailure)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("leonardo: status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
	}

	var decoded leonardoGenerationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("leonardo: decode response: %w", domain.ErrProviderFailure)
	}
	if decoded.SDGenerationJob.GenerationID == "" {
		return "", fmt.Errorf("leonardo: response without generation id: %w", domain.ErrProviderFailure)
	}
	return decoded.SDGenerationJob.GenerationID, nil
}

// DeleteGeneration purges the ephemeral artifact for a generation.
func (c *LeonardoClient) DeleteGeneration(ctx context.Context, generationID string) error {
	if generationID == "" {
		return fmt.Errorf("generation id is required: %w", domain.ErrInvalidArgument)
	}
	endpoint := c.baseURL + "/generations/" + url.PathEscape(generationID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("leonardo: build delete request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("leonardo: %v: %w", err, domain.ErrProviderFailure)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("leonardo: delete status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
	}
	return nil
}
