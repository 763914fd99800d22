package prompt

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
	geminiDefaultTimeout = 20 * time.Second
	geminiDefaultModel   = "gemini-1.5-pro-latest"
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiOptions configures the Gemini-backed refiner.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiRefiner interprets user story text with Gemini and emits an English
// image prompt centered on the story's protagonist.
type GeminiRefiner struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiRefiner validates options and builds a refiner.
func NewGeminiRefiner(opts GeminiOptions) (*GeminiRefiner, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = geminiDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiRefiner{apiKey: opts.APIKey, model: model, baseURL: baseURL, client: client}, nil
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type refineVerdict struct {
	Status        string `json:"status"`
	RefinedPrompt string `json:"refined_prompt"`
	Feedback      string `json:"feedback_for_user"`
}

// Refine asks the model for a structured verdict on the user's story text.
func (g *GeminiRefiner) Refine(ctx context.Context, userPrompt, locale string) (*Refinement, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildRefinePrompt(userPrompt, locale)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.5,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: %v: %w", err, domain.ErrProviderFailure)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", domain.ErrProviderFailure)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", domain.ErrProviderFailure)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates: %w", domain.ErrProviderFailure)
	}

	raw := stripCodeFences(decoded.Candidates[0].Content.Parts[0].Text)
	var verdict refineVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("gemini: malformed verdict: %w", domain.ErrProviderFailure)
	}

	switch verdict.Status {
	case "success":
		if verdict.RefinedPrompt == "" {
			return nil, fmt.Errorf("gemini: success verdict without prompt: %w", domain.ErrProviderFailure)
		}
		return &Refinement{RefinedPrompt: verdict.RefinedPrompt}, nil
	case "error":
		if verdict.Feedback == "" {
			return nil, fmt.Errorf("gemini: error verdict without feedback: %w", domain.ErrProviderFailure)
		}
		return &Refinement{Feedback: verdict.Feedback}, nil
	}
	return nil, fmt.Errorf("gemini: unknown verdict status %q: %w", verdict.Status, domain.ErrProviderFailure)
}

func stripCodeFences(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	return strings.TrimSpace(raw)
}

func buildRefinePrompt(userPrompt, locale string) string {
	feedbackLanguage := "Spanish"
	if strings.HasPrefix(strings.ToLower(locale), "en") {
		feedbackLanguage = "English"
	}
	var b strings.Builder
	b.WriteString("### Role ###\n")
	b.WriteString("You are a creative director who interprets short story continuations and turns them into visual prompts for an image model. You are bilingual (Spanish-English) and decode slang, metaphors and idioms into their literal visual meaning.\n\n")
	b.WriteString("### Project context ###\n")
	b.WriteString("The application is a collaborative story about Brujilda, a white hen wearing a witch hat. She MUST be the protagonist of every image. Users write a continuation of the story; your job is to convert that text into a spectacular image prompt.\n\n")
	b.WriteString("### Task ###\n")
	b.WriteString("Analyze the following user text and produce an optimized prompt in ENGLISH for the image model:\n\"")
	b.WriteString(userPrompt)
	b.WriteString("\"\n\n")
	b.WriteString("Steps: identify the main action, setting, key objects and mood; translate idioms to their visual meaning; compose a clear visual scene description in English with 'a white hen wearing a witch hat' as the main subject; reject off-topic or unsafe requests.\n\n")
	b.WriteString("### Output format (JSON only, no surrounding text) ###\n")
	b.WriteString("On success: {\"status\":\"success\",\"refined_prompt\":\"<english prompt featuring the hen>\"}\n")
	b.WriteString("If the text is impossible to interpret, too abstract or off-topic: {\"status\":\"error\",\"feedback_for_user\":\"<friendly explanation in ")
	b.WriteString(feedbackLanguage)
	b.WriteString(" with one or two examples of good prompts>\"}\n")
	return b.String()
}
