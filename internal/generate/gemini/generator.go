package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ufiyan/leadrevive/internal/generate"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Generator produces re-engagement text through the Gemini API.
type Generator struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: model}, nil
}

// Generate performs one generation attempt for the prompt. Rate-limit and
// transport failures come back wrapped in generate.TransientError so the
// retry executor can tell them apart from fatal upstream errors.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("empty prompt")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		CandidateCount: 1,
	})
	if err != nil {
		return "", classifyErr(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", generate.ErrEmptyResponse
	}
	return text, nil
}

// classifyErr wraps recoverable failures so callers retry with backoff.
// Only 429 is recoverable among HTTP statuses; other 4xx and all 5xx
// propagate untouched.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 {
			return &generate.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &generate.TransientError{Err: err}
	}
	return err
}
