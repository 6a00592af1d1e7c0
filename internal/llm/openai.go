package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompat talks to any server exposing the OpenAI completions endpoint,
// such as llama.cpp's server.
type OpenAICompat struct {
	client *openai.Client
	model  string
}

// NewOpenAICompat creates a client for cfg.BaseURL (e.g. http://localhost:8080/v1).
func NewOpenAICompat(cfg Config) *OpenAICompat {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAICompat{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

// Name implements Generator.
func (o *OpenAICompat) Name() string { return "openai" }

// Generate implements Generator using the raw-prompt completions API so the
// chat template stays under our control.
func (o *OpenAICompat) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	resp, err := o.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       o.model,
		Prompt:      prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Stop:        p.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion returned no choices")
	}
	return resp.Choices[0].Text, nil
}
