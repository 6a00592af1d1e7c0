package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// Ollama generates through an Ollama server in raw prompt mode.
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama creates a client for cfg.BaseURL, defaulting to the local daemon.
func NewOllama(cfg Config) (*Ollama, error) {
	host := cfg.BaseURL
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", host, err)
	}
	c := ollama.NewClient(u, &http.Client{Timeout: cfg.Timeout})
	return &Ollama{client: c, model: cfg.Model}, nil
}

// Name implements Generator.
func (o *Ollama) Name() string { return "ollama" }

// Generate implements Generator.
func (o *Ollama) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	stream := false
	opts := map[string]any{
		"num_predict": p.MaxTokens,
		"temperature": p.Temperature,
	}
	if len(p.Stop) > 0 {
		opts["stop"] = p.Stop
	}
	req := &ollama.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Raw:     true,
		Stream:  &stream,
		Options: opts,
	}

	var text strings.Builder
	if err := o.client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return text.String(), nil
}
