// Package llm adapts local model servers to a single prompt-completion
// capability.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Params controls one completion.
type Params struct {
	MaxTokens   int
	Temperature float32
	Stop        []string
}

// Generator completes a fully composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai, ollama or none
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// New builds the configured generator. It returns nil, nil for provider
// "none" or an empty provider.
func New(cfg Config) (Generator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAICompat(cfg), nil
	case "ollama":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
