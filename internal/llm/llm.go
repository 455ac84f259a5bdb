package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client turns one prompt into one completion.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

type Config struct {
	Provider    Provider
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func New(ctx context.Context, cfg Config) (Client, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider)))) {
	case ProviderOpenAI, "":
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
