package llm

import (
	"context"
	"fmt"

	"warden/internal/config"
	"warden/internal/review"
)

// NewFromConfig builds the review capability for the configured provider.
// Provider "none" yields a nil client; the caller falls back to the
// deterministic strategy.
func NewFromConfig(ctx context.Context, cfg *config.Config) (review.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAIClientWithConfig(OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.GetLLMTimeout(),
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}
