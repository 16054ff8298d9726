package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/config"
)

// NewClient builds the LLM client for the configured provider, wrapped with
// the run-wide rate limiter.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var (
		client schemas.LLMClient
		err    error
	)

	switch cfg.Provider {
	case "gemini":
		client, err = NewGeminiClient(cfg.Providers.Gemini, logger)
	case "openai":
		client, err = NewOpenAIClient(cfg.Providers.OpenAI, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return NewRateLimitedClient(client, cfg.RequestsPerMinute, logger), nil
}
