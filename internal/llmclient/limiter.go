package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// RateLimitedClient wraps an LLMClient with a token-bucket limiter so that
// decision calls stay under the provider's request quota.
type RateLimitedClient struct {
	inner   schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedClient caps the wrapped client at requestsPerMinute. A value
// of zero or less disables limiting.
func NewRateLimitedClient(inner schemas.LLMClient, requestsPerMinute int, logger *zap.Logger) *RateLimitedClient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client.limiter"),
	}
}

// Generate waits for a rate-limit token, then delegates to the wrapped client.
func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		c.logger.Debug("Throttled LLM request", zap.Duration("waited", waited))
	}
	return c.inner.Generate(ctx, req)
}
