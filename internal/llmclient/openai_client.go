package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/config"
)

// OpenAIClient implements schemas.LLMClient against the OpenAI
// chat-completions API (and compatible endpoints).
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMModelConfig
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequestPayload struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponsePayload struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}

	return &OpenAIClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends the conversation to the chat-completions endpoint and
// returns the generated text, retrying transient faults with backoff.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := c.buildRequestPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("openai API error: status %d, body: %s", resp.StatusCode, string(respBody))
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
				return err
			default:
				return backoff.Permanent(err)
			}
		}

		var responsePayload openAIResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("openai API returned no choices"))
		}

		c.logger.Info("LLM generation complete (OpenAI)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.Usage.PromptTokens),
			zap.Int("completion_tokens", responsePayload.Usage.CompletionTokens),
			zap.Int("total_tokens", responsePayload.Usage.TotalTokens),
		)

		responseContent = responsePayload.Choices[0].Message.Content
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	return responseContent, nil
}

func (c *OpenAIClient) buildRequestPayload(req schemas.GenerationRequest) openAIRequestPayload {
	messages := make([]openAIMessage, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, msg := range req.History {
		text := msg.Content
		if msg.Thought != "" {
			text = msg.Thought + "\n" + text
		}
		messages = append(messages, openAIMessage{Role: string(msg.Role), Content: text})
	}

	payload := openAIRequestPayload{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: float64(req.Options.Temperature),
		MaxTokens:   c.config.MaxTokens,
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return payload
}
