package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Oracle produces the next decision from the conversation ledger and the
// current page snapshot.
type Oracle interface {
	Decide(ctx context.Context, history []schemas.Message, state *schemas.BrowserState) (schemas.AgentLLMOutput, error)
}

// LLMOracle asks a language model for decisions. The model sees the standing
// system prompt, the full ledger, and a rendering of the page snapshot; it
// replies with an <output>-tagged JSON decision.
type LLMOracle struct {
	client       schemas.LLMClient
	systemPrompt string
	temperature  float32
	logger       *zap.Logger
}

var _ Oracle = (*LLMOracle)(nil)

// NewLLMOracle builds the oracle. actionDescriptions is the controller's
// rendered capability list.
func NewLLMOracle(client schemas.LLMClient, actionDescriptions string, temperature float32, logger *zap.Logger) *LLMOracle {
	return &LLMOracle{
		client:       client,
		systemPrompt: systemMessage(actionDescriptions),
		temperature:  temperature,
		logger:       logger.Named("oracle"),
	}
}

func (o *LLMOracle) Decide(ctx context.Context, history []schemas.Message, state *schemas.BrowserState) (schemas.AgentLLMOutput, error) {
	messages := make([]schemas.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, schemas.Message{
		Role:      schemas.RoleUser,
		Content:   stateMessage(state),
		Timestamp: time.Now(),
	})

	raw, err := o.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: o.systemPrompt,
		History:      messages,
		Options: schemas.GenerationOptions{
			Temperature: o.temperature,
		},
	})
	if err != nil {
		return schemas.AgentLLMOutput{}, fmt.Errorf("decision generation failed: %w", err)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		o.logger.Warn("Failed to parse oracle reply", zap.Error(err), zap.String("raw", truncate(raw, 500)))
		return schemas.AgentLLMOutput{}, err
	}
	return decision, nil
}

// parseDecision extracts the <output>-tagged JSON block from the model reply
// and decodes it. A reply without tags is tried as bare JSON before giving
// up.
func parseDecision(raw string) (schemas.AgentLLMOutput, error) {
	payload := raw
	if start := strings.Index(raw, "<output>"); start != -1 {
		payload = raw[start+len("<output>"):]
		if end := strings.Index(payload, "</output>"); end != -1 {
			payload = payload[:end]
		}
	}
	payload = strings.TrimSpace(payload)
	// Models occasionally wrap the JSON in a markdown fence.
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	payload = strings.TrimSpace(payload)

	var out schemas.AgentLLMOutput
	if err := json.UnmarshalFromString(payload, &out); err != nil {
		return schemas.AgentLLMOutput{}, fmt.Errorf("%w: %v", ErrDecisionMalformed, err)
	}
	if out.Action.Name == "" {
		return schemas.AgentLLMOutput{}, fmt.Errorf("%w: missing action name", ErrDecisionMalformed)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
