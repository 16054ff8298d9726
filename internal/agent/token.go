package agent

import (
	"encoding/base64"
	"fmt"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// ResumptionToken carries everything needed to restart a run where it
// stopped: the conversation ledger and the number of steps already consumed.
// The encoded form is opaque to callers and safe to pass through URLs.
type ResumptionToken struct {
	Step       int                `json:"step"`
	AgentState schemas.AgentState `json:"agent_state"`
}

// EncodeResumptionToken serializes the ledger and step counter into an
// opaque string.
func EncodeResumptionToken(step int, state *schemas.AgentState) (string, error) {
	token := ResumptionToken{Step: step}
	if state != nil {
		token.AgentState = *state.Clone()
	}
	data, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("failed to encode resumption token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeResumptionToken reverses EncodeResumptionToken.
func DecodeResumptionToken(encoded string) (*ResumptionToken, error) {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResumptionToken, err)
	}
	var token ResumptionToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResumptionToken, err)
	}
	if token.Step < 0 {
		return nil, fmt.Errorf("%w: negative step", ErrInvalidResumptionToken)
	}
	return &token, nil
}
