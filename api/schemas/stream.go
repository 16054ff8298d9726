package schemas

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// ChunkType discriminates the kinds of chunks a run streams to its consumer.
type ChunkType string

const (
	ChunkStep        ChunkType = "step"
	ChunkStepTimeout ChunkType = "step_timeout"
	ChunkStepError   ChunkType = "step_error"
	ChunkFinalOutput ChunkType = "final_output"
)

// StreamChunk is one unit of a run's output stream. Implementations form a
// closed set; consumers switch exhaustively on ChunkType().
type StreamChunk interface {
	ChunkType() ChunkType
}

// StepChunk reports one completed (non-terminal or terminal) step.
type StepChunk struct {
	ActionResult ActionResult `json:"action_result"`
	Summary      string       `json:"summary"`
	TraceID      string       `json:"trace_id,omitempty"`
}

func (StepChunk) ChunkType() ChunkType { return ChunkStep }

// TimeoutChunk reports a step that exceeded its deadline. It carries the
// ledger and step number at the moment of the timeout plus an opaque
// resumption token, so the caller can re-enter the run without losing
// history.
type TimeoutChunk struct {
	Summary         string      `json:"summary"`
	Step            int         `json:"step"`
	AgentState      *AgentState `json:"agent_state"`
	ResumptionToken string      `json:"resumption_token"`
	TraceID         string      `json:"trace_id,omitempty"`
}

func (TimeoutChunk) ChunkType() ChunkType { return ChunkStepTimeout }

// StepErrorChunk reports a recoverable step-level error, such as a malformed
// oracle decision that is about to be re-prompted.
type StepErrorChunk struct {
	Error string `json:"error"`
}

func (StepErrorChunk) ChunkType() ChunkType { return ChunkStepError }

// FinalOutputChunk is the last chunk of every run, regardless of which
// terminal condition fired.
type FinalOutputChunk struct {
	Output AgentOutput `json:"output"`
}

func (FinalOutputChunk) ChunkType() ChunkType { return ChunkFinalOutput }

var chunkJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// chunkEnvelope is the wire form: a type tag plus the chunk payload.
type chunkEnvelope struct {
	Type    ChunkType           `json:"type"`
	Content jsoniter.RawMessage `json:"content"`
}

// MarshalStreamChunk encodes a chunk into its tagged wire form.
func MarshalStreamChunk(c StreamChunk) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot marshal nil stream chunk")
	}
	content, err := chunkJSON.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s chunk content: %w", c.ChunkType(), err)
	}
	return chunkJSON.Marshal(chunkEnvelope{Type: c.ChunkType(), Content: content})
}

// UnmarshalStreamChunk decodes a tagged wire form back into a concrete chunk.
func UnmarshalStreamChunk(data []byte) (StreamChunk, error) {
	var env chunkEnvelope
	if err := chunkJSON.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode chunk envelope: %w", err)
	}

	var (
		chunk StreamChunk
		err   error
	)
	switch env.Type {
	case ChunkStep:
		var c StepChunk
		err = chunkJSON.Unmarshal(env.Content, &c)
		chunk = c
	case ChunkStepTimeout:
		var c TimeoutChunk
		err = chunkJSON.Unmarshal(env.Content, &c)
		chunk = c
	case ChunkStepError:
		var c StepErrorChunk
		err = chunkJSON.Unmarshal(env.Content, &c)
		chunk = c
	case ChunkFinalOutput:
		var c FinalOutputChunk
		err = chunkJSON.Unmarshal(env.Content, &c)
		chunk = c
	default:
		return nil, fmt.Errorf("unknown stream chunk type: %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s chunk content: %w", env.Type, err)
	}
	return chunk, nil
}
