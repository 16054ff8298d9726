package schemas

import "time"

// MessageRole identifies the author of a ledger message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single entry in the agent's conversation ledger. Messages are
// immutable once appended; their order is the causal order of the run.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// Thought carries the model's reasoning payload for assistant messages,
	// kept separate from Content so it can be replayed to the provider.
	Thought   string    `json:"thought,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// AgentState is the append-only message ledger that forms the oracle's
// context. It is owned and mutated exclusively by the step loop.
type AgentState struct {
	Messages []Message `json:"messages"`
}

// Clone returns a deep copy of the state so snapshots handed to consumers
// (stream chunks, resumption tokens) cannot alias the live ledger.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return &AgentState{}
	}
	out := &AgentState{Messages: make([]Message, len(s.Messages))}
	copy(out.Messages, s.Messages)
	return out
}

// ActionRequest is the action the oracle chose for the current step. Name
// must resolve in the capability registry before dispatch; Params are
// validated against that capability's declared schema.
type ActionRequest struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

// TerminalStatus describes how a single action result affects run control
// flow. Exactly one status applies per result; only capabilities registered
// as terminal may return StatusDone or StatusHandedToHuman.
type TerminalStatus string

const (
	// StatusContinue is the zero value: the run proceeds to the next step.
	StatusContinue TerminalStatus = ""
	// StatusDone ends the run successfully.
	StatusDone TerminalStatus = "done"
	// StatusHandedToHuman ends the run, handing browser control to a human.
	StatusHandedToHuman TerminalStatus = "handed_to_human"
	// StatusFatalError is set by the loop (never by capabilities) when an
	// unrecoverable fault ends the run.
	StatusFatalError TerminalStatus = "fatal_error"
)

// Terminal reports whether the status ends the run.
func (s TerminalStatus) Terminal() bool {
	return s == StatusDone || s == StatusHandedToHuman || s == StatusFatalError
}

// ActionResult is the outcome of one capability invocation. A set Error
// means no further side effects may be assumed successful; Content is the
// observation text appended to the ledger for the oracle.
type ActionResult struct {
	Status  TerminalStatus `json:"status,omitempty"`
	Content string         `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// OK reports whether the result carries no error.
func (r *ActionResult) OK() bool { return r != nil && r.Error == "" }

// AgentLLMOutput is one parsed decision from the oracle.
type AgentLLMOutput struct {
	// Thought is the model's chain of thought for this step.
	Thought string `json:"thought"`
	// Action is the capability the model chose to dispatch.
	Action ActionRequest `json:"action"`
	// Summary is a short human-readable description of the step, surfaced
	// to stream consumers.
	Summary string `json:"summary,omitempty"`
}

// RunStatus is the outcome of a whole run, distinct from per-step terminal
// statuses so that "step budget exhausted" is not conflated with "errored".
type RunStatus string

const (
	RunCompleted     RunStatus = "completed"
	RunHandedControl RunStatus = "handed_control"
	RunIncomplete    RunStatus = "incomplete"
	RunFailed        RunStatus = "failed"
)

// AgentOutput is the final product of a run: the full ledger, the terminal
// action result, and bookkeeping needed to correlate or resume.
type AgentOutput struct {
	AgentState *AgentState  `json:"agent_state"`
	Result     ActionResult `json:"result"`
	Status     RunStatus    `json:"status"`
	StepCount  int          `json:"step_count"`
	TraceID    string       `json:"trace_id,omitempty"`
}
