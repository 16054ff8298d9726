package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/config"
	"github.com/xkilldash9x/navigator-cli/internal/controller"
)

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:            10,
		StepTimeout:         5 * time.Second,
		RePromptAttempts:    1,
		UnknownActionBudget: 3,
		StreamBuffer:        64,
	}
}

func decision(name, summary string) schemas.AgentLLMOutput {
	return schemas.AgentLLMOutput{
		Thought: "thinking about " + name,
		Action:  schemas.ActionRequest{Name: name, Params: map[string]interface{}{}},
		Summary: summary,
	}
}

// collectChunks drains the stream until the emitter closes it.
func collectChunks(t *testing.T, a *Agent) []schemas.StreamChunk {
	t.Helper()
	var chunks []schemas.StreamChunk
	for chunk := range a.Stream() {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func newTestAgent(oracle Oracle, dispatcher Dispatcher, browser StateProvider, cfg config.AgentConfig) *Agent {
	return New(oracle, dispatcher, browser, cfg, zap.NewNop())
}

func TestRunCompletesOnDone(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{URL: "about:blank"}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("done", "Finishing the task"), nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(req schemas.ActionRequest) bool {
		return req.Name == "done"
	})).Return(schemas.ActionResult{Status: schemas.StatusDone, Content: "The answer is 42"}, nil).Once()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "find the answer", TraceID: "trace-1"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunCompleted, output.Status)
	assert.Equal(t, 1, output.StepCount)
	assert.Equal(t, "trace-1", output.TraceID)
	assert.Equal(t, "The answer is 42", output.Result.Content)

	// Ledger: task, decision, observation.
	require.Len(t, output.AgentState.Messages, 3)
	assert.Equal(t, schemas.RoleUser, output.AgentState.Messages[0].Role)
	assert.Equal(t, "Your task is: find the answer", output.AgentState.Messages[0].Content)
	assert.Equal(t, schemas.RoleAssistant, output.AgentState.Messages[1].Role)
	assert.Equal(t, "thinking about done", output.AgentState.Messages[1].Thought)
	assert.Equal(t, "The answer is 42", output.AgentState.Messages[2].Content)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 2)
	step, ok := chunks[0].(schemas.StepChunk)
	require.True(t, ok)
	assert.Equal(t, "Finishing the task", step.Summary)
	assert.Equal(t, "trace-1", step.TraceID)
	final, ok := chunks[1].(schemas.FinalOutputChunk)
	require.True(t, ok)
	assert.Equal(t, schemas.RunCompleted, final.Output.Status)

	oracle.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestRunContinuesAfterActionError(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	staleMsg := "Element with index 5 does not exist - retry or use alternative actions."

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("click_element", "Clicking element 5"), nil).Once()
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("done", "Done"), nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Error: staleMsg}, nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Status: schemas.StatusDone, Content: "finished"}, nil).Once()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "click things"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunCompleted, output.Status)
	assert.Equal(t, 2, output.StepCount)

	// The failed action's error text went back through the ledger.
	var sawError bool
	for _, msg := range output.AgentState.Messages {
		if msg.Role == schemas.RoleUser && msg.Content == "Error: "+staleMsg {
			sawError = true
		}
	}
	assert.True(t, sawError, "ledger should carry the action error as an observation")

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 3)
	assert.Equal(t, schemas.ChunkStep, chunks[0].ChunkType())
	assert.Equal(t, schemas.ChunkStep, chunks[1].ChunkType())
	assert.Equal(t, schemas.ChunkFinalOutput, chunks[2].ChunkType())
}

func TestRunRePromptsOnMalformedDecision(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.AgentLLMOutput{}, fmt.Errorf("%w: not json", ErrDecisionMalformed)).Once()
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("done", "Done"), nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Status: schemas.StatusDone, Content: "ok"}, nil).Once()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunCompleted, output.Status)
	assert.Equal(t, 2, output.StepCount)

	var sawRePrompt bool
	for _, msg := range output.AgentState.Messages {
		if msg.Content == rePromptMessage {
			sawRePrompt = true
		}
	}
	assert.True(t, sawRePrompt)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 3)
	assert.Equal(t, schemas.ChunkStepError, chunks[0].ChunkType())
	assert.Equal(t, schemas.ChunkStep, chunks[1].ChunkType())
	assert.Equal(t, schemas.ChunkFinalOutput, chunks[2].ChunkType())
}

func TestRunFailsAfterRePromptBudget(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.AgentLLMOutput{}, fmt.Errorf("%w: still not json", ErrDecisionMalformed))

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunFailed, output.Status)
	assert.Equal(t, schemas.StatusFatalError, output.Result.Status)
	// One re-prompt allowed, so exactly two decisions were attempted.
	oracle.AssertNumberOfCalls(t, "Decide", 2)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 3)
	assert.Equal(t, schemas.ChunkStepError, chunks[0].ChunkType())
	assert.Equal(t, schemas.ChunkStepError, chunks[1].ChunkType())
	assert.Equal(t, schemas.ChunkFinalOutput, chunks[2].ChunkType())
}

func TestRunFailsOnProviderFault(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.AgentLLMOutput{}, fmt.Errorf("provider unreachable")).Twice()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	// One retry per the re-prompt budget, then the run fails.
	oracle.AssertNumberOfCalls(t, "Decide", 2)
	assert.Equal(t, schemas.RunFailed, output.Status)
	assert.Contains(t, output.Result.Error, "provider unreachable")
}

func TestRunFailsWhenSnapshotRefreshFails(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(nil, fmt.Errorf("browser crashed")).Once()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunFailed, output.Status)
	assert.Contains(t, output.Result.Error, ErrTargetUnavailable.Error())
	oracle.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything)
	collectChunks(t, a)
}

func TestRunFailsAfterUnknownCapabilityBudget(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("launch_rocket", "Launching"), nil)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{}, fmt.Errorf("%w: %q", controller.ErrUnknownCapability, "launch_rocket"))

	cfg := testAgentConfig()
	cfg.UnknownActionBudget = 2

	a := newTestAgent(oracle, dispatcher, browser, cfg)
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunFailed, output.Status)
	assert.Equal(t, 2, output.StepCount)
	dispatcher.AssertNumberOfCalls(t, "Dispatch", 2)
	collectChunks(t, a)
}

func TestRunIncompleteAtStepBudget(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("wait_for_page_to_load", "Waiting"), nil)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Content: "Waited for page to load"}, nil)

	cfg := testAgentConfig()
	cfg.MaxSteps = 3

	a := newTestAgent(oracle, dispatcher, browser, cfg)
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunIncomplete, output.Status)
	assert.Equal(t, 3, output.StepCount)
	assert.Equal(t, "Waited for page to load", output.Result.Content)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 4)
	assert.Equal(t, schemas.ChunkFinalOutput, chunks[3].ChunkType())
}

func TestRunStepTimeoutEmitsResumptionToken(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	// The snapshot refresh stalls until the step deadline cancels it.
	browser.On("RefreshState", mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		<-ctx.Done()
	}).Return(nil, context.DeadlineExceeded)

	cfg := testAgentConfig()
	cfg.MaxSteps = 1
	cfg.StepTimeout = 30 * time.Millisecond

	a := newTestAgent(oracle, dispatcher, browser, cfg)
	output, err := a.Run(context.Background(), RunOptions{Task: "slow task"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunIncomplete, output.Status)
	assert.Equal(t, 1, output.StepCount)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 2)
	timeout, ok := chunks[0].(schemas.TimeoutChunk)
	require.True(t, ok)
	assert.Equal(t, 1, timeout.Step)
	assert.Contains(t, timeout.Summary, "timed out")
	require.NotEmpty(t, timeout.ResumptionToken)

	token, err := DecodeResumptionToken(timeout.ResumptionToken)
	require.NoError(t, err)
	assert.Equal(t, 1, token.Step)
	require.Len(t, token.AgentState.Messages, 1)
	assert.Equal(t, "Your task is: slow task", token.AgentState.Messages[0].Content)
}

func TestRunResumesFromToken(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	prior := &schemas.AgentState{Messages: []schemas.Message{
		{Role: schemas.RoleUser, Content: "Your task is: resume me"},
		{Role: schemas.RoleAssistant, Content: `{"name":"wait_for_page_to_load"}`},
		{Role: schemas.RoleUser, Content: "Waited for page to load"},
	}}
	encoded, err := EncodeResumptionToken(3, prior)
	require.NoError(t, err)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.MatchedBy(func(history []schemas.Message) bool {
		return len(history) >= 3 && history[0].Content == "Your task is: resume me"
	}), mock.Anything).Return(decision("done", "Done"), nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Status: schemas.StatusDone, Content: "resumed and finished"}, nil).Once()

	cfg := testAgentConfig()
	cfg.MaxSteps = 5

	a := newTestAgent(oracle, dispatcher, browser, cfg)
	output, err := a.Run(context.Background(), RunOptions{Task: "ignored", ResumptionToken: encoded})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunCompleted, output.Status)
	assert.Equal(t, 4, output.StepCount)
	// The restored ledger was kept; no second task message was prepended.
	assert.Equal(t, "Your task is: resume me", output.AgentState.Messages[0].Content)
	collectChunks(t, a)
}

func TestRunRejectsInvalidResumptionToken(t *testing.T) {
	a := newTestAgent(new(MockOracle), new(MockDispatcher), new(MockStateProvider), testAgentConfig())

	output, err := a.Run(context.Background(), RunOptions{ResumptionToken: "%%% not a token %%%"})
	require.ErrorIs(t, err, ErrInvalidResumptionToken)
	assert.Equal(t, schemas.RunFailed, output.Status)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 1)
	assert.Equal(t, schemas.ChunkFinalOutput, chunks[0].ChunkType())
}

func TestRunHandedControl(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("give_human_control", "Handing over"), nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Status: schemas.StatusHandedToHuman, Content: "Human has control"}, nil).Once()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "log into my account"})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunHandedControl, output.Status)
	collectChunks(t, a)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	a := newTestAgent(new(MockOracle), new(MockDispatcher), new(MockStateProvider), testAgentConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	output, err := a.Run(ctx, RunOptions{Task: "task"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, schemas.RunFailed, output.Status)

	chunks := collectChunks(t, a)
	require.Len(t, chunks, 1)
	assert.Equal(t, schemas.ChunkFinalOutput, chunks[0].ChunkType())
}

func TestRunGeneratesTraceID(t *testing.T) {
	oracle := new(MockOracle)
	dispatcher := new(MockDispatcher)
	browser := new(MockStateProvider)

	browser.On("RefreshState", mock.Anything).Return(&schemas.BrowserState{}, nil)
	oracle.On("Decide", mock.Anything, mock.Anything, mock.Anything).
		Return(decision("done", "Done"), nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(schemas.ActionResult{Status: schemas.StatusDone}, nil).Once()

	a := newTestAgent(oracle, dispatcher, browser, testAgentConfig())
	output, err := a.Run(context.Background(), RunOptions{Task: "task"})
	require.NoError(t, err)

	assert.NotEmpty(t, output.TraceID)
	assert.False(t, strings.ContainsAny(output.TraceID, " \t\n"))
	collectChunks(t, a)
}
