package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/config"
	"github.com/xkilldash9x/navigator-cli/internal/controller"
)

// Dispatcher routes a decision to its capability. Satisfied by
// *controller.Controller.
type Dispatcher interface {
	Dispatch(ctx context.Context, req schemas.ActionRequest) (schemas.ActionResult, error)
}

// StateProvider supplies fresh page snapshots. Satisfied by
// *browser.Session.
type StateProvider interface {
	RefreshState(ctx context.Context) (*schemas.BrowserState, error)
}

// rePromptMessage is appended to the ledger when the oracle's reply could
// not be parsed, so the next call can correct itself.
const rePromptMessage = "Your previous reply could not be parsed. Respond with exactly one JSON decision enclosed in <output> tags."

// Agent owns the step loop and the conversation ledger. One Agent runs one
// task; the stream of chunks for that run is read from Stream().
type Agent struct {
	oracle     Oracle
	dispatcher Dispatcher
	browser    StateProvider
	emitter    *StreamEmitter
	cfg        config.AgentConfig
	logger     *zap.Logger
}

// RunOptions parameterizes a single run.
type RunOptions struct {
	// Task is the user's objective. Ignored when ResumptionToken is set and
	// the restored ledger already carries a task message.
	Task string
	// ResumptionToken, when set, restores the ledger and step counter of an
	// earlier run.
	ResumptionToken string
	// TraceID correlates stream chunks and the final output. Generated when
	// empty.
	TraceID string
}

// New assembles an agent.
func New(oracle Oracle, dispatcher Dispatcher, browser StateProvider, cfg config.AgentConfig, logger *zap.Logger) *Agent {
	return &Agent{
		oracle:     oracle,
		dispatcher: dispatcher,
		browser:    browser,
		emitter:    NewStreamEmitter(cfg.StreamBuffer),
		cfg:        cfg,
		logger:     logger.Named("agent"),
	}
}

// Stream is the run's ordered chunk stream. It is closed after the final
// chunk, which every run emits exactly once.
func (a *Agent) Stream() <-chan schemas.StreamChunk {
	return a.emitter.Chunks()
}

// stepOutcome is what one decide+dispatch cycle hands back to the loop.
type stepOutcome struct {
	decision    schemas.AgentLLMOutput
	result      schemas.ActionResult
	dispatchErr error
	decideErr   error
}

// Run executes the step loop until a terminal condition fires: a terminal
// capability, a fatal fault, context cancellation, or the step budget. All
// paths emit the final output chunk before returning.
func (a *Agent) Run(ctx context.Context, opts RunOptions) (*schemas.AgentOutput, error) {
	traceID := opts.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}
	log := a.logger.With(zap.String("trace_id", traceID))

	state := &schemas.AgentState{}
	step := 0

	if opts.ResumptionToken != "" {
		token, err := DecodeResumptionToken(opts.ResumptionToken)
		if err != nil {
			result := schemas.ActionResult{Status: schemas.StatusFatalError, Error: err.Error()}
			return a.finish(state, result, schemas.RunFailed, step, traceID), err
		}
		state = token.AgentState.Clone()
		step = token.Step
		log.Info("Resuming run from token", zap.Int("step", step))
	}

	if len(state.Messages) == 0 {
		state.Messages = append(state.Messages, schemas.Message{
			Role:      schemas.RoleUser,
			Content:   taskMessage(opts.Task),
			Timestamp: time.Now(),
		})
	}

	var lastResult schemas.ActionResult
	rePromptsUsed := 0
	consecutiveUnknown := 0

	for step < a.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			lastResult = schemas.ActionResult{Status: schemas.StatusFatalError, Error: err.Error()}
			return a.finish(state, lastResult, schemas.RunFailed, step, traceID), err
		}
		step++
		log.Debug("Starting step", zap.Int("step", step))

		stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
		outcomeCh := make(chan stepOutcome, 1)
		go a.executeStep(stepCtx, state.Clone(), outcomeCh)

		var outcome stepOutcome
		select {
		case outcome = <-outcomeCh:
			cancel()
		case <-stepCtx.Done():
			cancel()
			if ctx.Err() != nil {
				lastResult = schemas.ActionResult{Status: schemas.StatusFatalError, Error: ctx.Err().Error()}
				return a.finish(state, lastResult, schemas.RunFailed, step, traceID), ctx.Err()
			}
			// Step deadline. The run keeps its ledger and moves on; the
			// emitted token lets the caller re-enter from here instead.
			token, err := EncodeResumptionToken(step, state)
			if err != nil {
				log.Error("Failed to encode resumption token", zap.Error(err))
			}
			a.emitter.Emit(schemas.TimeoutChunk{
				Summary:         fmt.Sprintf("Step %d timed out after %s", step, a.cfg.StepTimeout),
				Step:            step,
				AgentState:      state.Clone(),
				ResumptionToken: token,
				TraceID:         traceID,
			})
			log.Warn("Step timed out", zap.Int("step", step), zap.Duration("timeout", a.cfg.StepTimeout))
			continue
		}

		if outcome.decideErr != nil {
			if errors.Is(outcome.decideErr, ErrTargetUnavailable) {
				// Without perception there is nothing to decide on.
				a.emitter.Emit(schemas.StepErrorChunk{Error: outcome.decideErr.Error()})
				log.Error("Browser target unavailable", zap.Error(outcome.decideErr))
				lastResult = schemas.ActionResult{Status: schemas.StatusFatalError, Error: outcome.decideErr.Error()}
				return a.finish(state, lastResult, schemas.RunFailed, step, traceID), nil
			}

			// Malformed decisions and provider faults share the bounded retry
			// budget; only a malformed decision warrants correcting the oracle
			// through the ledger.
			a.emitter.Emit(schemas.StepErrorChunk{Error: outcome.decideErr.Error()})
			rePromptsUsed++
			if rePromptsUsed > a.cfg.RePromptAttempts {
				log.Error("Decision attempts exhausted", zap.Int("attempts", rePromptsUsed), zap.Error(outcome.decideErr))
				lastResult = schemas.ActionResult{Status: schemas.StatusFatalError, Error: outcome.decideErr.Error()}
				return a.finish(state, lastResult, schemas.RunFailed, step, traceID), nil
			}
			if errors.Is(outcome.decideErr, ErrDecisionMalformed) {
				state.Messages = append(state.Messages, schemas.Message{
					Role:      schemas.RoleUser,
					Content:   rePromptMessage,
					Timestamp: time.Now(),
				})
				log.Warn("Malformed decision, re-prompting", zap.Int("attempt", rePromptsUsed))
			} else {
				log.Warn("Decision failed, retrying", zap.Int("attempt", rePromptsUsed), zap.Error(outcome.decideErr))
			}
			continue
		}
		rePromptsUsed = 0

		// Record the decision before its outcome.
		actionJSON, err := json.MarshalToString(outcome.decision.Action)
		if err != nil {
			actionJSON = outcome.decision.Action.Name
		}
		state.Messages = append(state.Messages, schemas.Message{
			Role:      schemas.RoleAssistant,
			Content:   actionJSON,
			Thought:   outcome.decision.Thought,
			Timestamp: time.Now(),
		})

		if outcome.dispatchErr != nil {
			// Unknown capability or invalid params. The fault goes back to
			// the oracle through the ledger; the run continues.
			errText := outcome.dispatchErr.Error()
			lastResult = schemas.ActionResult{Error: errText}
			state.Messages = append(state.Messages, schemas.Message{
				Role:      schemas.RoleUser,
				Content:   "Error: " + errText,
				Timestamp: time.Now(),
			})
			a.emitter.Emit(schemas.StepChunk{
				ActionResult: lastResult,
				Summary:      outcome.decision.Summary,
				TraceID:      traceID,
			})

			if errors.Is(outcome.dispatchErr, controller.ErrUnknownCapability) {
				consecutiveUnknown++
				log.Warn("Oracle requested unknown capability",
					zap.String("capability", outcome.decision.Action.Name),
					zap.Int("consecutive", consecutiveUnknown),
				)
				if consecutiveUnknown >= a.cfg.UnknownActionBudget {
					lastResult = schemas.ActionResult{Status: schemas.StatusFatalError, Error: errText}
					return a.finish(state, lastResult, schemas.RunFailed, step, traceID), nil
				}
			} else {
				consecutiveUnknown = 0
			}
			continue
		}
		consecutiveUnknown = 0

		result := outcome.result
		lastResult = result

		observation := result.Content
		if result.Error != "" {
			observation = "Error: " + result.Error
		}
		state.Messages = append(state.Messages, schemas.Message{
			Role:      schemas.RoleUser,
			Content:   observation,
			Timestamp: time.Now(),
		})

		a.emitter.Emit(schemas.StepChunk{
			ActionResult: result,
			Summary:      outcome.decision.Summary,
			TraceID:      traceID,
		})

		switch result.Status {
		case schemas.StatusDone:
			log.Info("Run completed", zap.Int("steps", step))
			return a.finish(state, result, schemas.RunCompleted, step, traceID), nil
		case schemas.StatusHandedToHuman:
			log.Info("Run handed control to human", zap.Int("steps", step))
			return a.finish(state, result, schemas.RunHandedControl, step, traceID), nil
		case schemas.StatusFatalError:
			log.Error("Run hit fatal error", zap.Int("steps", step), zap.String("error", result.Error))
			return a.finish(state, result, schemas.RunFailed, step, traceID), nil
		}
	}

	log.Warn("Step budget exhausted", zap.Int("max_steps", a.cfg.MaxSteps))
	return a.finish(state, lastResult, schemas.RunIncomplete, step, traceID), nil
}

// executeStep runs one perception, decision, dispatch cycle against a ledger
// snapshot. The owner loop applies the outcome to the live ledger.
func (a *Agent) executeStep(ctx context.Context, ledger *schemas.AgentState, out chan<- stepOutcome) {
	browserState, err := a.browser.RefreshState(ctx)
	if err != nil {
		out <- stepOutcome{decideErr: fmt.Errorf("%w: %v", ErrTargetUnavailable, err)}
		return
	}

	decision, err := a.oracle.Decide(ctx, ledger.Messages, browserState)
	if err != nil {
		out <- stepOutcome{decideErr: err}
		return
	}

	result, err := a.dispatcher.Dispatch(ctx, decision.Action)
	out <- stepOutcome{decision: decision, result: result, dispatchErr: err}
}

// finish seals the stream with the final output chunk and returns the run's
// product.
func (a *Agent) finish(state *schemas.AgentState, result schemas.ActionResult, status schemas.RunStatus, step int, traceID string) *schemas.AgentOutput {
	output := &schemas.AgentOutput{
		AgentState: state.Clone(),
		Result:     result,
		Status:     status,
		StepCount:  step,
		TraceID:    traceID,
	}
	if err := a.emitter.EmitFinal(schemas.FinalOutputChunk{Output: *output}); err != nil {
		a.logger.Error("Failed to emit final output chunk", zap.Error(err))
	}
	return output
}
