// Package agent runs the specialist loops: a model conversation that
// may request tool executions, bounded to a fixed number of turns.
// Three specialists (task, content, communication) share the one Agent
// type, differing only in name, system prompt, and catalog.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/observability"
	"github.com/lvls/supportbot/pkg/llm"
	"github.com/lvls/supportbot/pkg/tools"
)

// State tracks where the loop is. The loop only ever moves forward:
// Requesting -> ExecutingTools -> Requesting -> ... -> Done or
// AbortedTurnLimit.
type State int

const (
	StateRequesting State = iota
	StateExecutingTools
	StateDone
	StateAbortedTurnLimit
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateAbortedTurnLimit:
		return "aborted_turn_limit"
	default:
		return "unknown"
	}
}

// Action is the externally visible effect of a run, reduced from the
// ordered tool executions.
type Action string

const (
	ActionNone           Action = "none"
	ActionCreateTask     Action = "create_task"
	ActionCreateApproval Action = "create_approval"
	ActionSendMessage    Action = "send_message"
)

// Execution records one tool call and its result, in request order.
type Execution struct {
	Tool   string
	Input  map[string]interface{}
	Result tools.Result
}

// RunResult is the outcome of a full agent loop.
type RunResult struct {
	Response     string
	Executions   []Execution
	Action       Action
	ActionData   interface{}
	Turns        int
	Usage        llm.Usage
	TurnLimitHit bool
}

// Executor runs a single tool invocation. Failures come back inside
// the Result envelope, never as errors.
type Executor interface {
	Execute(ctx context.Context, name string, input map[string]interface{}) tools.Result
}

const maxTurns = 10

// defaultMaxTokens bounds every specialist call. The Anthropic API
// rejects requests without a max_tokens value.
const defaultMaxTokens = 4096

// Agent is one specialist loop.
type Agent struct {
	name         string
	systemPrompt string
	catalog      []llm.ToolSpec
	client       *llm.Client
	executor     Executor
	logger       zerolog.Logger
}

// Config wires an Agent.
type Config struct {
	Name         string
	SystemPrompt string
	Catalog      []llm.ToolSpec
	Client       *llm.Client
	Executor     Executor
	Logger       zerolog.Logger
}

// New creates a specialist agent.
func New(cfg Config) (*Agent, error) {
	observability.EnsureRegistered()

	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if cfg.Executor == nil && len(cfg.Catalog) > 0 {
		return nil, fmt.Errorf("executor is required when a catalog is configured")
	}

	return &Agent{
		name:         cfg.Name,
		systemPrompt: cfg.SystemPrompt,
		catalog:      cfg.Catalog,
		client:       cfg.Client,
		executor:     cfg.Executor,
		logger:       cfg.Logger.With().Str("agent", cfg.Name).Logger(),
	}, nil
}

// Name returns the specialist's name.
func (a *Agent) Name() string { return a.name }

// Run executes the tool loop for one instruction. History, when
// present, precedes the instruction in the transcript.
func (a *Agent) Run(ctx context.Context, instruction string, history []llm.Message) (*RunResult, error) {
	start := time.Now()

	result, err := a.run(ctx, instruction, history)

	turns := 0
	if result != nil {
		turns = result.Turns
	}
	observability.RecordAgentRun(a.name, time.Since(start), turns, err == nil)
	return result, err
}

func (a *Agent) run(ctx context.Context, instruction string, history []llm.Message) (*RunResult, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: instruction})

	result := &RunResult{Action: ActionNone}
	state := StateRequesting

	for turn := 1; turn <= maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.Turns = turn

		resp, err := a.client.Call(ctx, llm.Request{
			SystemPrompt: a.systemPrompt,
			Messages:     messages,
			Tools:        a.catalog,
			MaxTokens:    defaultMaxTokens,
		})
		if err != nil {
			return result, fmt.Errorf("agent %s turn %d: %w", a.name, turn, err)
		}
		result.Usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			state = StateDone
			result.Response = resp.Text
			result.Action, result.ActionData = reduceAction(result.Executions)
			a.logger.Debug().
				Int("turns", turn).
				Int("toolCalls", len(result.Executions)).
				Str("state", state.String()).
				Msg("Agent loop finished")
			return result, nil
		}

		state = StateExecutingTools
		a.logger.Trace().
			Int("turn", turn).
			Int("requested", len(resp.ToolCalls)).
			Str("state", state.String()).
			Msg("Executing requested tools")

		assistant := llm.Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)

		// Results go back in the exact order the model requested them.
		for _, call := range resp.ToolCalls {
			res := a.executor.Execute(ctx, call.Name, call.Input)
			result.Executions = append(result.Executions, Execution{
				Tool:   call.Name,
				Input:  call.Input,
				Result: res,
			})
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    res.Encode(),
				ToolCallID: call.ID,
			})
		}

		state = StateRequesting
		a.logger.Trace().
			Int("turn", turn).
			Str("state", state.String()).
			Msg("Feeding tool results back")
	}

	state = StateAbortedTurnLimit
	result.TurnLimitHit = true
	result.Response = a.turnLimitSummary(result.Executions)
	result.Action, result.ActionData = reduceAction(result.Executions)
	a.logger.Warn().
		Int("turns", maxTurns).
		Int("toolCalls", len(result.Executions)).
		Str("state", state.String()).
		Msg("Agent hit the turn ceiling")
	return result, nil
}

// Chat answers without any tools: one model call, plain text back.
func (a *Agent) Chat(ctx context.Context, instruction string, history []llm.Message) (string, llm.Usage, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: instruction})

	resp, err := a.client.Call(ctx, llm.Request{
		SystemPrompt: a.systemPrompt,
		Messages:     messages,
		MaxTokens:    defaultMaxTokens,
	})
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("agent %s chat: %w", a.name, err)
	}
	var usage llm.Usage
	usage.Add(resp.Usage)
	return resp.Text, usage, nil
}

// turnLimitSummary enumerates what actually ran so the operator sees
// partial progress instead of silence.
func (a *Agent) turnLimitSummary(executions []Execution) string {
	if len(executions) == 0 {
		return "I couldn't complete that request within the allowed number of steps, and no actions were taken."
	}

	var b strings.Builder
	b.WriteString("I reached the step limit before finishing. Actions taken so far:\n")
	for _, ex := range executions {
		status := "ok"
		if !ex.Result.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", ex.Tool, status, ex.Result.Message)
	}
	b.WriteString("You may want to verify the partial results before retrying.")
	return b.String()
}

// reduceAction folds the ordered executions into the run's visible
// effect. The last successful matching tool wins, so iteration order
// is load-bearing.
func reduceAction(executions []Execution) (Action, interface{}) {
	action := ActionNone
	var data interface{}

	for _, ex := range executions {
		if !ex.Result.Success {
			continue
		}
		switch ex.Tool {
		case "create_task":
			action = ActionCreateTask
			data = ex.Result.Data
		case "draft_client_message":
			action = ActionCreateApproval
			data = ex.Result.Data
		case "send_internal_message", "post_message":
			action = ActionSendMessage
			data = ex.Result.Data
		}
	}

	return action, data
}
