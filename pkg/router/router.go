// Package router classifies operator instructions into a closed intent
// set using a single constrained model call. Classification never
// fails: every error path degrades to a general query so the message
// still gets handled.
package router

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/observability"
	"github.com/lvls/supportbot/pkg/llm"
	"github.com/lvls/supportbot/pkg/tools"
)

// Intent is one of the closed set of instruction categories.
type Intent string

const (
	IntentTaskAssign         Intent = "TASK_ASSIGN"
	IntentTaskStatus         Intent = "TASK_STATUS"
	IntentTaskComplete       Intent = "TASK_COMPLETE"
	IntentContentRewrite     Intent = "CONTENT_REWRITE"
	IntentCommunicationSend  Intent = "COMMUNICATION_SEND"
	IntentCommunicationDraft Intent = "COMMUNICATION_DRAFT"
	IntentChannelCheck       Intent = "CHANNEL_CHECK"
	IntentEscalation         Intent = "ESCALATION"
	IntentGeneralQuery       Intent = "GENERAL_QUERY"
)

var knownIntents = map[Intent]bool{
	IntentTaskAssign:         true,
	IntentTaskStatus:         true,
	IntentTaskComplete:       true,
	IntentContentRewrite:     true,
	IntentCommunicationSend:  true,
	IntentCommunicationDraft: true,
	IntentChannelCheck:       true,
	IntentEscalation:         true,
	IntentGeneralQuery:       true,
}

// Result is a classified instruction.
type Result struct {
	Intent     Intent
	Confidence float64
	Params     map[string]interface{}
}

const classifyMaxTokens = 512

const systemPrompt = `You are an intent classifier for an operations assistant.
Classify the operator's message into exactly one intent and extract the
parameters it mentions. Always respond by calling the classify_intent tool.

Intents:
- TASK_ASSIGN: create or assign a task to a team member
- TASK_STATUS: ask about existing tasks, deadlines, workload
- TASK_COMPLETE: mark a task as done
- CONTENT_REWRITE: rewrite, rephrase, or adapt text
- COMMUNICATION_SEND: post a message to an internal channel
- COMMUNICATION_DRAFT: draft a message for a client channel
- CHANNEL_CHECK: check channels for unanswered messages
- ESCALATION: something urgent that needs the founder's attention
- GENERAL_QUERY: anything else`

// Router classifies instructions with one tool-constrained model call.
type Router struct {
	client *llm.Client
	logger zerolog.Logger
}

// New creates a Router over the shared model client.
func New(client *llm.Client, logger zerolog.Logger) *Router {
	observability.EnsureRegistered()
	return &Router{client: client, logger: logger}
}

// Classify routes one instruction. It never returns an error: any
// failure mode falls back to GENERAL_QUERY so the caller always has a
// lane to dispatch on.
func (r *Router) Classify(ctx context.Context, instruction string) Result {
	result := r.classify(ctx, instruction)
	observability.RecordRouterIntent(string(result.Intent))
	return result
}

func (r *Router) classify(ctx context.Context, instruction string) Result {
	resp, err := r.client.Call(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: instruction},
		},
		Tools:     tools.RouterCatalog(),
		MaxTokens: classifyMaxTokens,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Intent classification call failed, treating as general query")
		return fallback(instruction, 0.3)
	}

	call := findClassifyCall(resp.ToolCalls)
	if call == nil {
		r.logger.Debug().Msg("Classifier responded without a tool call, treating as general query")
		return fallback(instruction, 0.4)
	}

	intent, confidence, params := extractFields(call.Input)
	if !knownIntents[intent] {
		r.logger.Warn().Str("intent", string(intent)).Msg("Classifier produced unknown intent, treating as general query")
		return fallback(instruction, 0.4)
	}

	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	return Result{Intent: intent, Confidence: confidence, Params: params}
}

func findClassifyCall(calls []llm.ToolCall) *llm.ToolCall {
	for i := range calls {
		if calls[i].Name == "classify_intent" {
			return &calls[i]
		}
	}
	return nil
}

func extractFields(input map[string]interface{}) (Intent, float64, map[string]interface{}) {
	var intent Intent
	if raw, ok := input["intent"].(string); ok {
		intent = Intent(strings.ToUpper(strings.TrimSpace(raw)))
	}

	confidence := 0.5
	if raw, ok := input["confidence"].(float64); ok {
		confidence = raw
	}

	var params map[string]interface{}
	if raw, ok := input["params"].(map[string]interface{}); ok {
		params = raw
	}

	return intent, confidence, params
}

func fallback(instruction string, confidence float64) Result {
	return Result{
		Intent:     IntentGeneralQuery,
		Confidence: confidence,
		Params:     map[string]interface{}{"topic": instruction},
	}
}
