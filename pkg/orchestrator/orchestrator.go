// Package orchestrator is the front door for operator instructions:
// meta-commands are answered directly, everything else is classified
// and handed to the matching specialist agent.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/pkg/agent"
	"github.com/lvls/supportbot/pkg/llm"
	"github.com/lvls/supportbot/pkg/router"
)

// Reply is what the operator gets back for one instruction.
type Reply struct {
	Text       string
	Intent     router.Intent
	Action     agent.Action
	ActionData interface{}
	Usage      llm.Usage
}

const apology = "Sorry, I wasn't able to handle that right now. Please try again in a moment."

// Orchestrator routes instructions to meta-command handling, a
// specialist loop, or a direct answer.
type Orchestrator struct {
	router    *router.Router
	taskAgent *agent.Agent
	contentAg *agent.Agent
	commAgent *agent.Agent
	generalAg *agent.Agent
	models    *llm.ModelManager
	logger    zerolog.Logger
}

// Config wires an Orchestrator.
type Config struct {
	Router       *router.Router
	TaskAgent    *agent.Agent
	ContentAgent *agent.Agent
	CommAgent    *agent.Agent
	GeneralAgent *agent.Agent
	ModelManager *llm.ModelManager
	Logger       zerolog.Logger
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.TaskAgent == nil || cfg.ContentAgent == nil || cfg.CommAgent == nil || cfg.GeneralAgent == nil {
		return nil, fmt.Errorf("all four specialist agents are required")
	}
	if cfg.ModelManager == nil {
		return nil, fmt.Errorf("model manager is required")
	}
	return &Orchestrator{
		router:    cfg.Router,
		taskAgent: cfg.TaskAgent,
		contentAg: cfg.ContentAgent,
		commAgent: cfg.CommAgent,
		generalAg: cfg.GeneralAgent,
		models:    cfg.ModelManager,
		logger:    cfg.Logger,
	}, nil
}

// switchRe matches "switch [to] X", "use [to] X", "model [to] X".
var switchRe = regexp.MustCompile(`(?i)^(?:switch|use|model)(?:\s+to)?\s+(\S+)$`)

// statusRe matches the model status question forms.
var statusRe = regexp.MustCompile(`(?i)^(?:model\??|model status\??|which model\??|current model\??|what model(?:\s+are\s+you(?:\s+using)?)?\??)$`)

// Handle processes one operator instruction end to end.
func (o *Orchestrator) Handle(ctx context.Context, instruction string, history []llm.Message) Reply {
	trimmed := strings.TrimSpace(instruction)

	if reply, ok := o.handleMetaCommand(trimmed); ok {
		return reply
	}

	result := o.router.Classify(ctx, trimmed)
	o.logger.Debug().
		Str("intent", string(result.Intent)).
		Float64("confidence", result.Confidence).
		Msg("Instruction classified")

	switch result.Intent {
	case router.IntentTaskAssign, router.IntentTaskStatus, router.IntentTaskComplete:
		return o.runSpecialist(ctx, o.taskAgent, trimmed, result)
	case router.IntentContentRewrite:
		return o.runSpecialist(ctx, o.contentAg, trimmed, result)
	case router.IntentCommunicationSend, router.IntentCommunicationDraft, router.IntentChannelCheck:
		return o.runSpecialist(ctx, o.commAgent, trimmed, result)
	case router.IntentEscalation:
		return o.runSpecialist(ctx, o.commAgent, escalationInstruction(trimmed, result), result)
	default:
		return o.answerDirectly(ctx, trimmed, history, result)
	}
}

func (o *Orchestrator) handleMetaCommand(instruction string) (Reply, bool) {
	if statusRe.MatchString(instruction) {
		return Reply{Text: o.modelStatus()}, true
	}
	if m := switchRe.FindStringSubmatch(instruction); m != nil {
		res := o.models.Switch(m[1])
		return Reply{Text: res.Message}, true
	}
	return Reply{}, false
}

func (o *Orchestrator) modelStatus() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active model: %s (%s)\nAvailable:\n", o.models.ActiveName(), o.models.Active())

	aliases := o.models.Aliases()
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, aliases[name])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) runSpecialist(ctx context.Context, ag *agent.Agent, instruction string, classified router.Result) Reply {
	enriched := enrich(instruction, classified.Params)

	res, err := ag.Run(ctx, enriched, nil)
	if err != nil {
		o.logger.Error().Err(err).Str("agent", ag.Name()).Msg("Specialist run failed")
		return Reply{Text: apology, Intent: classified.Intent}
	}

	return Reply{
		Text:       res.Response,
		Intent:     classified.Intent,
		Action:     res.Action,
		ActionData: res.ActionData,
		Usage:      res.Usage,
	}
}

func (o *Orchestrator) answerDirectly(ctx context.Context, instruction string, history []llm.Message, classified router.Result) Reply {
	text, usage, err := o.generalAg.Chat(ctx, instruction, history)
	if err != nil {
		o.logger.Error().Err(err).Msg("Direct answer failed")
		return Reply{Text: apology, Intent: classified.Intent}
	}
	return Reply{Text: text, Intent: classified.Intent, Usage: usage}
}

// enrich appends the router's extracted parameters after the verbatim
// instruction. The original text is never altered; the block is purely
// additive so the specialist sees both.
func enrich(instruction string, params map[string]interface{}) string {
	if len(params) == 0 {
		return instruction
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n[Router extracted parameters:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, params[k])
	}
	b.WriteString("]")
	return b.String()
}

// escalationInstruction turns a classified escalation into an explicit
// brief for the communication specialist.
func escalationInstruction(original string, classified router.Result) string {
	urgency := "high"
	if raw, ok := classified.Params["urgency"].(string); ok && raw != "" {
		urgency = raw
	}
	summary := original
	if raw, ok := classified.Params["summary"].(string); ok && raw != "" {
		summary = raw
	}

	return fmt.Sprintf(
		"An urgent situation needs the founder's attention (urgency: %s). Summary: %s. "+
			"Notify the founder immediately using dm_founder, then take any follow-up actions that make sense.\n\n"+
			"Original message: %s", urgency, summary, original)
}
