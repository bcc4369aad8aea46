package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Invocation is the closed set of decoded tool inputs. Adding a tool
// means adding a variant here, a schema in the catalog, and a case in
// the dispatcher; the compiler finds anything missed.
type Invocation interface {
	ToolName() string
	isInvocation()
}

// CreateTaskInput assigns a new task to a team member.
type CreateTaskInput struct {
	AssigneeName string `json:"assignee_name"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Deadline     string `json:"deadline,omitempty"`
	Priority     string `json:"priority,omitempty"`
}

// GetTasksInput queries tasks by person and scope.
type GetTasksInput struct {
	PersonName string `json:"person_name,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

// CompleteTaskInput marks a matching task completed.
type CompleteTaskInput struct {
	SearchTerm string `json:"search_term"`
	PersonName string `json:"person_name,omitempty"`
}

// PostMessageInput posts a message to a channel.
type PostMessageInput struct {
	ChannelID     string `json:"channel_id"`
	Message       string `json:"message"`
	MentionUserID string `json:"mention_user_id,omitempty"`
}

// LookupTeamMemberInput resolves a member by (partial) name.
type LookupTeamMemberInput struct {
	Name string `json:"name"`
}

// LookupChannelInput resolves a channel by (partial) name.
type LookupChannelInput struct {
	Name string `json:"name"`
}

// DraftClientMessageInput opens an approval gate for a client channel.
type DraftClientMessageInput struct {
	ChannelName string `json:"channel_name"`
	Context     string `json:"context"`
	Tone        string `json:"tone,omitempty"`
}

// SendInternalMessageInput delivers directly to a non-client channel.
type SendInternalMessageInput struct {
	ChannelID     string `json:"channel_id"`
	Message       string `json:"message"`
	MentionUserID string `json:"mention_user_id,omitempty"`
}

// SearchChannelHistoryInput reads recent channel messages.
type SearchChannelHistoryInput struct {
	ChannelID string `json:"channel_id"`
	Limit     int    `json:"limit,omitempty"`
}

// ScheduleMessageInput defers a delivery to a future time.
type ScheduleMessageInput struct {
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
	SendAt    string `json:"send_at"`
}

// DMFounderInput notifies the operator directly.
type DMFounderInput struct {
	Message string `json:"message"`
	Urgency string `json:"urgency,omitempty"`
}

// CheckUnansweredInput scans channels for messages with no replies.
type CheckUnansweredInput struct {
	ChannelName string `json:"channel_name,omitempty"`
	Scope       string `json:"scope,omitempty"`
	HoursBack   int    `json:"hours_back,omitempty"`
}

// RewriteContentInput is a content passthrough: the rewriting itself
// is the agent's text response, the tool run records the request.
type RewriteContentInput struct {
	Original     string `json:"original"`
	Platform     string `json:"platform,omitempty"`
	Tone         string `json:"tone,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// GenerateVariationsInput is a content passthrough.
type GenerateVariationsInput struct {
	Content  string `json:"content"`
	Count    int    `json:"count,omitempty"`
	Platform string `json:"platform,omitempty"`
	Angle    string `json:"angle,omitempty"`
}

// AdaptForPlatformInput is a content passthrough.
type AdaptForPlatformInput struct {
	Content      string `json:"content"`
	FromPlatform string `json:"from_platform,omitempty"`
	ToPlatform   string `json:"to_platform"`
}

// ClassifyIntentInput is the router's structured classification.
type ClassifyIntentInput struct {
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Params     map[string]interface{} `json:"params"`
}

func (CreateTaskInput) ToolName() string           { return "create_task" }
func (GetTasksInput) ToolName() string             { return "get_tasks" }
func (CompleteTaskInput) ToolName() string         { return "complete_task" }
func (PostMessageInput) ToolName() string          { return "post_message" }
func (LookupTeamMemberInput) ToolName() string     { return "lookup_team_member" }
func (LookupChannelInput) ToolName() string        { return "lookup_channel" }
func (DraftClientMessageInput) ToolName() string   { return "draft_client_message" }
func (SendInternalMessageInput) ToolName() string  { return "send_internal_message" }
func (SearchChannelHistoryInput) ToolName() string { return "search_channel_history" }
func (ScheduleMessageInput) ToolName() string      { return "schedule_message" }
func (DMFounderInput) ToolName() string            { return "dm_founder" }
func (CheckUnansweredInput) ToolName() string      { return "check_unanswered_messages" }
func (RewriteContentInput) ToolName() string       { return "rewrite_content" }
func (GenerateVariationsInput) ToolName() string   { return "generate_variations" }
func (AdaptForPlatformInput) ToolName() string     { return "adapt_for_platform" }
func (ClassifyIntentInput) ToolName() string       { return "classify_intent" }

func (CreateTaskInput) isInvocation()           {}
func (GetTasksInput) isInvocation()             {}
func (CompleteTaskInput) isInvocation()         {}
func (PostMessageInput) isInvocation()          {}
func (LookupTeamMemberInput) isInvocation()     {}
func (LookupChannelInput) isInvocation()        {}
func (DraftClientMessageInput) isInvocation()   {}
func (SendInternalMessageInput) isInvocation()  {}
func (SearchChannelHistoryInput) isInvocation() {}
func (ScheduleMessageInput) isInvocation()      {}
func (DMFounderInput) isInvocation()            {}
func (CheckUnansweredInput) isInvocation()      {}
func (RewriteContentInput) isInvocation()       {}
func (GenerateVariationsInput) isInvocation()   {}
func (AdaptForPlatformInput) isInvocation()     {}
func (ClassifyIntentInput) isInvocation()       {}

// Decode validates raw input against the tool's schema and unmarshals
// it into the matching typed variant. Unknown names and invalid inputs
// come back as errors; the dispatcher turns them into failed Results.
func Decode(name string, input map[string]interface{}) (Invocation, error) {
	spec, ok := specByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for %s: %w", name, err)
	}

	if err := validateAgainstSchema(spec.InputSchema, raw); err != nil {
		return nil, fmt.Errorf("invalid input for %s: %w", name, err)
	}

	var inv Invocation
	switch name {
	case "create_task":
		inv, err = decodeInto[CreateTaskInput](raw)
	case "get_tasks":
		inv, err = decodeInto[GetTasksInput](raw)
	case "complete_task":
		inv, err = decodeInto[CompleteTaskInput](raw)
	case "post_message":
		inv, err = decodeInto[PostMessageInput](raw)
	case "lookup_team_member":
		inv, err = decodeInto[LookupTeamMemberInput](raw)
	case "lookup_channel":
		inv, err = decodeInto[LookupChannelInput](raw)
	case "draft_client_message":
		inv, err = decodeInto[DraftClientMessageInput](raw)
	case "send_internal_message":
		inv, err = decodeInto[SendInternalMessageInput](raw)
	case "search_channel_history":
		inv, err = decodeInto[SearchChannelHistoryInput](raw)
	case "schedule_message":
		inv, err = decodeInto[ScheduleMessageInput](raw)
	case "dm_founder":
		inv, err = decodeInto[DMFounderInput](raw)
	case "check_unanswered_messages":
		inv, err = decodeInto[CheckUnansweredInput](raw)
	case "rewrite_content":
		inv, err = decodeInto[RewriteContentInput](raw)
	case "generate_variations":
		inv, err = decodeInto[GenerateVariationsInput](raw)
	case "adapt_for_platform":
		inv, err = decodeInto[AdaptForPlatformInput](raw)
	case "classify_intent":
		inv, err = decodeInto[ClassifyIntentInput](raw)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode input for %s: %w", name, err)
	}
	return inv, nil
}

func decodeInto[T Invocation](raw []byte) (Invocation, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func validateAgainstSchema(schema map[string]interface{}, raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return err
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(reasons, "; "))
	}
	return nil
}
