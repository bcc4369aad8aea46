package tools

import "github.com/lvls/supportbot/pkg/llm"

// Catalogs are fixed per specialist and stable within a loop run.

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func enumProp(description string, values ...string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]interface{}{"type": "string", "enum": enum, "description": description}
}

func numProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

// TaskCatalog lists the task specialist's tools.
func TaskCatalog() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        "create_task",
			Description: "Create a new task and assign it to a team member. This stores the task and schedules reminders.",
			InputSchema: objectSchema(map[string]interface{}{
				"assignee_name": strProp("Name of the team member to assign the task to"),
				"title":         strProp("Short, clear task title (under 100 chars)"),
				"description":   strProp("Detailed description of what needs to be done"),
				"deadline":      strProp(`Deadline as ISO date string or natural language (e.g., "Friday", "2026-03-01", "in 3 days")`),
				"priority":      enumProp("Task priority level", "low", "normal", "high", "urgent"),
			}, "assignee_name", "title", "description"),
		},
		{
			Name:        "get_tasks",
			Description: "Query tasks. Can filter by person, status, or deadline scope.",
			InputSchema: objectSchema(map[string]interface{}{
				"person_name": strProp("Filter by team member name. Omit to get all tasks."),
				"scope":       enumProp("Scope of tasks to return. Default: active", "active", "overdue", "this_week", "all"),
			}),
		},
		{
			Name:        "complete_task",
			Description: "Mark a task as completed. Cancels any pending reminders for the task.",
			InputSchema: objectSchema(map[string]interface{}{
				"search_term": strProp("Part of the task title to search for"),
				"person_name": strProp("Optional: narrow search to a specific person"),
			}, "search_term"),
		},
		{
			Name:        "post_message",
			Description: "Post a formatted message or task card to a specific channel.",
			InputSchema: objectSchema(map[string]interface{}{
				"channel_id":      strProp("Channel ID to post to"),
				"message":         strProp("Message text to post"),
				"mention_user_id": strProp("Optional: user ID to mention in the message"),
			}, "channel_id", "message"),
		},
		{
			Name:        "lookup_team_member",
			Description: "Find a team member by name. Returns their user ID, role, and other info.",
			InputSchema: objectSchema(map[string]interface{}{
				"name": strProp("Name (or partial name) of the team member"),
			}, "name"),
		},
	}
}

// ContentCatalog lists the content specialist's tools. They are
// passthroughs: the rewritten text is the agent's own response.
func ContentCatalog() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        "rewrite_content",
			Description: "Rewrite content with a specific tone, platform, and style. Returns the rewritten version.",
			InputSchema: objectSchema(map[string]interface{}{
				"original":     strProp("The original content to rewrite"),
				"platform":     enumProp("Target platform", "facebook_ad", "instagram", "email", "chat", "whatsapp", "linkedin", "general"),
				"tone":         enumProp("Desired tone", "professional", "casual", "urgent", "friendly", "bold", "minimal"),
				"instructions": strProp(`Any specific instructions (e.g., "make it shorter", "add a CTA")`),
			}, "original"),
		},
		{
			Name:        "generate_variations",
			Description: "Generate multiple distinct variations of content. Good for ad copy, subject lines, etc.",
			InputSchema: objectSchema(map[string]interface{}{
				"content":  strProp("The base content to create variations of"),
				"count":    numProp("Number of variations to generate (2-5). Default: 3"),
				"platform": strProp("Target platform for the variations"),
				"angle":    strProp(`Specific angle or hook to explore (e.g., "urgency", "social proof")`),
			}, "content"),
		},
		{
			Name:        "adapt_for_platform",
			Description: "Take existing content and adapt it for a different platform with proper formatting and length.",
			InputSchema: objectSchema(map[string]interface{}{
				"content":       strProp("The content to adapt"),
				"from_platform": strProp("Original platform (if known)"),
				"to_platform":   strProp("Target platform to adapt for"),
			}, "content", "to_platform"),
		},
	}
}

// CommunicationCatalog lists the communication specialist's tools.
func CommunicationCatalog() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        "draft_client_message",
			Description: "Draft a message for a client channel. This does NOT send it — it creates an approval request for the operator.",
			InputSchema: objectSchema(map[string]interface{}{
				"channel_name": strProp("Client channel name or ID"),
				"context":      strProp("What the message should be about"),
				"tone":         enumProp("Tone of the message", "warm", "professional", "excited", "apologetic", "neutral"),
			}, "channel_name", "context"),
		},
		{
			Name:        "send_internal_message",
			Description: "Send a message directly to an internal/team channel. No approval needed.",
			InputSchema: objectSchema(map[string]interface{}{
				"channel_id":      strProp("Internal channel ID to send to"),
				"message":         strProp("Message to send"),
				"mention_user_id": strProp("Optional: user to mention"),
			}, "channel_id", "message"),
		},
		{
			Name:        "search_channel_history",
			Description: "Read recent messages from a channel to understand context before drafting a response.",
			InputSchema: objectSchema(map[string]interface{}{
				"channel_id": strProp("Channel ID to read from"),
				"limit":      numProp("Number of recent messages to read (default: 10)"),
			}, "channel_id"),
		},
		{
			Name:        "lookup_channel",
			Description: "Look up a channel by name to get its ID, type (client/internal), and whether it requires approval.",
			InputSchema: objectSchema(map[string]interface{}{
				"name": strProp("Channel name (or partial name) to search for"),
			}, "name"),
		},
		{
			Name:        "schedule_message",
			Description: "Schedule a message to be sent at a future time.",
			InputSchema: objectSchema(map[string]interface{}{
				"channel_id": strProp("Channel to send to"),
				"message":    strProp("Message content"),
				"send_at":    strProp(`When to send (ISO date or natural language like "tomorrow")`),
			}, "channel_id", "message", "send_at"),
		},
		{
			Name:        "dm_founder",
			Description: "Send a direct message to the founder. Use for escalations, approvals, and urgent flags.",
			InputSchema: objectSchema(map[string]interface{}{
				"message": strProp("Message to send to the founder"),
				"urgency": enumProp("Urgency level", "normal", "high", "critical"),
			}, "message"),
		},
		{
			Name:        "check_unanswered_messages",
			Description: "Scan channels for unanswered messages with no thread replies. Can check a specific channel by name/ID, or scan all client channels at once.",
			InputSchema: objectSchema(map[string]interface{}{
				"channel_name": strProp("Specific channel name or ID to check. Omit to scan all client channels."),
				"scope":        enumProp("Which channels to scan. Default: all_client", "all_client", "all_internal", "specific"),
				"hours_back":   numProp("How many hours back to look for unanswered messages. Default: 24"),
			}),
		},
	}
}

// RouterCatalog lists the single classification tool the Router uses.
func RouterCatalog() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        "classify_intent",
			Description: "Classify the user message into an intent category and extract parameters.",
			InputSchema: objectSchema(map[string]interface{}{
				"intent": enumProp("The classified intent",
					"TASK_ASSIGN", "TASK_STATUS", "TASK_COMPLETE",
					"CONTENT_REWRITE", "COMMUNICATION_SEND", "COMMUNICATION_DRAFT",
					"CHANNEL_CHECK", "ESCALATION", "GENERAL_QUERY"),
				"confidence": numProp("Confidence score 0.0-1.0"),
				"params": map[string]interface{}{
					"type":                 "object",
					"description":          "Extracted parameters relevant to the intent",
					"additionalProperties": true,
				},
			}, "intent", "confidence", "params"),
		},
	}
}

// specByName resolves a tool name across every catalog.
func specByName(name string) (llm.ToolSpec, bool) {
	for _, catalog := range [][]llm.ToolSpec{
		TaskCatalog(),
		ContentCatalog(),
		CommunicationCatalog(),
		RouterCatalog(),
	} {
		for _, spec := range catalog {
			if spec.Name == name {
				return spec, true
			}
		}
	}
	return llm.ToolSpec{}, false
}
