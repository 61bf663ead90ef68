package core

import "context"

// Apology is the user-facing content returned when a response could not be
// produced.
const Apology = "I apologize, but I encountered an error while processing your request."

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function invocation requested by a model. Arguments hold the
// raw JSON object produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a role-tagged chat message. Assistant messages may carry tool
// calls; tool messages answer one call identified by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition exposes a callable function to the model. Parameters is a
// minimal JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CompletionOptions tune a single chat completion.
type CompletionOptions struct {
	Model      string
	Tools      []ToolDefinition
	ToolChoice string
	UserID     string
}

// Completion is the outcome of a chat completion. Success is false when the
// model could not produce an answer; Content then holds a user-facing
// apology and Error the cause.
type Completion struct {
	Content string `json:"content"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Rounds  int    `json:"rounds"`
}

// LanguageModel produces chat completions. Implementations never panic and
// report failures through Completion.Success.
type LanguageModel interface {
	CreateChatCompletion(ctx context.Context, messages []Message, opts CompletionOptions) Completion
}
