// Package types defines the shared conversation types used across all
// pharmagent packages.
//
// These types form the lingua franca between the completion providers, the
// agent loop, the tool registry, and the HTTP surface. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

// Role values for [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single turn in a conversation history.
//
// The history is caller-supplied at the start of each turn and strictly
// appended to by the agent loop; the only message ever mutated is the
// in-progress assistant message, which is frozen when the turn ends.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message. May be empty while the
	// assistant message is still streaming.
	Content string `json:"content"`

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set when Role is "tool", identifying which tool call
	// this message responds to.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments is the JSON-encoded arguments string as produced by the
	// model. It is not validated until the registry dispatches the call.
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool offered to the model.
//
// Only the name, description, and parameter schema cross the provider
// boundary — handlers stay inside the tool registry.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}
