package agent

// EventType discriminates the stream event payloads.
type EventType string

// Event types emitted during a turn, in the order a client may see them.
const (
	// EventTextDelta carries one increment of assistant text.
	EventTextDelta EventType = "text_delta"

	// EventToolArgsDelta carries one fragment of a tool call's argument
	// JSON while the model is still streaming it.
	EventToolArgsDelta EventType = "tool_args_delta"

	// EventToolCall announces a tool invocation about to be dispatched.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries the structured result of a dispatched tool.
	EventToolResult EventType = "tool_result"

	// EventError reports an unrecoverable completion failure. Always
	// followed by EventDone.
	EventError EventType = "error"

	// EventDone terminates every turn. Nothing follows it.
	EventDone EventType = "done"
)

// ErrorDetail is the payload of an EventError.
type ErrorDetail struct {
	Message string `json:"message"`
}

// Event is the atomic unit streamed to the client. Exactly the fields
// relevant to the Type are populated; the rest marshal away.
type Event struct {
	Type EventType `json:"type"`

	// Delta is the text increment for text_delta, or the argument JSON
	// fragment for tool_args_delta.
	Delta string `json:"delta,omitempty"`

	// Name is the tool name for tool_args_delta, tool_call, and
	// tool_result events.
	Name string `json:"name,omitempty"`

	// Arguments is the decoded argument mapping for tool_call events.
	Arguments map[string]any `json:"arguments,omitempty"`

	// Result is the structured tool result for tool_result events.
	Result map[string]any `json:"result,omitempty"`

	// Error is the failure detail for error events.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TextDelta builds a text_delta event.
func TextDelta(delta string) Event {
	return Event{Type: EventTextDelta, Delta: delta}
}

// ToolArgsDelta builds a tool_args_delta event.
func ToolArgsDelta(name, delta string) Event {
	return Event{Type: EventToolArgsDelta, Name: name, Delta: delta}
}

// ToolCallEvent builds a tool_call event.
func ToolCallEvent(name string, arguments map[string]any) Event {
	return Event{Type: EventToolCall, Name: name, Arguments: arguments}
}

// ToolResultEvent builds a tool_result event.
func ToolResultEvent(name string, result map[string]any) Event {
	return Event{Type: EventToolResult, Name: name, Result: result}
}

// ErrorEvent builds an error event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Error: &ErrorDetail{Message: message}}
}

// Done builds the terminal done event.
func Done() Event {
	return Event{Type: EventDone}
}
