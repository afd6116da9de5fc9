package streamparser

import "time"

// ToolCallStatus tracks a tool call through pending -> executing -> completed|error.
type ToolCallStatus string

const (
	// ToolCallPending is set when the tool-use block opens.
	ToolCallPending ToolCallStatus = "pending"
	// ToolCallExecuting is set once the arguments are complete.
	ToolCallExecuting ToolCallStatus = "executing"
	// ToolCallCompleted is set when the agent reports a successful result.
	ToolCallCompleted ToolCallStatus = "completed"
	// ToolCallError is set when the agent reports a failed result.
	ToolCallError ToolCallStatus = "error"
)

// ToolCall is a tool invocation surfaced to the sink.
type ToolCall struct {
	// ID is the protocol-assigned tool-use identifier.
	ID string `json:"id"`
	// ToolName is the tool the agent asked for.
	ToolName string `json:"toolName"`
	// Parameters holds the parsed tool input.
	Parameters map[string]any `json:"parameters"`
	// Status is the lifecycle state of the call.
	Status ToolCallStatus `json:"status"`
	// Result carries the tool output once completed.
	Result any `json:"result,omitempty"`
	// Error carries the failure text once errored.
	Error string `json:"error,omitempty"`
	// Timestamp records when the call was first seen.
	Timestamp time.Time `json:"timestamp"`
	// MessageID is the assistant message that owns the call.
	MessageID string `json:"messageId"`
}

// ToolCallUpdate is a partial tool call; nil fields are left unchanged.
type ToolCallUpdate struct {
	// ToolName overrides the tool name when set.
	ToolName *string `json:"toolName,omitempty"`
	// Parameters replaces the parameters when non-nil.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Status moves the call to a new state when set.
	Status *ToolCallStatus `json:"status,omitempty"`
}

// MessageUpdate is a partial message; nil fields are left unchanged.
type MessageUpdate struct {
	// Content replaces the message text when set.
	Content *string `json:"content,omitempty"`
	// IsStreaming toggles the streaming flag when set.
	IsStreaming *bool `json:"isStreaming,omitempty"`
	// ToolCalls lists tool-call ids to append when non-nil.
	ToolCalls []string `json:"toolCalls,omitempty"`
}

// ToolResult reports the outcome of one tool call. Exactly one of Result
// or Error is meaningful, selected by Status.
type ToolResult struct {
	// ToolCallID links the result to its tool call.
	ToolCallID string `json:"toolCallId"`
	// Status is ToolCallCompleted or ToolCallError.
	Status ToolCallStatus `json:"status"`
	// Result is the tool output on success.
	Result any `json:"result,omitempty"`
	// Error is the stringified output on failure.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the tool reported an error.
func (r ToolResult) Failed() bool {
	return r.Status == ToolCallError
}

func statusPtr(status ToolCallStatus) *ToolCallStatus {
	return &status
}

func stringPtr(value string) *string {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}
