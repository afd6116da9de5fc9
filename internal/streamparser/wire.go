package streamparser

import "encoding/json"

// The wire format is a structural union: variants are recognized by which
// fields are present, not by a tag. Each variant is a pointer so that
// absence, or a value of the wrong shape, decodes to nil and simply means
// "not this variant".

// Record is one decoded `data:` line. Both branches may be set.
type Record struct {
	// Event carries an incremental streaming event.
	Event *StreamEvent `json:"event,omitempty"`
	// Message carries a complete message replay.
	Message *FinalMessage `json:"message,omitempty"`
}

// StreamEvent is keyed by the kind of incremental event.
type StreamEvent struct {
	// MessageStart opens a message cycle.
	MessageStart *MessageStart `json:"messageStart,omitempty"`
	// ContentBlockStart opens a content block.
	ContentBlockStart *ContentBlockStart `json:"contentBlockStart,omitempty"`
	// ContentBlockDelta carries a text or tool input fragment.
	ContentBlockDelta *ContentBlockDelta `json:"contentBlockDelta,omitempty"`
	// ContentBlockStop closes a content block.
	ContentBlockStop *ContentBlockStop `json:"contentBlockStop,omitempty"`
	// MessageStop closes the message.
	MessageStop *MessageStop `json:"messageStop,omitempty"`
}

// MessageStart opens a message cycle.
type MessageStart struct {
	// Role is usually "assistant".
	Role string `json:"role,omitempty"`
}

// ContentBlockStart opens the block at ContentBlockIndex.
type ContentBlockStart struct {
	// Start describes the block; only tool-use starts matter.
	Start *BlockStart `json:"start,omitempty"`
	// ContentBlockIndex is the per-message block position.
	ContentBlockIndex *int `json:"contentBlockIndex,omitempty"`
}

// BlockStart describes a newly opened block.
type BlockStart struct {
	// ToolUse is set for tool invocation blocks.
	ToolUse *ToolUseStart `json:"toolUse,omitempty"`
}

// ToolUseStart identifies a tool invocation block.
type ToolUseStart struct {
	// ToolUseID is the tool call identifier.
	ToolUseID string `json:"toolUseId"`
	// Name is the tool name.
	Name string `json:"name"`
}

// ContentBlockDelta carries one fragment for the block at ContentBlockIndex.
type ContentBlockDelta struct {
	// Delta holds the fragment.
	Delta *Delta `json:"delta,omitempty"`
	// ContentBlockIndex is the per-message block position.
	ContentBlockIndex *int `json:"contentBlockIndex,omitempty"`
}

// Delta may carry text, tool input, or both; each is checked independently.
type Delta struct {
	// Text is a streamed text fragment.
	Text *string `json:"text,omitempty"`
	// ToolUse is a streamed tool input fragment.
	ToolUse *ToolUseDelta `json:"toolUse,omitempty"`
}

// ToolUseDelta is a fragment of tool input JSON text.
type ToolUseDelta struct {
	// Input is normally a JSON string holding raw argument text.
	Input json.RawMessage `json:"input,omitempty"`
}

// ContentBlockStop closes the block at ContentBlockIndex.
type ContentBlockStop struct {
	// ContentBlockIndex is the per-message block position.
	ContentBlockIndex *int `json:"contentBlockIndex,omitempty"`
}

// MessageStop closes the current message.
type MessageStop struct {
	// StopReason explains why the message ended.
	StopReason string `json:"stopReason,omitempty"`
}

// FinalMessage is a complete message: an assistant replay of everything
// streamed, or a user message carrying tool results.
type FinalMessage struct {
	// Role is "assistant" or "user"; other roles are ignored.
	Role string `json:"role"`
	// Content is the ordered block list; non-arrays are ignored.
	Content json.RawMessage `json:"content,omitempty"`
}

// ContentBlock is one element of FinalMessage.Content.
type ContentBlock struct {
	// Text is a text block.
	Text *string `json:"text,omitempty"`
	// ToolUse is a complete tool invocation.
	ToolUse *ToolUseBlock `json:"toolUse,omitempty"`
	// ToolResult is a tool outcome.
	ToolResult *ToolResultBlock `json:"toolResult,omitempty"`
}

// ToolUseBlock is the authoritative tool invocation.
type ToolUseBlock struct {
	// ToolUseID is the tool call identifier.
	ToolUseID string `json:"toolUseId"`
	// Name is the tool name.
	Name string `json:"name"`
	// Input is an object or a JSON string encoding one.
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResultBlock reports a tool outcome.
type ToolResultBlock struct {
	// ToolUseID is the tool call identifier.
	ToolUseID string `json:"toolUseId"`
	// Status is "success" or anything else for failure.
	Status string `json:"status"`
	// Content is usually a list of {text} items.
	Content json.RawMessage `json:"content,omitempty"`
}
