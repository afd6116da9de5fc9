package streamjson

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/agentconsole/agentconsole/internal/agent"
	"github.com/agentconsole/agentconsole/internal/streamparser"
)

// Event types emitted while a turn streams.
const (
	EventText           = "text"
	EventToolCall       = "tool_call"
	EventToolCallUpdate = "tool_call_update"
	EventToolCallLink   = "tool_call_link"
	EventMessageUpdate  = "message_update"
	EventToolResult     = "tool_result"
	EventMessageCycle   = "message_cycle"
)

// SystemEvent announces the session before any stream output.
type SystemEvent struct {
	// Type is always "system".
	Type string `json:"type"`
	// Subtype categorizes the system event.
	Subtype string `json:"subtype"`
	// Endpoint is the agent invocation URL.
	Endpoint string `json:"endpoint,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// StreamEvent mirrors one decoded stream callback.
type StreamEvent struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`
	// MessageID is the assistant message the event targets.
	MessageID string `json:"message_id,omitempty"`
	// PreviousMessageID is set on message_cycle events.
	PreviousMessageID string `json:"previous_message_id,omitempty"`
	// ToolCallID is set on tool call events.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Content is the full accumulated text of a text event.
	Content *string `json:"content,omitempty"`
	// ToolCall carries a newly opened tool call.
	ToolCall *streamparser.ToolCall `json:"tool_call,omitempty"`
	// ToolCallUpdate carries partial tool call fields.
	ToolCallUpdate *streamparser.ToolCallUpdate `json:"tool_call_update,omitempty"`
	// MessageUpdate carries partial message fields.
	MessageUpdate *streamparser.MessageUpdate `json:"message_update,omitempty"`
	// ToolResult carries a tool outcome.
	ToolResult *streamparser.ToolResult `json:"tool_result,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// ResultEvent represents the terminal stream-json result.
type ResultEvent struct {
	// Type is always "result".
	Type string `json:"type"`
	// Subtype describes success or error conditions.
	Subtype string `json:"subtype"`
	// IsError reports whether the result indicates an error.
	IsError bool `json:"is_error"`
	// DurationMS is the total runtime in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// NumMessages is the number of assistant messages the turn produced.
	NumMessages int `json:"num_messages"`
	// Result contains the final assistant text.
	Result string `json:"result,omitempty"`
	// CaptureID names the raw stream capture, when recorded.
	CaptureID string `json:"capture_id,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
	// Errors holds error messages for error subtypes.
	Errors []string `json:"errors,omitempty"`
}

// Writer emits stream-json events as JSON Lines.
type Writer struct {
	writer io.Writer
}

// NewWriter constructs a stream-json writer.
func NewWriter(writer io.Writer) *Writer {
	return &Writer{writer: writer}
}

// Write emits a single event as a JSON line.
func (w *Writer) Write(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream-json event: %w", err)
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stream-json event: %w", err)
	}
	return nil
}

// NewUUID returns a new UUID string for stream-json events.
func NewUUID() string {
	return uuid.NewString()
}

// Emitter turns turn callbacks into stream-json lines. It is safe for use
// from the streaming goroutine and the caller at once.
type Emitter struct {
	mu        sync.Mutex
	writer    *Writer
	sessionID string
	err       error
}

// NewEmitter writes events for sessionID to writer.
func NewEmitter(writer io.Writer, sessionID string) *Emitter {
	if sessionID == "" {
		sessionID = NewUUID()
	}
	return &Emitter{writer: NewWriter(writer), sessionID: sessionID}
}

// SessionID returns the session the emitter stamps on every event.
func (e *Emitter) SessionID() string {
	return e.sessionID
}

// Err returns the first write failure, if any.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// System emits the init event.
func (e *Emitter) System(endpoint string) error {
	return e.emit(SystemEvent{
		Type:      "system",
		Subtype:   "init",
		Endpoint:  endpoint,
		SessionID: e.sessionID,
		UUID:      NewUUID(),
	})
}

// Callbacks returns turn hooks that emit one line per callback.
func (e *Emitter) Callbacks() *agent.StreamCallbacks {
	return &agent.StreamCallbacks{
		OnTextUpdate: func(messageID string, content string) {
			e.stream(StreamEvent{Type: EventText, MessageID: messageID, Content: &content})
		},
		OnToolCallCreate: func(call streamparser.ToolCall) {
			e.stream(StreamEvent{Type: EventToolCall, MessageID: call.MessageID, ToolCallID: call.ID, ToolCall: &call})
		},
		OnToolCallUpdate: func(toolCallID string, update streamparser.ToolCallUpdate) {
			e.stream(StreamEvent{Type: EventToolCallUpdate, ToolCallID: toolCallID, ToolCallUpdate: &update})
		},
		OnToolCallLink: func(messageID string, toolCallID string) {
			e.stream(StreamEvent{Type: EventToolCallLink, MessageID: messageID, ToolCallID: toolCallID})
		},
		OnMessageUpdate: func(messageID string, update streamparser.MessageUpdate) {
			e.stream(StreamEvent{Type: EventMessageUpdate, MessageID: messageID, MessageUpdate: &update})
		},
		OnToolResult: func(result streamparser.ToolResult) {
			e.stream(StreamEvent{Type: EventToolResult, ToolCallID: result.ToolCallID, ToolResult: &result})
		},
		OnMessageCycle: func(previousMessageID string, nextMessageID string) {
			e.stream(StreamEvent{Type: EventMessageCycle, MessageID: nextMessageID, PreviousMessageID: previousMessageID})
		},
	}
}

// Result emits the terminal event for a turn. finalText is the content of
// the last assistant message.
func (e *Emitter) Result(result *agent.TurnResult, finalText string, turnErr error) error {
	event := ResultEvent{
		Type:      "result",
		Subtype:   "success",
		Result:    finalText,
		SessionID: e.sessionID,
		UUID:      NewUUID(),
	}
	if result != nil {
		event.DurationMS = result.Duration.Milliseconds()
		event.NumMessages = len(result.MessageIDs)
		event.CaptureID = result.CaptureID
		if result.ToolInputErr != nil {
			event.Errors = append(event.Errors, result.ToolInputErr.Error())
		}
	}
	if turnErr != nil {
		event.Subtype = "error_during_execution"
		event.IsError = true
		event.Errors = append(event.Errors, turnErr.Error())
	}
	return e.emit(event)
}

func (e *Emitter) stream(event StreamEvent) {
	event.SessionID = e.sessionID
	event.UUID = NewUUID()
	_ = e.emit(event)
}

func (e *Emitter) emit(event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writer.Write(event); err != nil {
		if e.err == nil {
			e.err = err
		}
		return err
	}
	return nil
}
