package agent

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentconsole/agentconsole/internal/capture"
	"github.com/agentconsole/agentconsole/internal/conversation"
	"github.com/agentconsole/agentconsole/internal/invocation"
	"github.com/agentconsole/agentconsole/internal/streamparser"
)

// Runner executes chat turns against an agent endpoint and folds the
// streamed response into a conversation.
type Runner struct {
	// Client posts prompts to the agent endpoint.
	Client *invocation.Client
	// Store receives every decoded stream event.
	Store *conversation.Store
	// Captures, when set, records each turn's raw stream for replay.
	Captures *capture.Store
	// ExtraFields are sent alongside the prompt on every invocation.
	ExtraFields map[string]any
	// Logger receives turn diagnostics.
	Logger *log.Entry
	// ParserOptions are passed to each stream parser.
	ParserOptions []streamparser.Option
}

// TurnResult summarizes one turn.
type TurnResult struct {
	// UserMessageID is the prompt message, empty for replays.
	UserMessageID string
	// MessageIDs lists every assistant message the turn produced, in order.
	MessageIDs []string
	// CaptureID names the raw stream capture, when recording.
	CaptureID string
	// Duration is the wall time of the turn.
	Duration time.Duration
	// ToolInputErr is set when a final message carried unparseable tool
	// input; the turn still completes.
	ToolInputErr error
}

// LastMessageID returns the final assistant message of the turn.
func (r *TurnResult) LastMessageID() string {
	if r == nil || len(r.MessageIDs) == 0 {
		return ""
	}
	return r.MessageIDs[len(r.MessageIDs)-1]
}

// StreamCallbacks observes a turn as it streams. Each hook runs after the
// conversation store applied the same event; nil hooks are skipped.
type StreamCallbacks struct {
	// OnTextUpdate receives the full accumulated text of a message.
	OnTextUpdate func(messageID string, content string)
	// OnToolCallCreate fires when a tool call opens.
	OnToolCallCreate func(call streamparser.ToolCall)
	// OnToolCallUpdate fires with partial tool call fields.
	OnToolCallUpdate func(toolCallID string, update streamparser.ToolCallUpdate)
	// OnToolCallLink fires when a tool call is attached to a message.
	OnToolCallLink func(messageID string, toolCallID string)
	// OnMessageUpdate fires with partial message fields.
	OnMessageUpdate func(messageID string, update streamparser.MessageUpdate)
	// OnToolResult fires for each tool result.
	OnToolResult func(result streamparser.ToolResult)
	// OnMessageCycle fires after a new assistant message was started.
	OnMessageCycle func(previousMessageID string, nextMessageID string)
}

func (r *Runner) logger() *log.Entry {
	if r.Logger != nil {
		return r.Logger
	}
	return log.WithField("component", "agent")
}
