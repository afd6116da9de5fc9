package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentconsole/agentconsole/internal/streamparser"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser marks prompts typed into the console.
	RoleUser Role = "user"
	// RoleAssistant marks agent responses.
	RoleAssistant Role = "assistant"
)

// unknownToolName names tool calls first seen through a result.
const unknownToolName = "unknown"

// Message is one chat bubble.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`
	// Role is the author.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp records when the message was created.
	Timestamp time.Time `json:"timestamp"`
	// ToolCalls lists tool call ids owned by the message, in order.
	ToolCalls []string `json:"toolCalls,omitempty"`
	// IsStreaming reports whether content is still arriving.
	IsStreaming bool `json:"isStreaming"`
}

// Snapshot is a copy of the conversation safe to read without the lock.
type Snapshot struct {
	// Messages is the ordered message list.
	Messages []Message
	// ToolCalls is the ordered tool call list.
	ToolCalls []streamparser.ToolCall
}

// Store holds the conversation a console renders. It is the sink for the
// stream parser and is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	messages  []Message
	toolCalls []streamparser.ToolCall
	// activeMessageID owns tool calls that appear without a prior create.
	activeMessageID string
	now             func() time.Time
	onChange        func(Snapshot)
}

// NewStore creates an empty conversation.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// OnChange registers a hook called with a snapshot after every mutation.
// The hook runs outside the store lock.
func (s *Store) OnChange(hook func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = hook
}

// AddUserMessage appends a prompt.
func (s *Store) AddUserMessage(content string) Message {
	message := Message{ID: NewMessageID(), Role: RoleUser, Content: content}
	s.mutate(func() {
		message.Timestamp = s.now()
		s.messages = append(s.messages, message)
	})
	return message
}

// StartAssistantMessage appends an empty streaming assistant message and
// makes it the owner of tool calls that arrive without a create.
func (s *Store) StartAssistantMessage() Message {
	message := Message{ID: NewMessageID(), Role: RoleAssistant, IsStreaming: true}
	s.mutate(func() {
		message.Timestamp = s.now()
		s.messages = append(s.messages, message)
		s.activeMessageID = message.ID
	})
	return message
}

// Callbacks binds the stream parser sink to this store.
func (s *Store) Callbacks() streamparser.Callbacks {
	return streamparser.Callbacks{
		OnTextUpdate:            s.SetContent,
		OnToolCallCreate:        s.CreateToolCall,
		OnToolCallUpdate:        s.UpdateToolCall,
		OnToolCallLinkToMessage: s.LinkToolCall,
		OnMessageUpdate:         s.UpdateMessage,
		OnToolResult:            s.ApplyToolResult,
		OnNewMessageCycle:       s.NextAssistantMessage,
	}
}

// SetContent replaces a message's text.
func (s *Store) SetContent(messageID string, content string) {
	s.mutate(func() {
		if message := s.message(messageID); message != nil {
			message.Content = content
		}
	})
}

// CreateToolCall appends a tool call.
func (s *Store) CreateToolCall(call streamparser.ToolCall) {
	s.mutate(func() {
		s.toolCalls = append(s.toolCalls, call)
	})
}

// UpdateToolCall merges partial fields into a tool call. A call that was
// never created is added with status executing, owned by the turn's first
// assistant message.
func (s *Store) UpdateToolCall(toolCallID string, update streamparser.ToolCallUpdate) {
	s.mutate(func() {
		call := s.toolCall(toolCallID)
		if call == nil {
			created := streamparser.ToolCall{
				ID:         toolCallID,
				Parameters: map[string]any{},
				Status:     streamparser.ToolCallExecuting,
				Timestamp:  s.now(),
				MessageID:  s.activeMessageID,
			}
			s.toolCalls = append(s.toolCalls, created)
			call = &s.toolCalls[len(s.toolCalls)-1]
		}
		if update.ToolName != nil {
			call.ToolName = *update.ToolName
		}
		if update.Parameters != nil {
			call.Parameters = update.Parameters
		}
		if update.Status != nil {
			call.Status = *update.Status
		}
	})
}

// LinkToolCall appends a tool call id to a message.
func (s *Store) LinkToolCall(messageID string, toolCallID string) {
	s.mutate(func() {
		if message := s.message(messageID); message != nil {
			message.ToolCalls = appendUnique(message.ToolCalls, toolCallID)
		}
	})
}

// UpdateMessage merges partial fields into a message. Tool call ids are
// appended without duplicates.
func (s *Store) UpdateMessage(messageID string, update streamparser.MessageUpdate) {
	s.mutate(func() {
		message := s.message(messageID)
		if message == nil {
			return
		}
		if update.Content != nil {
			message.Content = *update.Content
		}
		if update.IsStreaming != nil {
			message.IsStreaming = *update.IsStreaming
		}
		for _, id := range update.ToolCalls {
			message.ToolCalls = appendUnique(message.ToolCalls, id)
		}
	})
}

// ApplyToolResult records a tool outcome, creating an unknown tool call when
// the result arrives first.
func (s *Store) ApplyToolResult(result streamparser.ToolResult) {
	s.mutate(func() {
		call := s.toolCall(result.ToolCallID)
		if call == nil {
			s.toolCalls = append(s.toolCalls, streamparser.ToolCall{
				ID:         result.ToolCallID,
				ToolName:   unknownToolName,
				Parameters: map[string]any{},
				Timestamp:  s.now(),
				MessageID:  s.activeMessageID,
			})
			call = &s.toolCalls[len(s.toolCalls)-1]
		}
		call.Status = result.Status
		call.Result = result.Result
		call.Error = result.Error
	})
}

// NextAssistantMessage starts a fresh streaming assistant message for a new
// message cycle and returns its id.
func (s *Store) NextAssistantMessage(previousMessageID string) string {
	message := Message{ID: NewMessageID(), Role: RoleAssistant, IsStreaming: true}
	s.mutate(func() {
		message.Timestamp = s.now()
		s.messages = append(s.messages, message)
	})
	return message.ID
}

// FinishStreaming clears the streaming flag on the given messages.
func (s *Store) FinishStreaming(messageIDs ...string) {
	s.mutate(func() {
		for _, id := range messageIDs {
			if message := s.message(id); message != nil {
				message.IsStreaming = false
			}
		}
	})
}

// FailStreaming ends a message after a stream error. Existing content is
// kept; an empty message shows the error instead.
func (s *Store) FailStreaming(messageID string, err error) {
	s.mutate(func() {
		message := s.message(messageID)
		if message == nil {
			return
		}
		if message.Content == "" && err != nil {
			message.Content = fmt.Sprintf("Error: %v", err)
		}
		message.IsStreaming = false
	})
}

// Message returns a copy of a message.
func (s *Store) Message(messageID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := s.message(messageID)
	if message == nil {
		return Message{}, false
	}
	return copyMessage(*message), true
}

// ToolCall returns a copy of a tool call.
func (s *Store) ToolCall(toolCallID string) (streamparser.ToolCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.toolCall(toolCallID)
	if call == nil {
		return streamparser.ToolCall{}, false
	}
	return *call, true
}

// Snapshot copies the conversation.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Clear removes every message and tool call.
func (s *Store) Clear() {
	s.mutate(func() {
		s.messages = nil
		s.toolCalls = nil
		s.activeMessageID = ""
	})
}

func (s *Store) mutate(apply func()) {
	s.mu.Lock()
	apply()
	hook := s.onChange
	var snapshot Snapshot
	if hook != nil {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Messages:  make([]Message, len(s.messages)),
		ToolCalls: make([]streamparser.ToolCall, len(s.toolCalls)),
	}
	for i, message := range s.messages {
		snapshot.Messages[i] = copyMessage(message)
	}
	copy(snapshot.ToolCalls, s.toolCalls)
	return snapshot
}

func (s *Store) message(messageID string) *Message {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return &s.messages[i]
		}
	}
	return nil
}

func (s *Store) toolCall(toolCallID string) *streamparser.ToolCall {
	for i := range s.toolCalls {
		if s.toolCalls[i].ID == toolCallID {
			return &s.toolCalls[i]
		}
	}
	return nil
}

func copyMessage(message Message) Message {
	if message.ToolCalls != nil {
		message.ToolCalls = append([]string(nil), message.ToolCalls...)
	}
	return message
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
