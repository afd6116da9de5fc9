package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentconsole/agentconsole/internal/streamparser"
	"github.com/agentconsole/agentconsole/internal/testutil"
)

// TestStoreMergesToolCallUpdates verifies partial updates leave unset fields alone.
func TestStoreMergesToolCallUpdates(testingHandle *testing.T) {
	store := NewStore()
	assistant := store.StartAssistantMessage()
	store.CreateToolCall(streamparser.ToolCall{
		ID:         "t1",
		ToolName:   "search",
		Parameters: map[string]any{},
		Status:     streamparser.ToolCallPending,
		MessageID:  assistant.ID,
	})

	executing := streamparser.ToolCallExecuting
	store.UpdateToolCall("t1", streamparser.ToolCallUpdate{Parameters: map[string]any{"q": "x"}})
	store.UpdateToolCall("t1", streamparser.ToolCallUpdate{Status: &executing})

	call, ok := store.ToolCall("t1")
	testutil.RequireTrue(testingHandle, ok, "tool call exists")
	testutil.RequireEqual(testingHandle, call.ToolName, "search", "name kept")
	testutil.RequireEqual(testingHandle, call.Parameters, map[string]any{"q": "x"}, "parameters merged")
	testutil.RequireEqual(testingHandle, call.Status, streamparser.ToolCallExecuting, "status merged")
}

// TestStoreCreatesMissingToolCalls verifies updates and results for unseen ids create calls.
func TestStoreCreatesMissingToolCalls(testingHandle *testing.T) {
	store := NewStore()
	assistant := store.StartAssistantMessage()
	name := "read"

	store.UpdateToolCall("t2", streamparser.ToolCallUpdate{ToolName: &name})
	store.ApplyToolResult(streamparser.ToolResult{ToolCallID: "t3", Status: streamparser.ToolCallError, Error: "denied"})

	updated, _ := store.ToolCall("t2")
	testutil.RequireEqual(testingHandle, updated.Status, streamparser.ToolCallExecuting, "default status")
	testutil.RequireEqual(testingHandle, updated.MessageID, assistant.ID, "owner")
	testutil.RequireEqual(testingHandle, updated.ToolName, "read", "name")

	orphan, _ := store.ToolCall("t3")
	testutil.RequireEqual(testingHandle, orphan.ToolName, "unknown", "orphan name")
	testutil.RequireEqual(testingHandle, orphan.Status, streamparser.ToolCallError, "orphan status")
	testutil.RequireEqual(testingHandle, orphan.Error, "denied", "orphan error")
}

// TestStoreDeduplicatesMessageToolCalls verifies links and message updates never repeat ids.
func TestStoreDeduplicatesMessageToolCalls(testingHandle *testing.T) {
	store := NewStore()
	assistant := store.StartAssistantMessage()

	store.LinkToolCall(assistant.ID, "t1")
	store.UpdateMessage(assistant.ID, streamparser.MessageUpdate{ToolCalls: []string{"t1", "t2"}})
	store.UpdateMessage(assistant.ID, streamparser.MessageUpdate{ToolCalls: []string{"t2"}})

	message, _ := store.Message(assistant.ID)
	testutil.RequireEqual(testingHandle, message.ToolCalls, []string{"t1", "t2"}, "tool calls")
	testutil.RequireTrue(testingHandle, message.IsStreaming, "streaming untouched")
}

// TestStoreFailStreaming verifies error text only replaces empty content.
func TestStoreFailStreaming(testingHandle *testing.T) {
	store := NewStore()
	empty := store.StartAssistantMessage()
	partial := store.StartAssistantMessage()
	store.SetContent(partial.ID, "half an answer")
	failure := errors.New("connection reset")

	store.FailStreaming(empty.ID, failure)
	store.FailStreaming(partial.ID, failure)

	emptyMessage, _ := store.Message(empty.ID)
	partialMessage, _ := store.Message(partial.ID)
	testutil.RequireEqual(testingHandle, emptyMessage.Content, "Error: connection reset", "empty message")
	testutil.RequireEqual(testingHandle, partialMessage.Content, "half an answer", "partial message")
	testutil.RequireTrue(testingHandle, !emptyMessage.IsStreaming && !partialMessage.IsStreaming, "streaming cleared")
}

// TestStoreAsParserSink verifies a full streamed turn lands in the store.
func TestStoreAsParserSink(testingHandle *testing.T) {
	// Arrange.
	store := NewStore()
	store.AddUserMessage("find x")
	assistant := store.StartAssistantMessage()
	var changes int
	store.OnChange(func(Snapshot) { changes++ })
	input := strings.Join([]string{
		`data: {"event":{"messageStart":{"role":"assistant"}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":0,"delta":{"text":"Searching"}}}}`,
		`data: {"event":{"contentBlockStart":{"contentBlockIndex":1,"start":{"toolUse":{"toolUseId":"t1","name":"search"}}}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":1,"delta":{"toolUse":{"input":"{\"q\":\"x\"}"}}}}}`,
		`data: {"event":{"contentBlockStop":{"contentBlockIndex":1}}}`,
		`data: {"event":{"messageStop":{"stopReason":"tool_use"}}}`,
		`data: {"message":{"role":"user","content":[{"toolResult":{"toolUseId":"t1","status":"success","content":[{"text":"42"}]}}]}}`,
		`data: {"event":{"messageStart":{"role":"assistant"}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":0,"delta":{"text":"It is 42."}}}}`,
		`data: {"event":{"messageStop":{"stopReason":"end_turn"}}}`,
	}, "\n") + "\n"
	parser := streamparser.NewParser(assistant.ID, store.Callbacks())

	// Act.
	err := parser.ParseStream(context.Background(), strings.NewReader(input))

	// Assert.
	testutil.RequireNoError(testingHandle, err, "parse stream")
	snapshot := store.Snapshot()
	testutil.RequireEqual(testingHandle, len(snapshot.Messages), 3, "user plus two assistant messages")
	first := snapshot.Messages[1]
	second := snapshot.Messages[2]
	testutil.RequireEqual(testingHandle, first.Content, "Searching", "first cycle text")
	testutil.RequireEqual(testingHandle, first.ToolCalls, []string{"t1"}, "first cycle tool calls")
	testutil.RequireTrue(testingHandle, !first.IsStreaming, "first cycle finished")
	testutil.RequireEqual(testingHandle, second.Content, "It is 42.", "second cycle text")
	testutil.RequireEqual(testingHandle, parser.MessageID(), second.ID, "parser follows rollover")
	testutil.RequireEqual(testingHandle, len(snapshot.ToolCalls), 1, "tool calls")
	testutil.RequireEqual(testingHandle, snapshot.ToolCalls[0].Status, streamparser.ToolCallCompleted, "tool status")
	testutil.RequireEqual(testingHandle, snapshot.ToolCalls[0].Result, any("42"), "tool result")
	testutil.RequireTrue(testingHandle, changes > 0, "change hook fired")
}

// TestStoreClear verifies the conversation empties.
func TestStoreClear(testingHandle *testing.T) {
	store := NewStore()
	store.AddUserMessage("hi")
	store.CreateToolCall(streamparser.ToolCall{ID: "t1"})

	store.Clear()

	snapshot := store.Snapshot()
	testutil.RequireEqual(testingHandle, len(snapshot.Messages)+len(snapshot.ToolCalls), 0, "empty")
}

// TestStoreStampsWithClock verifies messages and implicitly created tool calls use the store clock.
func TestStoreStampsWithClock(testingHandle *testing.T) {
	stamp := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	store := NewStore()
	store.SetClock(func() time.Time { return stamp })
	store.SetClock(nil)

	user := store.AddUserMessage("hi")
	assistant := store.StartAssistantMessage()
	store.UpdateToolCall("t1", streamparser.ToolCallUpdate{})
	store.ApplyToolResult(streamparser.ToolResult{ToolCallID: "t2", Status: streamparser.ToolCallCompleted})

	testutil.RequireEqual(testingHandle, user.Timestamp, stamp, "user message")
	testutil.RequireEqual(testingHandle, assistant.Timestamp, stamp, "assistant message")
	for _, id := range []string{"t1", "t2"} {
		call, ok := store.ToolCall(id)
		testutil.RequireTrue(testingHandle, ok, id)
		testutil.RequireEqual(testingHandle, call.Timestamp, stamp, id)
	}
}
