package streamjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/agentconsole/agentconsole/internal/agent"
	"github.com/agentconsole/agentconsole/internal/conversation"
	"github.com/agentconsole/agentconsole/internal/mockagent"
	"github.com/agentconsole/agentconsole/internal/testutil"
)

func decodeLines(testingHandle *testing.T, output string) []map[string]any {
	testingHandle.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		event := map[string]any{}
		testutil.RequireNoError(testingHandle, json.Unmarshal([]byte(line), &event), "decode line "+line)
		events = append(events, event)
	}
	return events
}

func TestEmitterStreamsTurnEvents(testingHandle *testing.T) {
	// Arrange a replayed turn with a stream-json emitter attached.
	var output bytes.Buffer
	emitter := NewEmitter(&output, "session-1")
	store := conversation.NewStore()
	runner := &agent.Runner{Store: store}
	script := mockagent.DefaultScript("question")

	// Act.
	testutil.RequireNoError(testingHandle, emitter.System("http://agent/invocations"), "system event")
	result, err := runner.Replay(context.Background(), bytes.NewReader(script.Bytes()), emitter.Callbacks())
	testutil.RequireNoError(testingHandle, err, "replay")
	last, _ := store.Message(result.LastMessageID())
	testutil.RequireNoError(testingHandle, emitter.Result(result, last.Content, nil), "result event")

	// Assert.
	testutil.RequireNoError(testingHandle, emitter.Err(), "no write errors")
	events := decodeLines(testingHandle, output.String())
	counts := map[string]int{}
	for _, event := range events {
		testutil.AssertEqual(testingHandle, event["session_id"], "session-1", "session id")
		counts[event["type"].(string)]++
	}
	testutil.RequireEqual(testingHandle, events[0]["type"], "system", "first event")
	testutil.RequireEqual(testingHandle, events[len(events)-1]["type"], "result", "last event")
	testutil.AssertEqual(testingHandle, counts[EventToolCall], 1, "tool call events")
	testutil.AssertEqual(testingHandle, counts[EventToolResult], 1, "tool result events")
	testutil.AssertEqual(testingHandle, counts[EventMessageCycle], 1, "message cycle events")
	testutil.AssertEqual(testingHandle, counts[EventToolCallLink], 1, "link events")

	final := events[len(events)-1]
	testutil.AssertEqual(testingHandle, final["is_error"], false, "success")
	testutil.AssertEqual(testingHandle, final["num_messages"], float64(2), "two assistant messages")
	testutil.RequireStringContains(testingHandle, final["result"].(string), "returned 42", "final text")
}

func TestEmitterResultReportsErrors(testingHandle *testing.T) {
	var output bytes.Buffer
	emitter := NewEmitter(&output, "")

	err := emitter.Result(&agent.TurnResult{MessageIDs: []string{"a"}}, "", errors.New("stream broke"))

	testutil.RequireNoError(testingHandle, err, "result event")
	events := decodeLines(testingHandle, output.String())
	testutil.RequireEqual(testingHandle, len(events), 1, "one event")
	testutil.AssertEqual(testingHandle, events[0]["subtype"], "error_during_execution", "subtype")
	testutil.AssertEqual(testingHandle, events[0]["is_error"], true, "is_error")
	testutil.AssertEqual(testingHandle, events[0]["errors"], []any{"stream broke"}, "errors")
	testutil.RequireTrue(testingHandle, emitter.SessionID() != "", "generated session id")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestEmitterKeepsFirstWriteError(testingHandle *testing.T) {
	emitter := NewEmitter(failingWriter{}, "s")

	emitter.Callbacks().OnTextUpdate("m", "hi")
	emitter.Callbacks().OnToolCallLink("m", "t")

	testutil.RequireStringContains(testingHandle, emitter.Err().Error(), "closed pipe", "first error kept")
}
