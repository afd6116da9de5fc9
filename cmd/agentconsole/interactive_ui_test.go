package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/agentconsole/agentconsole/internal/invocation"
	"github.com/agentconsole/agentconsole/internal/streamparser"
	"github.com/agentconsole/agentconsole/internal/testutil"
)

// TestHandleSlashCommand verifies the console commands.
func TestHandleSlashCommand(testingHandle *testing.T) {
	cases := []struct {
		line string
		want slashResult
	}{
		{"/clear", slashResult{Handled: true, Clear: true, Output: "Conversation cleared."}},
		{"  /CLEAR now", slashResult{Handled: true, Clear: true, Output: "Conversation cleared."}},
		{"/help", slashResult{Handled: true, Output: slashHelp}},
		{"/exit", slashResult{Handled: true, Quit: true}},
		{"hello /clear", slashResult{}},
		{"/", slashResult{}},
	}
	for _, tc := range cases {
		testutil.AssertEqual(testingHandle, handleSlashCommand(tc.line), tc.want, tc.line)
	}

	unknown := handleSlashCommand("/nope")
	testutil.RequireTrue(testingHandle, unknown.Handled, "unknown handled")
	testutil.RequireStringContains(testingHandle, unknown.Output, "Unknown command: /nope", "unknown output")
}

// TestStreamPrinterPrintsOnlyNewText verifies accumulated updates print as deltas.
func TestStreamPrinterPrintsOnlyNewText(testingHandle *testing.T) {
	// Arrange.
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &bytes.Buffer{}, false)

	// Act.
	printer.OnTextUpdate("m1", "Hel")
	printer.OnTextUpdate("m1", "Hello")
	printer.OnTextUpdate("m1", "Hello")
	printer.OnMessageCycle("m1", "m2")
	printer.OnTextUpdate("m2", "Second")
	printer.OnTextUpdate("m2", "Replaced")
	printer.EnsureNewline()

	// Assert.
	testutil.AssertEqual(testingHandle, out.String(), "Hello\nSecond\nReplaced\n", "transcript")
}

// TestStreamPrinterToolLines verifies tool markers and failure output.
func TestStreamPrinterToolLines(testingHandle *testing.T) {
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &bytes.Buffer{}, false)

	printer.OnTextUpdate("m1", "Checking")
	printer.OnToolCallCreate(streamparser.ToolCall{ID: "t1", ToolName: "search", Status: streamparser.ToolCallPending})
	printer.OnToolResult(streamparser.ToolResult{ToolCallID: "t1", Status: streamparser.ToolCallCompleted, Result: "quiet"})
	printer.OnToolResult(streamparser.ToolResult{ToolCallID: "t2", Status: streamparser.ToolCallError, Error: "boom\n  trace"})

	want := "Checking\n" +
		"-> tool search started\n" +
		"-> tool search completed\n" +
		"-> tool t2 failed\n" +
		"   output: boom trace\n"
	testutil.AssertEqual(testingHandle, out.String(), want, "tool transcript")
}

// TestFormatToolResult verifies result rendering for each shape.
func TestFormatToolResult(testingHandle *testing.T) {
	testutil.AssertEqual(testingHandle, formatToolResult(streamparser.ToolResult{Status: streamparser.ToolCallCompleted, Result: "42"}), "42", "string")
	testutil.AssertEqual(testingHandle, formatToolResult(streamparser.ToolResult{Status: streamparser.ToolCallCompleted, Result: map[string]any{"n": float64(1)}}), `{"n":1}`, "object")
	testutil.AssertEqual(testingHandle, formatToolResult(streamparser.ToolResult{Status: streamparser.ToolCallCompleted}), "", "nil")
	testutil.AssertEqual(testingHandle, formatToolResult(streamparser.ToolResult{Status: streamparser.ToolCallError, Error: "bad"}), "bad", "error")
}

// TestTruncateForDisplay verifies rune-safe truncation.
func TestTruncateForDisplay(testingHandle *testing.T) {
	testutil.AssertEqual(testingHandle, truncateForDisplay("héllo", 2), "hé...(truncated)", "truncated")
	testutil.AssertEqual(testingHandle, truncateForDisplay("short", 10), "short", "untouched")
	testutil.AssertEqual(testingHandle, summarizeToolArgs(map[string]any{"query": "a  b"}, 100), `{"query":"a b"}`, "args")
}

// TestFormatInteractiveError verifies error wording for the console.
func TestFormatInteractiveError(testingHandle *testing.T) {
	testutil.AssertEqual(testingHandle, formatInteractiveError(fmt.Errorf("read stream: %w", context.Canceled)), "Request cancelled.", "cancel")
	testutil.AssertEqual(testingHandle, formatInteractiveError(context.DeadlineExceeded), "Request timed out.", "timeout")
	testutil.AssertEqual(testingHandle, formatInteractiveError(&invocation.APIError{StatusCode: 502, Body: "bad\ngateway"}), "Agent returned HTTP 502: bad gateway", "api error")
	testutil.AssertEqual(testingHandle, formatInteractiveError(errors.New("other")), "other", "passthrough")
	testutil.AssertEqual(testingHandle, formatInteractiveError(nil), "", "nil")
}

// TestLineREPL verifies a turn, /clear and /quit through the line interface.
func TestLineREPL(testingHandle *testing.T) {
	// Arrange.
	runner := newMockRunner(testingHandle)
	input := strings.NewReader("question\n\n/clear\n/quit\nnever sent\n")
	var out, errOut bytes.Buffer

	// Act.
	err := runLineREPL(context.Background(), input, &out, &errOut, runner, false)

	// Assert.
	testutil.RequireNoError(testingHandle, err, "repl")
	testutil.RequireStringContains(testingHandle, out.String(), "The lookup returned 42.", "answer printed")
	testutil.RequireStringContains(testingHandle, out.String(), "Conversation cleared.", "clear acknowledged")
	testutil.AssertEqual(testingHandle, len(runner.Store.Snapshot().Messages), 0, "store cleared")
	testutil.RequireTrue(testingHandle, !strings.Contains(out.String(), "never sent"), "input after quit ignored")
}
