package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentconsole/agentconsole/internal/streamparser"
	"github.com/agentconsole/agentconsole/internal/testutil"
)

// drainTurn runs a turn synchronously and feeds its messages through Update.
func drainTurn(testingHandle *testing.T, model *tuiModel, prompt string) {
	testingHandle.Helper()
	model.running = true
	model.streamCh = make(chan tea.Msg, 128)
	model.startStream(context.Background(), prompt)()
	for msg := range model.streamCh {
		model.Update(msg)
	}
}

// TestTUIRendersTurnFromStore verifies panes reflect the conversation store.
func TestTUIRendersTurnFromStore(testingHandle *testing.T) {
	// Arrange.
	runner := newMockRunner(testingHandle)
	model := newTUIModel(runner, runner.Client.Endpoint())
	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	// Act.
	drainTurn(testingHandle, model, "question")

	// Assert.
	testutil.RequireTrue(testingHandle, !model.running, "turn finished")
	testutil.AssertEqual(testingHandle, model.statusText, "", "no error status")
	testutil.AssertEqual(testingHandle, len(runner.Store.Snapshot().Messages), 3, "user plus two assistant messages")
	tools := model.toolView.View()
	testutil.RequireStringContains(testingHandle, tools, "[x] lookup: completed", "tool status")
	testutil.RequireStringContains(testingHandle, tools, "result: 42", "tool result")
	testutil.RequireStringContains(testingHandle, model.View(), "[Conversation]", "layout")
}

// TestTUIClearCommand verifies /clear empties the store.
func TestTUIClearCommand(testingHandle *testing.T) {
	runner := newMockRunner(testingHandle)
	model := newTUIModel(runner, runner.Client.Endpoint())
	drainTurn(testingHandle, model, "question")

	model.input.SetValue("/clear")
	_, cmd := model.submitInput()

	testutil.RequireTrue(testingHandle, cmd == nil, "no turn started")
	testutil.AssertEqual(testingHandle, model.statusText, "Conversation cleared.", "status")
	testutil.AssertEqual(testingHandle, len(runner.Store.Snapshot().Messages), 0, "messages cleared")
	testutil.AssertEqual(testingHandle, model.toolView.View() != "", true, "tool pane rendered")
}

// TestTUICtrlCCancelsThenQuits verifies Ctrl+C cancels a turn before quitting.
func TestTUICtrlCCancelsThenQuits(testingHandle *testing.T) {
	model := newTUIModel(nil, "http://agent")
	cancelled := false
	model.running = true
	model.cancel = func() { cancelled = true }

	model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	testutil.RequireTrue(testingHandle, cancelled, "turn cancelled")
	testutil.RequireTrue(testingHandle, !model.quitting, "still running")

	model.finishTurn(nil, context.Canceled)
	testutil.AssertEqual(testingHandle, model.statusText, "Request cancelled.", "cancel status")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	testutil.RequireTrue(testingHandle, model.quitting, "quits when idle")
	testutil.RequireTrue(testingHandle, cmd != nil, "quit command")
}

// TestToolCallLines verifies the tools pane rendering per status.
func TestToolCallLines(testingHandle *testing.T) {
	failed := toolCallLines(streamparser.ToolCall{
		ToolName:   "fetch",
		Status:     streamparser.ToolCallError,
		Parameters: map[string]any{"url": "x"},
		Error:      "timeout",
	})
	testutil.AssertEqual(testingHandle, failed, []string{"[!] fetch: error", `  args: {"url":"x"}`, "  error: timeout"}, "failed call")

	pending := toolCallLines(streamparser.ToolCall{ToolName: "fetch", Status: streamparser.ToolCallPending, Parameters: map[string]any{}})
	testutil.AssertEqual(testingHandle, pending, []string{"[ ] fetch: pending"}, "pending call")
}

// TestInputHistory verifies Ctrl+P/N style navigation keeps the draft.
func TestInputHistory(testingHandle *testing.T) {
	model := newTUIModel(nil, "")
	model.appendInputHistory("first")
	model.appendInputHistory("second")
	model.input.SetValue("draft")

	model.cycleInputHistory(-1)
	testutil.AssertEqual(testingHandle, model.input.Value(), "second", "previous entry")
	model.cycleInputHistory(-5)
	testutil.AssertEqual(testingHandle, model.input.Value(), "first", "clamped at oldest")
	model.cycleInputHistory(5)
	testutil.AssertEqual(testingHandle, strings.TrimSpace(model.input.Value()), "draft", "draft restored")
}
