package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/agentconsole/agentconsole/internal/agent"
	"github.com/agentconsole/agentconsole/internal/invocation"
	"github.com/agentconsole/agentconsole/internal/streamparser"
)

// streamPrinter renders a streaming turn as plain text.
type streamPrinter struct {
	// out is the primary output writer for assistant text.
	out io.Writer
	// errOut is used for warnings or informational messages.
	errOut io.Writer
	// verbose toggles tool output in the transcript.
	verbose bool
	// printed holds the text already written per message.
	printed map[string]string
	// currentMessage is the message whose text is on the open line.
	currentMessage string
	// toolNames maps tool call ids to names for result lines.
	toolNames map[string]string
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

// newStreamPrinter constructs a printer for one or more turns.
func newStreamPrinter(out io.Writer, errOut io.Writer, verbose bool) *streamPrinter {
	return &streamPrinter{
		out:       out,
		errOut:    errOut,
		verbose:   verbose,
		printed:   map[string]string{},
		toolNames: map[string]string{},
	}
}

// EnsureNewline terminates a streaming line if one is active.
func (p *streamPrinter) EnsureNewline() {
	if p == nil || !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// OnTextUpdate prints the part of the accumulated text not yet shown.
func (p *streamPrinter) OnTextUpdate(messageID string, content string) {
	if messageID != p.currentMessage {
		p.EnsureNewline()
		p.currentMessage = messageID
	}
	previous := p.printed[messageID]
	p.printed[messageID] = content
	if strings.HasPrefix(content, previous) {
		if suffix := content[len(previous):]; suffix != "" {
			fmt.Fprint(p.out, suffix)
			p.lineOpen = true
		}
		return
	}
	// The final message replaced the streamed text.
	p.EnsureNewline()
	fmt.Fprint(p.out, content)
	p.lineOpen = content != ""
}

// OnToolCallCreate prints a tool-start marker.
func (p *streamPrinter) OnToolCallCreate(call streamparser.ToolCall) {
	p.toolNames[call.ID] = call.ToolName
	p.EnsureNewline()
	fmt.Fprintf(p.out, "-> tool %s started\n", call.ToolName)
	p.currentMessage = ""
}

// OnToolCallUpdate tracks late tool names.
func (p *streamPrinter) OnToolCallUpdate(toolCallID string, update streamparser.ToolCallUpdate) {
	if update.ToolName != nil {
		p.toolNames[toolCallID] = *update.ToolName
	}
}

// OnToolResult prints completion status and optional output summaries.
func (p *streamPrinter) OnToolResult(result streamparser.ToolResult) {
	name := p.toolNames[result.ToolCallID]
	if name == "" {
		name = result.ToolCallID
	}
	p.EnsureNewline()
	status := "completed"
	if result.Failed() {
		status = "failed"
	}
	fmt.Fprintf(p.out, "-> tool %s %s\n", name, status)
	if result.Failed() || p.verbose {
		if summary := summarizeToolOutput(formatToolResult(result), 240); summary != "" {
			fmt.Fprintf(p.out, "   output: %s\n", summary)
		}
	}
	p.currentMessage = ""
}

// OnMessageCycle separates consecutive assistant messages.
func (p *streamPrinter) OnMessageCycle(_ string, _ string) {
	p.EnsureNewline()
}

// Callbacks wires the printer into turn callbacks.
func (p *streamPrinter) Callbacks() *agent.StreamCallbacks {
	return &agent.StreamCallbacks{
		OnTextUpdate:     p.OnTextUpdate,
		OnToolCallCreate: p.OnToolCallCreate,
		OnToolCallUpdate: p.OnToolCallUpdate,
		OnToolResult:     p.OnToolResult,
		OnMessageCycle:   p.OnMessageCycle,
	}
}

// slashResult describes how a slash command was handled.
type slashResult struct {
	// Handled reports that the line was a slash command.
	Handled bool
	// Clear asks the caller to clear the conversation.
	Clear bool
	// Quit asks the caller to exit.
	Quit bool
	// Output is shown to the user.
	Output string
}

// slashHelp lists the supported commands.
const slashHelp = "Commands: /clear clears the conversation, /help shows this list, /quit exits."

// handleSlashCommand interprets console commands.
func handleSlashCommand(line string) slashResult {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return slashResult{}
	}
	parts := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(parts) == 0 {
		return slashResult{}
	}
	switch command := strings.ToLower(parts[0]); command {
	case "clear":
		return slashResult{Handled: true, Clear: true, Output: "Conversation cleared."}
	case "help":
		return slashResult{Handled: true, Output: slashHelp}
	case "quit", "exit":
		return slashResult{Handled: true, Quit: true}
	default:
		return slashResult{Handled: true, Output: fmt.Sprintf("Unknown command: /%s. %s", command, slashHelp)}
	}
}

// runLineREPL is the interactive fallback when stdin or stdout is not a TTY.
func runLineREPL(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	errOut io.Writer,
	runner *agent.Runner,
	verbose bool,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reader := bufio.NewScanner(in)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	printer := newStreamPrinter(out, errOut, verbose)

	for {
		fmt.Fprint(out, "\n> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if command := handleSlashCommand(line); command.Handled {
			if command.Quit {
				return nil
			}
			if command.Clear {
				runner.Store.Clear()
			}
			fmt.Fprintln(out, command.Output)
			continue
		}

		turnCtx, stop := withInterrupt(ctx, func() {
			fmt.Fprintln(errOut, "\nCancelling...")
		})
		result, err := runner.RunTurn(turnCtx, line, printer.Callbacks())
		stop()
		printer.EnsureNewline()
		if err != nil {
			fmt.Fprintln(errOut, formatInteractiveError(err))
			continue
		}
		if result.ToolInputErr != nil {
			fmt.Fprintf(errOut, "warning: %v\n", result.ToolInputErr)
		}
	}
	return reader.Err()
}

// formatToolResult renders a tool result as display text.
func formatToolResult(result streamparser.ToolResult) string {
	if result.Failed() {
		return result.Error
	}
	switch typed := result.Result.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(data)
	}
}

// summarizeToolArgs formats tool parameters for display.
func summarizeToolArgs(params map[string]any, max int) string {
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return truncateForDisplay(compactWhitespace(string(data)), max)
}

// summarizeToolOutput formats tool output for optional display.
func summarizeToolOutput(output string, max int) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	compact := compactWhitespace(trimmed)
	return truncateForDisplay(compact, max)
}

// compactWhitespace collapses internal whitespace into single spaces.
func compactWhitespace(value string) string {
	fields := strings.Fields(value)
	return strings.Join(fields, " ")
}

// truncateForDisplay shortens long strings without breaking runes.
func truncateForDisplay(value string, max int) string {
	if max <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "...(truncated)"
}

// withInterrupt builds a context that is cancelled on SIGINT.
func withInterrupt(parent context.Context, onInterrupt func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-interrupt:
			if onInterrupt != nil {
				onInterrupt()
			}
			cancel()
		case <-done:
			return
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(interrupt)
		cancel()
	}
}

// formatInteractiveError normalizes common turn errors for TTY output.
func formatInteractiveError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *invocation.APIError
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out."
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Agent returned HTTP %d: %s", apiErr.StatusCode, summarizeToolOutput(apiErr.Body, 200))
	default:
		return err.Error()
	}
}
