package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/agentconsole/agentconsole/internal/agent"
	"github.com/agentconsole/agentconsole/internal/config"
	"github.com/agentconsole/agentconsole/internal/conversation"
	"github.com/agentconsole/agentconsole/internal/streamparser"
)

// streamUpdateMsg signals that the conversation store changed.
type streamUpdateMsg struct{}

// turnDoneMsg signals the end of a turn.
type turnDoneMsg struct {
	// Result summarizes the turn; it may be partial on error.
	Result *agent.TurnResult
	// Err is the turn error, if any.
	Err error
}

// tuiModel drives the interactive terminal UI.
type tuiModel struct {
	// runner executes turns against the agent endpoint.
	runner *agent.Runner
	// endpoint is shown in the header.
	endpoint string
	// notices holds console-only lines shown above the conversation.
	notices []string
	// inputHistory stores prior user inputs for recall.
	inputHistory []string
	// historyIndex tracks the active position in inputHistory.
	historyIndex int
	// historyDraft preserves the in-progress input when browsing history.
	historyDraft string
	// chatView renders the conversation.
	chatView viewport.Model
	// toolView renders tool call state.
	toolView viewport.Model
	// input collects user input for new turns.
	input textarea.Model
	// markdownRenderer formats finished assistant output when available.
	markdownRenderer *glamour.TermRenderer
	// statusText is the bottom status line.
	statusText string
	// lastCaptureID names the most recent capture.
	lastCaptureID string
	// chatAutoScroll keeps the chat viewport pinned to the bottom.
	chatAutoScroll bool
	// toolAutoScroll keeps the tool viewport pinned to the bottom.
	toolAutoScroll bool
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// activePane identifies which pane is focused.
	activePane string
	// running indicates an in-flight turn.
	running bool
	// streamCh delivers turn messages into the update loop.
	streamCh chan tea.Msg
	// cancel cancels the current turn when present.
	cancel context.CancelFunc
	// quitting indicates a user-requested exit.
	quitting bool
}

// runInteractiveTUI starts the full-screen terminal UI.
func runInteractiveTUI(runner *agent.Runner, cfg *config.Config, initialPrompt string) error {
	if !term.IsTerminal(0) || !term.IsTerminal(1) {
		return errors.New("interactive TUI requires a TTY")
	}
	modelState := newTUIModel(runner, cfg.Endpoint)
	var initial tea.Cmd
	if initialPrompt != "" {
		modelState.input.SetValue(initialPrompt)
		initial = func() tea.Msg { return tea.KeyMsg{Type: tea.KeyEnter} }
	}
	program := tea.NewProgram(&startupModel{tuiModel: modelState, initial: initial}, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// startupModel submits an initial prompt once the program is running.
type startupModel struct {
	*tuiModel
	initial tea.Cmd
}

// Init starts the cursor and the optional first turn.
func (m *startupModel) Init() tea.Cmd {
	return tea.Batch(m.tuiModel.Init(), m.initial)
}

// newTUIModel constructs the initial TUI model state.
func newTUIModel(runner *agent.Runner, endpoint string) *tuiModel {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = 0
	input.Prompt = "> "
	input.SetHeight(3)
	input.SetWidth(20)

	chatView := viewport.New(20, 10)
	toolView := viewport.New(20, 10)
	toolView.SetContent("No tool calls yet.")

	var renderer *glamour.TermRenderer
	if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
		renderer = glam
	}

	modelState := &tuiModel{
		runner:           runner,
		endpoint:         endpoint,
		chatView:         chatView,
		toolView:         toolView,
		input:            input,
		markdownRenderer: renderer,
		statusText:       "Enter: send | Alt+Enter: newline | Ctrl+P/N: history | Tab: panes | Ctrl+C: cancel | Ctrl+Q: quit",
		activePane:       "input",
		chatAutoScroll:   true,
		toolAutoScroll:   true,
	}
	modelState.historyIndex = len(modelState.inputHistory)
	modelState.refreshChat()
	return modelState
}

// Init starts the blinking cursor for the input field.
func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles UI events and streaming updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case streamUpdateMsg:
		m.refreshChat()
		m.refreshTools()
		return m, m.listenStream()
	case turnDoneMsg:
		m.finishTurn(typed.Result, typed.Err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full UI layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	header := m.renderHeader()
	body := m.renderBody()
	input := m.renderInput()
	status := m.renderStatus()
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

// handleKey routes keyboard input and command submission.
func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		if m.running {
			m.cancelTurn("Cancelling...")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+q":
		m.cancelTurn("")
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.cyclePane(1)
		return m, nil
	case "shift+tab":
		m.cyclePane(-1)
		return m, nil
	case "esc":
		m.setActivePane("input")
		return m, nil
	case "pgup":
		m.scrollActivePane(-10)
		return m, nil
	case "pgdown":
		m.scrollActivePane(10)
		return m, nil
	case "home":
		m.gotoActivePaneTop()
		return m, nil
	case "end":
		m.gotoActivePaneBottom()
		return m, nil
	case "ctrl+p":
		if m.activePane == "input" {
			m.cycleInputHistory(-1)
			return m, nil
		}
	case "ctrl+n":
		if m.activePane == "input" {
			m.cycleInputHistory(1)
			return m, nil
		}
	}

	if key.Type == tea.KeyEnter {
		if key.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		return m.submitInput()
	}

	if key.String() == "ctrl+j" {
		m.input.InsertString("\n")
		return m, nil
	}

	if m.activePane != "input" {
		switch key.String() {
		case "up", "left":
			m.scrollActivePane(-1)
			return m, nil
		case "down", "right":
			m.scrollActivePane(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// submitInput sends the current input as a new turn.
func (m *tuiModel) submitInput() (tea.Model, tea.Cmd) {
	if m.running {
		m.statusText = "Wait for the current response or cancel with Ctrl+C."
		return m, nil
	}
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.statusText = ""
	m.appendInputHistory(value)

	if command := handleSlashCommand(value); command.Handled {
		if command.Quit {
			m.quitting = true
			return m, tea.Quit
		}
		if command.Clear {
			m.runner.Store.Clear()
			m.notices = nil
		}
		m.statusText = command.Output
		m.refreshChat()
		m.refreshTools()
		return m, nil
	}

	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.statusText = "Streaming..."
	m.streamCh = make(chan tea.Msg, 128)

	cmd := m.startStream(ctx, value)
	return m, tea.Batch(cmd, m.listenStream())
}

// appendInputHistory records an input line for history navigation.
func (m *tuiModel) appendInputHistory(value string) {
	if value == "" {
		return
	}
	m.inputHistory = append(m.inputHistory, value)
	if len(m.inputHistory) > 200 {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-200:]
	}
	m.historyIndex = len(m.inputHistory)
	m.historyDraft = ""
}

// cycleInputHistory moves the input buffer through stored history entries.
func (m *tuiModel) cycleInputHistory(delta int) {
	if len(m.inputHistory) == 0 {
		return
	}
	if m.historyIndex == len(m.inputHistory) {
		m.historyDraft = m.input.Value()
	}
	next := min(max(m.historyIndex+delta, 0), len(m.inputHistory))
	m.historyIndex = next
	if m.historyIndex == len(m.inputHistory) {
		m.input.SetValue(m.historyDraft)
		return
	}
	m.input.SetValue(m.inputHistory[m.historyIndex])
}

// startStream runs the turn and feeds store changes into the stream channel.
func (m *tuiModel) startStream(ctx context.Context, prompt string) tea.Cmd {
	runner := m.runner
	streamCh := m.streamCh

	return func() tea.Msg {
		if runner == nil {
			streamCh <- turnDoneMsg{Err: errors.New("runner is required")}
			close(streamCh)
			return nil
		}
		result, err := runner.RunTurn(ctx, prompt, notifyCallbacks(func() {
			select {
			case streamCh <- streamUpdateMsg{}:
			default:
			}
		}))
		streamCh <- turnDoneMsg{Result: result, Err: err}
		close(streamCh)
		return nil
	}
}

// notifyCallbacks calls notify for every stream event. The UI re-renders
// from store snapshots, so dropped notifications only coalesce frames.
func notifyCallbacks(notify func()) *agent.StreamCallbacks {
	return &agent.StreamCallbacks{
		OnTextUpdate:     func(string, string) { notify() },
		OnToolCallCreate: func(streamparser.ToolCall) { notify() },
		OnToolCallUpdate: func(string, streamparser.ToolCallUpdate) { notify() },
		OnToolCallLink:   func(string, string) { notify() },
		OnMessageUpdate:  func(string, streamparser.MessageUpdate) { notify() },
		OnToolResult:     func(streamparser.ToolResult) { notify() },
		OnMessageCycle:   func(string, string) { notify() },
	}
}

// listenStream waits for the next streaming message.
func (m *tuiModel) listenStream() tea.Cmd {
	if m.streamCh == nil {
		return nil
	}
	streamCh := m.streamCh
	return func() tea.Msg {
		msg, ok := <-streamCh
		if !ok {
			return nil
		}
		return msg
	}
}

// finishTurn settles UI state once a turn ends.
func (m *tuiModel) finishTurn(result *agent.TurnResult, err error) {
	m.running = false
	m.cancel = nil
	m.statusText = ""
	if err != nil {
		m.statusText = formatInteractiveError(err)
	}
	if result != nil {
		if result.CaptureID != "" {
			m.lastCaptureID = result.CaptureID
		}
		if result.ToolInputErr != nil {
			m.notices = append(m.notices, fmt.Sprintf("warning: %v", result.ToolInputErr))
		}
	}
	m.refreshChat()
	m.refreshTools()
}

// cancelTurn cancels an in-flight turn and updates status.
func (m *tuiModel) cancelTurn(reason string) {
	if m.cancel != nil {
		m.cancel()
	}
	if reason != "" {
		m.statusText = reason
	}
}

// snapshot returns the current conversation, empty without a runner.
func (m *tuiModel) snapshot() conversation.Snapshot {
	if m.runner == nil || m.runner.Store == nil {
		return conversation.Snapshot{}
	}
	return m.runner.Store.Snapshot()
}

// refreshChat rebuilds the chat viewport content.
func (m *tuiModel) refreshChat() {
	var builder strings.Builder
	for _, notice := range m.notices {
		builder.WriteString(m.renderNotice(notice))
		builder.WriteString("\n\n")
	}
	for _, message := range m.snapshot().Messages {
		builder.WriteString(m.renderMessage(message))
		builder.WriteString("\n\n")
	}
	m.chatView.SetContent(builder.String())
	if m.chatAutoScroll {
		m.chatView.GotoBottom()
	}
}

// refreshTools rebuilds the tool viewport content.
func (m *tuiModel) refreshTools() {
	calls := m.snapshot().ToolCalls
	if len(calls) == 0 {
		m.toolView.SetContent("No tool calls yet.")
		return
	}
	lines := make([]string, 0, len(calls)*3)
	for _, call := range calls {
		lines = append(lines, toolCallLines(call)...)
	}
	m.toolView.SetContent(strings.Join(lines, "\n"))
	if m.toolAutoScroll {
		m.toolView.GotoBottom()
	}
}

// toolCallLines renders one tool call for the tools pane.
func toolCallLines(call streamparser.ToolCall) []string {
	lines := []string{fmt.Sprintf("%s %s: %s", statusGlyph(call.Status), call.ToolName, call.Status)}
	if args := summarizeToolArgs(call.Parameters, 160); args != "" {
		lines = append(lines, "  args: "+args)
	}
	switch call.Status {
	case streamparser.ToolCallCompleted:
		if output := summarizeToolOutput(formatToolResult(streamparser.ToolResult{Status: call.Status, Result: call.Result}), 160); output != "" {
			lines = append(lines, "  result: "+output)
		}
	case streamparser.ToolCallError:
		if output := summarizeToolOutput(call.Error, 160); output != "" {
			lines = append(lines, "  error: "+output)
		}
	}
	return lines
}

func statusGlyph(status streamparser.ToolCallStatus) string {
	switch status {
	case streamparser.ToolCallPending:
		return "[ ]"
	case streamparser.ToolCallExecuting:
		return "[~]"
	case streamparser.ToolCallCompleted:
		return "[x]"
	case streamparser.ToolCallError:
		return "[!]"
	default:
		return "[?]"
	}
}

// applyWindowSize recalculates the layout for a new window size.
func (m *tuiModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := m.input.Height()
	bodyHeight := max(m.height-headerHeight-statusHeight-inputHeight, 4)

	toolWidth := min(max(24, m.width/3), 60)
	chatWidth := m.width - toolWidth - 3
	if chatWidth < 20 {
		chatWidth = 20
		toolWidth = max(20, m.width-chatWidth-3)
	}

	m.chatView.Width = chatWidth - 2
	m.chatView.Height = bodyHeight - 2
	m.toolView.Width = toolWidth - 2
	m.toolView.Height = bodyHeight - 2
	m.input.SetWidth(m.width - 2)

	m.refreshChat()
	m.refreshTools()
}

// renderHeader builds the top status line.
func (m *tuiModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	header := fmt.Sprintf("agentconsole | %s", m.endpoint)
	if m.running {
		header = header + " | streaming"
	}
	return style.Render(padRight(header, m.width))
}

// renderBody composes the chat and tool panes.
func (m *tuiModel) renderBody() string {
	chat := m.renderPane("Conversation", m.chatView.View(), m.chatView.Width+2)
	tools := m.renderPane("Tool calls", m.toolView.View(), m.toolView.Width+2)
	return lipgloss.JoinHorizontal(lipgloss.Top, chat, tools)
}

// setActivePane updates focus and input state for the requested pane.
func (m *tuiModel) setActivePane(pane string) {
	switch pane {
	case "chat", "tools":
		m.activePane = pane
		m.input.Blur()
	default:
		m.activePane = "input"
		m.input.Focus()
	}
}

// cyclePane moves focus between input, chat, and tools.
func (m *tuiModel) cyclePane(delta int) {
	order := []string{"input", "chat", "tools"}
	index := 0
	for i, name := range order {
		if name == m.activePane {
			index = i
			break
		}
	}
	next := (index + delta) % len(order)
	if next < 0 {
		next += len(order)
	}
	m.setActivePane(order[next])
}

// scrollActivePane scrolls the currently focused pane.
func (m *tuiModel) scrollActivePane(delta int) {
	switch m.activePane {
	case "tools":
		m.toolAutoScroll = false
		if delta > 0 {
			m.toolView.LineDown(delta)
		} else {
			m.toolView.LineUp(-delta)
		}
	case "chat":
		m.chatAutoScroll = false
		if delta > 0 {
			m.chatView.LineDown(delta)
		} else {
			m.chatView.LineUp(-delta)
		}
	}
}

// gotoActivePaneTop moves the active pane to the top.
func (m *tuiModel) gotoActivePaneTop() {
	switch m.activePane {
	case "tools":
		m.toolView.GotoTop()
		m.toolAutoScroll = false
	case "chat":
		m.chatView.GotoTop()
		m.chatAutoScroll = false
	}
}

// gotoActivePaneBottom moves the active pane to the bottom.
func (m *tuiModel) gotoActivePaneBottom() {
	switch m.activePane {
	case "tools":
		m.toolView.GotoBottom()
		m.toolAutoScroll = true
	case "chat":
		m.chatView.GotoBottom()
		m.chatAutoScroll = true
	}
}

// renderInput returns the input box rendering.
func (m *tuiModel) renderInput() string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	return style.Render(m.input.View())
}

// renderStatus returns the bottom status line.
func (m *tuiModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "Ready"
	}
	if info := m.renderStatusInfo(); info != "" {
		text = fmt.Sprintf("%s | %s", text, info)
	}
	return style.Render(padRight(text, m.width))
}

// renderStatusInfo assembles auxiliary status information.
func (m *tuiModel) renderStatusInfo() string {
	snapshot := m.snapshot()
	parts := []string{
		fmt.Sprintf("messages:%d", len(snapshot.Messages)),
		fmt.Sprintf("tools:%d", len(snapshot.ToolCalls)),
	}
	if m.activePane != "" {
		parts = append(parts, fmt.Sprintf("focus:%s", m.activePane))
	}
	if m.lastCaptureID != "" {
		parts = append(parts, fmt.Sprintf("capture:%s", m.lastCaptureID))
	}
	return strings.Join(parts, " ")
}

// renderPane formats a bordered pane with a title.
func (m *tuiModel) renderPane(title string, content string, width int) string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	header := fmt.Sprintf("[%s]", title)
	pane := lipgloss.JoinVertical(lipgloss.Left, header, content)
	return style.Width(width).Render(pane)
}

// renderMessage formats a chat message for display.
func (m *tuiModel) renderMessage(message conversation.Message) string {
	content := message.Content
	style := lipgloss.NewStyle()
	label := strings.ToUpper(string(message.Role))
	switch message.Role {
	case conversation.RoleUser:
		style = style.Foreground(lipgloss.Color("39")).Bold(true)
		label = "YOU"
	case conversation.RoleAssistant:
		style = style.Foreground(lipgloss.Color("10")).Bold(true)
		label = "ASSISTANT"
	}
	if message.IsStreaming {
		label += " (streaming)"
		if content == "" {
			content = "..."
		}
	} else if message.Role == conversation.RoleAssistant {
		content = m.renderMarkdown(content)
	}
	if n := len(message.ToolCalls); n > 0 {
		content = fmt.Sprintf("%s\n[%d tool call(s)]", strings.TrimRight(content, "\n"), n)
	}
	return fmt.Sprintf("%s\n%s", style.Render(label+":"), content)
}

// renderNotice formats a console-only line.
func (m *tuiModel) renderNotice(notice string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(notice)
}

// renderMarkdown converts markdown into terminal-friendly output when possible.
func (m *tuiModel) renderMarkdown(content string) string {
	if m.markdownRenderer == nil || content == "" {
		return content
	}
	rendered, err := m.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// border defines a simple ASCII border to avoid Unicode dependencies.
func (m *tuiModel) border() lipgloss.Border {
	return lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}
}

// padRight pads a string with spaces to the target width.
func padRight(value string, width int) string {
	runes := []rune(value)
	if len(runes) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(runes))
}
