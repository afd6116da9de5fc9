package streamparser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// defaultReadSize is the read buffer size used by ParseStream.
const defaultReadSize = 32 * 1024

// ErrToolInput marks a final assistant message whose tool input could not be
// parsed even though the message claims to be complete.
var ErrToolInput = errors.New("invalid final tool input")

// ToolInputError describes an unparseable tool input in a final assistant
// message.
type ToolInputError struct {
	// ToolCallID identifies the tool call whose input failed.
	ToolCallID string
	// Input is the raw input text.
	Input string
	// Err is the underlying decode failure.
	Err error
}

func (e *ToolInputError) Error() string {
	return fmt.Sprintf("parse input for tool call %s: %v", e.ToolCallID, e.Err)
}

func (e *ToolInputError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrToolInput.
func (e *ToolInputError) Is(target error) bool {
	return target == ErrToolInput
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the entry used for diagnostics.
func WithLogger(entry *log.Entry) Option {
	return func(p *Parser) {
		if entry != nil {
			p.logger = entry
		}
	}
}

// WithClock overrides the time source used for tool call timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// WithReadSize sets the buffer size ParseStream reads with.
func WithReadSize(size int) Option {
	return func(p *Parser) {
		if size > 0 {
			p.readSize = size
		}
	}
}

// Parser decodes one agent response stream into sink callbacks. A Parser owns
// its state exclusively and must not be shared between streams or goroutines.
type Parser struct {
	// assistantMessageID is the message currently receiving streamed content.
	assistantMessageID string
	// accumulated holds the text streamed into the current message.
	accumulated strings.Builder
	// blockToToolUse maps an open content block index to its tool call id.
	blockToToolUse map[int]string
	// toolInputs accumulates raw input fragments per tool call id.
	toolInputs map[string]*strings.Builder
	// seenFirstMessage gates message cycle rollover.
	seenFirstMessage bool

	callbacks Callbacks
	framer    LineFramer
	logger    *log.Entry
	now       func() time.Time
	readSize  int
}

// NewParser creates a parser that starts out targeting assistantMessageID.
func NewParser(assistantMessageID string, callbacks Callbacks, opts ...Option) *Parser {
	parser := &Parser{
		assistantMessageID: assistantMessageID,
		blockToToolUse:     map[int]string{},
		toolInputs:         map[string]*strings.Builder{},
		callbacks:          callbacks,
		logger:             log.WithField("component", "streamparser"),
		now:                time.Now,
		readSize:           defaultReadSize,
	}
	for _, opt := range opts {
		opt(parser)
	}
	return parser
}

// MessageID returns the message currently receiving streamed content.
func (p *Parser) MessageID() string {
	return p.assistantMessageID
}

// ParseStream pulls chunks from reader until EOF, processing every record a
// chunk completes before reading the next one. Cancellation is checked
// between reads. A final line without a trailing newline is discarded.
//
// Tool input errors from final assistant messages do not stop the stream;
// the first one is returned once the stream ends cleanly.
func (p *Parser) ParseStream(ctx context.Context, reader io.Reader) error {
	if reader == nil {
		return errors.New("stream reader is required")
	}
	buffer := make([]byte, p.readSize)
	var inputErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, readErr := reader.Read(buffer)
		if count > 0 {
			if err := p.HandleChunk(buffer[:count]); err != nil {
				p.logger.WithError(err).Warn("final message carried unparseable tool input")
				if inputErr == nil {
					inputErr = err
				}
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			p.Close()
			return inputErr
		}
		return fmt.Errorf("read stream: %w", readErr)
	}
}

// HandleChunk feeds raw bytes and processes every record they complete.
// It returns the first tool input error among those records.
func (p *Parser) HandleChunk(chunk []byte) error {
	var firstErr error
	for _, line := range p.framer.Feed(chunk) {
		if err := p.HandleLine(line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close ends the stream, discarding any unterminated trailing line.
func (p *Parser) Close() {
	if dropped := p.framer.Close(); strings.TrimSpace(dropped) != "" {
		p.logger.WithField("line", dropped).Debug("dropping unterminated trailing line")
	}
}

// HandleLine processes one complete line. Lines that are not JSON data
// records are skipped. Only a final assistant message with unparseable tool
// input returns an error.
func (p *Parser) HandleLine(line string) error {
	record, err := ParseRecord(line)
	if errors.Is(err, ErrNotRecord) {
		if strings.TrimSpace(line) != "" {
			p.logger.WithField("line", line).Debug("skipping non-data line")
		}
		return nil
	}
	if err != nil {
		p.logger.WithError(err).WithField("line", line).Debug("skipping non-JSON line")
		return nil
	}
	return p.handleRecord(record)
}

func (p *Parser) handleRecord(record Record) error {
	if record.Event != nil {
		p.handleEvent(record.Event)
	}
	if record.Message == nil {
		return nil
	}
	switch record.Message.Role {
	case "assistant":
		return p.handleAssistantMessage(record.Message)
	case "user":
		p.handleToolResultMessage(record.Message)
	}
	return nil
}

func (p *Parser) handleEvent(event *StreamEvent) {
	if event.MessageStart != nil {
		p.handleMessageStart()
		return
	}
	if event.ContentBlockStart != nil {
		p.handleContentBlockStart(event.ContentBlockStart)
	}
	if event.ContentBlockDelta != nil {
		p.handleContentBlockDelta(event.ContentBlockDelta)
	}
	if event.ContentBlockStop != nil {
		p.handleContentBlockStop(event.ContentBlockStop)
	}
	if event.MessageStop != nil {
		p.callbacks.messageUpdate(p.assistantMessageID, MessageUpdate{IsStreaming: boolPtr(false)})
	}
}

func (p *Parser) handleMessageStart() {
	if p.seenFirstMessage && p.callbacks.OnNewMessageCycle != nil {
		if next := p.callbacks.OnNewMessageCycle(p.assistantMessageID); next != "" {
			p.logger.WithFields(log.Fields{"previous": p.assistantMessageID, "next": next}).Debug("new message cycle")
			p.assistantMessageID = next
			p.resetCycle()
		}
	}
	p.seenFirstMessage = true
}

// resetCycle clears everything scoped to one message cycle.
func (p *Parser) resetCycle() {
	p.accumulated.Reset()
	p.blockToToolUse = map[int]string{}
	p.toolInputs = map[string]*strings.Builder{}
}

func (p *Parser) handleContentBlockStart(start *ContentBlockStart) {
	if start.ContentBlockIndex == nil || start.Start == nil || start.Start.ToolUse == nil {
		return
	}
	toolUse := start.Start.ToolUse
	if toolUse.ToolUseID == "" {
		p.logger.WithField("index", *start.ContentBlockIndex).Debug("ignoring tool-use block without id")
		return
	}

	p.blockToToolUse[*start.ContentBlockIndex] = toolUse.ToolUseID
	p.toolInputs[toolUse.ToolUseID] = &strings.Builder{}

	p.callbacks.toolCallCreate(ToolCall{
		ID:         toolUse.ToolUseID,
		ToolName:   toolUse.Name,
		Parameters: map[string]any{},
		Status:     ToolCallPending,
		Timestamp:  p.now(),
		MessageID:  p.assistantMessageID,
	})
	p.callbacks.linkToMessage(p.assistantMessageID, toolUse.ToolUseID)
}

func (p *Parser) handleContentBlockDelta(delta *ContentBlockDelta) {
	if delta.Delta == nil || delta.ContentBlockIndex == nil {
		return
	}

	if delta.Delta.Text != nil {
		p.accumulated.WriteString(*delta.Delta.Text)
		p.callbacks.textUpdate(p.assistantMessageID, p.accumulated.String())
	}

	if delta.Delta.ToolUse == nil {
		return
	}
	toolUseID, ok := p.blockToToolUse[*delta.ContentBlockIndex]
	if !ok {
		return
	}
	fragment, ok := inputFragment(delta.Delta.ToolUse.Input)
	if !ok {
		return
	}
	input := p.toolInput(toolUseID)
	input.WriteString(fragment)

	// Incomplete JSON is the normal case until the last fragment arrives.
	if parameters, ok := parseParameters(input.String()); ok {
		p.callbacks.toolCallUpdate(toolUseID, ToolCallUpdate{Parameters: parameters})
	}
}

func (p *Parser) handleContentBlockStop(stop *ContentBlockStop) {
	if stop.ContentBlockIndex == nil {
		return
	}
	toolUseID, ok := p.blockToToolUse[*stop.ContentBlockIndex]
	if !ok {
		return
	}
	update := ToolCallUpdate{Status: statusPtr(ToolCallExecuting)}
	if parameters, ok := parseParameters(p.toolInput(toolUseID).String()); ok {
		update.Parameters = parameters
	}
	p.callbacks.toolCallUpdate(toolUseID, update)
}

func (p *Parser) toolInput(toolUseID string) *strings.Builder {
	input := p.toolInputs[toolUseID]
	if input == nil {
		input = &strings.Builder{}
		p.toolInputs[toolUseID] = input
	}
	return input
}

func (p *Parser) handleAssistantMessage(message *FinalMessage) error {
	blocks, ok := p.contentBlocks(message.Content)
	if !ok {
		return nil
	}

	var fullText strings.Builder
	var toolCallIDs []string
	var inputErr error
	for _, block := range blocks {
		if block.Text != nil && *block.Text != "" {
			fullText.WriteString(*block.Text)
		}
		if block.ToolUse == nil {
			continue
		}
		toolUse := block.ToolUse
		toolCallIDs = append(toolCallIDs, toolUse.ToolUseID)

		update := ToolCallUpdate{
			ToolName: stringPtr(toolUse.Name),
			Status:   statusPtr(ToolCallExecuting),
		}
		parameters, err := finalParameters(toolUse.Input)
		if err != nil {
			if inputErr == nil {
				inputErr = &ToolInputError{ToolCallID: toolUse.ToolUseID, Input: string(toolUse.Input), Err: err}
			}
		} else {
			update.Parameters = parameters
		}
		p.callbacks.toolCallUpdate(toolUse.ToolUseID, update)
	}

	if fullText.Len() > 0 {
		text := fullText.String()
		p.accumulated.Reset()
		p.accumulated.WriteString(text)
		p.callbacks.textUpdate(p.assistantMessageID, text)
		p.callbacks.messageUpdate(p.assistantMessageID, MessageUpdate{
			Content:     stringPtr(text),
			IsStreaming: boolPtr(false),
			ToolCalls:   nonNil(toolCallIDs),
		})
	} else if len(toolCallIDs) > 0 {
		p.callbacks.messageUpdate(p.assistantMessageID, MessageUpdate{
			IsStreaming: boolPtr(false),
			ToolCalls:   toolCallIDs,
		})
	}
	return inputErr
}

func (p *Parser) handleToolResultMessage(message *FinalMessage) {
	blocks, ok := p.contentBlocks(message.Content)
	if !ok {
		return
	}
	for _, block := range blocks {
		if block.ToolResult == nil {
			continue
		}
		p.callbacks.toolResult(toolResultFromBlock(block.ToolResult))
	}
}

// contentBlocks decodes a message content array. Elements that are not
// objects are skipped; a non-array content yields ok=false.
func (p *Parser) contentBlocks(content json.RawMessage) ([]ContentBlock, bool) {
	parsed := gjson.ParseBytes(content)
	if !parsed.IsArray() {
		return nil, false
	}
	items := parsed.Array()
	blocks := make([]ContentBlock, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		blocks = append(blocks, decodeContentBlock(item))
	}
	return blocks, true
}

// toolResultFromBlock maps a wire tool result onto the sink's result shape.
func toolResultFromBlock(block *ToolResultBlock) ToolResult {
	result := ToolResult{ToolCallID: block.ToolUseID, Status: ToolCallError}
	if block.Status == "success" {
		result.Status = ToolCallCompleted
	}

	// A truthy first text item wins, whatever its JSON type.
	var value any
	raw := strings.TrimSpace(string(block.Content))
	first := gjson.GetBytes(block.Content, "0.text")
	if gjson.ParseBytes(block.Content).IsArray() && truthy(first) {
		value = first.Value()
		raw = first.Raw
	} else if len(block.Content) > 0 {
		if err := json.Unmarshal(block.Content, &value); err != nil {
			value = string(block.Content)
		}
	}

	if result.Status == ToolCallCompleted {
		result.Result = value
		return result
	}
	switch typed := value.(type) {
	case string:
		result.Error = typed
	case nil:
		result.Error = "tool reported an error"
	default:
		result.Error = raw
	}
	return result
}

// inputFragment extracts the raw text of a streamed tool input fragment.
// Fragments normally arrive as JSON strings; other JSON values are taken
// verbatim and null is ignored.
func inputFragment(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	value := gjson.ParseBytes(raw)
	switch value.Type {
	case gjson.Null:
		return "", false
	case gjson.String:
		return value.Str, true
	default:
		return value.Raw, true
	}
}

// parseParameters reports whether text is a complete JSON object.
func parseParameters(text string) (map[string]any, bool) {
	if !gjson.Valid(text) || !gjson.Parse(text).IsObject() {
		return nil, false
	}
	var parameters map[string]any
	if err := json.Unmarshal([]byte(text), &parameters); err != nil {
		return nil, false
	}
	return parameters, true
}

// finalParameters decodes the authoritative tool input, which is either an
// object or a JSON string encoding one. An absent input yields nil.
func finalParameters(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	value := gjson.ParseBytes(raw)
	switch {
	case value.Type == gjson.Null:
		return nil, nil
	case value.IsObject():
		var parameters map[string]any
		if err := json.Unmarshal(raw, &parameters); err != nil {
			return nil, err
		}
		return parameters, nil
	case value.Type == gjson.String:
		var parameters map[string]any
		if err := json.Unmarshal([]byte(value.Str), &parameters); err != nil {
			return nil, err
		}
		if parameters == nil {
			return nil, errors.New("tool input is null")
		}
		return parameters, nil
	default:
		return nil, fmt.Errorf("tool input must be an object, got %s", value.Type)
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
