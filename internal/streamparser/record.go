package streamparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// DataPrefix marks an event line on the wire.
const DataPrefix = "data: "

// ErrNotRecord reports a line that is not a `data:` line carrying a JSON
// object or array. Such lines are skipped, never surfaced to the sink.
var ErrNotRecord = errors.New("not a data record")

// ParseRecord filters and decodes one framed line. Lines without the data
// prefix, or whose payload does not open with '{' or '[', return
// ErrNotRecord. A payload that passes the filter but is not valid JSON
// returns a decode error. A JSON array decodes to an empty Record.
//
// The event and message branches, and each event kind, are decoded on their
// own: a value of an unexpected shape only drops that variant.
func ParseRecord(line string) (Record, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, DataPrefix) {
		return Record{}, ErrNotRecord
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, DataPrefix))
	if payload == "" || (payload[0] != '{' && payload[0] != '[') {
		return Record{}, ErrNotRecord
	}
	if !gjson.Valid(payload) {
		return Record{}, fmt.Errorf("decode record: invalid JSON")
	}
	if payload[0] == '[' {
		return Record{}, nil
	}

	root := gjson.Parse(payload)
	return Record{
		Event:   decodeStreamEvent(root.Get("event")),
		Message: decodeFinalMessage(root.Get("message")),
	}, nil
}

// Empty reports whether the record carries neither branch.
func (r Record) Empty() bool {
	return r.Event == nil && r.Message == nil
}

func decodeStreamEvent(value gjson.Result) *StreamEvent {
	if !value.IsObject() {
		return nil
	}
	event := &StreamEvent{
		ContentBlockStart: decodeContentBlockStart(value.Get("contentBlockStart")),
		ContentBlockDelta: decodeContentBlockDelta(value.Get("contentBlockDelta")),
		ContentBlockStop:  decodeContentBlockStop(value.Get("contentBlockStop")),
	}
	// Start and stop markers carry nothing the parser reads, so any truthy
	// value counts.
	if truthy(value.Get("messageStart")) {
		event.MessageStart = &MessageStart{Role: stringField(value.Get("messageStart.role"))}
	}
	if truthy(value.Get("messageStop")) {
		event.MessageStop = &MessageStop{StopReason: stringField(value.Get("messageStop.stopReason"))}
	}
	return event
}

func decodeContentBlockStart(value gjson.Result) *ContentBlockStart {
	if !value.IsObject() {
		return nil
	}
	start := &ContentBlockStart{ContentBlockIndex: blockIndex(value.Get("contentBlockIndex"))}
	if body := value.Get("start"); body.IsObject() {
		start.Start = &BlockStart{}
		if toolUse := body.Get("toolUse"); toolUse.IsObject() {
			start.Start.ToolUse = &ToolUseStart{
				ToolUseID: stringField(toolUse.Get("toolUseId")),
				Name:      stringField(toolUse.Get("name")),
			}
		}
	}
	return start
}

func decodeContentBlockDelta(value gjson.Result) *ContentBlockDelta {
	if !value.IsObject() {
		return nil
	}
	delta := &ContentBlockDelta{ContentBlockIndex: blockIndex(value.Get("contentBlockIndex"))}
	if body := value.Get("delta"); body.IsObject() {
		delta.Delta = &Delta{}
		if text := body.Get("text"); text.Type == gjson.String {
			fragment := text.Str
			delta.Delta.Text = &fragment
		}
		if toolUse := body.Get("toolUse"); toolUse.IsObject() {
			delta.Delta.ToolUse = &ToolUseDelta{Input: rawField(toolUse.Get("input"))}
		}
	}
	return delta
}

func decodeContentBlockStop(value gjson.Result) *ContentBlockStop {
	if !value.IsObject() {
		return nil
	}
	return &ContentBlockStop{ContentBlockIndex: blockIndex(value.Get("contentBlockIndex"))}
}

func decodeFinalMessage(value gjson.Result) *FinalMessage {
	if !value.IsObject() {
		return nil
	}
	return &FinalMessage{
		Role:    stringField(value.Get("role")),
		Content: rawField(value.Get("content")),
	}
}

// decodeContentBlock reads one element of a message content array.
func decodeContentBlock(value gjson.Result) ContentBlock {
	var block ContentBlock
	if text := value.Get("text"); text.Type == gjson.String {
		content := text.Str
		block.Text = &content
	}
	if toolUse := value.Get("toolUse"); toolUse.IsObject() {
		block.ToolUse = &ToolUseBlock{
			ToolUseID: stringField(toolUse.Get("toolUseId")),
			Name:      stringField(toolUse.Get("name")),
			Input:     rawField(toolUse.Get("input")),
		}
	}
	if toolResult := value.Get("toolResult"); toolResult.IsObject() {
		block.ToolResult = &ToolResultBlock{
			ToolUseID: stringField(toolResult.Get("toolUseId")),
			Status:    stringField(toolResult.Get("status")),
			Content:   rawField(toolResult.Get("content")),
		}
	}
	return block
}

// blockIndex accepts any integral JSON number, so 0 and 0.0 name the same
// block. Other values leave the index unset.
func blockIndex(value gjson.Result) *int {
	if value.Type != gjson.Number {
		return nil
	}
	if value.Num != math.Trunc(value.Num) || math.Abs(value.Num) > math.MaxInt32 {
		return nil
	}
	index := int(value.Num)
	return &index
}

func stringField(value gjson.Result) string {
	if value.Type != gjson.String {
		return ""
	}
	return value.Str
}

func rawField(value gjson.Result) json.RawMessage {
	if !value.Exists() {
		return nil
	}
	return json.RawMessage(value.Raw)
}

// truthy reports whether a present value is anything but false, null, zero
// or the empty string.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return value.Num != 0
	case gjson.String:
		return value.Str != ""
	default:
		return true
	}
}
