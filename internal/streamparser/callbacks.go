package streamparser

// Callbacks is the sink the parser reports to. Calls are synchronous and
// made in event arrival order; a nil field is a no-op.
type Callbacks struct {
	// OnTextUpdate receives the full accumulated text of a message.
	OnTextUpdate func(messageID string, content string)
	// OnToolCallCreate fires when a tool-use block opens.
	OnToolCallCreate func(call ToolCall)
	// OnToolCallUpdate fires with partial tool call fields.
	OnToolCallUpdate func(toolCallID string, update ToolCallUpdate)
	// OnToolCallLinkToMessage associates a tool call with a message.
	OnToolCallLinkToMessage func(messageID string, toolCallID string)
	// OnMessageUpdate fires with partial message fields.
	OnMessageUpdate func(messageID string, update MessageUpdate)
	// OnToolResult fires for each tool result the agent reports.
	OnToolResult func(result ToolResult)
	// OnNewMessageCycle allocates the next assistant message and returns
	// its id. Leaving it nil disables rollover.
	OnNewMessageCycle func(previousMessageID string) string
}

func (c *Callbacks) textUpdate(messageID string, content string) {
	if c.OnTextUpdate != nil {
		c.OnTextUpdate(messageID, content)
	}
}

func (c *Callbacks) toolCallCreate(call ToolCall) {
	if c.OnToolCallCreate != nil {
		c.OnToolCallCreate(call)
	}
}

func (c *Callbacks) toolCallUpdate(toolCallID string, update ToolCallUpdate) {
	if c.OnToolCallUpdate != nil {
		c.OnToolCallUpdate(toolCallID, update)
	}
}

func (c *Callbacks) linkToMessage(messageID string, toolCallID string) {
	if c.OnToolCallLinkToMessage != nil {
		c.OnToolCallLinkToMessage(messageID, toolCallID)
	}
}

func (c *Callbacks) messageUpdate(messageID string, update MessageUpdate) {
	if c.OnMessageUpdate != nil {
		c.OnMessageUpdate(messageID, update)
	}
}

func (c *Callbacks) toolResult(result ToolResult) {
	if c.OnToolResult != nil {
		c.OnToolResult(result)
	}
}
