package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agentconsole/agentconsole/internal/capture"
	"github.com/agentconsole/agentconsole/internal/invocation"
	"github.com/agentconsole/agentconsole/internal/streamparser"
)

// RunTurn sends prompt to the agent and streams the response into the
// store. Every assistant message of the turn ends non-streaming, whether the
// stream completes, fails or is cancelled.
func (r *Runner) RunTurn(ctx context.Context, prompt string, callbacks *StreamCallbacks) (*TurnResult, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if r.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}

	startTime := time.Now()
	user := r.Store.AddUserMessage(prompt)
	assistant := r.Store.StartAssistantMessage()
	result := &TurnResult{UserMessageID: user.ID, MessageIDs: []string{assistant.ID}}

	r.logger().WithField("endpoint", r.Client.Endpoint()).Info("starting turn")
	body, err := r.Client.Invoke(ctx, invocation.Request{Prompt: prompt, Fields: r.ExtraFields})
	if err != nil {
		r.Store.FailStreaming(assistant.ID, err)
		result.Duration = time.Since(startTime)
		return result, err
	}
	defer body.Close()

	err = r.consume(ctx, body, callbacks, result)
	result.Duration = time.Since(startTime)
	return result, err
}

// Replay feeds a previously captured stream through the same pipeline as a
// live turn.
func (r *Runner) Replay(ctx context.Context, reader io.Reader, callbacks *StreamCallbacks) (*TurnResult, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	startTime := time.Now()
	assistant := r.Store.StartAssistantMessage()
	result := &TurnResult{MessageIDs: []string{assistant.ID}}

	err := r.consume(ctx, reader, callbacks, result)
	result.Duration = time.Since(startTime)
	return result, err
}

// consume parses body into the store and settles the streaming flags.
func (r *Runner) consume(ctx context.Context, body io.Reader, callbacks *StreamCallbacks, result *TurnResult) error {
	logger := r.logger()
	if r.Captures != nil {
		recorder, err := r.Captures.NewRecorder(capture.NewCaptureID(time.Now()))
		if err != nil {
			logger.WithError(err).Warn("stream capture disabled for this turn")
		} else {
			result.CaptureID = recorder.ID()
			body = recorder.Tee(body)
			defer func() {
				if err := recorder.Close(); err != nil {
					logger.WithError(err).Warn("stream capture incomplete")
				}
			}()
		}
	}

	options := append([]streamparser.Option{streamparser.WithLogger(logger.WithField("component", "streamparser"))}, r.ParserOptions...)
	parser := streamparser.NewParser(result.MessageIDs[0], r.sink(callbacks, result), options...)
	err := parser.ParseStream(ctx, body)

	if errors.Is(err, streamparser.ErrToolInput) {
		logger.WithError(err).Warn("final message carried unparseable tool input")
		result.ToolInputErr = err
		err = nil
	}
	if err != nil {
		current := parser.MessageID()
		for _, id := range result.MessageIDs {
			if id != current {
				r.Store.FinishStreaming(id)
			}
		}
		r.Store.FailStreaming(current, err)
		logger.WithError(err).WithField("messages", len(result.MessageIDs)).Warn("turn ended early")
		return err
	}

	r.Store.FinishStreaming(result.MessageIDs...)
	logger.WithFields(log.Fields{"messages": len(result.MessageIDs)}).Info("turn complete")
	return nil
}

// sink binds the store callbacks and layers the observer hooks on top.
func (r *Runner) sink(callbacks *StreamCallbacks, result *TurnResult) streamparser.Callbacks {
	store := r.Store.Callbacks()
	if callbacks == nil {
		callbacks = &StreamCallbacks{}
	}
	return streamparser.Callbacks{
		OnTextUpdate: func(messageID string, content string) {
			store.OnTextUpdate(messageID, content)
			if callbacks.OnTextUpdate != nil {
				callbacks.OnTextUpdate(messageID, content)
			}
		},
		OnToolCallCreate: func(call streamparser.ToolCall) {
			store.OnToolCallCreate(call)
			if callbacks.OnToolCallCreate != nil {
				callbacks.OnToolCallCreate(call)
			}
		},
		OnToolCallUpdate: func(toolCallID string, update streamparser.ToolCallUpdate) {
			store.OnToolCallUpdate(toolCallID, update)
			if callbacks.OnToolCallUpdate != nil {
				callbacks.OnToolCallUpdate(toolCallID, update)
			}
		},
		OnToolCallLinkToMessage: func(messageID string, toolCallID string) {
			store.OnToolCallLinkToMessage(messageID, toolCallID)
			if callbacks.OnToolCallLink != nil {
				callbacks.OnToolCallLink(messageID, toolCallID)
			}
		},
		OnMessageUpdate: func(messageID string, update streamparser.MessageUpdate) {
			store.OnMessageUpdate(messageID, update)
			if callbacks.OnMessageUpdate != nil {
				callbacks.OnMessageUpdate(messageID, update)
			}
		},
		OnToolResult: func(toolResult streamparser.ToolResult) {
			store.OnToolResult(toolResult)
			if callbacks.OnToolResult != nil {
				callbacks.OnToolResult(toolResult)
			}
		},
		OnNewMessageCycle: func(previousMessageID string) string {
			next := store.OnNewMessageCycle(previousMessageID)
			if next == "" {
				return ""
			}
			result.MessageIDs = append(result.MessageIDs, next)
			if callbacks.OnMessageCycle != nil {
				callbacks.OnMessageCycle(previousMessageID, next)
			}
			return next
		},
	}
}
