// ABOUTME: Consumes an llm.StreamEvent channel into an accumulated
// ABOUTME: *llm.Response, emitting token events as text deltas arrive.

package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nanoagent/swarmcore/llm"
)

// deltaFlushThreshold batches text deltas before emitting a token event,
// matching agent/stream.go's flush threshold.
const deltaFlushThreshold = 200

type streamAccumulator struct {
	textBuf      string
	reasoningBuf string

	toolCalls       []llm.ToolCallData
	currentToolID   string
	currentToolName string
	currentToolArgs string

	finishReason *llm.FinishReason
	usage        *llm.Usage

	responseID string
	model      string
	provider   string
}

// consumeStream drains stream, accumulating text and tool-call fragments
// into an *llm.Response and emitting EventToken for batched text deltas.
// Returns an error on context cancellation or a stream error event.
func consumeStream(ctx context.Context, emit *Emitter, stream <-chan llm.StreamEvent) (*llm.Response, error) {
	acc := &streamAccumulator{}
	deltaBuf := ""

	flush := func() {
		if deltaBuf == "" {
			return
		}
		emit.Emit(EventToken, map[string]any{"text": deltaBuf})
		deltaBuf = ""
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-stream:
			if !ok {
				flush()
				return buildResponseFromStream(acc), nil
			}

			switch ev.Type {
			case llm.StreamTextDelta:
				acc.textBuf += ev.Delta
				deltaBuf += ev.Delta
				if len(deltaBuf) >= deltaFlushThreshold {
					flush()
				}

			case llm.StreamTextEnd, llm.StreamReasonStart:
				flush()

			case llm.StreamReasonDelta:
				acc.reasoningBuf += ev.ReasoningDelta

			case llm.StreamToolStart:
				flush()
				if ev.ToolCall != nil {
					acc.currentToolID = ev.ToolCall.ID
					acc.currentToolName = ev.ToolCall.Name
					acc.currentToolArgs = ""
				}

			case llm.StreamToolDelta:
				acc.currentToolArgs += ev.Delta

			case llm.StreamToolEnd:
				acc.toolCalls = append(acc.toolCalls, llm.ToolCallData{
					ID:        acc.currentToolID,
					Name:      acc.currentToolName,
					Arguments: json.RawMessage(acc.currentToolArgs),
				})
				acc.currentToolID = ""
				acc.currentToolName = ""
				acc.currentToolArgs = ""

			case llm.StreamFinish:
				flush()
				if ev.FinishReason != nil {
					acc.finishReason = ev.FinishReason
				}
				if ev.Usage != nil {
					acc.usage = ev.Usage
				}
				if ev.Response != nil {
					acc.responseID = ev.Response.ID
					acc.model = ev.Response.Model
					acc.provider = ev.Response.Provider
				}

			case llm.StreamErrorEvt:
				flush()
				if ev.Error != nil {
					return nil, fmt.Errorf("stream error: %w", ev.Error)
				}
				return nil, fmt.Errorf("stream error: unknown")
			}
		}
	}
}

func buildResponseFromStream(acc *streamAccumulator) *llm.Response {
	var parts []llm.ContentPart
	if acc.reasoningBuf != "" {
		parts = append(parts, llm.ThinkingPart(acc.reasoningBuf, ""))
	}
	if acc.textBuf != "" {
		parts = append(parts, llm.TextPart(acc.textBuf))
	}
	for _, tc := range acc.toolCalls {
		parts = append(parts, llm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}

	finishReason := llm.FinishReason{}
	if acc.finishReason != nil {
		finishReason = *acc.finishReason
	}
	usage := llm.Usage{}
	if acc.usage != nil {
		usage = *acc.usage
	}

	return &llm.Response{
		ID:           acc.responseID,
		Model:        acc.model,
		Provider:     acc.provider,
		Message:      llm.Message{Role: llm.RoleAssistant, Content: parts},
		FinishReason: finishReason,
		Usage:        usage,
	}
}
