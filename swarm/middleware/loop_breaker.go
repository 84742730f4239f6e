// ABOUTME: Detects a repeating tool-call pattern in recent history and warns
// ABOUTME: the agent instead of letting it spin indefinitely.

package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/nanoagent/swarmcore/llm"
)

// loopDetectionWindow mirrors the teacher's default LoopDetectionWindow.
const loopDetectionWindow = 10

// LoopBreaker injects a warning user message when the last
// loopDetectionWindow tool calls form a repeating pattern of period 1, 2
// or 3 (a period is tried only when it divides the window, so with a
// window of 10 only periods 1 and 2 are detected), the same signature-hash detection as session.DetectLoop, adapted from
// Session Turn history to the flat llm.Request.Messages the engine hands
// middleware.
func LoopBreaker() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if detectLoop(req.Messages, loopDetectionWindow) {
			warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", loopDetectionWindow)
			req.Messages = append(req.Messages, llm.UserMessage(warning))
		}
		return next(ctx, req)
	}
}

func detectLoop(msgs []llm.Message, windowSize int) bool {
	sigs := toolCallSignatures(msgs, windowSize)
	if len(sigs) < windowSize {
		return false
	}
	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
			if !allMatch {
				break
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

// toolCallSignatures collects up to count "name:sha256(args)" signatures
// from the most recent assistant messages, oldest first.
func toolCallSignatures(msgs []llm.Message, count int) []string {
	var sigs []string
	for i := len(msgs) - 1; i >= 0 && len(sigs) < count; i-- {
		if msgs[i].Role != llm.RoleAssistant {
			continue
		}
		for _, tc := range msgs[i].ToolCalls() {
			hash := sha256.Sum256(tc.Arguments)
			sigs = append(sigs, fmt.Sprintf("%s:%x", tc.Name, hash[:8]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	if len(sigs) > count {
		sigs = sigs[len(sigs)-count:]
	}
	return sigs
}
