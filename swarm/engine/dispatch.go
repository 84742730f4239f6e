// ABOUTME: Tool-call dispatch: IO-bound tools run serially, the rest on a
// ABOUTME: bounded worker pool; per-tool timeouts, argument repair, and the
// ABOUTME: finish->wait downgrade on a blocked pre-check.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/tool"
)

// ioBoundTools share global network clients that are unsafe under
// concurrent use, so the engine runs them one at a time.
var ioBoundTools = map[string]bool{
	"web_search":   true,
	"web_reader":   true,
	"browser_use":  true,
}

// defaultToolTimeout and the per-name override table below bound how long
// a single tool call may run before the engine synthesizes an error result
// and moves on.
const defaultToolTimeout = 300 * time.Second

var toolTimeoutOverrides = map[string]time.Duration{
	"web_search":  30 * time.Second,
	"web_reader":  45 * time.Second,
	"browser_use": 60 * time.Second,
}

func toolTimeout(name string) time.Duration {
	if d, ok := toolTimeoutOverrides[name]; ok {
		return d
	}
	return defaultToolTimeout
}

// maxParallelWorkers bounds the worker pool for non-IO-bound tool calls.
const maxParallelWorkers = 5

// dispatchToolCalls executes calls against registry, honoring the
// IO-bound-serial / pool-concurrent split, per-tool timeouts, and argument
// repair, emitting EventToolResult for each. It returns one llm.ToolResult
// per call, in the same order as calls.
func dispatchToolCalls(ctx context.Context, emit *Emitter, registry *tool.Registry, calls []llm.ToolCallData) []llm.ToolResultData {
	results := make([]llm.ToolResultData, len(calls))

	var serial, concurrent []int
	for i, tc := range calls {
		if ioBoundTools[tc.Name] {
			serial = append(serial, i)
		} else {
			concurrent = append(concurrent, i)
		}
	}

	for _, i := range serial {
		results[i] = dispatchOne(ctx, emit, registry, calls[i])
	}

	if len(concurrent) > 0 {
		sem := make(chan struct{}, maxParallelWorkers)
		var wg sync.WaitGroup
		wg.Add(len(concurrent))
		for _, i := range concurrent {
			sem <- struct{}{}
			go func(idx int, tc llm.ToolCallData) {
				defer wg.Done()
				defer func() { <-sem }()
				results[idx] = dispatchOne(ctx, emit, registry, tc)
			}(i, calls[i])
		}
		wg.Wait()
	}

	return results
}

// dispatchOne executes a single tool call: parses (repairing truncated
// JSON once if needed) its arguments, looks it up in registry, runs it
// under a per-name timeout, and applies the finish->wait downgrade.
func dispatchOne(ctx context.Context, emit *Emitter, registry *tool.Registry, tc llm.ToolCallData) llm.ToolResultData {
	emit.Emit(EventToolCall, map[string]any{"tool_name": tc.Name, "call_id": tc.ID})

	t := registry.Get(tc.Name)
	if t == nil {
		msg := fmt.Sprintf("Unknown tool %q. Pick one of the tools listed in your system prompt.", tc.Name)
		emit.Emit(EventToolResult, map[string]any{"call_id": tc.ID, "error": msg})
		return llm.ToolResultData{ToolCallID: tc.ID, Content: msg, IsError: true}
	}

	args, err := parseArguments(tc.Arguments)
	if err != nil {
		msg := fmt.Sprintf("Tool error (%s): failed to parse arguments: %s", tc.Name, err)
		emit.Emit(EventToolResult, map[string]any{"call_id": tc.ID, "error": msg})
		return llm.ToolResultData{ToolCallID: tc.ID, Content: msg, IsError: true}
	}

	callCtx, cancel := context.WithTimeout(ctx, toolTimeout(tc.Name))
	defer cancel()

	type execResult struct {
		content string
		err     error
	}
	done := make(chan execResult, 1)
	go func() {
		content, err := t.Execute(callCtx, args)
		done <- execResult{content, err}
	}()

	var content string
	select {
	case <-callCtx.Done():
		content = fmt.Sprintf("Tool %q timed out after %s.", tc.Name, toolTimeout(tc.Name))
		emit.Emit(EventToolResult, map[string]any{"call_id": tc.ID, "error": content})
		return llm.ToolResultData{ToolCallID: tc.ID, Content: content, IsError: true}
	case res := <-done:
		if res.err != nil {
			content = fmt.Sprintf("Tool error (%s): %s", tc.Name, res.err)
			emit.Emit(EventToolResult, map[string]any{"call_id": tc.ID, "error": content})
			return llm.ToolResultData{ToolCallID: tc.ID, Content: content, IsError: true}
		}
		content = res.content
	}

	emit.Emit(EventToolResult, map[string]any{"call_id": tc.ID, "output": content})
	return llm.ToolResultData{ToolCallID: tc.ID, Content: content}
}

// parseArguments decodes raw tool-call arguments, attempting the bracket
// repair heuristic once before falling back to an empty object.
func parseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		if args == nil {
			args = map[string]any{}
		}
		return args, nil
	}
	_, repaired := repairTruncatedJSON(string(raw))
	return repaired, nil
}

// downgradeFinishIfBlocked detects the finish tool's pre-check failure
// message (it returns the diagnostic as ordinary output rather than an
// error) and rewrites both the call and its result to a 'wait' so the loop
// continues instead of the model believing finish already succeeded.
func downgradeFinishIfBlocked(resp *llm.Response, results []llm.ToolResultData) {
	for i := range resp.Message.Content {
		part := &resp.Message.Content[i]
		if part.Kind != llm.ContentToolCall || part.ToolCall == nil || part.ToolCall.Name != "finish" {
			continue
		}
		for j := range results {
			if results[j].ToolCallID != part.ToolCall.ID {
				continue
			}
			if !strings.HasPrefix(results[j].Content, "BLOCKED") {
				continue
			}
			args, _ := json.Marshal(map[string]any{
				"duration":           10,
				"wait_for_new_index": true,
				"reason":             results[j].Content,
			})
			part.ToolCall.Name = "wait"
			part.ToolCall.Arguments = args
			results[j].Content = fmt.Sprintf("Not finished yet: %s", results[j].Content)
		}
	}
}
