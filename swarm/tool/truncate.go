// ABOUTME: Output-size guardrail: per-tool character and line limits with
// ABOUTME: head/tail or tail-only truncation, adapted from the engine's tool
// ABOUTME: output sanitizer for the swarm's own tool palette.

package tool

import (
	"fmt"
	"strings"
)

// defaultCharLimits maps tool names to their default character limits.
var defaultCharLimits = map[string]int{
	"blackboard":  40000,
	"bash":        30000,
	"read_file":   50000,
	"grep":        20000,
	"glob":        20000,
	"edit_file":   10000,
	"write_file":  1000,
	"web_search":  20000,
	"web_reader":  30000,
	"browser_use": 30000,
}

// defaultModes maps tool names to their truncation mode ("head_tail" or "tail").
var defaultModes = map[string]string{
	"blackboard": "head_tail",
	"bash":       "head_tail",
	"read_file":  "head_tail",
	"grep":       "tail",
	"glob":       "tail",
	"edit_file":  "tail",
	"write_file": "tail",
}

const defaultCharLimit = 30000

// defaultLineLimits caps line count for noisy tools even after character
// truncation; 0 (absent) means unlimited.
var defaultLineLimits = map[string]int{
	"bash": 256,
	"grep": 200,
	"glob": 500,
}

// TruncateLines keeps the first and last halves of a line-count budget,
// inserting an omission marker between them.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// TruncateOutput bounds output to maxChars using the given mode: "head_tail"
// keeps the first and last halves with a warning spliced between them;
// anything else keeps only the tail with a warning prefix.
func TruncateOutput(output string, maxChars int, mode string) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars
	if mode == "head_tail" {
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[truncated: %d characters removed from the middle]\n\n", removed) +
			output[len(output)-half:]
	}
	return fmt.Sprintf("[truncated: first %d characters removed]\n\n", removed) +
		output[len(output)-maxChars:]
}

// TruncateToolOutput applies the per-tool character limit (overridden by
// limits if present), then the per-tool line limit, matching the engine's
// two-pass sanitizer order.
func TruncateToolOutput(output, toolName string, limits map[string]int) string {
	maxChars := defaultCharLimit
	if v, ok := defaultCharLimits[toolName]; ok {
		maxChars = v
	}
	if limits != nil {
		if v, ok := limits[toolName]; ok {
			maxChars = v
		}
	}
	mode := "tail"
	if m, ok := defaultModes[toolName]; ok {
		mode = m
	}
	result := TruncateOutput(output, maxChars, mode)
	if maxLines, ok := defaultLineLimits[toolName]; ok && maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}
	return result
}
