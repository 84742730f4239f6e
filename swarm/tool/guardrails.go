// ABOUTME: Universal tool wrappers: strict schema validation, sandbox-path
// ABOUTME: containment, {{root_path}}/{{blackboard}} substitution, output truncation.

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateArgs rejects unknown, missing-required, or wrong-typed arguments
// against a JSON-Schema-shaped map (the same shape llm.ToolDefinition.Parameters
// carries: {"type":"object","properties":{...},"required":[...]}).
func ValidateArgs(schema map[string]any, args map[string]any) error {
	props, _ := schema["properties"].(map[string]any)
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			name, _ := v.(string)
			required = append(required, name)
		}
	}

	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	for name, v := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !typeMatches(wantType, v) {
			return fmt.Errorf("argument %q: expected type %s, got %T", name, wantType, v)
		}
	}
	return nil
}

func typeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer", "number":
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// SandboxGuard resolves a caller-supplied path against root and returns an
// error if it escapes root via ".." traversal or an absolute path outside it.
func SandboxGuard(root, candidate string) (string, error) {
	joined := filepath.Join(root, candidate)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes sandbox root %q", candidate, root)
	}
	return absJoined, nil
}

// SubstitutePathVars replaces {{root_path}} and {{blackboard}} placeholders
// in a tool argument string with the agent's actual sandbox/blackboard roots.
func SubstitutePathVars(s string, c Context) string {
	s = strings.ReplaceAll(s, "{{root_path}}", c.SandboxRoot)
	s = strings.ReplaceAll(s, "{{blackboard}}", c.Blackboard)
	return s
}

// Stringify JSON-encodes non-string tool results so every Execute return
// value is a plain string, matching the engine's "tool message content is
// always text" invariant.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// wrappedTool applies guardrails around an inner Tool: schema validation,
// then execution, then output truncation via TruncateToolOutput.
type wrappedTool struct {
	Tool
	limits map[string]int
}

// WithGuardrails wraps t with strict argument validation and output
// truncation using the per-tool limit table (nil selects the package
// defaults).
func WithGuardrails(t Tool, limits map[string]int) Tool {
	return &wrappedTool{Tool: t, limits: limits}
}

func (w *wrappedTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if err := ValidateArgs(w.Schema(), args); err != nil {
		return "", err
	}
	out, err := w.Tool.Execute(ctx, args)
	if err != nil {
		return "", err
	}
	return TruncateToolOutput(out, w.Name(), w.limits), nil
}
