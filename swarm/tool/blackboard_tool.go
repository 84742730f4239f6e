// ABOUTME: The blackboard tool: the swarm's primary collaboration interface,
// ABOUTME: dispatching to Store operations by an "operation" argument.

package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nanoagent/swarmcore/swarm/blackboard"
)

// BlackboardTool exposes blackboard.Store's operations as one multiplexed
// tool, matching the "single tool, operation enum" shape of the source.
type BlackboardTool struct {
	store *blackboard.Store
	ctx   Context
}

// NewBlackboardTool binds a blackboard tool to store; Configure injects the
// calling agent's identity afterward.
func NewBlackboardTool(store *blackboard.Store) *BlackboardTool {
	return &BlackboardTool{store: store}
}

func (t *BlackboardTool) Configure(c Context) { t.ctx = c }

func (t *BlackboardTool) Name() string { return "blackboard" }

func (t *BlackboardTool) Description() string {
	return "The primary collaboration interface for the swarm. " +
		"global_indices/ is the coordination layer (plans, signals); resources/ " +
		"is the working directory for raw artifacts. Operations: list_indices, " +
		"read_index, update_index, append_to_index, update_task, create_index, " +
		"list_templates, read_template."
}

func (t *BlackboardTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					"list_indices", "read_index", "update_index", "append_to_index",
					"update_task", "create_index", "list_templates", "read_template",
				},
			},
			"filename":          map[string]any{"type": "string"},
			"task_id":           map[string]any{"type": "integer"},
			"updates":           map[string]any{"type": "object"},
			"content":           map[string]any{"type": "string"},
			"expected_checksum": map[string]any{"type": "string"},
		},
		"required": []string{"operation"},
	}
}

func (t *BlackboardTool) Execute(_ context.Context, args map[string]any) (string, error) {
	op, _ := args["operation"].(string)
	filename, _ := args["filename"].(string)
	content, _ := args["content"].(string)
	checksum, _ := args["expected_checksum"].(string)

	caller := blackboard.Caller{AgentName: t.ctx.AgentName, IsArchitect: t.ctx.IsArchitect}

	switch op {
	case "list_indices":
		summaries, err := t.store.ListIndices()
		if err != nil {
			return "", err
		}
		return Stringify(summaries), nil

	case "read_index":
		if filename == "" {
			return "", fmt.Errorf("filename is required for read_index")
		}
		idx, err := t.store.ReadIndex(filename)
		if err != nil {
			return "", err
		}
		return Stringify(map[string]any{
			"metadata": idx.Metadata,
			"content":  idx.Body,
			"checksum": idx.Checksum,
		}), nil

	case "append_to_index":
		if filename == "" {
			return "", fmt.Errorf("filename is required for append_to_index")
		}
		if err := t.store.AppendToIndex(filename, content); err != nil {
			return "", err
		}
		return "Success: Appended to index.", nil

	case "update_index":
		if filename == "" {
			return "", fmt.Errorf("filename is required for update_index")
		}
		if err := t.store.UpdateIndex(filename, content, checksum); err != nil {
			return "", err
		}
		return "Success: Index updated.", nil

	case "update_task":
		if filename == "" {
			filename = blackboard.CentralPlanFile
		}
		taskID, err := asInt(args["task_id"])
		if err != nil {
			return "", err
		}
		updates, _ := args["updates"].(map[string]any)
		if err := t.store.UpdateTask(filename, taskID, updates, checksum, caller); err != nil {
			return "", err
		}
		return "Success: Task updated.", nil

	case "create_index":
		if filename == "" {
			return "", fmt.Errorf("filename is required for create_index")
		}
		if err := t.store.CreateIndex(filename, content); err != nil {
			return "", err
		}
		return fmt.Sprintf("Success: Created index '%s'", filename), nil

	case "list_templates":
		names, err := t.store.ListTemplates()
		if err != nil {
			return "", err
		}
		return Stringify(names), nil

	case "read_template":
		return t.store.ReadTemplate(filename)

	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("task_id is required")
	}
}
