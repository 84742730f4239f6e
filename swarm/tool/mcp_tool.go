// ABOUTME: Tool implementation backed by a remote MCP server over stdio,
// ABOUTME: so an operator can extend a Worker's palette without this repo
// ABOUTME: implementing the capability (web search, a cloud API) itself.

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServerSpec describes one MCP server to connect to over stdio.
type MCPServerSpec struct {
	// ID prefixes every remote tool's local name as "ID.remote-tool-name",
	// disambiguating servers that happen to expose tools with the same name.
	ID      string
	Command string
	Args    []string
}

// mcpConnection is the shared, lazily-established session behind every
// MCPTool wrapping the same server — one process per server, not per tool.
type mcpConnection struct {
	spec MCPServerSpec

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

func (c *mcpConnection) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	transport := &mcpsdk.CommandTransport{Command: exec.Command(c.spec.Command, c.spec.Args...)}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "swarmcore", Version: "dev"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connecting to server %q: %w", c.spec.ID, err)
	}
	c.session = session
	return session, nil
}

// MCPTool adapts one tool exposed by a remote MCP server to the local Tool
// interface. Several MCPTool values can share one mcpConnection (and so one
// subprocess) when they come from the same server.
type MCPTool struct {
	conn        *mcpConnection
	remoteName  string
	description string
	schema      map[string]any
}

// DiscoverMCPTools connects to the server described by spec and returns one
// MCPTool per tool the server advertises via ListTools. The connection is
// shared across the returned tools and is established once, on this call.
func DiscoverMCPTools(ctx context.Context, spec MCPServerSpec) ([]*MCPTool, error) {
	conn := &mcpConnection{spec: spec}
	session, err := conn.connect(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: listing tools from %q: %w", spec.ID, err)
	}

	tools := make([]*MCPTool, 0, len(result.Tools))
	for _, rt := range result.Tools {
		tools = append(tools, &MCPTool{
			conn:        conn,
			remoteName:  rt.Name,
			description: rt.Description,
			schema:      schemaToMap(rt.InputSchema),
		})
	}
	return tools, nil
}

// schemaToMap round-trips an MCP tool's typed InputSchema through JSON into
// the map[string]any shape every local Tool.Schema returns.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m
}

func (t *MCPTool) Name() string {
	return t.conn.spec.ID + "." + t.remoteName
}

func (t *MCPTool) Description() string {
	if t.description == "" {
		return fmt.Sprintf("Remote tool %q on MCP server %q.", t.remoteName, t.conn.spec.ID)
	}
	return t.description
}

func (t *MCPTool) Schema() map[string]any {
	return t.schema
}

func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	session, err := t.conn.connect(ctx)
	if err != nil {
		return "", err
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.remoteName,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp: calling %q: %w", t.Name(), err)
	}

	text := extractTextContent(result)
	if result.IsError {
		return "", fmt.Errorf("mcp tool %q returned an error: %s", t.Name(), text)
	}
	return text, nil
}

// extractTextContent concatenates every TextContent block in result,
// skipping non-text content (images, embedded resources) rather than
// failing the call over them.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
