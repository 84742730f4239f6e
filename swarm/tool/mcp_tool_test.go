package tool

import (
	"encoding/json"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestSchemaToMapRoundTripsRawSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)

	got := schemaToMap(schema)
	if got["type"] != "object" {
		t.Fatalf("expected type object, got %v", got["type"])
	}
	props, ok := got["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", got["properties"])
	}
	if _, ok := props["path"]; !ok {
		t.Fatalf("expected properties to carry \"path\", got %v", props)
	}
}

func TestSchemaToMapFallsBackOnNilSchema(t *testing.T) {
	got := schemaToMap(nil)
	if got["type"] != "object" {
		t.Fatalf("expected fallback type object, got %v", got["type"])
	}
	props, ok := got["properties"].(map[string]any)
	if !ok || len(props) != 0 {
		t.Fatalf("expected empty properties map, got %v", got["properties"])
	}
}

func TestSchemaToMapFallsBackOnUnmarshalableSchema(t *testing.T) {
	got := schemaToMap(make(chan int))
	if got["type"] != "object" {
		t.Fatalf("expected fallback type object, got %v", got["type"])
	}
}

func TestMCPToolNameJoinsServerIDAndRemoteName(t *testing.T) {
	tl := &MCPTool{
		conn:       &mcpConnection{spec: MCPServerSpec{ID: "filesystem"}},
		remoteName: "read_file",
	}
	if got, want := tl.Name(), "filesystem.read_file"; got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
}

func TestMCPToolDescriptionFallsBackWhenEmpty(t *testing.T) {
	tl := &MCPTool{
		conn:       &mcpConnection{spec: MCPServerSpec{ID: "filesystem"}},
		remoteName: "read_file",
	}
	got := tl.Description()
	if got == "" {
		t.Fatal("expected a non-empty fallback description")
	}
}

func TestMCPToolDescriptionPrefersRemoteDescription(t *testing.T) {
	tl := &MCPTool{
		conn:        &mcpConnection{spec: MCPServerSpec{ID: "filesystem"}},
		remoteName:  "read_file",
		description: "Reads a file from disk.",
	}
	if got, want := tl.Description(), "Reads a file from disk."; got != want {
		t.Fatalf("Description() = %q, want %q", got, want)
	}
}

func TestExtractTextContentConcatenatesTextBlocks(t *testing.T) {
	result := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: "first"},
			&mcpsdk.TextContent{Text: "second"},
		},
	}
	got := extractTextContent(result)
	want := "first\nsecond"
	if got != want {
		t.Fatalf("extractTextContent() = %q, want %q", got, want)
	}
}

func TestExtractTextContentEmptyWhenNoContent(t *testing.T) {
	result := &mcpsdk.CallToolResult{}
	if got := extractTextContent(result); got != "" {
		t.Fatalf("extractTextContent() = %q, want empty", got)
	}
}
