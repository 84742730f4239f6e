package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/middleware"
	"github.com/nanoagent/swarmcore/swarm/tool"
)

// scriptedAdapter replays one llm.StreamEvent sequence per call, advancing
// through scripts in order, mirroring llm's own testAdapter test double.
type scriptedAdapter struct {
	mu      sync.Mutex
	scripts [][]llm.StreamEvent
	calls   int
}

func (a *scriptedAdapter) Name() string { return "test" }

func (a *scriptedAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return nil, nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	a.mu.Lock()
	idx := a.calls
	a.calls++
	a.mu.Unlock()

	script := a.scripts[idx]
	ch := make(chan llm.StreamEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (a *scriptedAdapter) Close() error { return nil }

func textOnlyScript(text string) []llm.StreamEvent {
	return []llm.StreamEvent{
		{Type: llm.StreamTextDelta, Delta: text},
		{Type: llm.StreamTextEnd},
		{Type: llm.StreamFinish, FinishReason: &llm.FinishReason{Reason: llm.FinishStop}},
	}
}

func toolCallScript(id, name, args string) []llm.StreamEvent {
	return []llm.StreamEvent{
		{Type: llm.StreamToolStart, ToolCall: &llm.ToolCall{ID: id, Name: name}},
		{Type: llm.StreamToolDelta, Delta: args},
		{Type: llm.StreamToolEnd},
		{Type: llm.StreamFinish, FinishReason: &llm.FinishReason{Reason: llm.FinishToolCalls}},
	}
}

// echoTool just returns its "value" argument, for engine-loop tests that
// don't care about any particular tool's domain behavior.
type echoTool struct{}

func (echoTool) Name() string            { return "echo" }
func (echoTool) Description() string     { return "echoes its value argument" }
func (echoTool) Schema() map[string]any  { return map[string]any{"type": "object"} }
func (echoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	v, _ := args["value"].(string)
	return v, nil
}

// okFinishTool always succeeds, for tests that don't exercise the
// blocked-finish downgrade path.
type okFinishTool struct{}

func (okFinishTool) Name() string            { return "finish" }
func (okFinishTool) Description() string     { return "finish" }
func (okFinishTool) Schema() map[string]any  { return map[string]any{"type": "object"} }
func (okFinishTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	output, _ := args["output"].(string)
	return output, nil
}

func passthroughMiddleware(ctx context.Context, turn *middleware.Turn, req *llm.Request, next middleware.Next) (*llm.Response, error) {
	return next(ctx, req)
}

func newTestEngine(t *testing.T, scripts ...[]llm.StreamEvent) (*Engine, *tool.Registry) {
	t.Helper()
	adapter := &scriptedAdapter{scripts: scripts}
	client := llm.NewClient(llm.WithProvider("test", adapter), llm.WithDefaultProvider("test"))

	reg := tool.NewRegistry()
	_ = reg.Register(echoTool{})
	_ = reg.Register(okFinishTool{})

	e := New(Config{
		Model:         "test-model",
		SystemPrompt:  "you are a test agent",
		MaxIterations: 10,
		Client:        client,
		Tools:         reg,
		Middleware:    passthroughMiddleware,
		Turn:          &middleware.Turn{AgentName: "worker-1"},
	})
	return e, reg
}

func TestRunExitsOnTextOnlyResponse(t *testing.T) {
	e, _ := newTestEngine(t, textOnlyScript("all done, no tools needed"))
	out, err := e.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "all done, no tools needed" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunDispatchesToolCallThenFinishes(t *testing.T) {
	e, _ := newTestEngine(t,
		toolCallScript("call_1", "echo", `{"value":"hi"}`),
		toolCallScript("call_2", "finish", `{"output":"wrapped up"}`),
	)
	out, err := e.Run(context.Background(), "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out == "" {
		t.Fatal("expected a non-empty finish output")
	}
}

func TestRunExhaustsMaxIterations(t *testing.T) {
	scripts := make([][]llm.StreamEvent, 3)
	for i := range scripts {
		scripts[i] = toolCallScript("call", "echo", `{"value":"spin"}`)
	}
	adapter := &scriptedAdapter{scripts: scripts}
	client := llm.NewClient(llm.WithProvider("test", adapter), llm.WithDefaultProvider("test"))
	reg := tool.NewRegistry()
	_ = reg.Register(echoTool{})

	e := New(Config{
		Model:         "test-model",
		SystemPrompt:  "sys",
		MaxIterations: 3,
		Client:        client,
		Tools:         reg,
		Middleware:    passthroughMiddleware,
		Turn:          &middleware.Turn{AgentName: "worker-1"},
	})

	_, err := e.Run(context.Background(), "start")
	if err == nil {
		t.Fatal("expected an error once the iteration budget is exhausted")
	}
}

func TestRunDowngradesBlockedFinishToWait(t *testing.T) {
	reg := tool.NewRegistry()
	_ = reg.Register(blockedFinishTool{})

	adapter := &scriptedAdapter{scripts: [][]llm.StreamEvent{
		toolCallScript("call_1", "finish", `{"output":"done"}`),
		textOnlyScript("acknowledged, waiting"),
	}}
	client := llm.NewClient(llm.WithProvider("test", adapter), llm.WithDefaultProvider("test"))

	e := New(Config{
		Model:         "test-model",
		SystemPrompt:  "sys",
		MaxIterations: 10,
		Client:        client,
		Tools:         reg,
		Middleware:    passthroughMiddleware,
		Turn:          &middleware.Turn{AgentName: "worker-1"},
	})

	out, err := e.Run(context.Background(), "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "acknowledged, waiting" {
		t.Fatalf("expected the loop to continue past the blocked finish, got %q", out)
	}
}

type blockedFinishTool struct{}

func (blockedFinishTool) Name() string           { return "finish" }
func (blockedFinishTool) Description() string    { return "finish" }
func (blockedFinishTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (blockedFinishTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "BLOCKED: 1 incomplete task(s) remain.", nil
}
