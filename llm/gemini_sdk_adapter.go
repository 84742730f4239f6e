// ABOUTME: Gemini provider adapter built on the official google.golang.org/genai
// ABOUTME: SDK, an alternative to GeminiAdapter's hand-rolled HTTP/SSE client.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiSDKAdapter implements ProviderAdapter for Gemini using the genai SDK
// directly rather than talking to the REST endpoints by hand. It exists
// alongside GeminiAdapter: pick this one when a genai.Client is already
// available (e.g. shared with other Google Cloud SDK usage) or when the
// SDK's own retry/transport handling is preferred over BaseAdapter's.
type GeminiSDKAdapter struct {
	client *genai.Client

	mu           sync.Mutex
	callIDToName map[string]string
}

// NewGeminiSDKAdapter creates a GeminiSDKAdapter authenticated with apiKey.
func NewGeminiSDKAdapter(ctx context.Context, apiKey string) (*GeminiSDKAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiSDKAdapter{client: client, callIDToName: make(map[string]string)}, nil
}

// Name returns the provider name "gemini".
func (a *GeminiSDKAdapter) Name() string { return "gemini" }

// Close releases any resources held by the adapter. The genai SDK's client
// does not expose a Close method, so this is a no-op.
func (a *GeminiSDKAdapter) Close() error { return nil }

// Complete sends a non-streaming generation request via the genai SDK.
func (a *GeminiSDKAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	contents, sysInstr := a.buildContents(req.Messages)
	cfg := a.buildConfig(req, sysInstr)

	genResp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return a.parseResponse(req.Model, genResp)
}

// Stream sends a streaming generation request via the genai SDK, translating
// each yielded chunk into StreamEvents. Gemini hands back whole text and
// function-call parts per chunk rather than token-level deltas, so each
// part is emitted as its own start/delta/end triple.
func (a *GeminiSDKAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	contents, sysInstr := a.buildContents(req.Messages)
	cfg := a.buildConfig(req, sysInstr)

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)

		var lastUsage *Usage
		hasToolCalls := false
		var lastFinish string

		for genResp, err := range a.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				ch <- StreamEvent{Type: StreamErrorEvt, Error: err}
				return
			}
			if genResp.UsageMetadata != nil {
				u := Usage{
					InputTokens:  int(genResp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(genResp.UsageMetadata.TotalTokenCount),
				}
				lastUsage = &u
			}
			if len(genResp.Candidates) == 0 || genResp.Candidates[0].Content == nil {
				continue
			}
			candidate := genResp.Candidates[0]
			if candidate.FinishReason != "" {
				lastFinish = string(candidate.FinishReason)
			}

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					ch <- StreamEvent{Type: StreamTextStart}
					ch <- StreamEvent{Type: StreamTextDelta, Delta: part.Text}
					ch <- StreamEvent{Type: StreamTextEnd}
				}
				if part.FunctionCall != nil {
					hasToolCalls = true
					callID := part.FunctionCall.ID
					if callID == "" {
						callID = GenerateCallID()
					}
					a.mu.Lock()
					a.callIDToName[callID] = part.FunctionCall.Name
					a.mu.Unlock()

					argsJSON, _ := json.Marshal(part.FunctionCall.Args)
					ch <- StreamEvent{Type: StreamToolStart, ToolCall: &ToolCall{ID: callID, Name: part.FunctionCall.Name}}
					ch <- StreamEvent{Type: StreamToolDelta, Delta: string(argsJSON)}
					ch <- StreamEvent{Type: StreamToolEnd}
				}
			}
		}

		finish := a.mapFinishReason(lastFinish, hasToolCalls)
		finishEvt := StreamEvent{Type: StreamFinish, FinishReason: &finish}
		if lastUsage != nil {
			finishEvt.Usage = lastUsage
		}
		ch <- finishEvt
	}()

	return ch, nil
}

// buildContents converts unified messages into genai Content, pulling
// system/developer messages out into a separate system instruction the way
// GeminiAdapter's buildRequestBody does.
func (a *GeminiSDKAdapter) buildContents(messages []Message) ([]*genai.Content, *genai.Content) {
	systemText, remaining := ExtractSystemMessages(messages)

	var sysInstr *genai.Content
	if systemText != "" {
		sysInstr = &genai.Content{Parts: []*genai.Part{{Text: systemText}}}
	}

	contents := make([]*genai.Content, 0, len(remaining))
	for _, msg := range remaining {
		c := a.translateMessage(msg)
		if c != nil {
			contents = append(contents, c)
		}
	}
	return contents, sysInstr
}

func (a *GeminiSDKAdapter) translateMessage(msg Message) *genai.Content {
	var parts []*genai.Part
	for _, cp := range msg.Content {
		if p := a.translatePart(cp); p != nil {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil
	}

	role := "user"
	if msg.Role == RoleAssistant {
		role = "model"
	}
	return &genai.Content{Role: role, Parts: parts}
}

func (a *GeminiSDKAdapter) translatePart(cp ContentPart) *genai.Part {
	switch cp.Kind {
	case ContentText:
		return &genai.Part{Text: cp.Text}

	case ContentImage:
		if cp.Image == nil {
			return nil
		}
		mimeType := cp.Image.MediaType
		if mimeType == "" {
			mimeType = "image/png"
		}
		if cp.Image.URL != "" {
			return &genai.Part{FileData: &genai.FileData{MIMEType: mimeType, FileURI: cp.Image.URL}}
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: cp.Image.Data}}

	case ContentToolCall:
		if cp.ToolCall == nil {
			return nil
		}
		var args map[string]any
		if len(cp.ToolCall.Arguments) > 0 {
			_ = json.Unmarshal(cp.ToolCall.Arguments, &args)
		}
		return &genai.Part{FunctionCall: &genai.FunctionCall{ID: cp.ToolCall.ID, Name: cp.ToolCall.Name, Args: args}}

	case ContentToolResult:
		if cp.ToolResult == nil {
			return nil
		}
		name := a.lookupFunctionName(cp.ToolResult.ToolCallID)
		var result map[string]any
		if err := json.Unmarshal([]byte(cp.ToolResult.Content), &result); err != nil {
			result = map[string]any{"result": cp.ToolResult.Content}
		}
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: cp.ToolResult.ToolCallID, Name: name, Response: result}}

	default:
		return nil
	}
}

func (a *GeminiSDKAdapter) lookupFunctionName(toolCallID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name, ok := a.callIDToName[toolCallID]; ok {
		return name
	}
	return toolCallID
}

func (a *GeminiSDKAdapter) buildConfig(req Request, sysInstr *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SystemInstruction: sysInstr}

	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		cfg.StopSequences = req.StopSequences
	}

	if len(req.Tools) > 0 && (req.ToolChoice == nil || req.ToolChoice.Mode != ToolChoiceNone) {
		var decls []*genai.FunctionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return cfg
}

func (a *GeminiSDKAdapter) parseResponse(model string, genResp *genai.GenerateContentResponse) (*Response, error) {
	resp := &Response{Provider: "gemini", Model: model, Message: Message{Role: RoleAssistant}}

	hasToolCalls := false
	var lastFinish string
	if len(genResp.Candidates) > 0 {
		candidate := genResp.Candidates[0]
		if candidate.FinishReason != "" {
			lastFinish = string(candidate.FinishReason)
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					resp.Message.Content = append(resp.Message.Content, TextPart(part.Text))
				}
				if part.FunctionCall != nil {
					hasToolCalls = true
					callID := part.FunctionCall.ID
					if callID == "" {
						callID = GenerateCallID()
					}
					a.mu.Lock()
					a.callIDToName[callID] = part.FunctionCall.Name
					a.mu.Unlock()

					argsJSON, _ := json.Marshal(part.FunctionCall.Args)
					resp.Message.Content = append(resp.Message.Content, ToolCallPart(callID, part.FunctionCall.Name, argsJSON))
				}
			}
		}
	}
	resp.FinishReason = a.mapFinishReason(lastFinish, hasToolCalls)

	if genResp.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(genResp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(genResp.UsageMetadata.TotalTokenCount),
		}
		if genResp.UsageMetadata.ThoughtsTokenCount > 0 {
			resp.Usage.ReasoningTokens = IntPtr(int(genResp.UsageMetadata.ThoughtsTokenCount))
		}
	}

	return resp, nil
}

func (a *GeminiSDKAdapter) mapFinishReason(geminiReason string, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishReason{Reason: FinishToolCalls, Raw: geminiReason}
	}
	var reason string
	switch geminiReason {
	case "STOP":
		reason = FinishStop
	case "MAX_TOKENS":
		reason = FinishLength
	case "SAFETY":
		reason = FinishContentFilter
	case "":
		reason = FinishStop
	default:
		reason = FinishOther
	}
	return FinishReason{Reason: reason, Raw: geminiReason}
}

// toGenaiSchema converts a unified JSON-schema-shaped tool parameter blob
// into a genai.Schema, the shape the SDK's FunctionDeclaration expects
// instead of raw JSON.
func toGenaiSchema(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return toGenaiSchemaMap(m)
}

func toGenaiSchemaMap(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchemaMap(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchemaMap(items)
	}
	return s
}
