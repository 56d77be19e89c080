package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// httpClientTimeout is the overall deadline for a streaming request;
	// generous because streaming reads can legitimately run for minutes.
	httpClientTimeout = 10 * time.Minute

	// connectTimeout bounds dialing a provider.
	connectTimeout = 30 * time.Second
)

// defaultHTTPClient is a shared pooled client; safe for concurrent use.
var defaultHTTPClient = &http.Client{
	Timeout: httpClientTimeout,
	Transport: &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DialContext:       (&net.Dialer{Timeout: connectTimeout}).DialContext,
		ForceAttemptHTTP2: true,
	},
}

// OpenAICompatProvider implements Provider for OpenAI-compatible APIs:
// OpenRouter, LM Studio and other servers speaking the chat/completions
// dialect. api.openai.com itself goes through OpenAIProvider.
type OpenAICompatProvider struct {
	baseURL string
	apiKey  string
	model   string
	name    string // display name: "OpenAI", "OpenRouter", ...
	headers map[string]string
}

func NewOpenAICompatProvider(baseURL, apiKey, model, name string) *OpenAICompatProvider {
	return NewOpenAICompatProviderWithHeaders(baseURL, apiKey, model, name, nil)
}

func NewOpenAICompatProviderWithHeaders(baseURL, apiKey, model, name string, headers map[string]string) *OpenAICompatProvider {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &OpenAICompatProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		name:    name,
		headers: headers,
	}
}

// NewOpenRouterProvider creates an OpenAI-compatible provider with the
// attribution headers OpenRouter expects.
func NewOpenRouterProvider(apiKey, model, appURL, appTitle string) *OpenAICompatProvider {
	headers := map[string]string{
		"HTTP-Referer": appURL,
		"X-Title":      appTitle,
	}
	return NewOpenAICompatProviderWithHeaders("https://openrouter.ai/api/v1", apiKey, model, "OpenRouter", headers)
}

func (p *OpenAICompatProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

func (p *OpenAICompatProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Streaming: true}
}

// OpenAI-compatible request/response structures.
type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Usage   *oaiUsage    `json:"usage,omitempty"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Delta        *oaiMessage `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *OpenAICompatProvider) makeRequest(ctx context.Context, body []byte) (*http.Response, error) {
	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for key, value := range p.headers {
		if value == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}
	return defaultHTTPClient.Do(httpReq)
}

func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		messages := buildCompatMessages(req.Messages)
		if len(messages) == 0 {
			return NewError(KindInvalidParams, "no messages provided")
		}

		tools, err := buildCompatTools(req.Tools)
		if err != nil {
			return err
		}

		chatReq := oaiChatRequest{
			Model:    chooseModel(req.Model, p.model),
			Messages: messages,
			Tools:    tools,
			Stream:   true,
		}
		if len(tools) > 0 {
			chatReq.ToolChoice = "auto"
		}
		if req.Temperature > 0 {
			v := req.Temperature
			chatReq.Temperature = &v
		}
		if req.MaxOutputTokens > 0 {
			v := req.MaxOutputTokens
			chatReq.MaxTokens = &v
		}

		body, err := json.Marshal(chatReq)
		if err != nil {
			return err
		}

		resp, err := p.makeRequest(ctx, body)
		if err != nil {
			return p.decorate(WrapNetwork(err), body, req.Debug)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			respBody, _ := io.ReadAll(resp.Body)
			return p.decorate(HTTPError(resp.StatusCode, respBody), body, req.Debug)
		}

		events <- Event{Type: EventStart}

		scanner := newSSEScanner(resp.Body)
		toolState := newToolCallState()
		var lastUsage *Usage
		finish := FinishComplete

		for {
			frame, ok := scanner.Next()
			if !ok {
				break
			}
			if frame.Done {
				break
			}

			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(frame.Data), &chatResp); err != nil {
				// Malformed event mid-stream: skip and keep reading.
				continue
			}

			if frame.Event == "error" || chatResp.Error != nil {
				errMsg := "unknown error"
				if chatResp.Error != nil {
					errMsg = chatResp.Error.Message
				}
				return p.decorate(NewError(KindProvider, errMsg), body, req.Debug)
			}

			if chatResp.Usage != nil {
				lastUsage = &Usage{
					InputTokens:  chatResp.Usage.PromptTokens,
					OutputTokens: chatResp.Usage.CompletionTokens,
				}
			}

			for _, choice := range chatResp.Choices {
				if choice.Delta != nil {
					if choice.Delta.Content != "" {
						events <- Event{Type: EventTextDelta, Text: choice.Delta.Content}
					}
					for _, tc := range choice.Delta.ToolCalls {
						events <- Event{
							Type:       EventToolCallDelta,
							DeltaIndex: tc.Index,
							DeltaID:    tc.ID,
							DeltaName:  tc.Function.Name,
							DeltaArgs:  tc.Function.Arguments,
						}
						toolState.Add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
					}
				}
				switch choice.FinishReason {
				case "length":
					finish = FinishLength
				case "tool_calls":
					finish = FinishToolUse
				}
			}
		}

		if err := scanner.Err(); err != nil {
			return p.decorate(WrapNetwork(err), body, req.Debug)
		}

		for _, call := range toolState.Calls() {
			call := call
			events <- Event{Type: EventToolCall, Tool: &call}
		}
		if !toolState.Empty() {
			finish = FinishToolUse
		}
		if lastUsage != nil {
			events <- Event{Type: EventUsage, Use: lastUsage}
		}
		events <- Event{Type: EventEnd, Finish: finish}
		return nil
	}), nil
}

// decorate attaches request context to structured errors when debug is on.
func (p *OpenAICompatProvider) decorate(err *Error, reqBody []byte, debug bool) error {
	if debug {
		err.RequestURL = p.baseURL + "/chat/completions"
		err.RequestBody = string(reqBody)
	}
	return err
}

func buildCompatMessages(messages []Message) []oaiMessage {
	var result []oaiMessage
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			text, toolCalls := splitParts(msg.Parts)
			if msg.Role == RoleAssistant && len(toolCalls) > 0 {
				result = append(result, oaiMessage{
					Role:      "assistant",
					Content:   text,
					ToolCalls: buildCompatToolCalls(toolCalls),
				})
				continue
			}
			if text == "" {
				continue
			}
			result = append(result, oaiMessage{Role: string(msg.Role), Content: text})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				result = append(result, oaiMessage{
					Role:       "tool",
					Content:    part.ToolResult.Content,
					ToolCallID: part.ToolResult.ID,
				})
			}
		}
	}
	return result
}

func buildCompatToolCalls(calls []*ToolCall) []oaiToolCall {
	out := make([]oaiToolCall, 0, len(calls))
	for _, call := range calls {
		tc := oaiToolCall{ID: call.ID, Type: "function"}
		tc.Function.Name = call.Name
		tc.Function.Arguments = string(call.Arguments)
		out = append(out, tc)
	}
	return out
}

func buildCompatTools(specs []ToolSpec) ([]oaiTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}
