package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// OllamaProvider implements Provider against Ollama's native /api/chat
// endpoint: no auth, newline-delimited JSON responses, tool calls
// delivered whole (arguments arrive as an object, not as fragments).
type OllamaProvider struct {
	baseURL string
	model   string
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
	}
}

func (p *OllamaProvider) Name() string {
	return fmt.Sprintf("Ollama (%s)", p.model)
}

func (p *OllamaProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Streaming: true}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []oaiTool       `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
	Error      string        `json:"error,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		messages := buildOllamaMessages(req.Messages)
		if len(messages) == 0 {
			return NewError(KindInvalidParams, "no messages provided")
		}

		tools, err := buildCompatTools(req.Tools)
		if err != nil {
			return err
		}

		chatReq := ollamaChatRequest{
			Model:    chooseModel(req.Model, p.model),
			Messages: messages,
			Tools:    tools,
			Stream:   true,
		}
		if req.Temperature > 0 || req.MaxOutputTokens > 0 {
			opts := &ollamaOptions{}
			if req.Temperature > 0 {
				v := req.Temperature
				opts.Temperature = &v
			}
			if req.MaxOutputTokens > 0 {
				v := req.MaxOutputTokens
				opts.NumPredict = &v
			}
			chatReq.Options = opts
		}

		body, err := json.Marshal(chatReq)
		if err != nil {
			return err
		}

		url := p.baseURL + "/api/chat"
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := defaultHTTPClient.Do(httpReq)
		if err != nil {
			return p.decorate(WrapNetwork(err), url, body, req.Debug)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			respBody, _ := io.ReadAll(resp.Body)
			return p.decorate(HTTPError(resp.StatusCode, respBody), url, body, req.Debug)
		}

		events <- Event{Type: EventStart}

		scanner := newNDJSONScanner(resp.Body)
		var calls []ToolCall
		var usage *Usage
		finish := FinishComplete

		for {
			line, ok := scanner.Next()
			if !ok {
				break
			}

			var chunk ollamaChatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				return p.decorate(NewError(KindProvider, chunk.Error), url, body, req.Debug)
			}

			if chunk.Message.Content != "" {
				events <- Event{Type: EventTextDelta, Text: chunk.Message.Content}
			}
			for _, tc := range chunk.Message.ToolCalls {
				calls = append(calls, ToolCall{
					ID:        fmt.Sprintf("ollama-call-%d", len(calls)+1),
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}

			if chunk.Done {
				if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
					usage = &Usage{
						InputTokens:  chunk.PromptEvalCount,
						OutputTokens: chunk.EvalCount,
					}
				}
				if chunk.DoneReason == "length" {
					finish = FinishLength
				}
				break
			}
		}

		if err := scanner.Err(); err != nil {
			return p.decorate(WrapNetwork(err), url, body, req.Debug)
		}

		for i := range calls {
			events <- Event{Type: EventToolCall, Tool: &calls[i]}
		}
		if len(calls) > 0 {
			finish = FinishToolUse
		}
		if usage != nil {
			events <- Event{Type: EventUsage, Use: usage}
		}
		events <- Event{Type: EventEnd, Finish: finish}
		return nil
	}), nil
}

func (p *OllamaProvider) decorate(err *Error, url string, reqBody []byte, debug bool) error {
	if debug {
		err.RequestURL = url
		err.RequestBody = string(reqBody)
	}
	return err
}

func buildOllamaMessages(messages []Message) []ollamaMessage {
	var result []ollamaMessage
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			text, toolCalls := splitParts(msg.Parts)
			out := ollamaMessage{Role: string(msg.Role), Content: text}
			if msg.Role == RoleAssistant && len(toolCalls) > 0 {
				for _, call := range toolCalls {
					var tc ollamaToolCall
					tc.Function.Name = call.Name
					tc.Function.Arguments = call.Arguments
					out.ToolCalls = append(out.ToolCalls, tc)
				}
			} else if text == "" {
				continue
			}
			result = append(result, out)
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				result = append(result, ollamaMessage{
					Role:    "tool",
					Content: part.ToolResult.Content,
				})
			}
		}
	}
	return result
}
