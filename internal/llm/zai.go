package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
)

const zaiDefaultBaseURL = "https://api.z.ai/api/coding/paas/v4"

// ZAIProvider implements Provider for the Z.AI coding-plan endpoint.
// The dialect is OpenAI-shaped with two quirks: the endpoint rejects
// role "system" (the system prompt travels as an assistant message),
// and temperature must carry at most one decimal place.
type ZAIProvider struct {
	baseURL string
	apiKey  string
	model   string
}

func NewZAIProvider(baseURL, apiKey, model string) *ZAIProvider {
	if baseURL == "" {
		baseURL = zaiDefaultBaseURL
	}
	return &ZAIProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

func (p *ZAIProvider) Name() string {
	return fmt.Sprintf("Z.AI (%s)", p.model)
}

func (p *ZAIProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Streaming: true}
}

// roundTemperature clamps a temperature to one decimal place. The
// endpoint has been observed to reject more precision.
func roundTemperature(t float64) float64 {
	return math.Round(t*10) / 10
}

func (p *ZAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		messages := buildZAIMessages(req.Messages)
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
			v := roundTemperature(req.Temperature)
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

		url := p.baseURL + "/chat/completions"
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

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

		scanner := newSSEScanner(resp.Body)
		toolState := newToolCallState()
		var lastUsage *Usage
		finish := FinishComplete

		for {
			frame, ok := scanner.Next()
			if !ok || frame.Done {
				break
			}

			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(frame.Data), &chatResp); err != nil {
				continue
			}
			if chatResp.Error != nil {
				return p.decorate(NewError(KindProvider, chatResp.Error.Message), url, body, req.Debug)
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
			return p.decorate(WrapNetwork(err), url, body, req.Debug)
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

func (p *ZAIProvider) decorate(err *Error, url string, reqBody []byte, debug bool) error {
	if debug {
		err.RequestURL = url
		err.RequestBody = string(reqBody)
	}
	return err
}

// buildZAIMessages is buildCompatMessages with the system-role rewrite:
// the endpoint rejects role "system", so system prompts are sent with
// role "assistant" ahead of the history.
func buildZAIMessages(messages []Message) []oaiMessage {
	out := buildCompatMessages(messages)
	for i := range out {
		if out[i].Role == "system" {
			out[i].Role = "assistant"
		}
	}
	return out
}
