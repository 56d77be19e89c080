package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// sseHandler serves a fixed list of SSE data payloads then [DONE].
func sseHandler(t *testing.T, capture *[]byte, payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if capture != nil {
			*capture = body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestOpenAICompat_TextStream(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, nil,
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":2}}`,
	))
	defer server.Close()

	p := NewOpenAICompatProvider(server.URL, "key", "test-model", "Test")
	stream, err := p.Stream(context.Background(), Request{Messages: []Message{UserText("hi")}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events, err := drainStream(stream)
	if err != io.EOF {
		t.Fatalf("drain: %v", err)
	}

	if got := collectText(events); got != "Hello" {
		t.Errorf("text = %q", got)
	}
	ends := endEvents(events)
	if len(ends) != 1 || ends[0].Finish != FinishComplete {
		t.Fatalf("ends = %+v", ends)
	}

	var sawUsage bool
	for _, e := range events {
		if e.Type == EventUsage && e.Use.InputTokens == 7 && e.Use.OutputTokens == 2 {
			sawUsage = true
		}
	}
	if !sawUsage {
		t.Error("usage event missing")
	}
}

func TestOpenAICompat_ToolCallFragments(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, nil,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"list_directory","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"pa"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"th\":\"/tmp\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	))
	defer server.Close()

	p := NewOpenAICompatProvider(server.URL, "key", "test-model", "Test")
	stream, _ := p.Stream(context.Background(), Request{Messages: []Message{UserText("ls /tmp")}})
	events, err := drainStream(stream)
	if err != io.EOF {
		t.Fatalf("drain: %v", err)
	}

	var call *ToolCall
	for _, e := range events {
		if e.Type == EventToolCall {
			call = e.Tool
		}
	}
	if call == nil {
		t.Fatal("no completed tool call emitted")
	}
	if call.ID != "call_1" || call.Name != "list_directory" {
		t.Errorf("call = %+v", call)
	}
	if string(call.Arguments) != `{"path":"/tmp"}` {
		t.Errorf("arguments = %s", call.Arguments)
	}

	ends := endEvents(events)
	if len(ends) != 1 || ends[0].Finish != FinishToolUse {
		t.Errorf("ends = %+v", ends)
	}
}

func TestOpenAICompat_MalformedEventSkipped(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, nil,
		`{"choices":[{"delta":{"content":"a"}}]}`,
		`this is not json`,
		`{"choices":[{"delta":{"content":"b"}}]}`,
	))
	defer server.Close()

	p := NewOpenAICompatProvider(server.URL, "key", "m", "Test")
	stream, _ := p.Stream(context.Background(), Request{Messages: []Message{UserText("x")}})
	events, err := drainStream(stream)
	if err != io.EOF {
		t.Fatalf("drain: %v", err)
	}
	if got := collectText(events); got != "ab" {
		t.Errorf("text = %q, want malformed event skipped", got)
	}
	if ends := endEvents(events); len(ends) != 1 || ends[0].Finish != FinishComplete {
		t.Errorf("ends = %+v", ends)
	}
}

func TestOpenAICompat_HTTPErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	p := NewOpenAICompatProvider(server.URL, "key", "m", "Test")
	stream, _ := p.Stream(context.Background(), Request{Messages: []Message{UserText("x")}, Debug: true})
	events, err := drainStream(stream)
	if err != io.EOF {
		t.Fatalf("drain: %v", err)
	}
	ends := endEvents(events)
	if len(ends) != 1 || ends[0].Finish != FinishError {
		t.Fatalf("ends = %+v", ends)
	}
	e := AsError(ends[0].Err)
	if e == nil || e.StatusCode != 429 || e.Message != "rate limited" {
		t.Errorf("error = %+v", e)
	}
	if e.RequestURL == "" || e.RequestBody == "" {
		t.Error("debug mode did not attach request URL/body")
	}
}

func TestOpenAICompat_RequestShape(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(sseHandler(t, &captured,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
	))
	defer server.Close()

	p := NewOpenAICompatProvider(server.URL, "key", "test-model", "Test")
	req := Request{
		Messages: []Message{
			SystemText("be brief"),
			UserText("hello"),
		},
		Tools: []ToolSpec{{
			Name:        "shell",
			Description: "run a command",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"command": map[string]interface{}{"type": "string"}},
				"required":   []string{"command"},
			},
		}},
		Temperature:     0.7,
		MaxOutputTokens: 256,
	}
	stream, _ := p.Stream(context.Background(), req)
	if _, err := drainStream(stream); err != io.EOF {
		t.Fatalf("drain: %v", err)
	}

	var wire oaiChatRequest
	if err := json.Unmarshal(captured, &wire); err != nil {
		t.Fatalf("request body: %v\n%s", err, captured)
	}
	if wire.Model != "test-model" || !wire.Stream {
		t.Errorf("model/stream = %s/%v", wire.Model, wire.Stream)
	}
	if len(wire.Messages) != 2 || wire.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", wire.Messages)
	}
	if len(wire.Tools) != 1 || wire.Tools[0].Type != "function" || wire.Tools[0].Function.Name != "shell" {
		t.Errorf("tools = %+v", wire.Tools)
	}
	if wire.ToolChoice != "auto" {
		t.Errorf("tool_choice = %v", wire.ToolChoice)
	}
	if wire.Temperature == nil || *wire.Temperature != 0.7 {
		t.Errorf("temperature = %v", wire.Temperature)
	}
	if wire.MaxTokens == nil || *wire.MaxTokens != 256 {
		t.Errorf("max_tokens = %v", wire.MaxTokens)
	}
}

func TestOpenAICompat_RequestDeterministic(t *testing.T) {
	var bodies [][]byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAICompatProvider(server.URL, "key", "m", "Test")
	req := Request{
		Messages: []Message{SystemText("s"), UserText("u")},
		Tools: []ToolSpec{{
			Name:   "a",
			Schema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		}},
	}
	for i := 0; i < 3; i++ {
		stream, _ := p.Stream(context.Background(), req)
		if _, err := drainStream(stream); err != io.EOF {
			t.Fatalf("drain: %v", err)
		}
	}
	if len(bodies) != 3 {
		t.Fatalf("saw %d requests", len(bodies))
	}
	for i := 1; i < 3; i++ {
		if string(bodies[i]) != string(bodies[0]) {
			t.Errorf("request %d differs from request 0:\n%s\n%s", i, bodies[i], bodies[0])
		}
	}
}

func TestOpenAICompat_ToolResultRoundTrip(t *testing.T) {
	messages := []Message{
		UserText("go"),
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartText, Text: ""},
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "c1", Name: "shell", Arguments: json.RawMessage(`{"command":"ls"}`)}},
			},
		},
		ToolResultMessage("c1", "shell", `{"stdout":"a\n"}`),
	}

	wire := buildCompatMessages(messages)
	if len(wire) != 3 {
		t.Fatalf("wire messages = %d, want 3", len(wire))
	}
	if len(wire[1].ToolCalls) != 1 || wire[1].ToolCalls[0].ID != "c1" {
		t.Errorf("assistant tool calls = %+v", wire[1].ToolCalls)
	}
	if wire[2].Role != "tool" || wire[2].ToolCallID != "c1" {
		t.Errorf("tool message = %+v", wire[2])
	}
}

func TestOpenRouterProvider_Headers(t *testing.T) {
	var gotReferer, gotTitle, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenRouterProvider("or-key", "model", "https://example.com/app", "my-app")
	p.baseURL = server.URL
	stream, _ := p.Stream(context.Background(), Request{Messages: []Message{UserText("x")}})
	if _, err := drainStream(stream); err != io.EOF {
		t.Fatalf("drain: %v", err)
	}
	if gotReferer != "https://example.com/app" || gotTitle != "my-app" {
		t.Errorf("headers = %q, %q", gotReferer, gotTitle)
	}
	if gotAuth != "Bearer or-key" {
		t.Errorf("auth = %q", gotAuth)
	}
}
