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

func TestOllama_TextStream(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":2}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3")
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
		if e.Type == EventUsage && e.Use.InputTokens == 9 && e.Use.OutputTokens == 2 {
			sawUsage = true
		}
	}
	if !sawUsage {
		t.Error("usage missing")
	}

	var wire ollamaChatRequest
	if err := json.Unmarshal(captured, &wire); err != nil {
		t.Fatalf("request: %v", err)
	}
	if wire.Model != "llama3" || !wire.Stream {
		t.Errorf("wire = %+v", wire)
	}
}

func TestOllama_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"list_directory","arguments":{"path":"/tmp"}}}]},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3")
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
		t.Fatal("no tool call emitted")
	}
	if call.Name != "list_directory" {
		t.Errorf("name = %q", call.Name)
	}
	if call.ID == "" {
		t.Error("tool call id not generated")
	}
	// Ollama delivers arguments as an object, passed through verbatim.
	var args map[string]string
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args["path"] != "/tmp" {
		t.Errorf("arguments = %s", call.Arguments)
	}
	if ends := endEvents(events); ends[0].Finish != FinishToolUse {
		t.Errorf("finish = %q", ends[0].Finish)
	}
}

func TestOllama_ErrorLine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "nope")
	stream, _ := p.Stream(context.Background(), Request{Messages: []Message{UserText("x")}})
	events, err := drainStream(stream)
	if err != io.EOF {
		t.Fatalf("drain: %v", err)
	}
	ends := endEvents(events)
	if len(ends) != 1 || ends[0].Finish != FinishError {
		t.Fatalf("ends = %+v", ends)
	}
	e := AsError(ends[0].Err)
	if e == nil || e.Kind != KindProvider || e.Message != "model not found" {
		t.Errorf("error = %v", ends[0].Err)
	}
}

func TestBuildOllamaMessages_ToolExchange(t *testing.T) {
	messages := []Message{
		SystemText("be brief"),
		UserText("go"),
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "c1", Name: "shell", Arguments: json.RawMessage(`{"command":"ls"}`)}},
			},
		},
		ToolResultMessage("c1", "shell", "a b c"),
	}
	wire := buildOllamaMessages(messages)
	if len(wire) != 4 {
		t.Fatalf("wire = %d messages, want 4", len(wire))
	}
	if wire[0].Role != "system" || wire[1].Role != "user" {
		t.Errorf("roles = %s, %s", wire[0].Role, wire[1].Role)
	}
	if len(wire[2].ToolCalls) != 1 || wire[2].ToolCalls[0].Function.Name != "shell" {
		t.Errorf("assistant = %+v", wire[2])
	}
	if wire[3].Role != "tool" || wire[3].Content != "a b c" {
		t.Errorf("tool = %+v", wire[3])
	}
}
