package llm

import (
	"encoding/json"
	"testing"
)

func TestNewAnthropicProvider_RequiresKey(t *testing.T) {
	_, err := NewAnthropicProvider("", "", "claude-sonnet-4-5")
	e := AsError(err)
	if e == nil || e.Kind != KindAuthMissing {
		t.Fatalf("error = %v, want auth_missing", err)
	}
}

func TestBuildAnthropicMessages(t *testing.T) {
	messages := []Message{
		SystemText("be helpful"),
		SystemText("be brief"),
		UserText("hello"),
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartText, Text: "let me check"},
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "t1", Name: "shell", Arguments: json.RawMessage(`{"command":"ls"}`)}},
			},
		},
		ToolResultMessage("t1", "shell", "a b"),
	}

	system, out := buildAnthropicMessages(messages)
	if system != "be helpful\n\nbe brief" {
		t.Errorf("system = %q", system)
	}
	// user, assistant, tool-result-as-user
	if len(out) != 3 {
		t.Fatalf("got %d wire messages, want 3", len(out))
	}
	if string(out[0].Role) != "user" || string(out[1].Role) != "assistant" || string(out[2].Role) != "user" {
		t.Errorf("roles = %s, %s, %s", out[0].Role, out[1].Role, out[2].Role)
	}
}

func TestSchemaRequired(t *testing.T) {
	got := schemaRequired(map[string]interface{}{
		"required": []interface{}{"a", "b"},
	})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("required = %v", got)
	}
	if got := schemaRequired(map[string]interface{}{"required": []string{"x"}}); len(got) != 1 {
		t.Errorf("required []string = %v", got)
	}
	if got := schemaRequired(map[string]interface{}{}); got != nil {
		t.Errorf("absent required = %v", got)
	}
}

func TestToolCallAccumulator(t *testing.T) {
	acc := newToolCallAccumulator()

	acc.Start(0, ToolCall{ID: "c1", Name: "read_file"})
	acc.Append(0, `{"path":`)
	acc.Append(0, `"/tmp"}`)

	call, ok := acc.Finish(0)
	if !ok {
		t.Fatal("Finish returned no call")
	}
	if call.ID != "c1" || string(call.Arguments) != `{"path":"/tmp"}` {
		t.Errorf("call = %+v", call)
	}

	// Finish is consuming.
	if _, ok := acc.Finish(0); ok {
		t.Error("second Finish returned a call")
	}
}

func TestToolCallAccumulator_FallbackAndEmpty(t *testing.T) {
	acc := newToolCallAccumulator()

	// Whole input on the start block, no deltas.
	acc.Start(1, ToolCall{ID: "c2", Name: "x", Arguments: json.RawMessage(`{"a":1}`)})
	call, ok := acc.Finish(1)
	if !ok || string(call.Arguments) != `{"a":1}` {
		t.Errorf("fallback call = %+v, ok=%v", call, ok)
	}

	// Nothing at all: empty object, not null.
	acc.Start(2, ToolCall{ID: "c3", Name: "y"})
	call, _ = acc.Finish(2)
	if string(call.Arguments) != `{}` {
		t.Errorf("empty arguments = %s", call.Arguments)
	}

	// Unstarted index yields nothing (text blocks share the counter).
	if _, ok := acc.Finish(9); ok {
		t.Error("unstarted index produced a call")
	}
}

func TestToolInputToRaw(t *testing.T) {
	if got := toolInputToRaw(json.RawMessage(`{"a":1}`)); string(got) != `{"a":1}` {
		t.Errorf("raw = %s", got)
	}
	if got := toolInputToRaw(map[string]int{"a": 1}); string(got) != `{"a":1}` {
		t.Errorf("marshalled = %s", got)
	}
}
