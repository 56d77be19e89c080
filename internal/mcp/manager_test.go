package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sablehq/sable/internal/config"
	"github.com/sablehq/sable/internal/llm"
)

func TestSplitToolName(t *testing.T) {
	tests := []struct {
		in         string
		wantServer string
		wantTool   string
	}{
		{"files__read", "files", "read"},
		{"srv__tool__extra", "srv", "tool__extra"},
		{"noprefix", "", "noprefix"},
		{"__leading", "", "__leading"},
	}
	for _, tt := range tests {
		server, tool := SplitToolName(tt.in)
		if server != tt.wantServer || tool != tt.wantTool {
			t.Errorf("SplitToolName(%q) = %q, %q; want %q, %q", tt.in, server, tool, tt.wantServer, tt.wantTool)
		}
	}
}

func TestManager_ServerNamesAndStatus(t *testing.T) {
	servers := map[string]config.MCPServer{
		"files":  {Command: "mcp-files"},
		"remote": {URL: "https://mcp.example.com"},
	}
	m := NewManager(servers, llm.NewToolRegistry())

	names := m.ServerNames()
	if len(names) != 2 {
		t.Errorf("names = %v", names)
	}

	status, err := m.ServerStatus("files")
	if status != StatusStopped || err != nil {
		t.Errorf("unstarted status = %s, %v", status, err)
	}
	if _, err := m.ServerStatus("ghost"); err != nil {
		t.Errorf("unknown server status errored: %v", err)
	}
}

func TestManager_EnableUnknownServer(t *testing.T) {
	m := NewManager(nil, llm.NewToolRegistry())
	if err := m.Enable(context.Background(), "ghost"); err == nil {
		t.Error("enabling unknown server accepted")
	}
}

func TestManager_PrefixedRegistrationCollision(t *testing.T) {
	registry := llm.NewToolRegistry()
	// A pre-existing tool occupying the prefixed name.
	if err := registry.Register(&staticTool{name: "files__read"}); err != nil {
		t.Fatal(err)
	}

	m := NewManager(map[string]config.MCPServer{"files": {Command: "x"}}, registry)
	client := NewClient("files", config.MCPServer{Command: "x"})
	client.tools = []ToolSpec{{Name: "read", Schema: map[string]any{}}}
	client.running = true

	if err := m.installTools("files", client); err == nil {
		t.Error("collision after prefixing accepted")
	}
	// The failed install left nothing behind beyond the original.
	if registry.Len() != 1 {
		t.Errorf("registry len = %d, want 1", registry.Len())
	}
}

func TestManager_InstallAndDisableRemovesTools(t *testing.T) {
	registry := llm.NewToolRegistry()
	m := NewManager(map[string]config.MCPServer{"files": {Command: "x"}}, registry)

	client := NewClient("files", config.MCPServer{Command: "x"})
	client.tools = []ToolSpec{
		{Name: "read", Description: "read a file", Schema: map[string]any{"type": "object"}},
		{Name: "write", Description: "write a file", Schema: map[string]any{"type": "object"}},
	}
	client.running = true
	m.clients["files"] = client
	m.statuses["files"] = &ServerState{Name: "files", Status: StatusReady, Client: client}

	if err := m.installTools("files", client); err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.Get("files__read"); !ok {
		t.Error("files__read not installed")
	}
	if _, ok := registry.Get("files__write"); !ok {
		t.Error("files__write not installed")
	}
	// Discovered specs advertise the namespaced name and tagged description.
	spec, _ := registry.Get("files__read")
	if spec.Spec().Name != "files__read" || spec.Spec().Description == "read a file" {
		t.Errorf("spec = %+v", spec.Spec())
	}

	if err := m.Disable("files"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if registry.Len() != 0 {
		t.Errorf("registry len after disable = %d, want 0", registry.Len())
	}
	status, _ := m.ServerStatus("files")
	if status != StatusStopped {
		t.Errorf("status = %s", status)
	}
}

func TestManager_DisconnectRemovesOnlyThatServersTools(t *testing.T) {
	registry := llm.NewToolRegistry()
	registry.Register(&staticTool{name: "shell"}) // a built-in

	m := NewManager(map[string]config.MCPServer{
		"a": {Command: "x"},
		"b": {Command: "y"},
	}, registry)

	for _, name := range []string{"a", "b"} {
		client := NewClient(name, config.MCPServer{Command: "x"})
		client.tools = []ToolSpec{{Name: "t", Schema: map[string]any{}}}
		client.running = true
		m.clients[name] = client
		m.statuses[name] = &ServerState{Name: name, Status: StatusReady, Client: client}
		if err := m.installTools(name, client); err != nil {
			t.Fatal(err)
		}
	}

	m.handleDisconnect("a")

	if _, ok := registry.Get("a__t"); ok {
		t.Error("a__t survived disconnect")
	}
	if _, ok := registry.Get("b__t"); !ok {
		t.Error("b__t removed by a's disconnect")
	}
	if _, ok := registry.Get("shell"); !ok {
		t.Error("built-in removed by disconnect")
	}
	status, _ := m.ServerStatus("a")
	if status != StatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
}

// staticTool is a minimal llm.Tool for registry fixtures.
type staticTool struct {
	name string
}

func (t *staticTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: t.name, Schema: map[string]interface{}{"type": "object"}}
}

func (t *staticTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return "", nil
}
