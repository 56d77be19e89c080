package mcp

import (
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sablehq/sable/internal/config"
)

func TestNewClient_Timeout(t *testing.T) {
	c := NewClient("files", config.MCPServer{Command: "x"})
	if c.callTimeout != defaultCallTimeout {
		t.Errorf("default timeout = %v", c.callTimeout)
	}
	c = NewClient("files", config.MCPServer{Command: "x", Timeout: 5})
	if c.callTimeout != 5*time.Second {
		t.Errorf("configured timeout = %v", c.callTimeout)
	}
}

func TestClient_CallToolNotRunning(t *testing.T) {
	c := NewClient("files", config.MCPServer{Command: "x"})
	if _, err := c.CallTool(t.Context(), "read", nil); err == nil {
		t.Error("CallTool on stopped client succeeded")
	}
}

func TestFormatContent(t *testing.T) {
	got := formatContent([]mcp.Content{
		&mcp.TextContent{Text: "hello "},
		&mcp.TextContent{Text: "world"},
	})
	if got != "hello world" {
		t.Errorf("formatContent = %q", got)
	}
	if got := formatContent(nil); got != "" {
		t.Errorf("empty content = %q", got)
	}
}

func TestClient_StartInvalidConfig(t *testing.T) {
	c := NewClient("bad", config.MCPServer{})
	if err := c.Start(t.Context()); err == nil {
		t.Error("Start with neither url nor command succeeded")
	}
	if c.IsRunning() {
		t.Error("client running after failed start")
	}
}
