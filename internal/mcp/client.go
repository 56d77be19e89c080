// Package mcp connects sable to remote tool servers over the Model
// Context Protocol and exposes their tools through the engine registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sablehq/sable/internal/config"
)

// defaultCallTimeout bounds a single tools/call round trip.
const defaultCallTimeout = 30 * time.Second

// pingInterval is the idle heartbeat cadence.
const pingInterval = 60 * time.Second

// ToolSpec describes a tool available from an MCP server.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Client wraps one MCP server connection: handshake, discovery, calls,
// heartbeat. A failed or slow server never takes the agent loop down
// with it; every failure is scoped to this connection.
type Client struct {
	name        string
	config      config.MCPServer
	callTimeout time.Duration

	mu       sync.RWMutex
	client   *mcp.Client
	session  *mcp.ClientSession
	tools    []ToolSpec
	running  bool
	stopPing chan struct{}

	// onDisconnect is invoked once when the heartbeat detects a dead
	// connection.
	onDisconnect func()
}

// NewClient creates a new MCP client for the given server configuration.
func NewClient(name string, cfg config.MCPServer) *Client {
	timeout := defaultCallTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &Client{
		name:        name,
		config:      cfg,
		callTimeout: timeout,
	}
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.name
}

// SetDisconnectHandler installs the callback fired when the connection
// drops. Must be called before Start.
func (c *Client) SetDisconnectHandler(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// headerRoundTripper injects configured auth headers into every HTTP
// request to the server.
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func (c *Client) transport(ctx context.Context) (mcp.Transport, error) {
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", c.name, err)
	}
	if c.config.URL != "" {
		httpClient := &http.Client{}
		if len(c.config.Headers) > 0 {
			httpClient.Transport = &headerRoundTripper{
				headers: c.config.Headers,
				base:    http.DefaultTransport,
			}
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   c.config.URL,
			HTTPClient: httpClient,
		}, nil
	}

	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// Start connects to the MCP server: initialize handshake (protocol
// version negotiation happens inside the SDK; a mismatch fails the
// connect), then tools/list discovery. Fatal for this server only.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.client = mcp.NewClient(&mcp.Implementation{
		Name:    "sable",
		Version: "1.0.0",
	}, nil)

	transport, err := c.transport(ctx)
	if err != nil {
		return err
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}
	c.session = session

	if err := c.refreshToolsLocked(ctx); err != nil {
		c.session.Close()
		c.session = nil
		return fmt.Errorf("list tools from %s: %w", c.name, err)
	}

	c.running = true
	c.stopPing = make(chan struct{})
	go c.pingLoop(c.stopPing)
	return nil
}

// pingLoop sends periodic pings; on failure the connection is torn down
// and the disconnect handler fires so the manager can drop our tools.
func (c *Client) pingLoop(stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.RLock()
			session := c.session
			onDisconnect := c.onDisconnect
			c.mu.RUnlock()
			if session == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
			err := session.Ping(ctx, nil)
			cancel()
			if err != nil {
				c.Stop()
				if onDisconnect != nil {
					onDisconnect()
				}
				return
			}
		}
	}
}

// Stop closes the MCP server connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	c.running = false
	c.tools = nil
	return err
}

// IsRunning returns whether the client is connected.
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Tools returns the available tools from this server.
func (c *Client) Tools() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolSpec, len(c.tools))
	copy(out, c.tools)
	return out
}

func (c *Client) refreshToolsLocked(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	c.tools = make([]ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		// The remote schema is copied verbatim into the advertisement.
		schema := make(map[string]any)
		if t.InputSchema != nil {
			if data, err := json.Marshal(t.InputSchema); err == nil {
				_ = json.Unmarshal(data, &schema)
			}
		}
		c.tools = append(c.tools, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return nil
}

// CallTool invokes a tool on the MCP server under the per-call timeout.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	session := c.session
	running := c.running
	c.mu.RUnlock()

	if !running || session == nil {
		return "", fmt.Errorf("MCP server %s is not running", c.name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	if result.IsError {
		return "", fmt.Errorf("tool %s returned error: %s", name, formatContent(result.Content))
	}

	return formatContent(result.Content), nil
}

// formatContent converts MCP content blocks to a string.
func formatContent(content []mcp.Content) string {
	var out string
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			out += v.Text
		default:
			if data, err := json.Marshal(v); err == nil {
				out += string(data)
			}
		}
	}
	return out
}
