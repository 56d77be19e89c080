package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sablehq/sable/internal/config"
	"github.com/sablehq/sable/internal/llm"
)

// namePrefixSep joins the server label and remote tool name. Prefixing
// is unconditional so an MCP tool can never collide with a built-in.
const namePrefixSep = "__"

// ServerStatus represents the current state of an MCP server.
type ServerStatus string

const (
	StatusStopped  ServerStatus = "stopped"
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusFailed   ServerStatus = "failed"
)

// ServerState holds the state of a managed MCP server.
type ServerState struct {
	Name   string
	Status ServerStatus
	Error  error
	Client *Client
}

// StatusUpdate is sent when a server's status changes.
type StatusUpdate struct {
	Name   string
	Status ServerStatus
	Error  error
}

// Manager handles MCP server lifecycle and installs discovered tools
// into the engine's registry.
type Manager struct {
	servers  map[string]config.MCPServer
	registry *llm.ToolRegistry

	mu       sync.RWMutex
	clients  map[string]*Client
	statuses map[string]*ServerState
	// installed tracks which prefixed tool names each server owns, so a
	// disconnect removes exactly its tools.
	installed map[string][]string

	statusChan chan StatusUpdate
}

// NewManager creates a manager over the configured server set.
func NewManager(servers map[string]config.MCPServer, registry *llm.ToolRegistry) *Manager {
	return &Manager{
		servers:   servers,
		registry:  registry,
		clients:   make(map[string]*Client),
		statuses:  make(map[string]*ServerState),
		installed: make(map[string][]string),
	}
}

// SetStatusChannel sets a channel to receive status updates.
func (m *Manager) SetStatusChannel(ch chan StatusUpdate) {
	m.mu.Lock()
	m.statusChan = ch
	m.mu.Unlock()
}

func (m *Manager) sendStatus(name string, status ServerStatus, err error) {
	m.mu.RLock()
	ch := m.statusChan
	m.mu.RUnlock()
	if ch != nil {
		select {
		case ch <- StatusUpdate{Name: name, Status: status, Error: err}:
		default:
			// Don't block the lifecycle on a slow listener.
		}
	}
}

// ServerNames returns the configured server names.
func (m *Manager) ServerNames() []string {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}

// ServerStatus returns the current status of a server.
func (m *Manager) ServerStatus(name string) (ServerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.statuses[name]
	if !ok {
		return StatusStopped, nil
	}
	return state.Status, state.Error
}

// EnableAll starts every configured server in the background.
func (m *Manager) EnableAll(ctx context.Context) {
	for name := range m.servers {
		_ = m.Enable(ctx, name)
	}
}

// Enable starts an MCP server in the background (non-blocking). On
// success the server's tools are installed into the registry under the
// server prefix.
func (m *Manager) Enable(ctx context.Context, name string) error {
	serverCfg, ok := m.servers[name]
	if !ok {
		return fmt.Errorf("unknown MCP server: %s", name)
	}

	m.mu.Lock()
	if state, ok := m.statuses[name]; ok {
		if state.Status == StatusStarting || state.Status == StatusReady {
			m.mu.Unlock()
			return nil
		}
	}

	client := NewClient(name, serverCfg)
	client.SetDisconnectHandler(func() {
		m.handleDisconnect(name)
	})
	m.clients[name] = client
	m.statuses[name] = &ServerState{
		Name:   name,
		Status: StatusStarting,
		Client: client,
	}
	m.mu.Unlock()

	m.sendStatus(name, StatusStarting, nil)

	go func() {
		err := client.Start(ctx)
		if err == nil {
			err = m.installTools(name, client)
		}

		m.mu.Lock()
		state := m.statuses[name]
		if err != nil {
			state.Status = StatusFailed
			state.Error = err
		} else {
			state.Status = StatusReady
			state.Error = nil
		}
		m.mu.Unlock()

		m.sendStatus(name, state.Status, err)
	}()

	return nil
}

// installTools wraps each discovered tool and registers it. A name that
// still collides after prefixing (a "__" in the server label) is
// rejected rather than silently replacing the existing tool.
func (m *Manager) installTools(name string, client *Client) error {
	var names []string
	for _, spec := range client.Tools() {
		prefixed := name + namePrefixSep + spec.Name
		tool := &remoteTool{
			client: client,
			name:   spec.Name,
			spec: llm.ToolSpec{
				Name:        prefixed,
				Description: fmt.Sprintf("[%s] %s", name, spec.Description),
				Schema:      spec.Schema,
			},
		}
		if err := m.registry.Register(tool); err != nil {
			m.removeTools(names)
			return fmt.Errorf("register %s: %w", prefixed, err)
		}
		names = append(names, prefixed)
	}
	m.mu.Lock()
	m.installed[name] = names
	m.mu.Unlock()
	return nil
}

func (m *Manager) removeTools(names []string) {
	for _, n := range names {
		m.registry.Unregister(n)
	}
}

// handleDisconnect drops a dead server's tools and marks it failed; a
// later Enable rediscovers and reinstalls them.
func (m *Manager) handleDisconnect(name string) {
	m.mu.Lock()
	names := m.installed[name]
	delete(m.installed, name)
	delete(m.clients, name)
	if state, ok := m.statuses[name]; ok {
		state.Status = StatusFailed
		state.Error = fmt.Errorf("connection lost")
		state.Client = nil
	}
	m.mu.Unlock()

	m.removeTools(names)
	m.sendStatus(name, StatusFailed, fmt.Errorf("connection lost"))
}

// Disable stops an MCP server and removes its tools.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	names := m.installed[name]
	delete(m.installed, name)
	delete(m.clients, name)
	if state, ok := m.statuses[name]; ok {
		state.Status = StatusStopped
		state.Error = nil
		state.Client = nil
	}
	m.mu.Unlock()

	m.removeTools(names)
	m.sendStatus(name, StatusStopped, nil)

	if !ok {
		return nil
	}
	return client.Stop()
}

// Restart stops and restarts an MCP server.
func (m *Manager) Restart(ctx context.Context, name string) error {
	if err := m.Disable(name); err != nil {
		return err
	}
	return m.Enable(ctx, name)
}

// StopAll stops all running MCP servers and removes their tools.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	var names []string
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	for _, installed := range m.installed {
		names = append(names, installed...)
	}
	m.clients = make(map[string]*Client)
	m.statuses = make(map[string]*ServerState)
	m.installed = make(map[string][]string)
	m.mu.Unlock()

	m.removeTools(names)
	for _, c := range clients {
		c.Stop()
	}
}

// GetAllStates returns the current state of all servers.
func (m *Manager) GetAllStates() []ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]ServerState, 0, len(m.statuses))
	for _, state := range m.statuses {
		states = append(states, ServerState{
			Name:   state.Name,
			Status: state.Status,
			Error:  state.Error,
		})
	}
	return states
}

// SplitToolName extracts the server label and remote tool name from a
// prefixed name.
func SplitToolName(fullName string) (serverName, toolName string) {
	if idx := strings.Index(fullName, namePrefixSep); idx > 0 {
		return fullName[:idx], fullName[idx+len(namePrefixSep):]
	}
	return "", fullName
}

// remoteTool adapts one discovered MCP tool to the llm.Tool contract.
// Failures come back as errors for the dispatcher to wrap into an
// error-payload tool result; they never abort the agent loop.
type remoteTool struct {
	client *Client
	name   string // remote (unprefixed) name
	spec   llm.ToolSpec
}

func (t *remoteTool) Spec() llm.ToolSpec {
	return t.spec
}

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.client.CallTool(ctx, t.name, args)
}
