package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Config lists the MCP servers a gateway deployment is allowed to reach.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`
}

// Manager owns every configured server's client and satisfies
// tools.MCPBackend, so a single Manager can be wired into every
// session's Context.MCP field.
type Manager struct {
	config  *Config
	logger  *slog.Logger
	mu      sync.RWMutex
	clients map[string]*client
}

func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcpbridge"),
		clients: make(map[string]*client),
	}
}

// Start connects every server configured with auto_start, logging and
// continuing past individual failures so one broken server config
// doesn't stop the others from coming up.
func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		return nil
	}
	for _, serverCfg := range m.config.Servers {
		if !serverCfg.AutoStart {
			continue
		}
		if err := m.Connect(ctx, serverCfg.ID); err != nil {
			m.logger.Error("failed to connect to MCP server", "server", serverCfg.ID, "error", err)
		}
	}
	return nil
}

// Stop closes every connected client.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Error("failed to close MCP client", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

// Connect establishes (or no-ops on an existing) connection to a
// configured server by ID.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	var serverCfg *ServerConfig
	if m.config != nil {
		for _, cfg := range m.config.Servers {
			if cfg.ID == serverID {
				serverCfg = cfg
				break
			}
		}
	}
	if serverCfg == nil {
		return fmt.Errorf("server %q not found in config", serverID)
	}
	if err := serverCfg.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	_, exists := m.clients[serverID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	c := newClient(serverCfg, m.logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[serverID] = c
	m.mu.Unlock()
	return nil
}

// Disconnect closes and forgets one server's client.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, exists := m.clients[serverID]
	if !exists {
		return nil
	}
	if err := c.Close(); err != nil {
		return err
	}
	delete(m.clients, serverID)
	return nil
}

func (m *Manager) clientFor(serverID string) (*client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, exists := m.clients[serverID]
	return c, exists
}

// ListTools satisfies tools.MCPBackend, auto-connecting a configured
// but not-yet-started server on first use.
func (m *Manager) ListTools(ctx context.Context, server string) ([]models.ToolDefinition, error) {
	if _, exists := m.clientFor(server); !exists {
		if err := m.Connect(ctx, server); err != nil {
			return nil, err
		}
	}
	c, exists := m.clientFor(server)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", server)
	}

	tools := c.Tools()
	defs := make([]models.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		defs = append(defs, models.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// CallTool satisfies tools.MCPBackend: it calls the named tool on the
// named server and flattens the MCP content blocks into plain text.
func (m *Manager) CallTool(ctx context.Context, server, name string, arguments json.RawMessage) (string, error) {
	if _, exists := m.clientFor(server); !exists {
		if err := m.Connect(ctx, server); err != nil {
			return "", err
		}
	}
	c, exists := m.clientFor(server)
	if !exists {
		return "", fmt.Errorf("server %q not connected", server)
	}

	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("arguments are not valid JSON: %w", err)
		}
	}

	result, err := c.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	text, isError := flattenToolResult(result)
	if isError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// ReadResource reads a named resource from a connected server.
func (m *Manager) ReadResource(ctx context.Context, server, uri string) ([]*ResourceContent, error) {
	c, exists := m.clientFor(server)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", server)
	}
	return c.ReadResource(ctx, uri)
}

// GetPrompt fetches a named prompt from a connected server.
func (m *Manager) GetPrompt(ctx context.Context, server, name string, arguments map[string]string) (*GetPromptResult, error) {
	c, exists := m.clientFor(server)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", server)
	}
	return c.GetPrompt(ctx, name, arguments)
}

// Status reports connection state for every configured server.
type Status struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
}

func (m *Manager) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var statuses []Status
	if m.config == nil {
		return statuses
	}
	for _, cfg := range m.config.Servers {
		st := Status{ID: cfg.ID, Name: cfg.Name}
		if c, exists := m.clients[cfg.ID]; exists {
			st.Connected = c.Connected()
			st.Server = c.ServerInfo()
			st.Tools = len(c.Tools())
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func flattenToolResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}
