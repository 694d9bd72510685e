package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig describes one MCP server connection.
type MCPConfig struct {
	// Name identifies the server; it prefixes the exposed tool names as
	// mcp_<server>_<tool>.
	Name string `json:"name" yaml:"name"`

	// Transport is "stdio" or "streamable-http". Inferred from Command/URL
	// when empty.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`

	// Command, Args and Env configure the stdio transport.
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// URL configures the streamable-http transport.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Filter limits which server tools are exposed.
	Filter []string `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// MCPToolset connects to one MCP server and exposes its tools. The
// connection is established lazily on the first Tools call.
type MCPToolset struct {
	cfg    MCPConfig
	logger *slog.Logger

	mu        sync.Mutex
	client    *client.Client
	tools     []Tool
	connected bool
}

// NewMCPToolset creates a toolset for the given server.
func NewMCPToolset(cfg MCPConfig, logger *slog.Logger) (*MCPToolset, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcp: server name is required")
	}
	if cfg.Command == "" && cfg.URL == "" {
		return nil, fmt.Errorf("mcp: either command or url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPToolset{cfg: cfg, logger: logger}, nil
}

// Tools returns the server's tools, connecting on first use.
func (t *MCPToolset) Tools(ctx context.Context) ([]Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("mcp: connect to %s: %w", t.cfg.Name, err)
		}
	}
	return t.tools, nil
}

// Close shuts down the server connection.
func (t *MCPToolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.tools = nil
	t.connected = false
	return err
}

func (t *MCPToolset) connect(ctx context.Context) error {
	var mcpClient *client.Client
	var err error
	if t.cfg.Command != "" || t.cfg.Transport == "stdio" {
		mcpClient, err = client.NewStdioMCPClient(t.cfg.Command, envSlice(t.cfg.Env), t.cfg.Args...)
	} else {
		mcpClient, err = client.NewStreamableHttpClient(t.cfg.URL)
	}
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "loom", Version: "1.0.0"}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	filterSet := allowSet(t.cfg.Filter)
	var tools []Tool
	for _, mcpTool := range listResp.Tools {
		if filterSet != nil && !filterSet[mcpTool.Name] {
			continue
		}
		schema, err := json.Marshal(mcpTool.InputSchema)
		if err != nil {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, &remoteTool{
			toolset:    t,
			remoteName: mcpTool.Name,
			name:       fmt.Sprintf("mcp_%s_%s", t.cfg.Name, mcpTool.Name),
			desc:       mcpTool.Description,
			schema:     schema,
		})
	}

	t.client = mcpClient
	t.tools = tools
	t.connected = true
	t.logger.Info("connected to MCP server",
		"server", t.cfg.Name,
		"transport", t.transportName(),
		"tools", len(tools))
	return nil
}

func (t *MCPToolset) transportName() string {
	if t.cfg.Command != "" || t.cfg.Transport == "stdio" {
		return "stdio"
	}
	return "streamable-http"
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// remoteTool adapts one remote MCP tool to the Tool interface.
type remoteTool struct {
	toolset    *MCPToolset
	remoteName string
	name       string
	desc       string
	schema     json.RawMessage
}

func (w *remoteTool) Name() string            { return w.name }
func (w *remoteTool) Description() string     { return w.desc }
func (w *remoteTool) Schema() json.RawMessage { return w.schema }

func (w *remoteTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	w.toolset.mu.Lock()
	mcpClient := w.toolset.client
	w.toolset.mu.Unlock()
	if mcpClient == nil {
		return Errorf("mcp server %s not connected", w.toolset.cfg.Name), nil
	}

	var args map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return Errorf("invalid parameters: %v", err), nil
		}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = w.remoteName
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return Errorf("mcp call failed: %v", err), nil
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	content := strings.Join(texts, "\n")
	if resp.IsError {
		if content == "" {
			content = "unknown error"
		}
		return Errorf("%s", content), nil
	}
	return &Result{Content: content}, nil
}

// RegisterMCPToolsets connects each configured server and registers its tools
// into the registry. Connection failures are logged and skipped so one bad
// server cannot take down a run.
func RegisterMCPToolsets(ctx context.Context, registry *Registry, configs []MCPConfig, logger *slog.Logger) []*MCPToolset {
	if logger == nil {
		logger = slog.Default()
	}
	var toolsets []*MCPToolset
	for _, cfg := range configs {
		toolset, err := NewMCPToolset(cfg, logger)
		if err != nil {
			logger.Warn("skipping MCP server", "server", cfg.Name, "error", err)
			continue
		}
		tools, err := toolset.Tools(ctx)
		if err != nil {
			logger.Warn("skipping MCP server", "server", cfg.Name, "error", err)
			continue
		}
		for _, tool := range tools {
			registry.Register(tool)
		}
		toolsets = append(toolsets, toolset)
	}
	return toolsets
}
