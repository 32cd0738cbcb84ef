// Package tools sources model tools from configured MCP servers and exposes
// them in the shape the provider adapter consumes. Servers that fail to
// start are skipped; a chat server with no tools is still a chat server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"

	"github.com/botbyte/botbyte-go/internal/ai"
	"github.com/botbyte/botbyte-go/internal/config"
	"github.com/botbyte/botbyte-go/internal/logger"
)

const emptyObjectSchema = `{"type": "object", "properties": {}}`

// MCPClient is the subset of the mcp-go client used by the registry.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type entry struct {
	client MCPClient
	def    openai.FunctionDefinition
}

// Registry aggregates tools across MCP servers. First registration wins on
// name collisions.
type Registry struct {
	clients []MCPClient
	byName  map[string]entry
	order   []string
}

// NewRegistry connects to each configured MCP server, initializes it and
// collects its tools. Failures are logged and the server skipped.
func NewRegistry(ctx context.Context, servers []config.MCPServerConfig) *Registry {
	r := &Registry{byName: make(map[string]entry)}

	for _, serverCfg := range servers {
		mcpC, err := dial(serverCfg)
		if err != nil {
			logger.L.Error("failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				logger.L.Error("failed to start MCP client transport", "name", serverCfg.Name, "error", err)
				closeQuietly(mcpC, serverCfg.Name)
				continue
			}
		}

		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{Capabilities: mcp.ClientCapabilities{}},
		}
		if _, err := mcpC.Initialize(ctx, initReq); err != nil {
			logger.L.Error("failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			closeQuietly(mcpC, serverCfg.Name)
			continue
		}
		r.clients = append(r.clients, mcpC)

		serverTools, err := mcpC.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.L.Warn("failed to list tools for MCP client", "name", serverCfg.Name, "error", err)
			continue
		}
		for _, mcpTool := range serverTools.Tools {
			r.register(serverCfg.Name, mcpC, mcpTool)
		}
	}

	if len(r.order) > 0 {
		logger.L.Info("tool registry ready", "tools", len(r.order), "servers", len(r.clients))
	}
	return r
}

func closeQuietly(c MCPClient, name string) {
	if err := c.Close(); err != nil {
		logger.L.Warn("MCP client close error", "name", name, "error", err)
	}
}

func dial(serverCfg config.MCPServerConfig) (*client.Client, error) {
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(serverCfg.Headers))
		}
		return client.NewSSEMCPClient(serverCfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		return client.NewStreamableHttpClient(serverCfg.URL, opts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	default:
		return nil, fmt.Errorf("unsupported MCP server type %q", serverCfg.Type)
	}
}

func (r *Registry) register(serverName string, c MCPClient, mcpTool mcp.Tool) {
	if _, exists := r.byName[mcpTool.Name]; exists {
		logger.L.Warn("tool already registered from another server, skipping", "tool", mcpTool.Name, "server", serverName)
		return
	}

	params := schemaFor(mcpTool)
	r.byName[mcpTool.Name] = entry{
		client: c,
		def: openai.FunctionDefinition{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			Parameters:  params,
		},
	}
	r.order = append(r.order, mcpTool.Name)
	logger.L.Info("registered tool from MCP server", "tool", mcpTool.Name, "server", serverName)
}

func schemaFor(mcpTool mcp.Tool) json.RawMessage {
	if len(mcpTool.RawInputSchema) > 0 && string(mcpTool.RawInputSchema) != "null" {
		return mcpTool.RawInputSchema
	}
	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil || string(schemaBytes) == "{}" || string(schemaBytes) == "null" {
		return json.RawMessage(emptyObjectSchema)
	}
	return json.RawMessage(schemaBytes)
}

// Tools adapts the registry into the adapter's per-call tool map.
func (r *Registry) Tools() map[string]ai.Tool {
	if len(r.byName) == 0 {
		return nil
	}
	out := make(map[string]ai.Tool, len(r.byName))
	for name, e := range r.byName {
		name := name
		out[name] = ai.Tool{
			Definition: e.def,
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return r.execute(ctx, name, args)
			},
		}
	}
	return out
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) execute(ctx context.Context, name string, args map[string]any) (string, error) {
	e, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}

	result, err := e.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	text := textContent(result)
	if result.IsError {
		if text == "" {
			text = "tool execution resulted in an error without specific text"
		}
		return "", fmt.Errorf("tool %s: %s", name, text)
	}
	if text != "" {
		return text, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("format result of tool %s: %w", name, err)
	}
	return string(raw), nil
}

func textContent(result *mcp.CallToolResult) string {
	for _, item := range result.Content {
		if tc, ok := item.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// Close shuts down all connected MCP clients.
func (r *Registry) Close() {
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			logger.L.Warn("MCP client close error", "error", err)
		}
	}
}
