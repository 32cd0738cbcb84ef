package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

// mirrors MCPClient
type mockMCPClient struct {
	CallToolFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func (m *mockMCPClient) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{}, nil
}

func (m *mockMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{}, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.CallToolFunc != nil {
		return m.CallToolFunc(ctx, request)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "ok"}},
	}, nil
}

func (m *mockMCPClient) Close() error { return nil }

func newTestRegistry(c MCPClient, toolNames ...string) *Registry {
	r := &Registry{byName: make(map[string]entry)}
	for _, name := range toolNames {
		r.register("test-server", c, mcp.Tool{
			Name:           name,
			Description:    "a test tool",
			RawInputSchema: json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`),
		})
	}
	return r
}

func TestRegistry_ToolsConversion(t *testing.T) {
	r := newTestRegistry(&mockMCPClient{}, "alpha", "beta")

	tools := r.Tools()
	require.Len(t, tools, 2)
	require.Equal(t, "alpha", tools["alpha"].Definition.Name)
	require.Equal(t, "a test tool", tools["alpha"].Definition.Description)
	require.Equal(t, []string{"alpha", "beta"}, r.Names())
}

func TestRegistry_DuplicateNameSkipped(t *testing.T) {
	first := &mockMCPClient{CallToolFunc: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "first"}}}, nil
	}}
	r := newTestRegistry(first, "dup")
	r.register("other-server", &mockMCPClient{}, mcp.Tool{Name: "dup"})

	out, err := r.execute(context.Background(), "dup", nil)
	require.NoError(t, err)
	require.Equal(t, "first", out, "first registration wins")
}

func TestRegistry_Execute(t *testing.T) {
	c := &mockMCPClient{CallToolFunc: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		require.Equal(t, "echo", req.Params.Name)
		require.Equal(t, map[string]any{"x": "hi"}, req.Params.Arguments)
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hi back"}}}, nil
	}}
	r := newTestRegistry(c, "echo")

	tool := r.Tools()["echo"]
	out, err := tool.Execute(context.Background(), map[string]any{"x": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi back", out)
}

func TestRegistry_ExecuteErrors(t *testing.T) {
	c := &mockMCPClient{CallToolFunc: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errors.New("transport down")
	}}
	r := newTestRegistry(c, "flaky")

	_, err := r.execute(context.Background(), "flaky", nil)
	require.ErrorContains(t, err, "transport down")

	_, err = r.execute(context.Background(), "unknown", nil)
	require.ErrorContains(t, err, "tool not found")
}

func TestRegistry_ExecuteToolReportedError(t *testing.T) {
	c := &mockMCPClient{CallToolFunc: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "bad input"}},
		}, nil
	}}
	r := newTestRegistry(c, "strict")

	_, err := r.execute(context.Background(), "strict", nil)
	require.ErrorContains(t, err, "bad input")
}
