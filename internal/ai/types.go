package ai

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Message is one prior turn half supplied as model context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a provider-requested invocation, normalized to a stable shape
// regardless of the provider's internal field naming.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one executed tool call.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Tool pairs a definition advertised to the model with its executor.
type Tool struct {
	Definition openai.FunctionDefinition
	Execute    func(ctx context.Context, args map[string]any) (string, error)
}

// Result is the reconciled outcome of one SendMessage exchange.
type Result struct {
	Content      string       `json:"content"`
	FinishReason string       `json:"finishReason"`
	Usage        openai.Usage `json:"usage"`
	ToolCalls    []ToolCall   `json:"toolCalls"`
	ToolResults  []ToolResult `json:"toolResults"`
}

// SendOptions tune one SendMessage call. All fields are optional.
type SendOptions struct {
	// OnChunk receives each text delta synchronously in arrival order.
	OnChunk func(text string)
	// Tools, when non-empty, are offered to the model by name.
	Tools map[string]Tool
	// OnToolCall receives each normalized tool call in provider order.
	OnToolCall func(call ToolCall)
}
