// Package ai wraps the model provider behind two operations: SendMessage
// (streaming, with an optional bounded tool loop) and GenerateStructured
// (schema-constrained one-shot). The rest of the system never touches
// provider types directly.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/botbyte/botbyte-go/internal/config"
	"github.com/botbyte/botbyte-go/internal/logger"
)

// DefaultMaxSteps bounds the provider-side tool-execution loop within a
// single SendMessage call.
const DefaultMaxSteps = 5

// Generation defaults applied when config leaves them unset.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
	defaultModel       = "gpt-4o-mini"
)

// ErrMaxStepsExceeded is returned when the model keeps requesting tools past
// the step cap.
var ErrMaxStepsExceeded = errors.New("ai: exceeded maximum tool steps")

// Service is the long-lived provider adapter. It is constructed once and
// shared across requests; each call is stateless.
type Service struct {
	client      Client
	model       string
	maxSteps    int
	temperature float32
	maxTokens   int
}

// NewService builds the adapter on top of a provider client.
func NewService(client Client, cfg config.LLMConfig) *Service {
	s := &Service{
		client:      client,
		model:       cfg.Model,
		maxSteps:    cfg.MaxSteps,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	if s.model == "" {
		s.model = defaultModel
	}
	if s.maxSteps <= 0 {
		s.maxSteps = DefaultMaxSteps
	}
	if s.temperature == 0 {
		s.temperature = defaultTemperature
	}
	if s.maxTokens <= 0 {
		s.maxTokens = defaultMaxTokens
	}
	return s
}

// SendMessage streams one exchange against the provider. Every text delta is
// forwarded to opts.OnChunk in arrival order and accumulated into the final
// content. When the model requests tools, they are executed and the loop
// re-enters, up to the step cap. The adapter never retries; any provider
// failure is logged once and propagated to the caller.
func (s *Service) SendMessage(ctx context.Context, history []Message, opts SendOptions) (*Result, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	defs := toolDefinitions(opts.Tools)
	res := &Result{}
	var full strings.Builder

	for step := 0; step < s.maxSteps; step++ {
		req := openai.ChatCompletionRequest{
			Model:       s.model,
			Messages:    msgs,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
			Tools:       defs,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		}

		stepCalls, finishReason, err := s.streamStep(ctx, req, &full, res, opts.OnChunk)
		if err != nil {
			logger.L.Error("provider stream failed", "error", err, "step", step)
			return nil, err
		}

		if len(stepCalls) == 0 {
			res.FinishReason = string(finishReason)
			res.Content = full.String()
			return res, nil
		}

		// The model requested tools: record the assistant turn, run each
		// call in provider order, and feed the results back in.
		msgs = append(msgs, assistantToolMessage(stepCalls))
		for _, raw := range stepCalls {
			call := normalizeToolCall(raw)
			res.ToolCalls = append(res.ToolCalls, call)
			if opts.OnToolCall != nil {
				opts.OnToolCall(call)
			}

			output := s.executeTool(ctx, opts.Tools, call)
			res.ToolResults = append(res.ToolResults, ToolResult{ID: call.ID, Name: call.Name, Content: output})
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	logger.L.Warn("tool loop hit step cap", "maxSteps", s.maxSteps)
	return nil, ErrMaxStepsExceeded
}

// streamStep drains one provider stream, forwarding deltas and accumulating
// tool-call fragments keyed by index.
func (s *Service) streamStep(ctx context.Context, req openai.ChatCompletionRequest, full *strings.Builder, res *Result, onChunk func(string)) ([]openai.ToolCall, openai.FinishReason, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, "", err
	}
	defer stream.Close()

	pending := map[int]*openai.ToolCall{}
	order := []int{}
	var finishReason openai.FinishReason

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", err
		}
		if resp.Usage != nil {
			res.Usage.PromptTokens += resp.Usage.PromptTokens
			res.Usage.CompletionTokens += resp.Usage.CompletionTokens
			res.Usage.TotalTokens += resp.Usage.TotalTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if delta := choice.Delta.Content; delta != "" {
			full.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur, ok := pending[idx]
			if !ok {
				cur = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[idx] = cur
				order = append(order, idx)
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Function.Name = tc.Function.Name
			}
			cur.Function.Arguments += tc.Function.Arguments
		}
	}

	sort.Ints(order)
	calls := make([]openai.ToolCall, 0, len(order))
	for _, idx := range order {
		calls = append(calls, *pending[idx])
	}
	return calls, finishReason, nil
}

// executeTool runs one tool call. Execution failures are reported back to
// the model as tool output rather than aborting the exchange, matching how
// the model expects to recover from broken tools.
func (s *Service) executeTool(ctx context.Context, tools map[string]Tool, call ToolCall) string {
	tool, ok := tools[call.Name]
	if !ok || tool.Execute == nil {
		logger.L.Warn("model requested unknown tool", "tool", call.Name)
		return "Error: tool not available: " + call.Name
	}
	out, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		logger.L.Warn("tool execution failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
	}
	return out
}

func normalizeToolCall(tc openai.ToolCall) ToolCall {
	args := map[string]any{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			logger.L.Warn("tool arguments are not valid JSON", "tool", tc.Function.Name, "error", err)
		}
	}
	return ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
}

func assistantToolMessage(calls []openai.ToolCall) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		ToolCalls: calls,
	}
}

func toolDefinitions(tools map[string]Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		def := tools[name].Definition
		defs = append(defs, openai.Tool{Type: openai.ToolTypeFunction, Function: &def})
	}
	return defs
}
