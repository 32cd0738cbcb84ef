package ai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/botbyte/botbyte-go/internal/config"
)

// ErrMissingAPIKey is returned by NewClient when no provider credential is
// configured. Callers treat this as a fatal startup condition.
var ErrMissingAPIKey = errors.New("ai: provider api key is not set")

// Stream is the receive side of one provider streaming call.
type Stream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Client is the minimal subset of the openai client used by the adapter; it
// is easy to mock in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (Stream, error)
}

type openaiClient struct {
	*openai.Client
}

func (c openaiClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (Stream, error) {
	return c.Client.CreateChatCompletionStream(ctx, req)
}

// NewClient creates a provider client from configuration. It fails fast when
// no API key is available; this is a configuration error, not a per-request
// one.
func NewClient(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openaiClient{openai.NewClientWithConfig(clientConfig)}, nil
}
