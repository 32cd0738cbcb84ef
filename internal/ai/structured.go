package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/botbyte/botbyte-go/internal/logger"
)

// ErrEmptyResponse is returned when the provider produced no choices.
var ErrEmptyResponse = errors.New("ai: provider returned an empty response")

// GenerateStructured performs a non-streaming call constrained to return
// data matching the shape of out. The schema is derived from out's type; a
// response that cannot be unmarshalled into out is a validation error.
func (s *Service) GenerateStructured(ctx context.Context, name, prompt string, out any) error {
	schema, err := jsonschema.GenerateSchemaForType(out)
	if err != nil {
		return fmt.Errorf("ai: derive schema for %s: %w", name, err)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		logger.L.Error("structured generation failed", "name", name, "error", err)
		return err
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}

	if err := schema.Unmarshal(resp.Choices[0].Message.Content, out); err != nil {
		return fmt.Errorf("ai: output does not conform to schema %s: %w", name, err)
	}
	return nil
}
