package llm

import (
	"context"
	"strings"
)

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
// With nativeSchema it requests strict json_schema output; otherwise it uses
// json_object mode with the schema described in the system message, which is
// what xAI's Grok endpoint supports.
type OpenAIProvider struct {
	base
	nativeSchema bool
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// CompleteStructured asks for JSON matching target's registered schema.
func (p *OpenAIProvider) CompleteStructured(ctx context.Context, messages []Message, target Schema) error {
	spec := LookupSchema(target)
	req := chatRequest{Model: p.model}
	if p.nativeSchema {
		req.Messages = messages
		req.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   target.SchemaName(),
				Strict: true,
				Schema: spec.JSONSchema,
			},
		}
	} else {
		req.Messages = withSchemaInstruction(messages, spec)
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	content, err := p.chat(ctx, "complete "+target.SchemaName(), req)
	if err != nil {
		return err
	}
	return decodeStructured(p.name, content, target)
}

// CompleteText returns the model's free-form reply.
func (p *OpenAIProvider) CompleteText(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	req := chatRequest{Model: p.model, Messages: messages}
	if maxTokens > 0 {
		if p.nativeSchema {
			req.MaxCompletionTokens = maxTokens
		} else {
			req.MaxTokens = maxTokens
		}
	}
	return p.chat(ctx, "complete text", req)
}

func (p *OpenAIProvider) chat(ctx context.Context, op string, req chatRequest) (string, error) {
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := p.post(ctx, op, "/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", Wrap(ErrMalformedResponse, p.name, op, "no choices in response", nil)
	}
	msg := resp.Choices[0].Message
	if refusal := strings.TrimSpace(msg.Refusal); refusal != "" {
		return "", Wrap(ErrSchemaViolation, p.name, op, "model refused: "+snippet(refusal), nil)
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "", Wrap(ErrMalformedResponse, p.name, op, "empty content (finish_reason="+resp.Choices[0].FinishReason+")", nil)
	}
	return content, nil
}
