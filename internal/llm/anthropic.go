package llm

import (
	"context"
	"strings"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 8000
)

// AnthropicProvider talks to the Anthropic Messages API. Structured output is
// requested by describing the schema in the system prompt.
type AnthropicProvider struct {
	base
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// CompleteStructured asks for JSON matching target's registered schema.
func (p *AnthropicProvider) CompleteStructured(ctx context.Context, messages []Message, target Schema) error {
	op := "complete " + target.SchemaName()
	content, err := p.send(ctx, op, withSchemaInstruction(messages, LookupSchema(target)), 0)
	if err != nil {
		return err
	}
	return decodeStructured(p.name, content, target)
}

// CompleteText returns the model's free-form reply.
func (p *AnthropicProvider) CompleteText(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	return p.send(ctx, "complete text", messages, maxTokens)
}

func (p *AnthropicProvider) send(ctx context.Context, op string, messages []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	// The Messages API takes system text as a top-level field.
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    strings.Join(system, "\n\n"),
		Messages:  turns,
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := p.post(ctx, op, "/v1/messages", headers, req, &resp); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return "", Wrap(ErrMalformedResponse, p.name, op, "empty content (stop_reason="+resp.StopReason+")", nil)
	}
	return content, nil
}
