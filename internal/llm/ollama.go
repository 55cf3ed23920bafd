package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	base
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// IsConfigured checks if Ollama is running and the model is available.
func (p *OllamaProvider) IsConfigured(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	modelBase := strings.SplitN(p.model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// CompleteStructured asks for JSON output and describes target's schema in
// the system message.
func (p *OllamaProvider) CompleteStructured(ctx context.Context, messages []Message, target Schema) error {
	op := "complete " + target.SchemaName()
	content, err := p.chat(ctx, op, withSchemaInstruction(messages, LookupSchema(target)), "json", 0)
	if err != nil {
		return err
	}
	return decodeStructured(p.name, content, target)
}

// CompleteText returns the model's free-form reply.
func (p *OllamaProvider) CompleteText(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	return p.chat(ctx, "complete text", messages, "", maxTokens)
}

func (p *OllamaProvider) chat(ctx context.Context, op string, messages []Message, format string, maxTokens int) (string, error) {
	req := ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Format:   format,
		Options:  map[string]any{"temperature": 0.3},
	}
	if maxTokens > 0 {
		req.Options["num_predict"] = maxTokens
	}

	var resp ollamaResponse
	if err := p.post(ctx, op, "/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", Wrap(ErrMalformedResponse, p.name, op, "empty content", nil)
	}
	return content, nil
}
