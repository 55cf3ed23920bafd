//go:generate mockgen -source=llm.go -destination=mocks/mocks.go -package=mocks

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/saintcast/internal/config"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system-role message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user-role message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// Schema is a response shape a provider can be asked to fill. The name keys
// the schema registry.
type Schema interface {
	SchemaName() string
}

// Validator is implemented by schemas with invariants beyond JSON shape.
type Validator interface {
	Validate() error
}

// Provider is the interface for LLM providers. CompleteStructured decodes the
// reply into target; CompleteText returns the raw reply.
type Provider interface {
	Name() string
	CompleteStructured(ctx context.Context, messages []Message, target Schema) error
	CompleteText(ctx context.Context, messages []Message, maxTokens int) (string, error)
}

var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"grok":      "XAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

var defaultBaseURL = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"grok":      "https://api.x.ai/v1",
	"anthropic": "https://api.anthropic.com",
	"ollama":    "http://localhost:11434",
}

// Option customizes a provider.
type Option func(*base)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *base) {
		if client != nil {
			b.http = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(b *base) {
		b.retry.sleeper = sleeper
	}
}

// New creates the provider selected by cfg. A missing API key is reported as
// ErrProviderUnavailable before any request is made.
func New(cfg config.AI, opts ...Option) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL[name]
	}

	var apiKey string
	if name != "ollama" {
		env := cfg.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv[name]
		}
		if env == "" {
			return nil, Wrap(ErrProviderUnavailable, name, "configure", "unsupported provider", nil)
		}
		apiKey = strings.TrimSpace(os.Getenv(env))
		if apiKey == "" {
			return nil, Wrap(ErrProviderUnavailable, name, "configure", env+" is not set", nil)
		}
	}

	timeout := 300 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	b := base{
		name:      name,
		model:     cfg.Model,
		baseURL:   baseURL,
		apiKey:    apiKey,
		maxTokens: cfg.MaxTokens,
		http:      &http.Client{Timeout: timeout},
		retry:     newRetrier(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff),
	}
	for _, opt := range opts {
		opt(&b)
	}

	switch name {
	case "openai":
		return &OpenAIProvider{base: b, nativeSchema: true}, nil
	case "grok":
		return &OpenAIProvider{base: b}, nil
	case "anthropic":
		return &AnthropicProvider{base: b}, nil
	case "ollama":
		return &OllamaProvider{base: b}, nil
	default:
		return nil, Wrap(ErrProviderUnavailable, name, "configure", "unsupported provider", nil)
	}
}

// base carries what every HTTP provider needs.
type base struct {
	name      string
	model     string
	baseURL   string
	apiKey    string
	maxTokens int
	http      *http.Client
	retry     retrier
}

func (b *base) Name() string { return b.name }

// post sends payload as JSON and decodes a 2xx reply into out, retrying
// transient failures. The returned error carries the provider and operation.
func (b *base) post(ctx context.Context, op, path string, headers map[string]string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Wrap(ErrRequestFailed, b.name, op, "encode body", err)
	}
	err = b.retry.do(ctx, func() error {
		return b.postOnce(ctx, path, headers, encoded, out)
	})
	if err == nil {
		return nil
	}
	if statusErr, ok := err.(*httpStatusError); ok {
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return Wrap(ErrProviderUnavailable, b.name, op, "credentials rejected", err)
		}
	}
	if _, ok := err.(*decodeError); ok {
		return Wrap(ErrMalformedResponse, b.name, op, "", err)
	}
	return Wrap(ErrRequestFailed, b.name, op, "", err)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (b *base) postOnce(ctx context.Context, path string, headers map[string]string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// withSchemaInstruction returns a copy of messages whose system message asks
// for JSON in the given shape. A system message is prepended when absent.
func withSchemaInstruction(messages []Message, spec SchemaSpec) []Message {
	out := make([]Message, len(messages), len(messages)+1)
	copy(out, messages)
	if len(out) > 0 && out[0].Role == "system" {
		out[0].Content += schemaInstruction(spec)
		return out
	}
	instruction := strings.TrimPrefix(schemaInstruction(spec), "\n\n")
	return append([]Message{System(instruction)}, out...)
}
