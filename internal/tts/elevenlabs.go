package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/saintcast/internal/config"
)

// ErrNotConfigured is returned by NewElevenLabs when the API key is absent.
var ErrNotConfigured = errors.New("tts not configured")

// ElevenLabs is a DialogueSynthesizer backed by the text-to-dialogue API.
type ElevenLabs struct {
	apiKey       string
	baseURL      string
	modelID      string
	outputFormat string
	client       *http.Client
}

type dialogueRequest struct {
	Inputs  []DialogueInput `json:"inputs"`
	ModelID string          `json:"model_id"`
}

// NewElevenLabs reads the API key from the configured environment variable.
func NewElevenLabs(cfg config.TTS) (*ElevenLabs, error) {
	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotConfigured, cfg.APIKeyEnv)
	}
	timeout := 300 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	e := &ElevenLabs{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		modelID:      cfg.ModelID,
		outputFormat: cfg.OutputFormat,
		client:       &http.Client{Timeout: timeout},
	}
	if e.baseURL == "" {
		e.baseURL = "https://api.elevenlabs.io"
	}
	if e.modelID == "" {
		e.modelID = "eleven_v3"
	}
	if e.outputFormat == "" {
		e.outputFormat = "mp3_44100_128"
	}
	return e, nil
}

// Synthesize sends one dialogue request and streams the audio into w. Failures
// are not retried.
func (e *ElevenLabs) Synthesize(ctx context.Context, inputs []DialogueInput, w io.Writer) error {
	body, err := json.Marshal(dialogueRequest{Inputs: inputs, ModelID: e.modelID})
	if err != nil {
		return fmt.Errorf("encoding dialogue request: %w", err)
	}

	endpoint := e.baseURL + "/v1/text-to-dialogue?" + url.Values{"output_format": {e.outputFormat}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("text-to-dialogue request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("text-to-dialogue returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("reading dialogue audio: %w", err)
	}
	if n == 0 {
		return errors.New("text-to-dialogue returned no audio")
	}
	return nil
}
