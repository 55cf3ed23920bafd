//go:generate mockgen -source=tts.go -destination=mocks/mocks.go -package=mocks

// Package tts turns a validated script into multi-voice dialogue audio parts.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/script"
)

// DialogueInput is one piece of one line, tagged with its voice.
type DialogueInput struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
	Speaker string `json:"-"`
}

// DialogueSynthesizer renders a batch of inputs as one audio stream written
// to w.
type DialogueSynthesizer interface {
	Synthesize(ctx context.Context, inputs []DialogueInput, w io.Writer) error
}

// ErrNoDialogue is returned when a script yields no speakable text.
var ErrNoDialogue = errors.New("no dialogue inputs")

// Renderer chunks, batches and synthesizes script lines.
type Renderer struct {
	synth    DialogueSynthesizer
	maxChunk int
	budget   int
	logger   *slog.Logger
}

// NewRenderer creates a Renderer using the chunk and request limits in cfg.
func NewRenderer(synth DialogueSynthesizer, cfg config.TTS, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		synth:    synth,
		maxChunk: cfg.MaxChunkChars,
		budget:   cfg.MaxRequestChars,
		logger:   logger,
	}
}

// Inputs flattens lines into dialogue inputs in delivery order.
func (r *Renderer) Inputs(lines []script.Line, voices map[string]string) ([]DialogueInput, error) {
	var inputs []DialogueInput
	for _, line := range lines {
		voice, ok := voices[line.Speaker]
		if !ok || voice == "" {
			return nil, fmt.Errorf("no voice id for speaker %q", line.Speaker)
		}
		for _, piece := range Chunk(line.Text, r.maxChunk) {
			inputs = append(inputs, DialogueInput{Text: piece, VoiceID: voice, Speaker: line.Speaker})
		}
	}
	if len(inputs) == 0 {
		return nil, ErrNoDialogue
	}
	return inputs, nil
}

// Render synthesizes lines batch by batch and writes dialogue_part_{i}.mp3
// files into workDir, returning their paths in order. The first failing
// batch aborts the render.
func (r *Renderer) Render(ctx context.Context, lines []script.Line, voices map[string]string, workDir string) ([]string, error) {
	inputs, err := r.Inputs(lines, voices)
	if err != nil {
		return nil, err
	}
	batches := Batch(inputs, r.budget)
	r.logger.Info("rendering dialogue", "lines", len(lines), "inputs", len(inputs), "batches", len(batches))

	parts := make([]string, 0, len(batches))
	for i, batch := range batches {
		path := filepath.Join(workDir, fmt.Sprintf("dialogue_part_%d.mp3", i))
		if err := r.renderBatch(ctx, batch, path); err != nil {
			return nil, fmt.Errorf("dialogue batch %d (speakers: %s): %w", i, strings.Join(speakers(batch), ", "), err)
		}
		r.logger.Debug("rendered dialogue batch", "batch", i, "inputs", len(batch))
		parts = append(parts, path)
	}
	return parts, nil
}

func (r *Renderer) renderBatch(ctx context.Context, batch []DialogueInput, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating part file: %w", err)
	}
	if err := r.synth.Synthesize(ctx, batch, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func speakers(batch []DialogueInput) []string {
	var out []string
	for _, in := range batch {
		if !slices.Contains(out, in.Speaker) {
			out = append(out, in.Speaker)
		}
	}
	return out
}
