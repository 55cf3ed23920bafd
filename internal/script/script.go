// Package script asks the model for the episode dialogue and resolves a voice
// for every speaker before any audio is rendered.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/structure"
)

const writerRole = "You are a creative and passionate podcast scriptwriter who specializes in making Catholic content exciting and engaging."

// DateLayout is how {date} is rendered in the script prompt.
const DateLayout = "January 02, 2006"

// Line is one utterance, in delivery order.
type Line struct {
	Speaker   string
	Text      string
	Direction string
}

// VoiceAssignment pairs a character with a voice id.
type VoiceAssignment struct {
	Character string `json:"character"`
	VoiceID   string `json:"voice_id"`
}

// Script is a validated episode script. Voices is keyed by the speaker names
// exactly as they appear in Lines.
type Script struct {
	Title  string
	Lines  []Line
	Voices map[string]string
}

// Speakers returns the distinct speakers in order of first appearance.
func (s *Script) Speakers() []string {
	var out []string
	for _, l := range s.Lines {
		if !slices.Contains(out, l.Speaker) {
			out = append(out, l.Speaker)
		}
	}
	return out
}

// FixedLine is one line of a two-host script.
type FixedLine struct {
	PodcastHostName    string  `json:"PodcastHostName"`
	Content            string  `json:"Content"`
	SystemInstructions *string `json:"SystemInstructions"`
}

// FixedScript is the response shape for shows with a fixed voice map.
type FixedScript struct {
	Lines []FixedLine `json:"lines"`
}

func (*FixedScript) SchemaName() string { return llm.SchemaFixedScript }

func (s *FixedScript) Validate() error {
	if len(s.Lines) == 0 {
		return errors.New("lines is empty")
	}
	for i, l := range s.Lines {
		if strings.TrimSpace(l.PodcastHostName) == "" {
			return fmt.Errorf("line %d has no PodcastHostName", i)
		}
	}
	return nil
}

// CastLine is one line of a cast script.
type CastLine struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

// CastScript is the response shape for shows where the model casts voices.
type CastScript struct {
	Title       string            `json:"title"`
	SaintName   string            `json:"saint_name"`
	Characters  []string          `json:"characters"`
	ScriptLines []CastLine        `json:"script_lines"`
	Voices      []VoiceAssignment `json:"voices"`
}

func (*CastScript) SchemaName() string { return llm.SchemaCastScript }

// Validate checks that every declared character has exactly one non-empty
// voice and every line is spoken by a declared character. Names compare trimmed and
// case-insensitively.
func (s *CastScript) Validate() error {
	if len(s.ScriptLines) == 0 {
		return errors.New("script_lines is empty")
	}
	declared := make(map[string]bool, len(s.Characters))
	for _, c := range s.Characters {
		declared[norm(c)] = true
	}
	assigned := make(map[string]string, len(s.Voices))
	var conflicting []string
	for _, v := range s.Voices {
		key, id := norm(v.Character), strings.TrimSpace(v.VoiceID)
		prev, seen := assigned[key]
		if seen && prev != id {
			if !slices.Contains(conflicting, key) {
				conflicting = append(conflicting, key)
			}
			continue
		}
		assigned[key] = id
	}
	if len(conflicting) > 0 {
		slices.Sort(conflicting)
		return fmt.Errorf("conflicting voice assignments for characters: %s", strings.Join(conflicting, ", "))
	}

	var missing []string
	for _, c := range s.Characters {
		if assigned[norm(c)] == "" {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing voice assignments for characters: %s", strings.Join(missing, ", "))
	}

	var unknown []string
	for _, l := range s.ScriptLines {
		if !declared[norm(l.Character)] && !slices.Contains(unknown, l.Character) {
			unknown = append(unknown, l.Character)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("script_lines reference undeclared characters: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func norm(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Generator runs the script stage for one show.
type Generator struct {
	ai     llm.Provider
	show   config.Show
	logger *slog.Logger
}

// New creates a Generator.
func New(ai llm.Provider, show config.Show, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{ai: ai, show: show, logger: logger}
}

// Generate writes the script for date from the feast summaries. bios, when
// non-empty, is passed along as supplemental detail. Any speaker without a
// resolvable voice fails with llm.ErrSchemaViolation.
func (g *Generator) Generate(ctx context.Context, feasts []structure.FeastSummary, date time.Time, bios []map[string]any) (*Script, error) {
	messages, err := g.messages(feasts, date, bios)
	if err != nil {
		return nil, err
	}

	var s *Script
	if g.show.AIAssigned() {
		var resp CastScript
		if err := g.ai.CompleteStructured(ctx, messages, &resp); err != nil {
			return nil, fmt.Errorf("generating script: %w", err)
		}
		s, err = g.fromCast(&resp)
	} else {
		var resp FixedScript
		if err := g.ai.CompleteStructured(ctx, messages, &resp); err != nil {
			return nil, fmt.Errorf("generating script: %w", err)
		}
		s, err = g.fromFixed(&resp)
	}
	if err != nil {
		return nil, fmt.Errorf("generating script: %w", err)
	}

	g.logger.Info("script generated", "lines", len(s.Lines), "speakers", len(s.Voices))
	return s, nil
}

func (g *Generator) messages(feasts []structure.FeastSummary, date time.Time, bios []map[string]any) ([]llm.Message, error) {
	// Only {date} is substituted; prompts may contain literal braces.
	prompt := strings.ReplaceAll(g.show.Prompts.Script, "{date}", date.Format(DateLayout))

	if feasts == nil {
		feasts = []structure.FeastSummary{}
	}
	data := map[string]any{"structured_summaries": feasts}
	if len(bios) > 0 {
		data["original_biography_data"] = bios
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding script input: %w", err)
	}
	return []llm.Message{
		llm.System(writerRole),
		llm.User(prompt + "\n\nDATA:\n" + string(payload)),
	}, nil
}

func (g *Generator) fromFixed(resp *FixedScript) (*Script, error) {
	if err := resp.Validate(); err != nil {
		return nil, violation(resp, err.Error())
	}

	known := make(map[string]string, len(g.show.Voices.FixedVoiceMap))
	for name, id := range g.show.Voices.FixedVoiceMap {
		known[norm(name)] = id
	}

	s := &Script{Voices: map[string]string{}}
	var missing []string
	for _, l := range resp.Lines {
		line := Line{Speaker: strings.TrimSpace(l.PodcastHostName), Text: l.Content}
		if l.SystemInstructions != nil {
			line.Direction = strings.TrimSpace(*l.SystemInstructions)
		}
		s.Lines = append(s.Lines, line)

		id, ok := known[norm(line.Speaker)]
		if !ok {
			if !slices.Contains(missing, line.Speaker) {
				missing = append(missing, line.Speaker)
			}
			continue
		}
		s.Voices[line.Speaker] = id
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, violation(resp, "no voice configured for speakers: "+strings.Join(missing, ", "))
	}
	return s, nil
}

func (g *Generator) fromCast(resp *CastScript) (*Script, error) {
	if err := resp.Validate(); err != nil {
		return nil, violation(resp, err.Error())
	}

	assigned := make(map[string]string, len(resp.Voices))
	for _, v := range resp.Voices {
		if id := strings.TrimSpace(v.VoiceID); id != "" {
			assigned[norm(v.Character)] = id
		}
	}

	if allowed := g.show.Voices.AllowedVoiceIDs; len(allowed) > 0 {
		var invalid []string
		for _, v := range resp.Voices {
			id := strings.TrimSpace(v.VoiceID)
			if !slices.Contains(allowed, id) && !slices.Contains(invalid, id) {
				invalid = append(invalid, id)
			}
		}
		if len(invalid) > 0 {
			slices.Sort(invalid)
			return nil, violation(resp, "unsupported voice ids: "+strings.Join(invalid, ", "))
		}
	}

	s := &Script{Title: strings.TrimSpace(resp.Title), Voices: map[string]string{}}
	for _, l := range resp.ScriptLines {
		speaker := strings.TrimSpace(l.Character)
		s.Lines = append(s.Lines, Line{Speaker: speaker, Text: l.Text})
		s.Voices[speaker] = assigned[norm(speaker)]
	}
	return s, nil
}

func violation(target llm.Schema, msg string) error {
	return llm.Wrap(llm.ErrSchemaViolation, "", "validate "+target.SchemaName(), msg, nil)
}
