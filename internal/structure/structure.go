// Package structure condenses biographies and research into one structured
// summary per feast.
package structure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/research"
)

// FeastSummary is the outline of one feast the script is written from.
type FeastSummary struct {
	Title              string   `json:"Title"`
	Calendars          []string `json:"Calendars"`
	Summary            string   `json:"Summary"`
	Themes             []string `json:"Themes"`
	CommemorationIdeas []string `json:"CommemorationIdeas"`
	DiscussionQuestion string   `json:"DiscussionQuestion"`
	Traditions         []string `json:"Traditions"`
}

// MarshalJSON emits empty lists as [] so downstream prompts always see every
// field.
func (f FeastSummary) MarshalJSON() ([]byte, error) {
	type plain FeastSummary
	out := plain(f)
	for _, list := range []*[]string{&out.Calendars, &out.Themes, &out.CommemorationIdeas, &out.Traditions} {
		if *list == nil {
			*list = []string{}
		}
	}
	return json.Marshal(out)
}

// Response is the structured completion shape.
type Response struct {
	Feasts []FeastSummary `json:"feasts"`
}

func (*Response) SchemaName() string { return llm.SchemaFeastSummaries }

func (r *Response) Validate() error {
	if len(r.Feasts) == 0 {
		return errors.New("feasts is empty")
	}
	return nil
}

// Structurer runs the structuring stage.
type Structurer struct {
	ai     llm.Provider
	prompt string
	logger *slog.Logger
}

// New creates a Structurer using the show's structured_bio prompt.
func New(ai llm.Provider, prompt string, logger *slog.Logger) *Structurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Structurer{ai: ai, prompt: prompt, logger: logger}
}

// Summarize asks the model for one summary per feast, in one call, from the
// biographies and the research summaries.
func (s *Structurer) Summarize(ctx context.Context, bios []map[string]any, summaries []research.Summary) ([]FeastSummary, error) {
	if summaries == nil {
		summaries = []research.Summary{}
	}
	payload, err := json.Marshal(map[string]any{
		"biographies":      bios,
		"search_summaries": summaries,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding structuring input: %w", err)
	}

	var resp Response
	err = s.ai.CompleteStructured(ctx, []llm.Message{
		llm.System("You are a podcast script writer."),
		llm.User(s.prompt + "\n" + string(payload)),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("structuring biographies: %w", err)
	}

	s.logger.Info("structured feast summaries", "feasts", len(resp.Feasts))
	return resp.Feasts, nil
}
