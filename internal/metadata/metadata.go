// Package metadata derives an episode's title, descriptions, transcript and
// slug, and normalizes its publish time.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TobiSchelling/saintcast/internal/database"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/script"
	"github.com/TobiSchelling/saintcast/internal/structure"
)

const (
	titleMaxTokens = 100
	prettyLayout   = "January 02, 2006"
	dateLayout     = "2006-01-02"
)

// Metadata is everything an Episode row needs besides audio facts.
type Metadata struct {
	Slug             string
	Title            string
	Subtitle         string
	ShortDescription string
	LongDescription  string
	FullText         string
}

// Descriptions is the structured completion shape for the feed texts.
type Descriptions struct {
	Subtitle         string `json:"subtitle"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
}

func (*Descriptions) SchemaName() string { return llm.SchemaEpisodeDescriptions }

func (d *Descriptions) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Subtitle) == "" {
		missing = append(missing, "subtitle")
	}
	if strings.TrimSpace(d.ShortDescription) == "" {
		missing = append(missing, "short_description")
	}
	if strings.TrimSpace(d.LongDescription) == "" {
		missing = append(missing, "long_description")
	}
	if len(missing) > 0 {
		return errors.New("empty fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// Generator writes episode metadata. AI failures fall back to templates, so
// Generate never fails.
type Generator struct {
	ai      llm.Provider
	siteURL string
	logger  *slog.Logger
}

// New creates a Generator. siteURL is the public calendar site the day
// permalink points into.
func New(ai llm.Provider, siteURL string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{ai: ai, siteURL: strings.TrimRight(siteURL, "/"), logger: logger}
}

// DayURL is the calendar permalink for date.
func DayURL(siteURL string, date time.Time) string {
	return strings.TrimRight(siteURL, "/") + "/day/" + date.Format(dateLayout) + "/?calendar=current"
}

// Generate builds the metadata for an episode about feasts on date. The slug
// is the base slug; uniqueness is resolved when the episode is stored.
func (g *Generator) Generate(ctx context.Context, feasts []structure.FeastSummary, lines []script.Line, date time.Time) Metadata {
	names := make([]string, 0, len(feasts))
	for _, f := range feasts {
		names = append(names, f.Title)
	}
	dayURL := DayURL(g.siteURL, date)

	m := Metadata{
		Title:    g.title(ctx, names, date),
		FullText: FullText(lines),
		Slug:     SlugBase(date, names),
	}

	d, err := g.descriptions(ctx, names, lines, date, dayURL)
	if err != nil {
		g.logger.Warn("description generation failed, using template", "kind", llm.Kind(err), "error", err)
		d = fallbackDescriptions(feasts, m.Title, dayURL)
	}
	m.Subtitle = strings.TrimSpace(d.Subtitle)
	m.ShortDescription = database.PlainText(strings.TrimSpace(d.ShortDescription))
	m.LongDescription = d.LongDescription
	return m
}

func (g *Generator) title(ctx context.Context, names []string, date time.Time) string {
	pretty := date.Format(prettyLayout)
	fallback := pretty + ": " + strings.Join(names, ", ")

	list, err := json.Marshal(names)
	if err != nil {
		return fallback
	}
	prompt := "Given this list of saint and feast names, return a single string suitable for use as a podcast episode title. " +
		"Remove duplicates, and format the list with commas and 'and' before the last item. Do not add anything else. " +
		"List: " + string(list)

	text, err := g.ai.CompleteText(ctx, []llm.Message{
		llm.System("You are a helpful assistant."),
		llm.User(prompt),
	}, titleMaxTokens)
	if err != nil {
		g.logger.Warn("title generation failed, using names", "kind", llm.Kind(err), "error", err)
		return fallback
	}
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	if text == "" {
		return fallback
	}
	return pretty + ": " + text
}

type contextLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func (g *Generator) descriptions(ctx context.Context, names []string, lines []script.Line, date time.Time, dayURL string) (Descriptions, error) {
	scriptLines := make([]contextLine, 0, len(lines))
	for _, l := range lines {
		scriptLines = append(scriptLines, contextLine{Speaker: l.Speaker, Text: l.Text})
	}
	bundle, err := json.Marshal(map[string]any{
		"date":              date.Format(prettyLayout),
		"saints_and_feasts": names,
		"script":            scriptLines,
		"day_url":           dayURL,
	})
	if err != nil {
		return Descriptions{}, fmt.Errorf("encoding description context: %w", err)
	}

	prompt := "Given the following context for a Catholic podcast episode, generate:\n" +
		"1. A captivating subtitle (max 100 chars)\n" +
		"2. A very brief, plain text short description (max 200 chars, suitable for podcast feeds)\n" +
		"3. A long description (for <content:encoded>, suitable for RSS, HTML allowed, must start with the provided link, " +
		"and include links to referenced items or further reading if present)\n" +
		"Return only a JSON object with keys: subtitle, short_description, long_description.\n" +
		"Be creative, engaging, and family-friendly.\n" +
		"\nCONTEXT:\n" + string(bundle)

	var d Descriptions
	err = g.ai.CompleteStructured(ctx, []llm.Message{
		llm.System("You are a creative Catholic podcast producer."),
		llm.User(prompt),
	}, &d)
	if err != nil {
		return Descriptions{}, err
	}
	if err := d.Validate(); err != nil {
		return Descriptions{}, llm.Wrap(llm.ErrSchemaViolation, "", "validate "+d.SchemaName(), err.Error(), nil)
	}
	// Feed renderers rely on the long description opening with the permalink.
	d.LongDescription = strings.TrimSpace(d.LongDescription)
	if !strings.HasPrefix(d.LongDescription, dayURL) {
		d.LongDescription = dayURL + "\n\n" + d.LongDescription
	}
	return d, nil
}

func fallbackDescriptions(feasts []structure.FeastSummary, title, dayURL string) Descriptions {
	d := Descriptions{
		Subtitle:         title,
		ShortDescription: "For more, see " + dayURL + ". " + title,
	}
	if len(feasts) > 0 {
		first := feasts[0].Summary
		d.Subtitle = first
		sentence, _, _ := strings.Cut(first, ". ")
		d.ShortDescription = "For more, see " + dayURL + ". " + sentence + "."
	}

	var b strings.Builder
	b.WriteString("For more, see " + dayURL + ".\n\n")
	for _, f := range feasts {
		fmt.Fprintf(&b, "<b>%s</b>\n%s\n\n", f.Title, f.Summary)
	}
	d.LongDescription = b.String()
	return d
}

// FullText renders the transcript as "speaker: text" lines.
func FullText(lines []script.Line) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Speaker+": "+l.Text)
	}
	return strings.Join(out, "\n")
}
