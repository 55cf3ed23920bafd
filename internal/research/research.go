package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/search"
)

const (
	researcherRole   = "You are a knowledgeable Catholic researcher and podcast content creator."
	summaryMaxTokens = 1000
	excerptChars     = 1500
	maxSources       = 3
)

// Summary is the research result for one query.
type Summary struct {
	Query   string   `json:"query"`
	Summary string   `json:"summary"`
	Sources []string `json:"sources"`
}

// Queries is the structured response listing research queries.
type Queries struct {
	Queries []string `json:"queries"`
}

func (*Queries) SchemaName() string { return llm.SchemaResearchQueries }

// Result is the outcome of a research run. Degraded counts queries whose
// summary came from a non-AI fallback (search snippets or a placeholder).
type Result struct {
	Queries   []string
	Summaries []Summary
	Degraded  int
}

// PageSource supplies readable text excerpts of web pages.
type PageSource interface {
	Excerpt(ctx context.Context, pageURL string, maxChars int) string
}

// Researcher turns biographies into research summaries.
type Researcher struct {
	ai       llm.Provider
	searcher search.Searcher
	pages    PageSource
	prompt   string
	logger   *slog.Logger
}

// Option customizes a Researcher.
type Option func(*Researcher)

// WithSearcher enables web search. Without one, every query is researched
// from the model's own knowledge.
func WithSearcher(s search.Searcher) Option {
	return func(r *Researcher) { r.searcher = s }
}

// WithPageSource adds an excerpt of each query's top result page to the
// synthesis context.
func WithPageSource(p PageSource) Option {
	return func(r *Researcher) { r.pages = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Researcher) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Researcher. prompt is the show's query-identification prompt.
func New(ai llm.Provider, prompt string, opts ...Option) *Researcher {
	r := &Researcher{ai: ai, prompt: prompt, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run identifies research queries for bios and researches each one in order.
// Only the query-identification call can fail the run; every query yields a
// summary.
func (r *Researcher) Run(ctx context.Context, bios []map[string]any) (*Result, error) {
	queries, err := r.identifyQueries(ctx, bios)
	if err != nil {
		return nil, err
	}
	r.logger.Info("identified research queries", "count", len(queries))

	result := &Result{Queries: queries}
	for _, q := range queries {
		summary, degraded := r.researchQuery(ctx, q)
		if degraded {
			result.Degraded++
		}
		result.Summaries = append(result.Summaries, summary)
	}
	if result.Degraded > 0 {
		r.logger.Warn("research degraded", "degraded", result.Degraded, "queries", len(queries))
	}
	return result, nil
}

func (r *Researcher) identifyQueries(ctx context.Context, bios []map[string]any) ([]string, error) {
	payload, err := json.Marshal(bios)
	if err != nil {
		return nil, fmt.Errorf("encoding biographies: %w", err)
	}
	var resp Queries
	err = r.ai.CompleteStructured(ctx, []llm.Message{
		llm.System("You are a helpful assistant."),
		llm.User(r.prompt + "\n" + string(payload)),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("identifying research queries: %w", err)
	}

	queries := make([]string, 0, len(resp.Queries))
	for _, q := range resp.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	return queries, nil
}

func (r *Researcher) researchQuery(ctx context.Context, query string) (Summary, bool) {
	if r.searcher == nil {
		return r.aiOnly(ctx, query)
	}

	hits, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.logger.Warn("search failed, using AI-only research", "query", query, "error", err)
		return r.aiOnly(ctx, query)
	}
	if len(hits) == 0 {
		r.logger.Debug("no search results", "query", query)
		return r.aiOnly(ctx, query)
	}

	sources := make([]string, 0, maxSources)
	for _, h := range hits[:min(maxSources, len(hits))] {
		if h.Link != "" {
			sources = append(sources, h.Link)
		}
	}

	text, err := r.synthesize(ctx, query, hits)
	if err != nil {
		r.logger.Warn("synthesis failed, using search snippets", "query", query, "kind", llm.Kind(err), "error", err)
		snippets := make([]string, 0, maxSources)
		for _, h := range hits[:min(maxSources, len(hits))] {
			snippets = append(snippets, h.Snippet)
		}
		return Summary{
			Query:   query,
			Summary: "Research on " + query + ": " + strings.Join(snippets, " "),
			Sources: sources,
		}, true
	}
	return Summary{Query: query, Summary: text, Sources: sources}, false
}

func (r *Researcher) synthesize(ctx context.Context, query string, hits []search.Result) (string, error) {
	data := map[string]any{"query": query, "results": hits}
	if r.pages != nil && hits[0].Link != "" {
		if excerpt := r.pages.Excerpt(ctx, hits[0].Link, excerptChars); excerpt != "" {
			data["top_result_excerpt"] = excerpt
		}
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf("You are researching information for a Catholic podcast about saints and feasts. "+
		"Based on the following Google search results for the query '%s', "+
		"create a concise, factual, and engaging summary that would be useful for podcast hosts. "+
		"Focus on:\n"+
		"- Historical facts and context\n"+
		"- Interesting traditions or customs\n"+
		"- Spiritual significance\n"+
		"- Any dramatic or inspiring stories\n"+
		"- Cultural or liturgical connections\n\n"+
		"Write in a warm, accessible tone suitable for family listening. "+
		"Keep it under 200 words and make it engaging for podcast content.\n\n"+
		"Search results:\n%s", query, encoded)

	text, err := r.ai.CompleteText(ctx, []llm.Message{llm.System(researcherRole), llm.User(prompt)}, summaryMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (r *Researcher) aiOnly(ctx context.Context, query string) (Summary, bool) {
	prompt := "Research the following topic for a Catholic podcast about saints and feasts: " + query + "\n\n" +
		"Provide a concise, factual, and engaging summary (under 200 words) that includes:\n" +
		"- Historical context and facts\n" +
		"- Spiritual significance\n" +
		"- Interesting traditions or customs\n" +
		"- Any inspiring stories or legends\n" +
		"Write in a warm, accessible tone suitable for family listening."

	text, err := r.ai.CompleteText(ctx, []llm.Message{llm.System(researcherRole), llm.User(prompt)}, summaryMaxTokens)
	if err != nil {
		r.logger.Warn("AI research failed, using placeholder", "query", query, "kind", llm.Kind(err), "error", err)
		return Summary{Query: query, Summary: "Research summary for: " + query, Sources: []string{}}, true
	}
	return Summary{Query: query, Summary: strings.TrimSpace(text), Sources: []string{}}, false
}
