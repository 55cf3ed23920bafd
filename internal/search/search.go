// Package search queries Google Programmable Search (Custom Search JSON API)
// for pages about a saint or feast.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/saintcast/internal/config"
)

// ErrNotConfigured is returned by New when credentials are absent.
var ErrNotConfigured = errors.New("search not configured")

const querySuffix = " Catholic saint feast tradition"

// Result is one ranked search hit.
type Result struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Link        string `json:"link"`
	DisplayLink string `json:"displayLink"`
}

// Searcher runs a keyword query and returns ranked hits.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// GoogleSearcher is a Searcher backed by the Custom Search JSON API.
type GoogleSearcher struct {
	apiKey   string
	engineID string
	baseURL  string
	num      int
	client   *http.Client
}

// New builds a GoogleSearcher from config, reading credentials from the
// configured environment variables. It returns ErrNotConfigured when search
// is disabled or either credential is missing.
func New(cfg config.Search) (*GoogleSearcher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: disabled in config", ErrNotConfigured)
	}
	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	engineID := strings.TrimSpace(os.Getenv(cfg.EngineIDEnv))
	if apiKey == "" || engineID == "" {
		return nil, fmt.Errorf("%w: %s and %s must be set", ErrNotConfigured, cfg.APIKeyEnv, cfg.EngineIDEnv)
	}
	timeout := 15 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &GoogleSearcher{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  cfg.BaseURL,
		num:      5,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Search queries for "{query} Catholic saint feast tradition" with safe
// search on, restricted to English pages.
func (g *GoogleSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query+querySuffix)
	params.Set("num", strconv.Itoa(g.num))
	params.Set("safe", "active")
	params.Set("lr", "lang_en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Items []Result `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return payload.Items, nil
}
