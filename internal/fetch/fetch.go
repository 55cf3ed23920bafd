package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	userAgent    = "saintcast/1.0 (podcast research)"
	maxBodyBytes = 4 << 20
	minTextChars = 100
)

// PageFetcher downloads web pages and extracts their readable text. A domain
// that answers with an HTTP error is skipped for the rest of the fetcher's
// lifetime.
type PageFetcher struct {
	client        *http.Client
	logger        *slog.Logger
	failedDomains map[string]struct{}
}

// NewPageFetcher creates a page fetcher.
func NewPageFetcher(timeout time.Duration, logger *slog.Logger) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger:        logger,
		failedDomains: make(map[string]struct{}),
	}
}

// Excerpt returns up to maxChars of the page's readable text, cut at a word
// boundary. An empty string means nothing usable could be extracted.
func (f *PageFetcher) Excerpt(ctx context.Context, pageURL string, maxChars int) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	domain := strings.ToLower(u.Host)
	if _, failed := f.failedDomains[domain]; failed {
		return ""
	}

	text, err := f.fetchText(ctx, u)
	if err != nil {
		f.failedDomains[domain] = struct{}{}
		f.logger.Debug("page fetch failed, skipping domain", "url", pageURL, "domain", domain, "error", err)
		return ""
	}
	return truncateWords(text, maxChars)
}

func (f *PageFetcher) fetchText(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return "", nil
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < minTextChars {
		return "", nil
	}
	return text, nil
}

func truncateWords(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := strings.LastIndex(text[:maxChars], " ")
	if cut <= 0 {
		cut = maxChars
	}
	return text[:cut] + "..."
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, http.StatusText(e.code))
}
