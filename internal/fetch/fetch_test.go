package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

const articleHTML = `<!DOCTYPE html><html><head><title>Saint Nicholas</title></head><body>
<nav>Home | About</nav>
<article><h1>Saint Nicholas of Myra</h1>
<p>Saint Nicholas was a fourth-century bishop of Myra in Lycia, remembered for secret gift-giving and for his defense of the faith at the Council of Nicaea.</p>
<p>Children in many countries leave their shoes out on the eve of his feast, hoping to find them filled with sweets and small gifts the next morning.</p>
</article></body></html>`

func TestExcerptExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewPageFetcher(0, nil)
	text := f.Excerpt(context.Background(), srv.URL+"/nicholas", 0)
	assert.Contains(t, text, "bishop of Myra")
	assert.Contains(t, text, "shoes out on the eve")
}

func TestExcerptTruncatesAtWord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	text := NewPageFetcher(0, nil).Excerpt(context.Background(), srv.URL, 60)
	assert.True(t, strings.HasSuffix(text, "..."), text)
	assert.LessOrEqual(t, len(text), 63)
}

func TestExcerptSkipsFailedDomain(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewPageFetcher(0, nil)
	assert.Empty(t, f.Excerpt(context.Background(), srv.URL+"/a", 500))
	assert.Empty(t, f.Excerpt(context.Background(), srv.URL+"/b", 500))
	assert.EqualValues(t, 1, calls.Load())
}

func TestExcerptInvalidURL(t *testing.T) {
	assert.Empty(t, NewPageFetcher(0, nil).Excerpt(context.Background(), "not a url", 100))
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "short", truncateWords("short", 100))
	assert.Equal(t, "one two...", truncateWords("one two three", 9))
	assert.Equal(t, "abcd...", truncateWords("abcdefgh", 4))
}
