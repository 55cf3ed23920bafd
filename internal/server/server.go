// Package server publishes episodes: an RSS feed per podcast, episode pages
// and the audio files themselves.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/TobiSchelling/saintcast/internal/database"
	"github.com/TobiSchelling/saintcast/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Long descriptions carry inline <b> markup and bare newlines.
var md = goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe(), html.WithHardWraps()))

// Options configures a Server.
type Options struct {
	// BaseURL prefixes feed and enclosure links. When empty it is derived
	// from the request.
	BaseURL string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Server is the HTTP server for podcasts and episodes.
type Server struct {
	db      *database.DB
	store   *storage.FileStore
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, store *storage.FileStore, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"duration": func(d *int) string { return formatDuration(d) },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "podcast.html", "episode.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:      db,
		store:   store,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  opts.Logger,
		now:     opts.Now,
		pages:   pages,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /podcasts/{slug}/{$}", s.handlePodcast)
	s.mux.HandleFunc("GET /podcasts/{slug}/feed.xml", s.handleFeed)
	s.mux.HandleFunc("GET /episodes/{slug}", s.handleEpisode)
	s.mux.HandleFunc("GET /media/podcasts/{file}", s.handleMedia)
}

type podcastSummary struct {
	Podcast database.Podcast
	Latest  *database.Episode
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	podcasts, err := s.db.ListPodcasts()
	if err != nil {
		s.serverError(w, "listing podcasts", err)
		return
	}

	summaries := make([]podcastSummary, 0, len(podcasts))
	for _, p := range podcasts {
		sum := podcastSummary{Podcast: p}
		if eps, err := s.db.ListPublishedEpisodes(p.ID, s.now(), 1); err == nil && len(eps) > 0 {
			sum.Latest = &eps[0]
		}
		summaries = append(summaries, sum)
	}

	s.render(w, "index.html", map[string]any{
		"Podcasts": summaries,
	})
}

func (s *Server) handlePodcast(w http.ResponseWriter, r *http.Request) {
	podcast, ok := s.podcast(w, r)
	if !ok {
		return
	}
	episodes, err := s.db.ListPublishedEpisodes(podcast.ID, s.now(), 0)
	if err != nil {
		s.serverError(w, "listing episodes", err)
		return
	}
	s.render(w, "podcast.html", map[string]any{
		"Podcast":  podcast,
		"Episodes": episodes,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	podcast, ok := s.podcast(w, r)
	if !ok {
		return
	}
	episodes, err := s.db.ListPublishedEpisodes(podcast.ID, s.now(), feedLimit)
	if err != nil {
		s.serverError(w, "listing episodes", err)
		return
	}

	body, err := buildFeed(s.base(r), podcast, episodes, s.audioSize)
	if err != nil {
		s.serverError(w, "building feed", err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write(body)
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := s.db.GetEpisodeBySlug(r.PathValue("slug"))
	if errors.Is(err, database.ErrNotFound) || (err == nil && episode.PublishedAt.After(s.now())) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, "loading episode", err)
		return
	}
	podcast, err := s.db.GetPodcastByID(episode.PodcastID)
	if err != nil {
		s.serverError(w, "loading podcast", err)
		return
	}
	s.render(w, "episode.html", map[string]any{
		"Podcast":  podcast,
		"Episode":  episode,
		"AudioURL": "/media/podcasts/" + episode.FileName,
	})
}

// handleMedia serves stored audio with range support.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(s.store.Path(storage.PodcastsDir + "/" + name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) podcast(w http.ResponseWriter, r *http.Request) (*database.Podcast, bool) {
	podcast, err := s.db.GetPodcastBySlug(r.PathValue("slug"))
	if errors.Is(err, database.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		s.serverError(w, "loading podcast", err)
		return nil, false
	}
	return podcast, true
}

func (s *Server) audioSize(e database.Episode) int64 {
	info, err := os.Stat(s.store.Path(storage.PodcastsDir + "/" + e.FileName))
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *Server) base(r *http.Request) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("request failed", "step", what, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", "template", name, "error", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// longHTML renders a long description for content:encoded.
func longHTML(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTMLEscapeString(text)
	}
	return strings.TrimSpace(buf.String())
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", "url", "http://"+addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
