package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/database"
	"github.com/TobiSchelling/saintcast/internal/fetch"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/search"
	"github.com/TobiSchelling/saintcast/internal/storage"
	"github.com/TobiSchelling/saintcast/internal/tts"
)

// NewFromConfig wires a Generator against the real AI, search, TTS and
// storage backends. The remote clients are built on the first run that
// needs them, so a run that finds its episode already stored never asks
// for credentials. Search is optional; a missing key only disables it.
func NewFromConfig(cfg *config.Config, show config.Show, db *database.DB, notifier Notifier, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := New(cfg, show, Deps{
		DB:       db,
		Store:    storage.NewFileStore(cfg.GetMediaRoot()),
		Notifier: notifier,
		Logger:   logger,
	})
	g.connect = func(deps *Deps) error {
		return connectClients(cfg, show, deps)
	}
	return g
}

func connectClients(cfg *config.Config, show config.Show, deps *Deps) error {
	ai, err := llm.New(cfg.ShowAI(show))
	if err != nil {
		return fmt.Errorf("ai provider: %w", err)
	}
	synth, err := tts.NewElevenLabs(cfg.TTS)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	deps.AI = ai
	deps.Synth = synth

	searcher, err := search.New(cfg.Search)
	switch {
	case err == nil:
		deps.Searcher = searcher
		if cfg.Search.FetchPages {
			timeout := time.Duration(cfg.Search.TimeoutSeconds) * time.Second
			deps.Pages = fetch.NewPageFetcher(timeout, deps.Logger.With("component", "fetch"))
		}
	case errors.Is(err, search.ErrNotConfigured):
		deps.Logger.Info("web search disabled, research will use AI knowledge only", "reason", err)
	default:
		return fmt.Errorf("search: %w", err)
	}
	return nil
}
