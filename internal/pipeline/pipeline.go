//go:generate mockgen -source=pipeline.go -destination=mocks/mocks.go -package=mocks

// Package pipeline runs the stages that turn a calendar date into a stored,
// published episode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/TobiSchelling/saintcast/internal/audio"
	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/database"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/metadata"
	"github.com/TobiSchelling/saintcast/internal/research"
	"github.com/TobiSchelling/saintcast/internal/script"
	"github.com/TobiSchelling/saintcast/internal/search"
	"github.com/TobiSchelling/saintcast/internal/storage"
	"github.com/TobiSchelling/saintcast/internal/structure"
	"github.com/TobiSchelling/saintcast/internal/tts"
)

const dateLayout = "2006-01-02"

var (
	// ErrLocked is returned when another run holds the lock for the same
	// show and date.
	ErrLocked = errors.New("generation already running")
	// ErrNoBiographies is returned when the date has nothing to talk about.
	ErrNoBiographies = errors.New("no biographies for date")
	// ErrNoPodcast is returned when a show's linkage resolves to no podcast.
	ErrNoPodcast = errors.New("no podcast to publish into")
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// StepError names the step a run failed in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

// Result holds the results of a full pipeline run.
type Result struct {
	RunID    string
	Date     time.Time
	Path     string
	Episode  *database.Episode
	Degraded int
	Steps    []StepResult
}

// Notifier is told about every stored episode.
type Notifier interface {
	EpisodeCreated(ctx context.Context, podcast *database.Podcast, episode *database.Episode) error
}

// Deps are the collaborators a Generator runs with. Searcher, Pages and
// Notifier are optional; a nil Runner runs ffmpeg directly.
type Deps struct {
	DB       *database.DB
	Store    *storage.FileStore
	AI       llm.Provider
	Searcher search.Searcher
	Pages    research.PageSource
	Synth    tts.DialogueSynthesizer
	Runner   audio.Runner
	Notifier Notifier
	LockDir  string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Generator produces episodes for one show.
type Generator struct {
	cfg  *config.Config
	show config.Show
	deps Deps

	// connect fills in the remote clients of deps before the first run
	// that calls them. Nil once done.
	connect func(*Deps) error
}

// New creates a Generator for show.
func New(cfg *config.Config, show config.Show, deps Deps) *Generator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.LockDir == "" {
		deps.LockDir = filepath.Join(cfg.GetDataDir(), "locks")
	}
	return &Generator{cfg: cfg, show: show, deps: deps}
}

// Show returns the show this generator publishes.
func (g *Generator) Show() config.Show { return g.show }

// ResolvePodcast finds the podcast the show publishes into: by uuid, then by
// slug, then the newest catholic podcast.
func (g *Generator) ResolvePodcast() (*database.Podcast, error) {
	link := g.show.Linkage
	if link.PodcastUUID != "" {
		p, err := g.deps.DB.GetPodcastByID(link.PodcastUUID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}
	if link.PodcastSlug != "" {
		p, err := g.deps.DB.GetPodcastBySlug(link.PodcastSlug)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}
	p, err := g.deps.DB.GetLatestPodcastByReligion("catholic")
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w for show %q", ErrNoPodcast, g.show.Name)
	}
	return p, err
}

// CreateFullPodcast runs every stage for date and stores the episode, to be
// published at 17:00 Eastern on publishAt's day. A failed run leaves neither
// an episode row nor stored audio.
func (g *Generator) CreateFullPodcast(ctx context.Context, date, publishAt time.Time) (*Result, error) {
	runID := uuid.NewString()
	res, err := g.create(ctx, runID, date, publishAt)
	g.recordRun(runID, date, outcomeFor(err), err)
	return res, err
}

func (g *Generator) runLogger(runID string, date time.Time) *slog.Logger {
	return g.deps.Logger.With("run_id", runID, "show", g.show.Name, "date", date.Format(dateLayout))
}

func (g *Generator) lock(date time.Time) (*flock.Flock, error) {
	if err := os.MkdirAll(g.deps.LockDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(g.deps.LockDir, g.show.Name+"_"+date.Format(dateLayout)+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

func (g *Generator) create(ctx context.Context, runID string, date, publishAt time.Time) (*Result, error) {
	date = civil(date)
	logger := g.runLogger(runID, date)
	r := &Result{RunID: runID, Date: date}

	lock, err := g.lock(date)
	if err != nil {
		return r, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	podcast, err := g.ResolvePodcast()
	if err != nil {
		return r, g.fail(r, logger, "Podcast", err)
	}
	exists, err := g.deps.DB.EpisodeExists(podcast.ID, date.Format(dateLayout))
	if err != nil {
		return r, g.fail(r, logger, "Podcast", err)
	}
	if exists {
		return r, fmt.Errorf("%w: %s on %s", database.ErrEpisodeExists, podcast.Slug, date.Format(dateLayout))
	}

	if g.connect != nil {
		if err := g.connect(&g.deps); err != nil {
			return r, g.fail(r, logger, "Clients", err)
		}
		g.connect = nil
	}

	logger.Info("starting podcast generation", "podcast", podcast.Slug)

	// Step 1: Biographies
	records, err := g.deps.DB.GetBiographiesForDate(date.Format(dateLayout))
	if err != nil {
		return r, g.fail(r, logger, "Biographies", err)
	}
	if len(records) == 0 {
		return r, g.fail(r, logger, "Biographies", ErrNoBiographies)
	}
	bios := make([]map[string]any, 0, len(records))
	for _, b := range records {
		bios = append(bios, b.PromptData())
	}
	r.Steps = append(r.Steps, StepResult{Name: "Biographies", Summary: fmt.Sprintf("Found %d biographies", len(bios))})

	// Step 2: Research
	opts := []research.Option{research.WithLogger(logger.With("stage", "research"))}
	if g.deps.Searcher != nil {
		opts = append(opts, research.WithSearcher(g.deps.Searcher))
	}
	if g.deps.Pages != nil {
		opts = append(opts, research.WithPageSource(g.deps.Pages))
	}
	found, err := research.New(g.deps.AI, g.show.Prompts.ResearchQueries, opts...).Run(ctx, bios)
	if err != nil {
		return r, g.fail(r, logger, "Research", err)
	}
	r.Degraded = found.Degraded
	r.Steps = append(r.Steps, StepResult{
		Name:    "Research",
		Summary: fmt.Sprintf("Researched %d queries (%d degraded)", len(found.Summaries), found.Degraded),
	})

	// Step 3: Structure
	feasts, err := structure.New(g.deps.AI, g.show.Prompts.StructuredBio, logger.With("stage", "structure")).
		Summarize(ctx, bios, found.Summaries)
	if err != nil {
		return r, g.fail(r, logger, "Structure", err)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Structure", Summary: fmt.Sprintf("Summarized %d feasts", len(feasts))})

	// Step 4: Script
	sc, err := script.New(g.deps.AI, g.show, logger.With("stage", "script")).Generate(ctx, feasts, date, bios)
	if err != nil {
		return r, g.fail(r, logger, "Script", err)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Script",
		Summary: fmt.Sprintf("Wrote %d lines for %d speakers", len(sc.Lines), len(sc.Voices)),
	})

	// Step 5: Audio
	workDir, err := os.MkdirTemp("", "saintcast-"+runID+"-")
	if err != nil {
		return r, g.fail(r, logger, "Audio", err)
	}
	defer os.RemoveAll(workDir)

	name, err := g.renderAudio(ctx, logger, sc, date, workDir)
	if err != nil {
		return r, g.fail(r, logger, "Audio", err)
	}
	r.Path = name
	r.Steps = append(r.Steps, StepResult{Name: "Audio", Summary: "Stored " + name})

	// Step 6: Metadata
	meta := metadata.New(g.deps.AI, g.cfg.Site.BaseURL, logger.With("stage", "metadata")).Generate(ctx, feasts, sc.Lines, date)
	if sc.Title != "" {
		logger.Debug("script title", "title", sc.Title)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Metadata", Summary: meta.Title})

	// Step 7: Persist
	episode := database.Episode{
		Slug:             meta.Slug,
		Date:             date.Format(dateLayout),
		PodcastID:        podcast.ID,
		FileName:         path.Base(name),
		Title:            meta.Title,
		Subtitle:         meta.Subtitle,
		ShortDescription: meta.ShortDescription,
		LongDescription:  meta.LongDescription,
		FullText:         meta.FullText,
		Duration:         g.duration(ctx, logger, name),
		PublishedAt:      metadata.PublishTime(publishAt, g.cfg.Schedule.Location()),
	}
	stored, err := g.deps.DB.CreateEpisode(episode)
	if err != nil {
		if derr := g.deps.Store.Delete(name); derr != nil {
			logger.Warn("failed to remove stored audio", "file", name, "error", derr)
		}
		return r, g.fail(r, logger, "Persist", err)
	}
	r.Episode = stored
	r.Steps = append(r.Steps, StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("Episode #%d %s", stored.EpisodeNumber, stored.Slug),
	})
	logger.Info("podcast generation complete", "episode", stored.Slug, "number", stored.EpisodeNumber, "file", name)

	if g.deps.Notifier != nil {
		if err := g.deps.Notifier.EpisodeCreated(ctx, podcast, stored); err != nil {
			logger.Warn("episode notification failed", "error", err)
		}
	}
	return r, nil
}

func (g *Generator) renderAudio(ctx context.Context, logger *slog.Logger, sc *script.Script, date time.Time, workDir string) (string, error) {
	if g.deps.Synth == nil {
		return "", errors.New("no dialogue synthesizer configured")
	}
	parts, err := tts.NewRenderer(g.deps.Synth, g.cfg.TTS, logger.With("stage", "tts")).
		Render(ctx, sc.Lines, sc.Voices, workDir)
	if err != nil {
		return "", err
	}

	name, err := g.deps.Store.NextEpisodeName(g.show.Output.FilenamePrefix, date)
	if err != nil {
		return "", err
	}
	merged := filepath.Join(workDir, path.Base(name))
	intro := g.deps.Store.Asset(g.show.Audio.IntroFilename)
	outro := g.deps.Store.Asset(g.show.Audio.OutroFilename)

	assembler := audio.NewAssembler(g.cfg.Audio, g.deps.Runner, logger.With("stage", "audio"))
	if err := assembler.Assemble(ctx, parts, intro, outro, merged); err != nil {
		return "", err
	}
	if _, err := g.deps.Store.Save(name, merged); err != nil {
		return "", err
	}
	return name, nil
}

func (g *Generator) duration(ctx context.Context, logger *slog.Logger, name string) *int {
	assembler := audio.NewAssembler(g.cfg.Audio, g.deps.Runner, logger)
	d, err := assembler.ProbeDuration(ctx, g.deps.Store.Path(name))
	if err != nil {
		logger.Warn("could not read episode duration", "file", name, "error", err)
		return nil
	}
	seconds := int(d)
	return &seconds
}

func (g *Generator) fail(r *Result, logger *slog.Logger, step string, err error) error {
	logger.Error("step failed", "step", step, "kind", llm.Kind(err), "error", err)
	r.Steps = append(r.Steps, StepResult{Name: step, Err: err})
	return &StepError{Step: step, Err: err}
}

func (g *Generator) recordRun(runID string, date time.Time, outcome string, err error) {
	if g.deps.DB == nil {
		return
	}
	var detail *string
	if err != nil {
		msg := err.Error()
		detail = &msg
	}
	if _, rerr := g.deps.DB.InsertRun(runID, g.show.Name, civil(date).Format(dateLayout), outcome, detail); rerr != nil {
		g.deps.Logger.Warn("failed to record run", "run_id", runID, "error", rerr)
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return database.RunSucceeded
	case errors.Is(err, ErrLocked), errors.Is(err, database.ErrEpisodeExists):
		return database.RunSkipped
	default:
		return database.RunFailed
	}
}

// civil drops the clock and zone from t, keeping its calendar date.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DryRun shows what would be done without executing.
func (g *Generator) DryRun(date time.Time) *Result {
	date = civil(date)
	day := date.Format(dateLayout)
	r := &Result{Date: date}

	podcast, err := g.ResolvePodcast()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Podcast", Err: err})
	} else {
		summary := fmt.Sprintf("[dry-run] Would publish into %s (%s)", podcast.Slug, podcast.ID)
		if exists, _ := g.deps.DB.EpisodeExists(podcast.ID, day); exists {
			summary = fmt.Sprintf("[dry-run] Episode already exists in %s for %s", podcast.Slug, day)
		}
		r.Steps = append(r.Steps, StepResult{Name: "Podcast", Summary: summary})
	}

	bios, err := g.deps.DB.GetBiographiesForDate(day)
	names := make([]string, 0, len(bios))
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Biographies", Err: err})
	} else {
		listed := make([]string, 0, len(bios))
		for _, b := range bios {
			names = append(names, b.Name)
			listed = append(listed, b.Name+" ("+b.Calendar+")")
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    "Biographies",
			Summary: fmt.Sprintf("[dry-run] %d biographies: %v", len(bios), listed),
		})
	}

	if name, err := g.deps.Store.NextEpisodeName(g.show.Output.FilenamePrefix, date); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Audio", Err: err})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Audio", Summary: "[dry-run] Would store " + name})
	}

	if podcast != nil {
		r.Steps = append(r.Steps, g.plannedEpisode(podcast, date, names))
	}
	return r
}

// plannedEpisode predicts the number and slug the next episode would get.
// The real slug is built from the structured feast titles, so it can differ.
func (g *Generator) plannedEpisode(podcast *database.Podcast, date time.Time, names []string) StepResult {
	last, err := g.deps.DB.LastEpisodeNumber(podcast.ID)
	if err != nil {
		return StepResult{Name: "Metadata", Err: err}
	}
	base := metadata.SlugBase(date, names)
	slug := base
	for n := 1; ; n++ {
		taken, err := g.deps.DB.SlugExists(slug)
		if err != nil {
			return StepResult{Name: "Metadata", Err: err}
		}
		if !taken {
			break
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	return StepResult{
		Name:    "Metadata",
		Summary: fmt.Sprintf("[dry-run] Would create episode #%d as %s", last+1, slug),
	}
}
