package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/database"
	"github.com/TobiSchelling/saintcast/internal/llm"
	llmmocks "github.com/TobiSchelling/saintcast/internal/llm/mocks"
	"github.com/TobiSchelling/saintcast/internal/metadata"
	"github.com/TobiSchelling/saintcast/internal/pipeline/mocks"
	"github.com/TobiSchelling/saintcast/internal/research"
	"github.com/TobiSchelling/saintcast/internal/script"
	"github.com/TobiSchelling/saintcast/internal/storage"
	"github.com/TobiSchelling/saintcast/internal/structure"
	"github.com/TobiSchelling/saintcast/internal/tts"
	ttsmocks "github.com/TobiSchelling/saintcast/internal/tts/mocks"
)

const testConfig = `
output:
  data_dir: %DATA%
storage:
  media_root: %DATA%/media
search:
  enabled: false
shows:
  - name: saints-and-seasons
    voices:
      mode: fixed
      fixed_voice_map:
        John: voice-john
        Maria: voice-maria
    audio:
      intro_filename: intro.mp3
      outro_filename: outro.mp3
`

// audioRunner stands in for ffmpeg and ffprobe: ffmpeg writes its output
// file, ffprobe reports a fixed duration.
type audioRunner struct {
	ffmpegCalls int
}

func (r *audioRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if name == "ffprobe" {
		return []byte("312.7\n"), nil
	}
	r.ffmpegCalls++
	out := args[len(args)-1]
	return nil, os.WriteFile(out, []byte("ID3 episode"), 0o644)
}

type PipelineTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	ai       *llmmocks.MockProvider
	synth    *ttsmocks.MockDialogueSynthesizer
	notifier *mocks.MockNotifier
	runner   *audioRunner

	cfg     *config.Config
	db      *database.DB
	store   *storage.FileStore
	podcast *database.Podcast
	now     time.Time
	gen     *Generator
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ai = llmmocks.NewMockProvider(s.ctrl)
	s.synth = ttsmocks.NewMockDialogueSynthesizer(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.runner = &audioRunner{}

	dir := s.T().TempDir()
	path := filepath.Join(dir, "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%DATA%", dir)), 0o644))
	cfg, err := config.Load(path)
	s.Require().NoError(err)
	s.cfg = cfg

	s.db, err = database.Open(filepath.Join(dir, "saintcast.db"))
	s.Require().NoError(err)
	s.store = storage.NewFileStore(cfg.GetMediaRoot())

	s.podcast, err = s.db.InsertPodcast(database.Podcast{
		Slug:     "saints-and-seasons",
		Religion: "catholic",
		Title:    "Saints and Seasons",
		Link:     "https://saints.benlocher.com",
	})
	s.Require().NoError(err)

	eastern, err := time.LoadLocation("America/New_York")
	s.Require().NoError(err)
	s.now = time.Date(2025, 12, 5, 12, 0, 0, 0, eastern)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.gen = New(cfg, cfg.Shows[0], Deps{
		DB:       s.db,
		Store:    s.store,
		AI:       s.ai,
		Synth:    s.synth,
		Runner:   s.runner,
		Notifier: s.notifier,
		Logger:   logger,
		Now:      func() time.Time { return s.now },
	})
}

func (s *PipelineTestSuite) TearDownTest() {
	s.ctrl.Finish()
	s.db.Close()
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

var nicholasDay = time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC)

func (s *PipelineTestSuite) addBiography(date, calendar, name string) {
	payload, err := json.Marshal(map[string]any{
		"title":             name,
		"short_description": "<p>Bishop of <b>Myra</b>, patron of children.</p>",
	})
	s.Require().NoError(err)
	_, err = s.db.UpsertBiography(database.Biography{
		Date:     date,
		Calendar: calendar,
		Name:     name,
		Religion: "catholic",
		Payload:  payload,
	})
	s.Require().NoError(err)
}

func (s *PipelineTestSuite) addEpisode(date string) {
	_, err := s.db.CreateEpisode(database.Episode{
		Slug:        date + "-earlier",
		Date:        date,
		PodcastID:   s.podcast.ID,
		FileName:    "saints_and_seasons_" + strings.ReplaceAll(date, "-", "_") + ".mp3",
		Title:       "Earlier",
		PublishedAt: time.Date(2025, 11, 1, 22, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
}

func respond[T llm.Schema](fill func(T)) func(context.Context, []llm.Message, llm.Schema) error {
	return func(_ context.Context, _ []llm.Message, target llm.Schema) error {
		fill(target.(T))
		return nil
	}
}

var nicholasLines = []script.FixedLine{
	{PodcastHostName: "Maria", Content: "[warmly] Welcome to Saints and Seasons!"},
	{PodcastHostName: "John", Content: "Today we remember Saint Nicholas of Myra."},
	{PodcastHostName: "Maria", Content: "He left gold in the shoes of three sisters."},
	{PodcastHostName: "John", Content: "Set out your shoes tonight. Goodbye!"},
}

// expectStages scripts the AI calls of a complete run with no web search.
func (s *PipelineTestSuite) expectStages() {
	queries := []string{"St. Nicholas patronage", "St. Nicholas gifts", "Myra history", "Nicholas shoes custom"}
	gomock.InOrder(
		s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&research.Queries{})).
			DoAndReturn(respond(func(q *research.Queries) { q.Queries = queries })),
		s.ai.EXPECT().CompleteText(gomock.Any(), gomock.Any(), 1000).Return("Nicholas was bishop of Myra.", nil).Times(len(queries)),
		s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&structure.Response{})).
			DoAndReturn(func(_ context.Context, msgs []llm.Message, target llm.Schema) error {
				s.Contains(msgs[1].Content, `"search_summaries":[{"query":"St. Nicholas patronage"`)
				s.Contains(msgs[1].Content, "Bishop of Myra, patron of children.")
				target.(*structure.Response).Feasts = []structure.FeastSummary{{
					Title:     "Saint Nicholas of Myra",
					Calendars: []string{"catholic"},
					Summary:   "Bishop of Myra and secret gift-giver. Patron of children.",
				}}
				return nil
			}),
		s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&script.FixedScript{})).
			DoAndReturn(respond(func(fs *script.FixedScript) { fs.Lines = nicholasLines })),
		s.ai.EXPECT().CompleteText(gomock.Any(), gomock.Any(), 100).Return("Saint Nicholas of Myra", nil),
		s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&metadata.Descriptions{})).
			DoAndReturn(respond(func(d *metadata.Descriptions) {
				d.Subtitle = "Gold in the night"
				d.ShortDescription = "The bishop who gave in secret."
				d.LongDescription = "Meet Saint Nicholas."
			})),
	)
}

func (s *PipelineTestSuite) TestCreateFullPodcastSaintNicholas() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	s.addBiography("2025-12-06", "Divino Afflatu - 1954", "Saint Nicholas of Myra")
	for day := 1; day <= 7; day++ {
		s.addEpisode(fmt.Sprintf("2025-11-%02d", day))
	}
	s.expectStages()

	var spoken []string
	s.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inputs []tts.DialogueInput, w io.Writer) error {
			for _, in := range inputs {
				spoken = append(spoken, in.Speaker+"|"+in.VoiceID+"|"+in.Text)
			}
			_, err := w.Write([]byte("ID3 part"))
			return err
		}).MinTimes(1)
	s.notifier.EXPECT().EpisodeCreated(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p *database.Podcast, e *database.Episode) error {
			s.Equal(s.podcast.ID, p.ID)
			s.Equal(8, e.EpisodeNumber)
			return nil
		})

	res, err := s.gen.CreateFullPodcast(context.Background(), nicholasDay, s.now)
	s.Require().NoError(err)

	s.Equal("podcasts/saints_and_seasons_2025_12_06.mp3", res.Path)
	s.True(s.store.Exists(res.Path))
	s.Equal(2, s.runner.ffmpegCalls, "normalize then final loudness pass")
	s.Equal(0, res.Degraded)

	names := make([]string, 0, len(res.Steps))
	for _, st := range res.Steps {
		s.NoError(st.Err)
		names = append(names, st.Name)
	}
	s.Equal([]string{"Biographies", "Research", "Structure", "Script", "Audio", "Metadata", "Persist"}, names)
	s.Equal("Found 1 biographies", res.Steps[0].Summary)

	s.Equal([]string{
		"Maria|voice-maria|[warmly] Welcome to Saints and Seasons!",
		"John|voice-john|Today we remember Saint Nicholas of Myra.",
		"Maria|voice-maria|He left gold in the shoes of three sisters.",
		"John|voice-john|Set out your shoes tonight. Goodbye!",
	}, spoken)

	ep, err := s.db.GetLatestEpisode(s.podcast.ID)
	s.Require().NoError(err)
	s.Equal(res.Episode.ID, ep.ID)
	s.Equal(8, ep.EpisodeNumber)
	s.Equal("2025-12-06", ep.Date)
	s.Equal("2025-12-06-saint-nicholas-of-myra", ep.Slug)
	s.Equal("saints_and_seasons_2025_12_06.mp3", ep.FileName)
	s.True(strings.HasPrefix(ep.Title, "December 06, 2025:"))
	s.Equal("December 06, 2025: Saint Nicholas of Myra", ep.Title)
	s.True(strings.HasPrefix(ep.LongDescription, metadata.DayURL(s.cfg.Site.BaseURL, nicholasDay)+"\n\n"))
	s.Equal("Maria: [warmly] Welcome to Saints and Seasons!\n"+
		"John: Today we remember Saint Nicholas of Myra.\n"+
		"Maria: He left gold in the shoes of three sisters.\n"+
		"John: Set out your shoes tonight. Goodbye!", ep.FullText)
	s.Require().NotNil(ep.Duration)
	s.Equal(312, *ep.Duration)
	s.Equal(time.Date(2025, 12, 5, 22, 0, 0, 0, time.UTC), ep.PublishedAt.UTC())

	run, err := s.db.GetLastRun("saints-and-seasons")
	s.Require().NoError(err)
	s.Equal(database.RunSucceeded, run.Outcome)
	s.Equal(res.RunID, run.RunID)
}

func (s *PipelineTestSuite) TestCreateFullPodcastUsesLetteredName() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	s.Require().NoError(os.MkdirAll(s.store.Path(storage.PodcastsDir), 0o755))
	s.Require().NoError(os.WriteFile(s.store.Path("podcasts/saints_and_seasons_2025_12_06.mp3"), []byte("old"), 0o644))
	s.expectStages()
	s.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.notifier.EXPECT().EpisodeCreated(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	res, err := s.gen.CreateFullPodcast(context.Background(), nicholasDay, s.now)
	s.Require().NoError(err)
	s.Equal("podcasts/saints_and_seasons_2025_12_06_a.mp3", res.Path)
	s.Equal(1, res.Episode.EpisodeNumber)
	s.Equal("saints_and_seasons_2025_12_06_a.mp3", res.Episode.FileName)
}

func (s *PipelineTestSuite) TestGenerateTomorrowSkipsExistingEpisode() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	s.addEpisode("2025-12-06")

	out, err := s.gen.GenerateTomorrow(context.Background())
	s.Require().NoError(err)
	s.Equal(OutcomeSkipped, out.Status)
	s.Equal("exists", out.Reason)
	s.Equal(nicholasDay, out.Date)
	s.Equal(0, s.runner.ffmpegCalls)

	run, err := s.db.GetLastRun("saints-and-seasons")
	s.Require().NoError(err)
	s.Equal(database.RunSkipped, run.Outcome)
}

func (s *PipelineTestSuite) TestGenerateTomorrowSucceeds() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	s.expectStages()
	s.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.notifier.EXPECT().EpisodeCreated(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	out, err := s.gen.GenerateTomorrow(context.Background())
	s.Require().NoError(err)
	s.Equal(OutcomeSucceeded, out.Status)
	s.Equal("podcasts/saints_and_seasons_2025_12_06.mp3", out.Path)

	// A second trigger for the same day does nothing.
	out, err = s.gen.GenerateTomorrow(context.Background())
	s.Require().NoError(err)
	s.Equal(OutcomeSkipped, out.Status)
}

func (s *PipelineTestSuite) TestTTSFailureLeavesNothingBehind() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	queries := []string{"St. Nicholas patronage"}
	s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&research.Queries{})).
		DoAndReturn(respond(func(q *research.Queries) { q.Queries = queries }))
	s.ai.EXPECT().CompleteText(gomock.Any(), gomock.Any(), 1000).Return("", errors.New("timeout"))
	s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&structure.Response{})).
		DoAndReturn(respond(func(r *structure.Response) {
			r.Feasts = []structure.FeastSummary{{Title: "Saint Nicholas of Myra"}}
		}))
	s.ai.EXPECT().CompleteStructured(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(&script.FixedScript{})).
		DoAndReturn(respond(func(fs *script.FixedScript) { fs.Lines = nicholasLines }))
	s.synth.EXPECT().Synthesize(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("elevenlabs returned 401"))

	out, err := s.gen.GenerateTomorrow(context.Background())
	s.Require().Error(err)
	s.Equal(OutcomeFailed, out.Status)
	s.Equal(1, out.Result.Degraded)

	var stepErr *StepError
	s.Require().ErrorAs(err, &stepErr)
	s.Equal("Audio", stepErr.Step)
	s.Contains(err.Error(), "elevenlabs returned 401")

	steps := out.Result.Steps
	s.Require().Len(steps, 5)
	s.Equal([]string{"Biographies", "Research", "Structure", "Script", "Audio"},
		[]string{steps[0].Name, steps[1].Name, steps[2].Name, steps[3].Name, steps[4].Name})
	s.NoError(steps[3].Err)
	s.ErrorContains(steps[4].Err, "elevenlabs returned 401")

	exists, err := s.db.EpisodeExists(s.podcast.ID, "2025-12-06")
	s.Require().NoError(err)
	s.False(exists)
	s.False(s.store.Exists("podcasts/saints_and_seasons_2025_12_06.mp3"))

	run, err := s.db.GetLastRun("saints-and-seasons")
	s.Require().NoError(err)
	s.Equal(database.RunFailed, run.Outcome)
	s.Require().NotNil(run.Detail)
	s.Contains(*run.Detail, "Audio")
}

func (s *PipelineTestSuite) TestNoBiographiesFailsBeforeAI() {
	res, err := s.gen.CreateFullPodcast(context.Background(), nicholasDay, s.now)
	s.Require().ErrorIs(err, ErrNoBiographies)

	var stepErr *StepError
	s.Require().ErrorAs(err, &stepErr)
	s.Equal("Biographies", stepErr.Step)

	s.Require().Len(res.Steps, 1)
	s.Equal("Biographies", res.Steps[0].Name)
	s.ErrorIs(res.Steps[0].Err, ErrNoBiographies)
}

func (s *PipelineTestSuite) TestExistingEpisodeSkipsWithoutCredentials() {
	s.T().Setenv("OPENAI_API_KEY", "")
	s.T().Setenv("ELEVEN_LABS_API_KEY", "")
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	s.addEpisode("2025-12-06")

	gen := NewFromConfig(s.cfg, s.cfg.Shows[0], s.db, nil, nil)
	gen.deps.Now = func() time.Time { return s.now }

	out, err := gen.GenerateTomorrow(context.Background())
	s.Require().NoError(err)
	s.Equal(OutcomeSkipped, out.Status)
	s.Equal("exists", out.Reason)
	s.Nil(gen.deps.AI)
}

func (s *PipelineTestSuite) TestMissingCredentialsFailInClientsStep() {
	s.T().Setenv("OPENAI_API_KEY", "")
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")

	gen := NewFromConfig(s.cfg, s.cfg.Shows[0], s.db, nil, nil)
	res, err := gen.CreateFullPodcast(context.Background(), nicholasDay, s.now)
	s.Require().ErrorIs(err, llm.ErrProviderUnavailable)

	var stepErr *StepError
	s.Require().ErrorAs(err, &stepErr)
	s.Equal("Clients", stepErr.Step)
	s.Require().Len(res.Steps, 1)
	s.Equal("provider_unavailable", llm.Kind(res.Steps[0].Err))

	run, err := s.db.GetLastRun("saints-and-seasons")
	s.Require().NoError(err)
	s.Equal(database.RunFailed, run.Outcome)
}

func (s *PipelineTestSuite) TestHeldLockSkips() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	lockDir := filepath.Join(s.cfg.GetDataDir(), "locks")
	s.Require().NoError(os.MkdirAll(lockDir, 0o755))
	held := flock.New(filepath.Join(lockDir, "saints-and-seasons_2025-12-06.lock"))
	ok, err := held.TryLock()
	s.Require().NoError(err)
	s.Require().True(ok)
	defer held.Unlock()

	out, err := s.gen.GenerateTomorrow(context.Background())
	s.Require().NoError(err)
	s.Equal(OutcomeSkipped, out.Status)
	s.Equal("locked", out.Reason)
}

func (s *PipelineTestSuite) TestResolvePodcastOrder() {
	other, err := s.db.InsertPodcast(database.Podcast{Slug: "saintly-adventures", Religion: "catholic", Title: "Saintly Adventures"})
	s.Require().NoError(err)

	show := s.cfg.Shows[0]
	gen := New(s.cfg, show, Deps{DB: s.db, Store: s.store})
	p, err := gen.ResolvePodcast()
	s.Require().NoError(err)
	s.Equal(other.ID, p.ID, "newest catholic podcast")

	show.Linkage = config.Linkage{PodcastSlug: "saints-and-seasons"}
	p, err = New(s.cfg, show, Deps{DB: s.db, Store: s.store}).ResolvePodcast()
	s.Require().NoError(err)
	s.Equal(s.podcast.ID, p.ID)

	show.Linkage = config.Linkage{PodcastUUID: other.ID, PodcastSlug: "saints-and-seasons"}
	p, err = New(s.cfg, show, Deps{DB: s.db, Store: s.store}).ResolvePodcast()
	s.Require().NoError(err)
	s.Equal(other.ID, p.ID)
}

func (s *PipelineTestSuite) TestDryRunMakesNoCalls() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")

	res := s.gen.DryRun(nicholasDay)
	s.Require().Len(res.Steps, 4)
	s.Contains(res.Steps[0].Summary, "saints-and-seasons")
	s.Contains(res.Steps[1].Summary, "Saint Nicholas of Myra (catholic)")
	s.Equal("[dry-run] Would store podcasts/saints_and_seasons_2025_12_06.mp3", res.Steps[2].Summary)
	s.Equal("[dry-run] Would create episode #1 as 2025-12-06-saint-nicholas-of-myra", res.Steps[3].Summary)
}

func (s *PipelineTestSuite) TestDryRunPlansNumberAndFreeSlug() {
	s.addBiography("2025-12-06", "catholic", "Saint Nicholas of Myra")
	s.addEpisode("2025-12-01")
	s.addEpisode("2025-12-02")

	other, err := s.db.InsertPodcast(database.Podcast{Slug: "saintly-adventures", Religion: "kids", Title: "Saintly Adventures"})
	s.Require().NoError(err)
	_, err = s.db.CreateEpisode(database.Episode{
		Slug:        "2025-12-06-saint-nicholas-of-myra",
		Date:        "2025-12-06",
		PodcastID:   other.ID,
		FileName:    "saintly_adventures_2025_12_06.mp3",
		Title:       "Nicholas for kids",
		PublishedAt: time.Date(2025, 12, 5, 22, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	res := s.gen.DryRun(nicholasDay)
	s.Require().Len(res.Steps, 4)
	s.NoError(res.Steps[3].Err)
	s.Equal("[dry-run] Would create episode #3 as 2025-12-06-saint-nicholas-of-myra-1", res.Steps[3].Summary)
}
