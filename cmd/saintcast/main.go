package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/database"
	"github.com/TobiSchelling/saintcast/internal/events"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/logging"
	"github.com/TobiSchelling/saintcast/internal/pipeline"
	"github.com/TobiSchelling/saintcast/internal/scheduler"
	"github.com/TobiSchelling/saintcast/internal/server"
	"github.com/TobiSchelling/saintcast/internal/storage"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "saintcast",
	Short:         "Daily podcasts about the saints of the day",
	Long:          "saintcast researches the saints and feasts of a date, writes a two-host script, voices it and publishes the episode.",
	Version:       version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(generateTomorrowCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(podcastsCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(biosCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("saintcast", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/saintcast/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure shows, API keys, and the AI provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Catalog:")
		fmt.Printf("  Podcasts: %d\n", stats.Podcasts)
		fmt.Printf("  Episodes: %d\n", stats.Episodes)
		fmt.Printf("  Biographies: %d (%d dates)\n", stats.Biographies, stats.BioDates)
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)

		podcasts, err := db.ListPodcasts()
		if err != nil {
			return err
		}
		if len(podcasts) > 0 {
			fmt.Println("\nLatest episodes:")
			for _, p := range podcasts {
				latest, err := db.GetLatestEpisode(p.ID)
				switch {
				case errors.Is(err, database.ErrNotFound):
					fmt.Printf("  %s: none\n", p.Slug)
				case err != nil:
					return err
				default:
					fmt.Printf("  %s: #%d %s (%s)\n", p.Slug, latest.EpisodeNumber, latest.Title, latest.Date)
				}
			}
		}

		fmt.Println("\nShows:")
		for _, show := range cfg.Shows {
			line := fmt.Sprintf("  %s (%s voices)", show.Name, show.Voices.Mode)
			if run, err := db.GetLastRun(show.Name); err == nil {
				line += fmt.Sprintf(": last run %s for %s", run.Outcome, run.Date)
			}
			fmt.Println(line)
		}

		ai := cfg.AI
		fmt.Printf("\nAI provider: %s (%s)\n", ai.Provider, ai.Model)
		if ai.Provider == "ollama" {
			p, err := llm.New(ai)
			if ollama, ok := p.(*llm.OllamaProvider); err == nil && ok {
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				if ollama.IsConfigured(ctx) {
					fmt.Println("  Ollama is running and the model is available.")
				} else {
					fmt.Println("  Ollama is not reachable or the model is not pulled.")
				}
			}
		}
		return nil
	},
}

// --- schedule command ---

var scheduleOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Generate tomorrow's episode for every show once a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		notifier, closeNotifier := openNotifier()
		defer closeNotifier()

		jobs := make([]scheduler.Job, 0, len(cfg.Shows))
		for _, show := range cfg.Shows {
			gen := pipeline.NewFromConfig(cfg, show, db, notifier, logger)
			jobs = append(jobs, scheduler.Job{Show: show.Name, Generator: gen})
		}

		hour, minute, err := cfg.Schedule.Clock()
		if err != nil {
			return err
		}
		sched := scheduler.NewScheduler(jobs, hour, minute, cfg.Schedule.Location(), logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if scheduleOnce {
			return sched.RunOnce(ctx)
		}
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "Run every show once and exit")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve feeds, episode pages and audio",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv, err := server.New(db, storeFor(cfg), server.Options{
			BaseURL: cfg.Server.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "saintcast.db")
	return database.Open(dbPath)
}

func storeFor(c *config.Config) *storage.FileStore {
	return storage.NewFileStore(c.GetMediaRoot())
}

// openNotifier connects the episode event publisher when one is configured.
// A broker that cannot be reached only disables events.
func openNotifier() (pipeline.Notifier, func()) {
	if cfg.Events.AMQPURL == "" {
		return nil, func() {}
	}
	pub, err := events.NewRabbitMQ(cfg.Events, logger)
	if err != nil {
		logger.Warn("episode events disabled", "error", err)
		return nil, func() {}
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("closing event publisher", "error", err)
		}
	}
}
