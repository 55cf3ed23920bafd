package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/saintcast/internal/config"
	"github.com/TobiSchelling/saintcast/internal/llm"
	"github.com/TobiSchelling/saintcast/internal/pipeline"
)

const dateLayout = "2006-01-02"

// --- generate command ---

var (
	genDate        string
	genShow        string
	genPublishDate string
	dryRun         bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the episode for a date: research -> structure -> script -> audio -> metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		show, err := cfg.Show(genShow)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		loc := cfg.Schedule.Location()
		date := time.Now().In(loc).AddDate(0, 0, 1)
		if genDate != "" {
			if date, err = time.ParseInLocation(dateLayout, genDate, loc); err != nil {
				return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", genDate)
			}
		}
		publishAt := time.Now()
		if genPublishDate != "" {
			if publishAt, err = time.ParseInLocation(dateLayout, genPublishDate, loc); err != nil {
				return fmt.Errorf("invalid --publish-date %q: expected YYYY-MM-DD", genPublishDate)
			}
		}

		if dryRun {
			gen := pipeline.New(cfg, show, pipeline.Deps{DB: db, Store: storeFor(cfg), Logger: logger})
			printSteps(gen.DryRun(date))
			return nil
		}

		notifier, closeNotifier := openNotifier()
		defer closeNotifier()

		gen := pipeline.NewFromConfig(cfg, show, db, notifier, logger)
		result, err := gen.CreateFullPodcast(cmd.Context(), date, publishAt)
		printSteps(result)
		if err != nil {
			return err
		}
		fmt.Printf("\nEpisode #%d stored at %s\n", result.Episode.EpisodeNumber, result.Path)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&genDate, "date", "", "Episode date (YYYY-MM-DD, default tomorrow)")
	generateCmd.Flags().StringVar(&genShow, "show", "", "Show name (default first configured show)")
	generateCmd.Flags().StringVar(&genPublishDate, "publish-date", "", "Day to publish on at 17:00 local time (default today)")
	generateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func printSteps(result *pipeline.Result) {
	if result == nil {
		return
	}
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error (%s): %v\n", llm.Kind(step.Err), step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- generate-tomorrow command ---

var (
	tomorrowShow string
	tomorrowAll  bool
)

var generateTomorrowCmd = &cobra.Command{
	Use:   "generate-tomorrow",
	Short: "Generate tomorrow's episode unless it already exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		shows := cfg.Shows
		if !tomorrowAll {
			show, err := cfg.Show(tomorrowShow)
			if err != nil {
				return err
			}
			shows = []config.Show{show}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		notifier, closeNotifier := openNotifier()
		defer closeNotifier()

		var errs []error
		for _, show := range shows {
			gen := pipeline.NewFromConfig(cfg, show, db, notifier, logger)
			out, err := gen.GenerateTomorrow(cmd.Context())
			switch out.Status {
			case pipeline.OutcomeSucceeded:
				fmt.Printf("%s: succeeded for %s: %s\n", show.Name, out.Date.Format(dateLayout), out.Path)
			case pipeline.OutcomeSkipped:
				fmt.Printf("%s: skipped for %s (%s)\n", show.Name, out.Date.Format(dateLayout), out.Reason)
			default:
				fmt.Printf("%s: failed: %v\n", show.Name, err)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", show.Name, err))
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	generateTomorrowCmd.Flags().StringVar(&tomorrowShow, "show", "", "Show name (default first configured show)")
	generateTomorrowCmd.Flags().BoolVar(&tomorrowAll, "all", false, "Run every configured show")
}
