package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/saintcast/internal/database"
)

// --- podcasts command ---

var podcastsCmd = &cobra.Command{
	Use:   "podcasts",
	Short: "Manage podcasts",
}

var (
	podcastReligion    string
	podcastDescription string
	podcastLink        string
)

var podcastsAddCmd = &cobra.Command{
	Use:   "add [slug] [title]",
	Short: "Add a podcast",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		p := database.Podcast{
			Slug:     args[0],
			Title:    args[1],
			Religion: podcastReligion,
			Link:     podcastLink,
		}
		if podcastDescription != "" {
			p.Description = &podcastDescription
		}
		created, err := db.InsertPodcast(p)
		if err != nil {
			return err
		}
		fmt.Printf("Added podcast %s: %s\n", created.Slug, created.ID)
		return nil
	},
}

var podcastsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List podcasts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		podcasts, err := db.ListPodcasts()
		if err != nil {
			return err
		}
		if len(podcasts) == 0 {
			fmt.Println("No podcasts defined. Add one with: saintcast podcasts add")
			return nil
		}

		rows := make([][]string, 0, len(podcasts))
		for _, p := range podcasts {
			rows = append(rows, []string{p.Slug, p.Title, p.Religion, p.ID})
		}
		fmt.Println(renderTable([]string{"Slug", "Title", "Religion", "ID"}, rows, nil))
		return nil
	},
}

func init() {
	podcastsAddCmd.Flags().StringVar(&podcastReligion, "religion", "catholic", "Religion the podcast follows")
	podcastsAddCmd.Flags().StringVar(&podcastDescription, "description", "", "Feed description")
	podcastsAddCmd.Flags().StringVar(&podcastLink, "link", "", "Podcast website")
	podcastsCmd.AddCommand(podcastsAddCmd)
	podcastsCmd.AddCommand(podcastsListCmd)
}

// --- episodes command ---

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "Inspect episodes",
}

var (
	episodesPodcast string
	episodesLimit   int
)

var episodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List episodes of a podcast",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var podcast *database.Podcast
		if episodesPodcast != "" {
			podcast, err = db.GetPodcastBySlug(episodesPodcast)
		} else {
			podcast, err = db.GetLatestPodcastByReligion("catholic")
		}
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("podcast not found")
		}
		if err != nil {
			return err
		}

		episodes, err := db.ListEpisodes(podcast.ID, episodesLimit)
		if err != nil {
			return err
		}
		if len(episodes) == 0 {
			fmt.Printf("No episodes for %s yet.\n", podcast.Slug)
			return nil
		}

		rows := make([][]string, 0, len(episodes))
		for _, e := range episodes {
			duration := "-"
			if e.Duration != nil {
				duration = fmt.Sprintf("%d:%02d", *e.Duration/60, *e.Duration%60)
			}
			rows = append(rows, []string{
				strconv.Itoa(e.EpisodeNumber),
				e.Date,
				e.Title,
				duration,
				e.PublishedAt.In(cfg.Schedule.Location()).Format("2006-01-02 15:04 MST"),
				e.FileName,
			})
		}
		fmt.Println(renderTable(
			[]string{"#", "Date", "Title", "Length", "Published", "File"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
		))
		return nil
	},
}

func init() {
	episodesListCmd.Flags().StringVar(&episodesPodcast, "podcast", "", "Podcast slug (default newest catholic podcast)")
	episodesListCmd.Flags().IntVarP(&episodesLimit, "limit", "n", 20, "Maximum episodes to list (0 for all)")
	episodesCmd.AddCommand(episodesListCmd)
}

// --- bios command ---

var biosCmd = &cobra.Command{
	Use:   "bios",
	Short: "Manage saint and feast biographies",
}

var biosImportCmd = &cobra.Command{
	Use:   "import [file.json]",
	Short: "Import biographies from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		bios, err := database.DecodeBiographies(f)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		dates := make(map[string]bool)
		for _, b := range bios {
			if _, err := db.UpsertBiography(b); err != nil {
				return err
			}
			dates[b.Date] = true
		}
		fmt.Printf("Imported %d biographies for %d dates\n", len(bios), len(dates))
		return nil
	},
}

var biosDate string

var biosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the biographies the pipeline will use for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		if biosDate == "" {
			return fmt.Errorf("--date is required")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		bios, err := db.GetBiographiesForDate(biosDate)
		if err != nil {
			return err
		}
		if len(bios) == 0 {
			fmt.Printf("No biographies for %s.\n", biosDate)
			return nil
		}

		rows := make([][]string, 0, len(bios))
		for _, b := range bios {
			summary := ""
			if s, ok := b.PromptData()["short_description"].(string); ok {
				summary = s
			}
			if r := []rune(summary); len(r) > 60 {
				summary = strings.TrimSpace(string(r[:60])) + "..."
			}
			rows = append(rows, []string{b.Name, b.Calendar, b.Religion, summary})
		}
		fmt.Println(renderTable([]string{"Name", "Calendar", "Religion", "Summary"}, rows, nil))
		return nil
	},
}

func init() {
	biosListCmd.Flags().StringVar(&biosDate, "date", "", "Date (YYYY-MM-DD)")
	biosCmd.AddCommand(biosImportCmd)
	biosCmd.AddCommand(biosListCmd)
}
