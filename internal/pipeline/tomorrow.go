package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/saintcast/internal/database"
)

// Outcome statuses reported by GenerateTomorrow.
const (
	OutcomeSkipped   = database.RunSkipped
	OutcomeSucceeded = database.RunSucceeded
	OutcomeFailed    = database.RunFailed
)

// Outcome reports what a scheduled run did.
type Outcome struct {
	Status string
	Date   time.Time
	Path   string
	Reason string
	Result *Result
}

// Tomorrow returns the civil date after now in the schedule's time zone.
func (g *Generator) Tomorrow() time.Time {
	local := g.deps.Now().In(g.cfg.Schedule.Location())
	return civil(local).AddDate(0, 0, 1)
}

// GenerateTomorrow creates the episode for the next day, published at the
// configured hour today. An episode that already exists is skipped without
// touching any external service.
func (g *Generator) GenerateTomorrow(ctx context.Context) (Outcome, error) {
	now := g.deps.Now()
	date := g.Tomorrow()
	out := Outcome{Date: date}
	logger := g.deps.Logger.With("show", g.show.Name, "date", date.Format(dateLayout))

	podcast, err := g.ResolvePodcast()
	if err != nil {
		out.Status = OutcomeFailed
		g.recordRun(uuid.NewString(), date, OutcomeFailed, err)
		return out, err
	}
	exists, err := g.deps.DB.EpisodeExists(podcast.ID, date.Format(dateLayout))
	if err != nil {
		out.Status = OutcomeFailed
		return out, err
	}
	if exists {
		logger.Info("episode already exists, skipping", "podcast", podcast.Slug)
		out.Status = OutcomeSkipped
		out.Reason = "exists"
		g.recordRun(uuid.NewString(), date, OutcomeSkipped, nil)
		return out, nil
	}

	res, err := g.CreateFullPodcast(ctx, date, now)
	out.Result = res
	switch {
	case err == nil:
		out.Status = OutcomeSucceeded
		out.Path = res.Path
		return out, nil
	case errors.Is(err, ErrLocked):
		logger.Info("another run holds the lock, skipping")
		out.Status = OutcomeSkipped
		out.Reason = "locked"
		return out, nil
	case errors.Is(err, database.ErrEpisodeExists):
		out.Status = OutcomeSkipped
		out.Reason = "exists"
		return out, nil
	default:
		out.Status = OutcomeFailed
		return out, err
	}
}
