// Package scheduler triggers next-day generation once a day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/saintcast/internal/pipeline"
)

// Generator defines the daily trigger of one show.
type Generator interface {
	GenerateTomorrow(ctx context.Context) (pipeline.Outcome, error)
}

// Job is a named show generator.
type Job struct {
	Show      string
	Generator Generator
}

type Scheduler struct {
	jobs    []Job
	hour    int
	minute  int
	loc     *time.Location
	timeout time.Duration
	logger  *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler runs jobs every day at hour:minute in loc.
func NewScheduler(jobs []Job, hour, minute int, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		jobs:    jobs,
		hour:    hour,
		minute:  minute,
		loc:     loc,
		timeout: 2 * time.Hour,
		logger:  logger,
		now:     time.Now,
		after:   time.After,
	}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "run_at", fmt.Sprintf("%02d:%02d", s.hour, s.minute), "timezone", s.loc.String(), "shows", len(s.jobs))

	for {
		next := NextRun(s.now(), s.hour, s.minute, s.loc)
		s.logger.Info("next run scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce triggers every show in order. A failing show is logged and the
// rest still run; the joined errors are returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		out, err := job.Generator.GenerateTomorrow(runCtx)
		cancel()

		logger := s.logger.With("show", job.Show, "status", out.Status)
		if !out.Date.IsZero() {
			logger = logger.With("date", out.Date.Format("2006-01-02"))
		}
		if err != nil {
			logger.Error("generation failed", "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", job.Show, err))
			continue
		}
		logger.Info("generation finished", "path", out.Path, "reason", out.Reason)
	}
	return errors.Join(errs...)
}
