package database

import (
	"encoding/json"
	"time"
)

// Podcast is a show that episodes are published under.
type Podcast struct {
	ID          string
	Slug        string
	Religion    string
	Title       string
	Description *string
	Link        string
	CreatedAt   *string
}

// Episode is one generated, published podcast episode.
type Episode struct {
	ID               int64
	Slug             string
	Date             string // YYYY-MM-DD
	PodcastID        string
	FileName         string
	Title            string
	Subtitle         string
	ShortDescription string
	LongDescription  string
	FullText         string
	Duration         *int // seconds
	EpisodeNumber    int
	PublishedAt      time.Time
	CreatedAt        *string
}

// Biography is the upstream record for one saint or feast on one calendar.
// Payload holds the biography document as delivered by the upstream
// generator (short descriptions, quote, hagiography, traditions and so on).
type Biography struct {
	ID         int64
	Date       string
	Calendar   string
	Name       string
	Religion   string
	Payload    json.RawMessage
	ImportedAt *string
}

// Run outcomes recorded in generation_runs.
const (
	RunSkipped   = "skipped"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// GenerationRun records the outcome of one scheduled or manual generation.
type GenerationRun struct {
	ID         int64
	RunID      string
	Show       string
	Date       string
	Outcome    string
	Detail     *string
	FinishedAt *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Podcasts    int
	Episodes    int
	Biographies int
	BioDates    int
	Runs        int
	FailedRuns  int
}
