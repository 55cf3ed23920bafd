package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrEpisodeExists is returned when a podcast already has an episode for the
// requested date.
var ErrEpisodeExists = errors.New("episode already exists for podcast and date")

const episodeColumns = `id, slug, date, podcast_id, file_name, title, subtitle,
	short_description, long_description, full_text, duration, episode_number,
	published_at, created_at`

// CreateEpisode persists e. Within one transaction it refuses a second
// episode for the same (podcast, date), resolves e.Slug to a free slug
// (base, base-1, base-2, ...) and assigns the next episode number for the
// podcast. The stored episode is returned.
func (db *DB) CreateEpisode(e Episode) (*Episode, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM episodes WHERE podcast_id = ? AND date = ?", e.PodcastID, e.Date,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: podcast %s, date %s", ErrEpisodeExists, e.PodcastID, e.Date)
	}

	slug, err := freeSlug(tx, e.Slug)
	if err != nil {
		return nil, err
	}
	e.Slug = slug

	var last sql.NullInt64
	if err := tx.QueryRow(
		"SELECT MAX(episode_number) FROM episodes WHERE podcast_id = ?", e.PodcastID,
	).Scan(&last); err != nil {
		return nil, err
	}
	e.EpisodeNumber = int(last.Int64) + 1

	result, err := tx.Exec(
		`INSERT INTO episodes (slug, date, podcast_id, file_name, title, subtitle,
			short_description, long_description, full_text, duration, episode_number, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Slug, e.Date, e.PodcastID, e.FileName, e.Title, e.Subtitle,
		e.ShortDescription, e.LongDescription, e.FullText, e.Duration, e.EpisodeNumber,
		formatTime(e.PublishedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting episode %q: %w", e.Slug, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetEpisodeByID(id)
}

func freeSlug(tx *sql.Tx, base string) (string, error) {
	candidate := base
	for n := 1; ; n++ {
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM episodes WHERE slug = ?", candidate).Scan(&count); err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

// EpisodeExists reports whether the podcast has an episode for date.
func (db *DB) EpisodeExists(podcastID, date string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM episodes WHERE podcast_id = ? AND date = ?", podcastID, date,
	).Scan(&count)
	return count > 0, err
}

// SlugExists reports whether any episode already uses slug.
func (db *DB) SlugExists(slug string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM episodes WHERE slug = ?", slug).Scan(&count)
	return count > 0, err
}

// LastEpisodeNumber returns the highest episode number for the podcast, or 0.
func (db *DB) LastEpisodeNumber(podcastID string) (int, error) {
	var last sql.NullInt64
	err := db.conn.QueryRow(
		"SELECT MAX(episode_number) FROM episodes WHERE podcast_id = ?", podcastID,
	).Scan(&last)
	return int(last.Int64), err
}

// GetEpisodeByID returns an episode by row id, or ErrNotFound.
func (db *DB) GetEpisodeByID(id int64) (*Episode, error) {
	return scanEpisode(db.conn.QueryRow("SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id))
}

// GetEpisodeBySlug returns an episode by slug, or ErrNotFound.
func (db *DB) GetEpisodeBySlug(slug string) (*Episode, error) {
	return scanEpisode(db.conn.QueryRow("SELECT "+episodeColumns+" FROM episodes WHERE slug = ?", slug))
}

// GetLatestEpisode returns the podcast's most recent episode by date, or
// ErrNotFound.
func (db *DB) GetLatestEpisode(podcastID string) (*Episode, error) {
	return scanEpisode(db.conn.QueryRow(
		"SELECT "+episodeColumns+" FROM episodes WHERE podcast_id = ? ORDER BY date DESC, id DESC LIMIT 1",
		podcastID,
	))
}

// ListEpisodes returns a podcast's episodes, newest date first. A limit of 0
// returns all.
func (db *DB) ListEpisodes(podcastID string, limit int) ([]Episode, error) {
	query := "SELECT " + episodeColumns + " FROM episodes WHERE podcast_id = ? ORDER BY date DESC, id DESC"
	args := []any{podcastID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return db.queryEpisodes(query, args...)
}

// ListPublishedEpisodes returns a podcast's episodes published at or before
// now, newest first.
func (db *DB) ListPublishedEpisodes(podcastID string, now time.Time, limit int) ([]Episode, error) {
	query := "SELECT " + episodeColumns + ` FROM episodes
		WHERE podcast_id = ? AND published_at <= ? ORDER BY published_at DESC, id DESC`
	args := []any{podcastID, formatTime(now)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return db.queryEpisodes(query, args...)
}

func (db *DB) queryEpisodes(query string, args ...any) ([]Episode, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		e, err := scanEpisodeRow(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, *e)
	}
	return episodes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row *sql.Row) (*Episode, error) {
	e, err := scanEpisodeRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func scanEpisodeRow(s scanner) (*Episode, error) {
	var (
		e         Episode
		duration  sql.NullInt64
		published string
	)
	if err := s.Scan(
		&e.ID, &e.Slug, &e.Date, &e.PodcastID, &e.FileName, &e.Title, &e.Subtitle,
		&e.ShortDescription, &e.LongDescription, &e.FullText, &duration, &e.EpisodeNumber,
		&published, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		e.Duration = &d
	}
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return nil, fmt.Errorf("episode %q published_at: %w", e.Slug, err)
	}
	e.PublishedAt = t
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
