package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const podcastColumns = "id, slug, religion, title, description, link, created_at"

// InsertPodcast stores a podcast, assigning a UUID when p.ID is empty.
func (db *DB) InsertPodcast(p Podcast) (*Podcast, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		return nil, fmt.Errorf("podcast id %q: %w", p.ID, err)
	}
	_, err := db.conn.Exec(
		`INSERT INTO podcasts (id, slug, religion, title, description, link)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Religion, p.Title, p.Description, p.Link,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting podcast %q: %w", p.Slug, err)
	}
	return db.GetPodcastByID(p.ID)
}

// GetPodcastByID returns the podcast with the given UUID, or ErrNotFound.
func (db *DB) GetPodcastByID(id string) (*Podcast, error) {
	return scanPodcast(db.conn.QueryRow(
		"SELECT "+podcastColumns+" FROM podcasts WHERE id = ?", id,
	))
}

// GetPodcastBySlug returns the podcast with the given slug, or ErrNotFound.
func (db *DB) GetPodcastBySlug(slug string) (*Podcast, error) {
	return scanPodcast(db.conn.QueryRow(
		"SELECT "+podcastColumns+" FROM podcasts WHERE slug = ?", slug,
	))
}

// GetLatestPodcastByReligion returns the most recently created podcast for a
// religion, or ErrNotFound.
func (db *DB) GetLatestPodcastByReligion(religion string) (*Podcast, error) {
	return scanPodcast(db.conn.QueryRow(
		"SELECT "+podcastColumns+" FROM podcasts WHERE religion = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		religion,
	))
}

// ListPodcasts returns all podcasts ordered by slug.
func (db *DB) ListPodcasts() ([]Podcast, error) {
	rows, err := db.conn.Query("SELECT " + podcastColumns + " FROM podcasts ORDER BY slug")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var podcasts []Podcast
	for rows.Next() {
		var p Podcast
		if err := rows.Scan(&p.ID, &p.Slug, &p.Religion, &p.Title, &p.Description, &p.Link, &p.CreatedAt); err != nil {
			return nil, err
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, rows.Err()
}

func scanPodcast(row *sql.Row) (*Podcast, error) {
	var p Podcast
	err := row.Scan(&p.ID, &p.Slug, &p.Religion, &p.Title, &p.Description, &p.Link, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
