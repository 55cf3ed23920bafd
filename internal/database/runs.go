package database

import (
	"database/sql"
	"errors"
)

// InsertRun records the outcome of a generation attempt.
func (db *DB) InsertRun(runID, show, date, outcome string, detail *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO generation_runs (run_id, show, date, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, show, date, outcome, detail,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLastRun returns the most recent run for show, or ErrNotFound.
func (db *DB) GetLastRun(show string) (*GenerationRun, error) {
	var r GenerationRun
	err := db.conn.QueryRow(
		`SELECT id, run_id, show, date, outcome, detail, finished_at
		FROM generation_runs WHERE show = ? ORDER BY id DESC LIMIT 1`, show,
	).Scan(&r.ID, &r.RunID, &r.Show, &r.Date, &r.Outcome, &r.Detail, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM podcasts", &s.Podcasts},
		{"SELECT COUNT(*) FROM episodes", &s.Episodes},
		{"SELECT COUNT(*) FROM biographies", &s.Biographies},
		{"SELECT COUNT(DISTINCT date) FROM biographies", &s.BioDates},
		{"SELECT COUNT(*) FROM generation_runs", &s.Runs},
		{"SELECT COUNT(*) FROM generation_runs WHERE outcome = 'failed'", &s.FailedRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
