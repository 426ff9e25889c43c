package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartRun records the start of a pipeline stage and returns the run ID.
func (db *DB) StartRun(ctx context.Context, mode string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO scrape_runs (id, mode, started_at) VALUES (?, ?, ?)",
		id, mode, FormatTime(at),
	)
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(ctx context.Context, id string, stats RunStats, at time.Time) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}

	ok, _ := json.Marshal(nonNil(stats.SourcesOK))
	failed, _ := json.Marshal(nonNil(stats.SourcesFailed))
	duration := at.Sub(run.StartedAt).Seconds()

	_, err = db.conn.ExecContext(ctx,
		`UPDATE scrape_runs SET finished_at = ?, duration_s = ?, articles_found = ?, articles_new = ?,
		sources_ok = ?, sources_failed = ?, error = ? WHERE id = ?`,
		FormatTime(at), float64(int(duration*10))/10, stats.ArticlesFound, stats.ArticlesNew,
		string(ok), string(failed), NullableString(stats.Error), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or nil if none exists.
func (db *DB) GetRun(ctx context.Context, id string) (*ScrapeRun, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, mode, started_at, finished_at, duration_s, articles_found, articles_new,
		sources_ok, sources_failed, error FROM scrape_runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, mode, started_at, finished_at, duration_s, articles_found, articles_new,
		sources_ok, sources_failed, error FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*ScrapeRun, error) {
	var (
		r          ScrapeRun
		startedAt  string
		finishedAt sql.NullString
		duration   sql.NullFloat64
		ok, failed string
	)
	if err := row.Scan(&r.ID, &r.Mode, &startedAt, &finishedAt, &duration,
		&r.ArticlesFound, &r.ArticlesNew, &ok, &failed, &r.Error); err != nil {
		return nil, err
	}
	if t, err := ParseTime(startedAt); err == nil {
		r.StartedAt = t
	}
	r.FinishedAt = NullTime(finishedAt)
	if duration.Valid {
		d := duration.Float64
		r.DurationS = &d
	}
	_ = json.Unmarshal([]byte(ok), &r.SourcesOK)
	_ = json.Unmarshal([]byte(failed), &r.SourcesFailed)
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
