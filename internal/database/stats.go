package database

import (
	"context"
	"database/sql"
	"time"
)

// GetStats returns aggregate database statistics. now anchors "published today".
func (db *DB) GetStats(ctx context.Context, now time.Time) (*Stats, error) {
	s := &Stats{
		Articles: make(map[ArticleStatus]int),
		Queue:    make(map[string]int),
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	queries := []struct {
		sql  string
		args []any
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", nil, &s.TotalArticles},
		{"SELECT COUNT(*) FROM dedup_titles", nil, &s.DedupTitles},
		{"SELECT COUNT(*) FROM briefings", nil, &s.Briefings},
		{"SELECT COUNT(*) FROM publish_queue WHERE status = 'published' AND published_at >= ?",
			[]any{FormatTime(startOfDay)}, &s.PublishedToday},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql, q.args...).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	if err := db.countBy(ctx, "SELECT status, COUNT(*) FROM articles GROUP BY status", func(k string, n int) {
		s.Articles[ArticleStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := db.countBy(ctx, "SELECT status, COUNT(*) FROM publish_queue GROUP BY status", func(k string, n int) {
		s.Queue[k] = n
	}); err != nil {
		return nil, err
	}

	var last sql.NullString
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(started_at) FROM scrape_runs").Scan(&last); err != nil {
		return nil, err
	}
	s.LastRunStartedAt = NullTime(last)

	return s, nil
}

func (db *DB) countBy(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		fn(key, count)
	}
	return rows.Err()
}
