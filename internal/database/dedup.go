package database

import (
	"context"
	"fmt"
	"time"
)

// HasTitleSince reports whether titleNorm was recorded at or after since.
func (db *DB) HasTitleSince(ctx context.Context, titleNorm string, since time.Time) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM dedup_titles WHERE title_norm = ? AND seen_at >= ? LIMIT 1`,
		titleNorm, FormatTime(since),
	).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("querying dedup titles: %w", err)
	}
	return true, nil
}

// RecordTitle adds a normalized title to the exact-match window.
func (db *DB) RecordTitle(ctx context.Context, titleNorm, source string, seenAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO dedup_titles (title_norm, source, seen_at) VALUES (?, ?, ?)",
		titleNorm, source, FormatTime(seenAt),
	)
	if err != nil {
		return fmt.Errorf("recording title: %w", err)
	}
	return nil
}

// CleanupDedup removes dedup records older than before and returns the count removed.
func (db *DB) CleanupDedup(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM dedup_titles WHERE seen_at < ?", FormatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning dedup titles: %w", err)
	}
	return result.RowsAffected()
}

// RecentTitles returns the rolling fuzzy-match window, oldest first.
func (db *DB) RecentTitles(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT title_norm FROM recent_titles ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("loading recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// AppendRecentTitles appends titles to the rolling window and trims it to the
// newest keep entries.
func (db *DB) AppendRecentTitles(ctx context.Context, titles []string, keep int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range titles {
		if _, err := tx.ExecContext(ctx, "INSERT INTO recent_titles (title_norm) VALUES (?)", t); err != nil {
			return fmt.Errorf("appending recent title: %w", err)
		}
	}
	if keep > 0 {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM recent_titles WHERE id NOT IN
			(SELECT id FROM recent_titles ORDER BY id DESC LIMIT ?)`, keep,
		)
		if err != nil {
			return fmt.Errorf("trimming recent titles: %w", err)
		}
	}
	return tx.Commit()
}
