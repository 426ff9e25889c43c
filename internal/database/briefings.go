package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const briefingColumns = `id, briefing_text, article_count, model_used, scrape_run_id,
	email_sent, email_sent_at, created_at`

// InsertBriefing stores a briefing and returns its ID.
func (db *DB) InsertBriefing(ctx context.Context, b *Briefing) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO briefings (id, briefing_text, article_count, model_used, scrape_run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.BriefingText, b.ArticleCount, b.ModelUsed, b.ScrapeRunID, FormatTime(b.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("inserting briefing: %w", err)
	}
	return b.ID, nil
}

// GetBriefing returns a briefing by ID, or nil if none exists.
func (db *DB) GetBriefing(ctx context.Context, id string) (*Briefing, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+briefingColumns+" FROM briefings WHERE id = ?", id)
	b, err := scanBriefing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// ListBriefings returns the newest briefings first.
func (db *DB) ListBriefings(ctx context.Context, limit int) ([]Briefing, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+briefingColumns+" FROM briefings ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var briefings []Briefing
	for rows.Next() {
		b, err := scanBriefing(rows)
		if err != nil {
			return nil, err
		}
		briefings = append(briefings, *b)
	}
	return briefings, rows.Err()
}

// MarkBriefingEmailed records that a briefing was delivered by email.
func (db *DB) MarkBriefingEmailed(ctx context.Context, id string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE briefings SET email_sent = 1, email_sent_at = ? WHERE id = ?",
		FormatTime(at), id,
	)
	return err
}

func scanBriefing(row rowScanner) (*Briefing, error) {
	var (
		b         Briefing
		sent      int
		sentAt    sql.NullString
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.BriefingText, &b.ArticleCount, &b.ModelUsed,
		&b.ScrapeRunID, &sent, &sentAt, &createdAt); err != nil {
		return nil, err
	}
	b.EmailSent = sent != 0
	b.EmailSentAt = NullTime(sentAt)
	if t, err := ParseTime(createdAt); err == nil {
		b.CreatedAt = t
	}
	return &b, nil
}
