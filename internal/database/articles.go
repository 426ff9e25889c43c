package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const articleColumns = `id, source, source_id, title, title_norm, url, body, body_fetched,
	published_at, scraped_at, status, english_title, category, relevance, scrape_run_id`

const (
	maxTitleLen = 1000
	maxBodyLen  = 10000
)

// InsertArticle stores a newly accepted article. It assigns an ID when empty
// and returns false without error if an article with the same source_id exists.
func (db *DB) InsertArticle(ctx context.Context, a *Article) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = ArticlePending
	}
	a.Title = truncateRunes(a.Title, maxTitleLen)
	a.Body = truncateRunes(a.Body, maxBodyLen)

	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles
		(id, source, source_id, title, title_norm, url, body, published_at, scraped_at, status, scrape_run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Source, a.SourceID, a.Title, a.TitleNorm, a.URL, a.Body,
		NullableTime(a.PublishedAt), FormatTime(a.ScrapedAt), string(a.Status), a.ScrapeRunID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting article: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetArticle returns a single article by ID, or nil if it does not exist.
func (db *DB) GetArticle(ctx context.Context, id string) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE id = ?", id,
	)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetPendingArticles returns pending articles, oldest first.
func (db *DB) GetPendingArticles(ctx context.Context, limit int) ([]Article, error) {
	return db.ListArticles(ctx, ArticlePending, limit)
}

// ListArticles returns articles filtered by status (all when empty).
// Pending articles are returned oldest first, everything else newest first.
func (db *DB) ListArticles(ctx context.Context, status ArticleStatus, limit int) ([]Article, error) {
	q := sq.Select(articleColumns).From("articles")
	if status != "" {
		q = q.Where(sq.Eq{"status": string(status)})
	}
	if status == ArticlePending {
		q = q.OrderBy("scraped_at ASC")
	} else {
		q = q.OrderBy("scraped_at DESC")
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building article query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticlesNeedingFetch returns pending articles with a URL but no body that
// have not been fetched yet.
func (db *DB) GetArticlesNeedingFetch(ctx context.Context, limit int) ([]Article, error) {
	query := "SELECT " + articleColumns + ` FROM articles
		WHERE status = 'pending' AND body = '' AND body_fetched = 0 AND url IS NOT NULL AND url != ''
		ORDER BY scraped_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleBody stores fetched content.
func (db *DB) UpdateArticleBody(ctx context.Context, id, body string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE articles SET body = ?, body_fetched = 1 WHERE id = ?",
		truncateRunes(body, maxBodyLen), id,
	)
	return err
}

// MarkBodyFetchAttempted records that a fetch was tried so it is not retried.
func (db *DB) MarkBodyFetchAttempted(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE articles SET body_fetched = 1 WHERE id = ?", id)
	return err
}

// UpdateArticleEnrichment stores stage 1 results and marks the article analyzed.
func (db *DB) UpdateArticleEnrichment(ctx context.Context, id, englishTitle, category string, relevance int) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE articles SET english_title = ?, category = ?, relevance = ?, status = 'analyzed'
		WHERE id = ?`,
		englishTitle, category, relevance, id,
	)
	return err
}

// MarkArticlesStatus bulk-updates article status.
func (db *DB) MarkArticlesStatus(ctx context.Context, ids []string, status ArticleStatus) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sq.Update("articles").
		Set("status", string(status)).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building status update: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, query, args...)
	return err
}

// ArchiveArticlesBefore archives every non-archived article scraped before cutoff.
func (db *DB) ArchiveArticlesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE articles SET status = 'archived' WHERE status != 'archived' AND scraped_at < ?",
		FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("archiving articles: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (*Article, error) {
	var (
		a           Article
		fetched     int
		publishedAt sql.NullString
		scrapedAt   string
		status      string
		relevance   sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Source, &a.SourceID, &a.Title, &a.TitleNorm, &a.URL,
		&a.Body, &fetched, &publishedAt, &scrapedAt, &status, &a.EnglishTitle,
		&a.Category, &relevance, &a.ScrapeRunID); err != nil {
		return nil, err
	}
	a.BodyFetched = fetched != 0
	a.PublishedAt = NullTime(publishedAt)
	a.Status = ArticleStatus(status)
	if t, err := ParseTime(scrapedAt); err == nil {
		a.ScrapedAt = t
	}
	if relevance.Valid {
		r := int(relevance.Int64)
		a.Relevance = &r
	}
	return &a, nil
}

func truncateRunes(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
