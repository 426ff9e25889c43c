package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/database"
)

// DefaultLimit bounds GetPublishable when Filter.Limit is zero.
const DefaultLimit = 20

const itemColumns = `id, platform, title, body, fallback_body, language, urgency, priority,
	status, retry_count, max_retries, next_retry_at, publish_log, published_at,
	platform_id, error, briefing_id, article_id, created_at, updated_at`

// Filter narrows queue reads.
type Filter struct {
	Platform string
	Status   Status
	Limit    int
}

// Store is the durable publish queue.
type Store struct {
	conn       *sql.DB
	clock      clock.Clock
	backoff    Backoff
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for timestamps and retry windows.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithBackoff sets the retry schedule.
func WithBackoff(b Backoff) Option {
	return func(s *Store) { s.backoff = b }
}

// WithMaxRetries sets the retry budget given to items enqueued without one.
func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store over db.
func NewStore(db *database.DB, opts ...Option) *Store {
	s := &Store{
		conn:       db.Conn(),
		clock:      clock.System(),
		backoff:    DefaultBackoff,
		maxRetries: 3,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Enqueue validates req and inserts it as a queued item.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Item, error) {
	item, err := NewItem(req)
	if err != nil {
		return nil, err
	}
	if req.MaxRetries == nil {
		item.MaxRetries = s.maxRetries
	}
	now := s.clock.Now()
	item.ID = uuid.NewString()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO publish_queue
		(id, platform, title, body, fallback_body, language, urgency, priority, status,
		 retry_count, max_retries, publish_log, briefing_id, article_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '[]', ?, ?, ?, ?)`,
		item.ID, item.Platform, item.Title, item.Body, item.FallbackBody, item.Language,
		string(item.Urgency), item.Priority, string(StatusQueued), item.MaxRetries,
		item.BriefingID, item.ArticleID,
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s item: %w", item.Platform, err)
	}
	s.logger.Debug("enqueued", "id", item.ID, "platform", item.Platform, "urgency", item.Urgency)
	return item, nil
}

// GetPublishable returns items ready for dispatch. Retries whose
// next_retry_at has passed come first, then queued items. Each group is
// ordered by priority and then by age.
func (s *Store) GetPublishable(ctx context.Context, f Filter) ([]Item, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	now := database.FormatTime(s.clock.Now())

	retries := sq.Select(itemColumns).From("publish_queue").
		Where(sq.Eq{"status": string(StatusRetryQueued)}).
		Where(sq.LtOrEq{"next_retry_at": now}).
		OrderBy("priority ASC", "next_retry_at ASC")
	fresh := sq.Select(itemColumns).From("publish_queue").
		Where(sq.Eq{"status": string(StatusQueued)}).
		OrderBy("priority ASC", "created_at ASC")
	if f.Platform != "" {
		retries = retries.Where(sq.Eq{"platform": f.Platform})
		fresh = fresh.Where(sq.Eq{"platform": f.Platform})
	}

	items, err := s.query(ctx, retries.Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("loading ready retries: %w", err)
	}
	if remaining := limit - len(items); remaining > 0 {
		queued, err := s.query(ctx, fresh.Limit(uint64(remaining)))
		if err != nil {
			return nil, fmt.Errorf("loading queued items: %w", err)
		}
		items = append(items, queued...)
	}
	return items, nil
}

// Get returns a single item.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM publish_queue WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns items matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Item, error) {
	q := sq.Select(itemColumns).From("publish_queue").OrderBy("created_at DESC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Platform != "" {
		q = q.Where(sq.Eq{"platform": f.Platform})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return s.query(ctx, q)
}

// Stats returns item counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM publish_queue GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{
		StatusQueued:      0,
		StatusRetryQueued: 0,
		StatusPublished:   0,
		StatusFailed:      0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// MarkPublished moves a pending item to published.
func (s *Store) MarkPublished(ctx context.Context, id, platformID string) error {
	return s.transition(ctx, id, func(item *Item, now time.Time) error {
		item.PublishLog = append(item.PublishLog, LogEntry{At: now, Status: string(StatusPublished), PlatformID: platformID})
		item.Status = StatusPublished
		item.PublishedAt = &now
		item.PlatformID = &platformID
		item.Error = nil
		item.NextRetryAt = nil
		return nil
	}, StatusQueued, StatusRetryQueued)
}

// MarkPublishFailed records a failed attempt. The item is rescheduled while
// retries remain and becomes failed once they are exhausted.
func (s *Store) MarkPublishFailed(ctx context.Context, id, detail string) error {
	return s.transition(ctx, id, func(item *Item, now time.Time) error {
		item.PublishLog = append(item.PublishLog, LogEntry{At: now, Status: string(StatusFailed), Error: detail})
		prev := item.RetryCount
		item.RetryCount++
		if item.RetryCount < item.MaxRetries {
			next := now.Add(s.backoff.Delay(prev))
			item.Status = StatusRetryQueued
			item.NextRetryAt = &next
			item.Error = &detail
			return nil
		}
		summary := fmt.Sprintf("Exhausted %d retries. Last: %s", item.MaxRetries, detail)
		item.Status = StatusFailed
		item.NextRetryAt = nil
		item.Error = &summary
		return nil
	}, StatusQueued, StatusRetryQueued)
}

// Requeue returns a failed item to the queue with a fresh retry budget.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(item *Item, now time.Time) error {
		item.PublishLog = append(item.PublishLog, LogEntry{At: now, Status: "requeued"})
		item.Status = StatusQueued
		item.RetryCount = 0
		item.NextRetryAt = nil
		item.Error = nil
		return nil
	}, StatusFailed)
}

// transition loads an item, applies fn and writes it back only if the item
// is still in one of the allowed states.
func (s *Store) transition(ctx context.Context, id string, fn func(*Item, time.Time) error, allowed ...Status) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM publish_queue WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("loading item %s: %w", id, err)
	}
	if !statusIn(item.Status, allowed) {
		return fmt.Errorf("%w: item %s is %s", ErrInvalidTransition, id, item.Status)
	}
	prior := item.Status

	now := s.clock.Now()
	if err := fn(item, now); err != nil {
		return err
	}
	logJSON, err := json.Marshal(item.PublishLog)
	if err != nil {
		return fmt.Errorf("encoding publish log: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE publish_queue SET status = ?, retry_count = ?, next_retry_at = ?, publish_log = ?,
		published_at = ?, platform_id = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(item.Status), item.RetryCount, database.NullableTime(item.NextRetryAt), string(logJSON),
		database.NullableTime(item.PublishedAt), item.PlatformID, item.Error, database.FormatTime(now),
		id, string(prior),
	)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: item %s changed concurrently", ErrInvalidTransition, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item %s: %w", id, err)
	}

	s.logger.Debug("queue transition", "id", id, "from", prior, "to", item.Status, "retry_count", item.RetryCount)
	return nil
}

func statusIn(s Status, allowed []Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func (s *Store) query(ctx context.Context, q sq.SelectBuilder) ([]Item, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building queue query: %w", err)
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item        Item
		urgency     string
		status      string
		nextRetryAt sql.NullString
		logJSON     string
		publishedAt sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&item.ID, &item.Platform, &item.Title, &item.Body, &item.FallbackBody,
		&item.Language, &urgency, &item.Priority, &status, &item.RetryCount, &item.MaxRetries,
		&nextRetryAt, &logJSON, &publishedAt, &item.PlatformID, &item.Error,
		&item.BriefingID, &item.ArticleID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.Urgency = Urgency(urgency)
	item.Status = Status(status)
	item.NextRetryAt = database.NullTime(nextRetryAt)
	item.PublishedAt = database.NullTime(publishedAt)
	if err := json.Unmarshal([]byte(logJSON), &item.PublishLog); err != nil {
		return nil, fmt.Errorf("decoding publish log for %s: %w", item.ID, err)
	}
	if item.PublishLog == nil {
		item.PublishLog = []LogEntry{}
	}
	if t, err := database.ParseTime(createdAt); err == nil {
		item.CreatedAt = t
	}
	if t, err := database.ParseTime(updatedAt); err == nil {
		item.UpdatedAt = t
	}
	return &item, nil
}
