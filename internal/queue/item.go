// Package queue stores post drafts awaiting delivery and owns every
// transition of their publish state.
package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no queue item has the requested ID.
	ErrNotFound = errors.New("queue item not found")
	// ErrInvalidTransition is returned when a mutation targets an item in
	// a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid queue transition")
	// ErrInvalidItem is returned by NewItem for malformed requests.
	ErrInvalidItem = errors.New("invalid queue item")
)

// Status is the publish state of a queue item.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusRetryQueued Status = "retry_queued"
	StatusPublished   Status = "published"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further dispatch is expected.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// Urgency is the source-assigned priority label.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Priority maps an urgency to its numeric priority. Lower is served first.
func (u Urgency) Priority() (int, bool) {
	switch u {
	case UrgencyHigh:
		return 1, true
	case UrgencyMedium:
		return 2, true
	case UrgencyLow:
		return 3, true
	}
	return 0, false
}

// LogEntry is one record in an item's publish log.
type LogEntry struct {
	At         time.Time `json:"at"`
	Status     string    `json:"status"`
	PlatformID string    `json:"platform_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Item is a single post draft bound for one platform.
type Item struct {
	ID           string     `json:"id"`
	Platform     string     `json:"platform"`
	Title        *string    `json:"title,omitempty"`
	Body         string     `json:"body"`
	FallbackBody *string    `json:"fallback_body,omitempty"`
	Language     string     `json:"language"`
	Urgency      Urgency    `json:"urgency"`
	Priority     int        `json:"priority"`
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	PublishLog   []LogEntry `json:"publish_log"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	PlatformID   *string    `json:"platform_id,omitempty"`
	Error        *string    `json:"error,omitempty"`
	BriefingID   *string    `json:"briefing_id,omitempty"`
	ArticleID    *string    `json:"article_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EnqueueRequest describes a new draft.
type EnqueueRequest struct {
	Platform     string
	Title        string
	Body         string
	FallbackBody string
	Language     string
	Urgency      Urgency
	// MaxRetries is the item's retry budget. Nil takes the store default;
	// zero makes the first failure terminal.
	MaxRetries *int
	BriefingID string
	ArticleID  string
}

// NewItem validates req and builds a queued item. ID and timestamps are
// assigned by the store.
func NewItem(req EnqueueRequest) (*Item, error) {
	platform := strings.TrimSpace(req.Platform)
	if platform == "" {
		return nil, fmt.Errorf("%w: platform is required", ErrInvalidItem)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidItem)
	}
	urgency := req.Urgency
	if urgency == "" {
		urgency = UrgencyMedium
	}
	priority, ok := urgency.Priority()
	if !ok {
		return nil, fmt.Errorf("%w: unknown urgency %q", ErrInvalidItem, req.Urgency)
	}
	maxRetries := 0
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, fmt.Errorf("%w: max_retries must not be negative", ErrInvalidItem)
		}
		maxRetries = *req.MaxRetries
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	return &Item{
		Platform:     platform,
		Title:        optional(req.Title),
		Body:         req.Body,
		FallbackBody: optional(req.FallbackBody),
		Language:     language,
		Urgency:      urgency,
		Priority:     priority,
		Status:       StatusQueued,
		MaxRetries:   maxRetries,
		PublishLog:   []LogEntry{},
		BriefingID:   optional(req.BriefingID),
		ArticleID:    optional(req.ArticleID),
	}, nil
}

// Retries returns a retry budget for EnqueueRequest.MaxRetries.
func Retries(n int) *int {
	return &n
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
