package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/lex/internal/queue"
)

// Queue is the part of the queue store the drain loop needs.
type Queue interface {
	GetPublishable(ctx context.Context, f queue.Filter) ([]queue.Item, error)
	Get(ctx context.Context, id string) (*queue.Item, error)
	MarkPublished(ctx context.Context, id, platformID string) error
	MarkPublishFailed(ctx context.Context, id, detail string) error
}

// FailureNotifier is told when an item exhausts its retries.
type FailureNotifier interface {
	NotifyPublishFailed(ctx context.Context, platform, itemID, detail string) error
}

// Result summarises one drain cycle.
type Result struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// Errors counts items whose outcome could not be recorded. A published
	// item counted here is still queued and may be posted again.
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Drainer dispatches publishable queue items one at a time.
type Drainer struct {
	Queue    Queue
	Registry *Registry
	Notifier FailureNotifier
	Logger   *slog.Logger
}

// NewDrainer returns a Drainer over q and reg.
func NewDrainer(q Queue, reg *Registry, logger *slog.Logger) *Drainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{Queue: q, Registry: reg, Logger: logger}
}

func (d *Drainer) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Drain runs one cycle. Per-item failures become queue transitions; the only
// returned error is a failure to load the batch.
func (d *Drainer) Drain(ctx context.Context, f queue.Filter) (Result, error) {
	start := time.Now()
	var res Result

	items, err := d.Queue.GetPublishable(ctx, f)
	if err != nil {
		return res, fmt.Errorf("loading publishable items: %w", err)
	}
	if len(items) == 0 {
		d.logger().Info("publish queue empty")
		return res, nil
	}
	d.logger().Info("processing publish queue", "items", len(items))

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		switch d.dispatch(ctx, &items[i]) {
		case outcomePublished:
			res.Published++
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		case outcomeError:
			res.Errors++
		}
	}

	res.Duration = time.Since(start)
	d.logger().Info("drain complete", "published", res.Published, "failed", res.Failed,
		"skipped", res.Skipped, "errors", res.Errors)
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePublished
	outcomeFailed
	outcomeError
)

func (d *Drainer) dispatch(ctx context.Context, item *queue.Item) outcome {
	log := d.logger().With("platform", item.Platform, "id", item.ID)

	var pub Publisher
	if d.Registry != nil {
		pub, _ = d.Registry.Lookup(item.Platform)
	}
	if pub == nil {
		log.Warn("no publisher for platform, skipping")
		return outcomeSkipped
	}
	if !pub.Configured() {
		log.Info("platform not configured, skipping")
		return outcomeSkipped
	}

	title := ""
	if item.Title != nil {
		title = *item.Title
	}

	platformID, err := pub.Publish(ctx, title, item.Body)
	if err == nil {
		return d.markPublished(ctx, log, item, platformID, false)
	}
	log.Warn("publish failed", "error", err)

	detail := err.Error()
	if item.FallbackBody != nil {
		platformID, ferr := pub.Publish(ctx, title, *item.FallbackBody)
		if ferr == nil {
			return d.markPublished(ctx, log, item, platformID, true)
		}
		log.Warn("fallback also failed", "error", ferr)
		detail = fmt.Sprintf("Primary: %s | Fallback: %s", err, ferr)
	}

	if err := d.Queue.MarkPublishFailed(ctx, item.ID, detail); err != nil {
		log.Error("recording failure", "error", err)
		return outcomeError
	}
	d.notifyIfExhausted(ctx, log, item)
	return outcomeFailed
}

func (d *Drainer) markPublished(ctx context.Context, log *slog.Logger, item *queue.Item, platformID string, fallback bool) outcome {
	if err := d.Queue.MarkPublished(ctx, item.ID, platformID); err != nil {
		log.Error("recording publish failed; item is still queued and may republish",
			"platform_id", platformID, "error", err)
		return outcomeError
	}
	log.Info("published", "platform_id", platformID, "fallback", fallback)
	return outcomePublished
}

func (d *Drainer) notifyIfExhausted(ctx context.Context, log *slog.Logger, item *queue.Item) {
	if d.Notifier == nil {
		return
	}
	current, err := d.Queue.Get(ctx, item.ID)
	if err != nil || current.Status != queue.StatusFailed {
		return
	}
	detail := ""
	if current.Error != nil {
		detail = *current.Error
	}
	if err := d.Notifier.NotifyPublishFailed(ctx, item.Platform, item.ID, detail); err != nil {
		log.Warn("failure notification not sent", "error", err)
	}
}
