// Package notify pushes operator alerts to ntfy.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/lex/internal/config"
)

const userAgent = "lex/1.0"

// Service is the notification surface used by the pipeline.
type Service interface {
	NotifyPublishFailed(ctx context.Context, platform, itemID, detail string) error
	NotifyDrainCompleted(ctx context.Context, published, failed, skipped int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, label string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a noop when no topic is set.
// A bare topic name is posted to ntfy.sh; a full URL is used as is.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	endpoint := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		endpoint = "https://ntfy.sh/" + topic
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyPublishFailed(ctx context.Context, platform, itemID, detail string) error {
	return n.send(ctx, payload{
		title:    "lex - Publish Failed",
		message:  fmt.Sprintf("%s item %s gave up: %s", platform, itemID, strings.TrimSpace(detail)),
		tags:     []string{"lex", "publish", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyDrainCompleted(ctx context.Context, published, failed, skipped int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	title := "lex - Drain Complete"
	if failed > 0 {
		title = "lex - Drain Complete (with failures)"
	}
	return n.send(ctx, payload{
		title:   title,
		message: fmt.Sprintf("%d published, %d failed, %d skipped in %s", published, failed, skipped, duration),
		tags:    []string{"lex", "publish", "completed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, label string) error {
	var b strings.Builder
	b.WriteString("Error")
	if label = strings.TrimSpace(label); label != "" {
		b.WriteString(" in ")
		b.WriteString(label)
	}
	b.WriteString(": ")
	if err != nil {
		b.WriteString(strings.TrimSpace(err.Error()))
	} else {
		b.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "lex - Error",
		message:  b.String(),
		tags:     []string{"lex", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "lex - Test",
		message:  "Notification system test",
		tags:     []string{"lex", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPublishFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyDrainCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
