package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Quaily creates and publishes posts in a Quaily list.
type Quaily struct {
	APIKey  string
	Channel string
	BaseURL string
	client  *http.Client
}

// NewQuaily returns a Quaily publisher.
func NewQuaily(apiKey, baseURL, channel string, timeout time.Duration) *Quaily {
	if baseURL == "" {
		baseURL = "https://api.quaily.com/v1"
	}
	return &Quaily{APIKey: apiKey, Channel: channel, BaseURL: baseURL, client: newHTTPClient(timeout)}
}

func (q *Quaily) Platform() string { return "quaily" }

func (q *Quaily) Configured() bool { return q.APIKey != "" && q.Channel != "" }

func (q *Quaily) Publish(ctx context.Context, title, body string) (string, error) {
	auth := map[string]string{"Authorization": "Bearer " + q.APIKey}
	base := strings.TrimRight(q.BaseURL, "/") + "/lists/" + url.PathEscape(q.Channel) + "/posts"

	params := map[string]any{
		"channel_slug": q.Channel,
		"title":        titleOrDefault(title, body),
		"content":      body,
		"datetime":     time.Now().UTC().Format(time.RFC3339),
	}
	var out map[string]any
	if _, err := doJSON(ctx, q.client, q.Platform(), http.MethodPost, base, auth, params, &out); err != nil {
		return "", err
	}
	id := idString(out["id"])
	if id == "" {
		if data, ok := out["data"].(map[string]any); ok {
			id = idString(data["id"])
		}
	}
	if id == "" {
		return "", errors.New("quaily create post: missing id in response")
	}

	publishURL := fmt.Sprintf("%s/%s/publish", base, url.PathEscape(id))
	if _, err := doJSON(ctx, q.client, q.Platform(), http.MethodPut, publishURL, auth, nil, nil); err != nil {
		return "", fmt.Errorf("publishing quaily post %s: %w", id, err)
	}
	return id, nil
}
