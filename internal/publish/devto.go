package publish

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DevTo publishes markdown articles to dev.to.
type DevTo struct {
	APIKey  string
	Tags    []string
	BaseURL string
	client  *http.Client
}

// NewDevTo returns a dev.to publisher.
func NewDevTo(apiKey string, tags []string, timeout time.Duration) *DevTo {
	return &DevTo{APIKey: apiKey, Tags: tags, BaseURL: "https://dev.to", client: newHTTPClient(timeout)}
}

func (d *DevTo) Platform() string { return "devto" }

func (d *DevTo) Configured() bool { return d.APIKey != "" }

func (d *DevTo) Publish(ctx context.Context, title, body string) (string, error) {
	req := map[string]any{
		"article": map[string]any{
			"title":         titleOrDefault(title, body),
			"body_markdown": body,
			"published":     true,
			"tags":          d.Tags,
		},
	}
	var out struct {
		ID any `json:"id"`
	}
	url := strings.TrimRight(d.BaseURL, "/") + "/api/articles"
	if _, err := doJSON(ctx, d.client, d.Platform(), http.MethodPost, url, map[string]string{"api-key": d.APIKey}, req, &out); err != nil {
		return "", err
	}
	id := idString(out.ID)
	if id == "" {
		return "", errors.New("devto response missing id")
	}
	return id, nil
}
