package publish

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Medium publishes markdown posts through the Medium v1 API.
type Medium struct {
	Token   string
	Tags    []string
	BaseURL string
	client  *http.Client
}

// NewMedium returns a Medium publisher.
func NewMedium(token string, tags []string, timeout time.Duration) *Medium {
	return &Medium{Token: token, Tags: tags, BaseURL: "https://api.medium.com", client: newHTTPClient(timeout)}
}

func (m *Medium) Platform() string { return "medium" }

func (m *Medium) Configured() bool { return m.Token != "" }

func (m *Medium) Publish(ctx context.Context, title, body string) (string, error) {
	auth := map[string]string{"Authorization": "Bearer " + m.Token}
	base := strings.TrimRight(m.BaseURL, "/")

	var me struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := doJSON(ctx, m.client, m.Platform(), http.MethodGet, base+"/v1/me", auth, nil, &me); err != nil {
		return "", err
	}
	if me.Data.ID == "" {
		return "", errors.New("medium /me missing user id")
	}

	post := map[string]any{
		"title":         titleOrDefault(title, body),
		"contentFormat": "markdown",
		"content":       body,
		"publishStatus": "public",
		"tags":          m.Tags,
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	endpoint := base + "/v1/users/" + url.PathEscape(me.Data.ID) + "/posts"
	if _, err := doJSON(ctx, m.client, m.Platform(), http.MethodPost, endpoint, auth, post, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", errors.New("medium response missing post id")
	}
	return out.Data.ID, nil
}
