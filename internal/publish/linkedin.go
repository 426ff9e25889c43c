package publish

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const linkedInMaxRunes = 3000

// LinkedIn posts share commentary through the UGC API.
type LinkedIn struct {
	Token   string
	BaseURL string
	client  *http.Client
}

// NewLinkedIn returns a LinkedIn publisher.
func NewLinkedIn(token string, timeout time.Duration) *LinkedIn {
	return &LinkedIn{Token: token, BaseURL: "https://api.linkedin.com", client: newHTTPClient(timeout)}
}

func (l *LinkedIn) Platform() string { return "linkedin" }

func (l *LinkedIn) Configured() bool { return l.Token != "" }

// Publish ignores title; LinkedIn shares are body-only.
func (l *LinkedIn) Publish(ctx context.Context, _ string, body string) (string, error) {
	auth := map[string]string{"Authorization": "Bearer " + l.Token}
	base := strings.TrimRight(l.BaseURL, "/")

	var me struct {
		Sub string `json:"sub"`
	}
	if _, err := doJSON(ctx, l.client, l.Platform(), http.MethodGet, base+"/v2/userinfo", auth, nil, &me); err != nil {
		return "", err
	}
	if me.Sub == "" {
		return "", errors.New("linkedin userinfo missing sub")
	}

	post := map[string]any{
		"author":         "urn:li:person:" + me.Sub,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": truncate(body, linkedInMaxRunes)},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	headers := map[string]string{
		"Authorization":             "Bearer " + l.Token,
		"X-Restli-Protocol-Version": "2.0.0",
	}

	var created struct {
		ID any `json:"id"`
	}
	respHeaders, err := doJSON(ctx, l.client, l.Platform(), http.MethodPost, base+"/v2/ugcPosts", headers, post, &created)
	if err != nil {
		return "", err
	}
	if id := respHeaders.Get("X-Restli-Id"); id != "" {
		return id, nil
	}
	if id := idString(created.ID); id != "" {
		return id, nil
	}
	return "unknown", nil
}
