package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const hashnodeMutation = `mutation PublishPost($input: PublishPostInput!) {
  publishPost(input: $input) {
    post { id }
  }
}`

// Hashnode publishes through the Hashnode GraphQL API.
type Hashnode struct {
	APIKey        string
	PublicationID string
	Tags          []string
	Endpoint      string
	client        *http.Client
}

// NewHashnode returns a Hashnode publisher.
func NewHashnode(apiKey, publicationID string, tags []string, timeout time.Duration) *Hashnode {
	return &Hashnode{
		APIKey:        apiKey,
		PublicationID: publicationID,
		Tags:          tags,
		Endpoint:      "https://gql.hashnode.com/",
		client:        newHTTPClient(timeout),
	}
}

func (h *Hashnode) Platform() string { return "hashnode" }

// Configured requires both the key and the publication.
func (h *Hashnode) Configured() bool { return h.APIKey != "" && h.PublicationID != "" }

func (h *Hashnode) Publish(ctx context.Context, title, body string) (string, error) {
	tags := make([]map[string]string, 0, len(h.Tags))
	for _, slug := range h.Tags {
		tags = append(tags, map[string]string{"slug": slug, "name": tagName(slug)})
	}
	req := map[string]any{
		"query": hashnodeMutation,
		"variables": map[string]any{
			"input": map[string]any{
				"title":           titleOrDefault(title, body),
				"contentMarkdown": body,
				"publicationId":   h.PublicationID,
				"tags":            tags,
			},
		},
	}

	var out struct {
		Data struct {
			PublishPost struct {
				Post struct {
					ID string `json:"id"`
				} `json:"post"`
			} `json:"publishPost"`
		} `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}
	if _, err := doJSON(ctx, h.client, h.Platform(), http.MethodPost, h.Endpoint, map[string]string{"Authorization": h.APIKey}, req, &out); err != nil {
		return "", err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = string(e)
		}
		return "", fmt.Errorf("hashnode GraphQL error: %s", strings.Join(msgs, "; "))
	}
	if out.Data.PublishPost.Post.ID == "" {
		return "", errors.New("hashnode response missing post id")
	}
	return out.Data.PublishPost.Post.ID, nil
}

// tagName turns a slug like "technology-news" into "Technology News".
func tagName(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
