// Package publish delivers queued drafts to external platforms.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Publisher sends content to one platform. Publish returns the platform's
// identifier for the created post.
type Publisher interface {
	Platform() string
	Configured() bool
	Publish(ctx context.Context, title, body string) (string, error)
}

// Registry maps platform names to publishers.
type Registry struct {
	publishers map[string]Publisher
}

// NewRegistry returns a registry holding pubs.
func NewRegistry(pubs ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher)}
	for _, p := range pubs {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the publisher for p.Platform().
func (r *Registry) Register(p Publisher) {
	r.publishers[p.Platform()] = p
}

// Lookup returns the publisher for platform.
func (r *Registry) Lookup(platform string) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

// Platforms returns registered platform names, sorted.
func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusError is a non-2xx response from a platform API.
type StatusError struct {
	Platform string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Platform, e.Code, e.Body)
}

const defaultTitleRunes = 60

// titleOrDefault returns title, or the first 60 runes of body when empty.
func titleOrDefault(title, body string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return truncate(strings.TrimSpace(body), defaultTitleRunes)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// doJSON sends a JSON request and decodes a JSON response into out when out
// is non-nil. It returns the response headers.
func doJSON(ctx context.Context, client *http.Client, platform, method, url string, headers map[string]string, in, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s request: %w", platform, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", platform, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.Header, &StatusError{Platform: platform, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.Header, fmt.Errorf("decoding %s response: %w", platform, err)
		}
	}
	return resp.Header, nil
}

// idString renders a JSON id that may be a number or a string.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case json.Number:
		return id.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}
