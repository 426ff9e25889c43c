package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/dedup"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPISource searches NewsAPI's everything endpoint.
type NewsAPISource struct {
	BaseURL  string
	apiKey   string
	query    string
	language string
	pageSize int
	client   *http.Client
	clock    clock.Clock
}

// NewNewsAPISource creates a NewsAPI source; the key is read from the
// configured environment variable.
func NewNewsAPISource(cfg config.NewsAPIConfig, client *http.Client, clk clock.Clock) *NewsAPISource {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	if clk == nil {
		clk = clock.System()
	}
	return &NewsAPISource{
		BaseURL:  newsAPIBaseURL,
		apiKey:   config.Env(cfg.APIKeyEnv),
		query:    cfg.Query,
		language: cfg.Language,
		pageSize: pageSize,
		client:   client,
		clock:    clk,
	}
}

func (n *NewsAPISource) Name() string { return "NewsAPI" }

// Configured reports whether the API key is available.
func (n *NewsAPISource) Configured() bool { return n.apiKey != "" }

// Fetch searches the last two days.
func (n *NewsAPISource) Fetch(ctx context.Context) ([]dedup.Candidate, error) {
	now := n.clock.Now()
	params := url.Values{
		"q":        {n.query},
		"from":     {now.AddDate(0, 0, -2).Format("2006-01-02")},
		"to":       {now.Format("2006-01-02")},
		"pageSize": {strconv.Itoa(n.pageSize)},
		"sortBy":   {"publishedAt"},
	}
	if n.language != "" {
		params.Set("language", n.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding newsapi response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q: %s", result.Status, result.Message)
	}

	var out []dedup.Candidate
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		body := a.Content
		if body == "" {
			body = a.Description
		}
		source := "NewsAPI"
		if a.Source.Name != "" {
			source = a.Source.Name
		}

		out = append(out, dedup.Candidate{
			Source:      source,
			Title:       strings.TrimSpace(a.Title),
			URL:         a.URL,
			Body:        strings.TrimSpace(body),
			PublishedAt: dedup.ParsePublished(a.PublishedAt),
		})
	}
	return out, nil
}
