// Package fetch fills in missing article bodies by downloading the page and
// extracting its readable text.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/lex/internal/database"
)

const (
	defaultLimit   = 200
	minContentRune = 100
)

// Store is the persistence the fetcher needs.
type Store interface {
	GetArticlesNeedingFetch(ctx context.Context, limit int) ([]database.Article, error)
	UpdateArticleBody(ctx context.Context, id, body string) error
	MarkBodyFetchAttempted(ctx context.Context, id string) error
}

// Result holds the results of a content fetch run.
type Result struct {
	Fetched        int
	Failed         int
	SkippedDomains int
}

// ContentFetcher fetches full article text via HTTP and readability extraction.
type ContentFetcher struct {
	store  Store
	client *http.Client
	logger *slog.Logger
	Limit  int
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(store Store, timeout time.Duration, logger *slog.Logger) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentFetcher{
		store:  store,
		logger: logger,
		Limit:  defaultLimit,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissing fetches content for pending articles with an empty body. A
// domain that answers with an HTTP error is not contacted again in this run.
func (f *ContentFetcher) FetchMissing(ctx context.Context) (*Result, error) {
	articles, err := f.store.GetArticlesNeedingFetch(ctx, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing articles needing fetch: %w", err)
	}
	result := &Result{}
	if len(articles) == 0 {
		f.logger.Info("no articles need content fetching")
		return result, nil
	}

	failedDomains := make(map[string]struct{})
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if article.URL == nil {
			continue
		}
		link := *article.URL
		domain := ""
		if u, err := url.Parse(link); err == nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			f.markAttempted(ctx, article.ID)
			result.Failed++
			continue
		}

		content, err := f.fetchArticleContent(ctx, link)
		if err != nil {
			f.markAttempted(ctx, article.ID)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
				result.SkippedDomains++
			}
			f.logger.Warn("http error, skipping domain", "url", link, "domain", domain, "error", err)
			continue
		}

		if content == "" {
			f.markAttempted(ctx, article.ID)
			result.Failed++
			f.logger.Debug("no extractable content", "url", link)
			continue
		}
		if err := f.store.UpdateArticleBody(ctx, article.ID, content); err != nil {
			return result, fmt.Errorf("storing body for %s: %w", article.ID, err)
		}
		result.Fetched++
		f.logger.Debug("fetched content", "title", article.Title)
	}

	f.logger.Info("content fetch complete", "fetched", result.Fetched, "failed", result.Failed)
	return result, nil
}

func (f *ContentFetcher) markAttempted(ctx context.Context, id string) {
	if err := f.store.MarkBodyFetchAttempted(ctx, id); err != nil {
		f.logger.Warn("marking fetch attempted", "id", id, "error", err)
	}
}

// fetchArticleContent returns an error only for HTTP error statuses.
// Connection and extraction failures yield empty content.
func (f *ContentFetcher) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", "lex/1.0 (news aggregator)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len([]rune(text)) > minContentRune {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d %s", e.code, http.StatusText(e.code))
}
