// Package collect gathers candidate articles from configured sources and
// persists the ones that survive deduplication.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/dedup"
)

const userAgent = "lex/1.0 (news aggregator)"

// Source yields candidates from one upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]dedup.Candidate, error)
}

// Store is the persistence the collector needs.
type Store interface {
	StartRun(ctx context.Context, mode string, at time.Time) (string, error)
	FinishRun(ctx context.Context, id string, stats database.RunStats, at time.Time) error
	InsertArticle(ctx context.Context, a *database.Article) (bool, error)
}

// Filter drops duplicates from a batch of candidates.
type Filter interface {
	Filter(ctx context.Context, candidates []dedup.Candidate) ([]dedup.Accepted, dedup.Stats)
}

// Result holds the results of a collection run.
type Result struct {
	RunID         string
	Found         int
	New           int
	Dedup         dedup.Stats
	SourcesOK     []string
	SourcesFailed []string
}

// Collector runs every source, deduplicates, and inserts pending articles.
type Collector struct {
	Store   Store
	Dedup   Filter
	Sources []Source
	Clock   clock.Clock
	Logger  *slog.Logger
}

// NewCollector creates a collector with the system clock.
func NewCollector(store Store, filter Filter, sources []Source, logger *slog.Logger) *Collector {
	return &Collector{Store: store, Dedup: filter, Sources: sources, Clock: clock.System(), Logger: logger}
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Collect performs one scrape run. A failing source is recorded and skipped.
// The returned error covers bookkeeping failures only.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	log := c.logger()
	runID, err := c.Store.StartRun(ctx, "scrape", c.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("starting scrape run: %w", err)
	}
	r := &Result{RunID: runID}

	var candidates []dedup.Candidate
	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			break
		}
		items, err := src.Fetch(ctx)
		if err != nil {
			log.Warn("source failed", "source", src.Name(), "error", err)
			r.SourcesFailed = append(r.SourcesFailed, src.Name())
			continue
		}
		log.Info("source fetched", "source", src.Name(), "items", len(items))
		r.SourcesOK = append(r.SourcesOK, src.Name())
		candidates = append(candidates, items...)
	}
	r.Found = len(candidates)

	accepted, stats := c.Dedup.Filter(ctx, candidates)
	r.Dedup = stats

	var insertErr error
	for _, a := range accepted {
		art := &database.Article{
			Source:      a.Source,
			SourceID:    a.SourceID,
			Title:       strings.TrimSpace(a.Title),
			TitleNorm:   a.TitleNorm,
			Body:        a.Body,
			PublishedAt: a.PublishedAt,
			ScrapedAt:   c.Clock.Now(),
			Status:      database.ArticlePending,
			ScrapeRunID: &runID,
		}
		if a.URL != "" {
			u := a.URL
			art.URL = &u
		}
		inserted, err := c.Store.InsertArticle(ctx, art)
		if err != nil {
			log.Error("inserting article", "title", a.Title, "error", err)
			insertErr = err
			continue
		}
		if inserted {
			r.New++
		}
	}

	runStats := database.RunStats{
		ArticlesFound: r.Found,
		ArticlesNew:   r.New,
		SourcesOK:     r.SourcesOK,
		SourcesFailed: r.SourcesFailed,
	}
	if insertErr != nil {
		runStats.Error = insertErr.Error()
	}
	if err := c.Store.FinishRun(ctx, runID, runStats, c.Clock.Now()); err != nil {
		return r, fmt.Errorf("finishing scrape run: %w", err)
	}

	log.Info("collection complete",
		"found", r.Found, "new", r.New,
		"exact", stats.Exact, "fuzzy", stats.Fuzzy, "semantic", stats.Semantic,
		"sources_failed", len(r.SourcesFailed))
	return r, nil
}

// SourcesFromConfig builds the feed, site and NewsAPI sources named in cfg.
func SourcesFromConfig(cfg config.Sources, clk clock.Clock) []Source {
	timeout := time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	client := newHTTPClient(timeout)

	var sources []Source
	for _, f := range cfg.Feeds {
		sources = append(sources, NewFeedSource(f.Name, f.URL, client))
	}
	for _, s := range cfg.Sites {
		sources = append(sources, NewSiteSource(s, client))
	}
	if api := cfg.APIs.NewsAPI; api.Enabled {
		src := NewNewsAPISource(api, client, clk)
		if src.Configured() {
			sources = append(sources, src)
		}
	}
	return sources
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
