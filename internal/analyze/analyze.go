// Package analyze enriches pending articles with an LLM, writes the daily
// briefing, and queues social post drafts for publishing.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/llm"
	"github.com/TobiSchelling/lex/internal/queue"
)

// ErrNoProvider is returned when no LLM backend is available.
var ErrNoProvider = errors.New("no LLM provider available")

// Store is the persistence the analyzer needs.
type Store interface {
	StartRun(ctx context.Context, mode string, at time.Time) (string, error)
	FinishRun(ctx context.Context, id string, stats database.RunStats, at time.Time) error
	GetPendingArticles(ctx context.Context, limit int) ([]database.Article, error)
	UpdateArticleEnrichment(ctx context.Context, id, englishTitle, category string, relevance int) error
	MarkArticlesStatus(ctx context.Context, ids []string, status database.ArticleStatus) error
	InsertBriefing(ctx context.Context, b *database.Briefing) (string, error)
	MarkBriefingEmailed(ctx context.Context, id string, at time.Time) error
}

// Enqueuer accepts post drafts for publishing.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Item, error)
}

// Mailer delivers the briefing.
type Mailer interface {
	Configured() bool
	SendMarkdown(ctx context.Context, to []string, subject, markdown string) error
}

// Options are the analysis policy knobs.
type Options struct {
	BatchSize          int
	MaxPending         int
	RelevanceThreshold int
	MaxTokens          int
	BriefingMaxTokens  int
	EmailTo            string
}

// OptionsFromConfig maps config sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:          cfg.Analysis.BatchSize,
		MaxPending:         cfg.Analysis.MaxPending,
		RelevanceThreshold: cfg.Analysis.RelevanceThreshold,
		MaxTokens:          cfg.Summarization.MaxTokens,
		BriefingMaxTokens:  cfg.Analysis.BriefingMaxTokens,
		EmailTo:            cfg.Briefing.EmailTo,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 500
	}
	if o.RelevanceThreshold <= 0 {
		o.RelevanceThreshold = 3
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if o.BriefingMaxTokens <= 0 {
		o.BriefingMaxTokens = 8192
	}
	return o
}

// Result summarises one analysis run.
type Result struct {
	RunID      string
	Pending    int
	Analyzed   int
	Failed     int
	Relevant   int
	BriefingID string
	Drafts     int
	Queued     int
	Emailed    bool
}

// Analyzer runs both LLM stages and queues the resulting posts.
type Analyzer struct {
	Store    Store
	Queue    Enqueuer
	Provider llm.Provider
	Mailer   Mailer
	Model    string
	Clock    clock.Clock
	Logger   *slog.Logger
	Opts     Options
}

// New creates an Analyzer with the system clock.
func New(store Store, q Enqueuer, provider llm.Provider, opts Options, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		Store:    store,
		Queue:    q,
		Provider: provider,
		Clock:    clock.System(),
		Logger:   logger,
		Opts:     opts,
	}
}

// Run analyzes pending articles. With email set, the new briefing is mailed
// to Opts.EmailTo when a mailer is configured.
func (a *Analyzer) Run(ctx context.Context, email bool) (*Result, error) {
	if a.Provider == nil {
		return nil, ErrNoProvider
	}
	opts := a.Opts.withDefaults()

	runID, err := a.Store.StartRun(ctx, "analyze", a.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("starting analyze run: %w", err)
	}
	r := &Result{RunID: runID}

	pending, err := a.Store.GetPendingArticles(ctx, opts.MaxPending)
	if err != nil {
		a.finish(ctx, r, err)
		return nil, fmt.Errorf("loading pending articles: %w", err)
	}
	r.Pending = len(pending)
	if len(pending) == 0 {
		a.Logger.Info("no pending articles to analyze")
		return r, a.finish(ctx, r, nil)
	}
	a.Logger.Info("analyzing pending articles", "count", len(pending))

	enriched, err := a.enrich(ctx, pending, opts)
	if err != nil {
		a.finish(ctx, r, err)
		return nil, err
	}
	r.Analyzed = len(enriched)
	r.Failed = len(pending) - len(enriched)

	var relevant []enrichedArticle
	for _, e := range enriched {
		if e.Relevance >= opts.RelevanceThreshold {
			relevant = append(relevant, e)
		}
	}
	r.Relevant = len(relevant)
	a.Logger.Info("relevance filter", "analyzed", len(enriched), "relevant", len(relevant), "threshold", opts.RelevanceThreshold)

	if len(relevant) > 0 {
		out := a.brief(ctx, relevant, opts)
		r.Drafts = len(out.Drafts)
		if out.Briefing != "" {
			b := &database.Briefing{
				BriefingText: out.Briefing,
				ArticleCount: len(relevant),
				ScrapeRunID:  &runID,
				CreatedAt:    a.Clock.Now(),
			}
			if a.Model != "" {
				model := a.Model
				b.ModelUsed = &model
			}
			id, err := a.Store.InsertBriefing(ctx, b)
			if err != nil {
				a.finish(ctx, r, err)
				return nil, fmt.Errorf("storing briefing: %w", err)
			}
			r.BriefingID = id
			a.Logger.Info("briefing saved", "id", id, "chars", len(out.Briefing))
		}
		r.Queued = a.enqueueDrafts(ctx, out, r.BriefingID)

		if email && r.BriefingID != "" {
			r.Emailed = a.email(ctx, r.BriefingID, out.Briefing, opts.EmailTo)
		}
	}

	a.Logger.Info("analysis complete",
		"analyzed", r.Analyzed, "failed", r.Failed, "relevant", r.Relevant,
		"drafts", r.Drafts, "queued", r.Queued)
	return r, a.finish(ctx, r, nil)
}

func (a *Analyzer) finish(ctx context.Context, r *Result, runErr error) error {
	stats := database.RunStats{
		ArticlesFound: r.Pending,
		ArticlesNew:   r.Relevant,
		SourcesOK:     []string{"analyze_pipeline"},
	}
	if runErr != nil {
		stats.SourcesOK = nil
		stats.SourcesFailed = []string{"analyze_pipeline"}
		stats.Error = runErr.Error()
	}
	if err := a.Store.FinishRun(ctx, r.RunID, stats, a.Clock.Now()); err != nil {
		return fmt.Errorf("finishing analyze run: %w", err)
	}
	return nil
}

func (a *Analyzer) email(ctx context.Context, briefingID, text, to string) bool {
	if a.Mailer == nil || !a.Mailer.Configured() || to == "" {
		a.Logger.Info("briefing email skipped, mailer not configured")
		return false
	}
	subject := "Lex briefing " + a.Clock.Now().Format("2006-01-02")
	if err := a.Mailer.SendMarkdown(ctx, []string{to}, subject, text); err != nil {
		a.Logger.Error("sending briefing email", "to", to, "error", err)
		return false
	}
	if err := a.Store.MarkBriefingEmailed(ctx, briefingID, a.Clock.Now()); err != nil {
		a.Logger.Warn("marking briefing emailed", "id", briefingID, "error", err)
	}
	a.Logger.Info("briefing emailed", "to", to)
	return true
}
