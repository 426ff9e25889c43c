// Package pipeline chains the stages of a full cycle: collect, fetch bodies,
// analyze, then drain the publish queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/lex/internal/analyze"
	"github.com/TobiSchelling/lex/internal/collect"
	"github.com/TobiSchelling/lex/internal/fetch"
	"github.com/TobiSchelling/lex/internal/publish"
	"github.com/TobiSchelling/lex/internal/queue"
)

// Collector runs the scrape stage.
type Collector interface {
	Collect(ctx context.Context) (*collect.Result, error)
}

// Fetcher fills in missing article bodies.
type Fetcher interface {
	FetchMissing(ctx context.Context) (*fetch.Result, error)
}

// Analyzer runs both LLM stages.
type Analyzer interface {
	Run(ctx context.Context, email bool) (*analyze.Result, error)
}

// Drainer publishes due queue items.
type Drainer interface {
	Drain(ctx context.Context, f queue.Filter) (publish.Result, error)
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Skipped bool
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline orchestrates a scrape, fetch, analyze and publish cycle.
type Pipeline struct {
	Collector Collector
	Fetcher   Fetcher
	Analyzer  Analyzer
	Drainer   Drainer
	// LockPath guards the drain step; empty disables locking.
	LockPath   string
	BatchLimit int
	Email      bool
	Logger     *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run executes the cycle. A collect failure aborts the run. Analysis is
// skipped when the scrape found nothing new; the drain always runs so due
// retries are not held back.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}
	log := p.logger()

	log.Info("step 1/4: collecting articles")
	collected, err := p.Collector.Collect(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Found %d, %d new (%d exact, %d fuzzy, %d semantic duplicates), %d sources failed",
			collected.Found, collected.New, collected.Dedup.Exact, collected.Dedup.Fuzzy, collected.Dedup.Semantic,
			len(collected.SourcesFailed)),
	})

	log.Info("step 2/4: fetching article content")
	r.Steps = append(r.Steps, p.runFetch(ctx))

	log.Info("step 3/4: analyzing articles")
	if collected.New == 0 {
		r.Steps = append(r.Steps, StepResult{Name: "Analyze", Summary: "No new articles", Skipped: true})
	} else {
		r.Steps = append(r.Steps, p.runAnalyze(ctx))
	}

	log.Info("step 4/4: publishing queued posts")
	r.Steps = append(r.Steps, p.runPublish(ctx))
	return r
}

func (p *Pipeline) runFetch(ctx context.Context) StepResult {
	if p.Fetcher == nil {
		return StepResult{Name: "Fetch", Summary: "Disabled", Skipped: true}
	}
	res, err := p.Fetcher.FetchMissing(ctx)
	if err != nil {
		return StepResult{Name: "Fetch", Err: err}
	}
	return StepResult{Name: "Fetch", Summary: fmt.Sprintf("Fetched %d articles, %d failed", res.Fetched, res.Failed)}
}

func (p *Pipeline) runAnalyze(ctx context.Context) StepResult {
	if p.Analyzer == nil {
		return StepResult{Name: "Analyze", Summary: "No LLM provider", Skipped: true}
	}
	res, err := p.Analyzer.Run(ctx, p.Email)
	if errors.Is(err, analyze.ErrNoProvider) {
		return StepResult{Name: "Analyze", Summary: "No LLM provider", Skipped: true}
	}
	if err != nil {
		return StepResult{Name: "Analyze", Err: err}
	}
	return StepResult{
		Name: "Analyze",
		Summary: fmt.Sprintf("Analyzed %d (%d failed), %d relevant, %d posts queued",
			res.Analyzed, res.Failed, res.Relevant, res.Queued),
	}
}

func (p *Pipeline) runPublish(ctx context.Context) StepResult {
	if p.LockPath != "" {
		lock, err := publish.AcquireLock(p.LockPath)
		if errors.Is(err, publish.ErrDrainRunning) {
			return StepResult{Name: "Publish", Summary: "Another drain is running", Skipped: true}
		}
		if err != nil {
			return StepResult{Name: "Publish", Err: err}
		}
		defer lock.Release()
	}

	res, err := p.Drainer.Drain(ctx, queue.Filter{Limit: p.BatchLimit})
	if err != nil {
		return StepResult{Name: "Publish", Err: err}
	}
	summary := fmt.Sprintf("Published %d, failed %d, skipped %d", res.Published, res.Failed, res.Skipped)
	if res.Errors > 0 {
		summary += fmt.Sprintf(", %d unrecorded", res.Errors)
	}
	return StepResult{Name: "Publish", Summary: summary}
}
