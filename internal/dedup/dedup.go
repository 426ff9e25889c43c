// Package dedup decides whether ingested items are novel. It layers an
// exact normalized-title window, a fuzzy rolling window and an optional
// semantic embedding window, cheapest first.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/llm"
)

// TitleHistory is the exact-match window.
type TitleHistory interface {
	HasTitleSince(ctx context.Context, titleNorm string, since time.Time) (bool, error)
	RecordTitle(ctx context.Context, titleNorm, source string, seenAt time.Time) error
}

// RecentWindow is the rolling list of titles used by the fuzzy check.
type RecentWindow interface {
	RecentTitles(ctx context.Context) ([]string, error)
	AppendRecentTitles(ctx context.Context, titles []string, keep int) error
}

// VectorIndex stores embeddings for the semantic check.
type VectorIndex interface {
	NearestEmbeddings(ctx context.Context, vec []float64, since time.Time, topK int) ([]database.EmbeddingMatch, error)
	UpsertEmbedding(ctx context.Context, rec database.EmbeddingRecord) error
}

// Reason names the check that rejected a candidate.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonEmpty    Reason = "empty"
	ReasonExact    Reason = "exact"
	ReasonFuzzy    Reason = "fuzzy"
	ReasonSemantic Reason = "semantic"
)

// Verdict is the outcome of checking one candidate.
type Verdict struct {
	Duplicate bool
	Reason    Reason
	TitleNorm string
	Match     string
	Score     float64
}

// Accepted is a candidate that passed every check.
type Accepted struct {
	Candidate
	TitleNorm string
	SourceID  string
}

// Stats counts outcomes for a batch.
type Stats struct {
	Total    int
	Accepted int
	Empty    int
	Exact    int
	Fuzzy    int
	Semantic int
}

func (s *Stats) add(r Reason) {
	switch r {
	case ReasonEmpty:
		s.Empty++
	case ReasonExact:
		s.Exact++
	case ReasonFuzzy:
		s.Fuzzy++
	case ReasonSemantic:
		s.Semantic++
	}
}

// Options holds the dedup policy.
type Options struct {
	WindowDays         int
	FuzzyThreshold     float64
	RecentWindow       int
	SemanticThreshold  float64
	SemanticWindowDays int
	SemanticTopK       int
}

// DefaultOptions returns the stock policy.
func DefaultOptions() Options {
	return Options{
		WindowDays:         30,
		FuzzyThreshold:     0.65,
		RecentWindow:       500,
		SemanticThreshold:  0.85,
		SemanticWindowDays: 30,
		SemanticTopK:       5,
	}
}

const embedBodyRunes = 2000

// Deduplicator runs the dedup checks. History is required; Window,
// Embedder and Index are optional and their checks are skipped when nil.
type Deduplicator struct {
	History  TitleHistory
	Window   RecentWindow
	Embedder llm.Embedder
	Index    VectorIndex
	Clock    clock.Clock
	Logger   *slog.Logger
	Opts     Options
}

// New returns a Deduplicator with the system clock and default logger.
func New(history TitleHistory, opts Options) *Deduplicator {
	return &Deduplicator{
		History: history,
		Clock:   clock.System(),
		Logger:  slog.Default(),
		Opts:    opts,
	}
}

func (d *Deduplicator) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Deduplicator) now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}
	return d.Clock.Now()
}

// SemanticEnabled reports whether the embedding check will run.
func (d *Deduplicator) SemanticEnabled() bool {
	return d.Embedder != nil && d.Index != nil
}

// Check evaluates a single candidate against history without recording it.
func (d *Deduplicator) Check(ctx context.Context, c Candidate) Verdict {
	window := d.loadWindow(ctx)
	v, _ := d.check(ctx, c, d.now(), nil, window)
	return v
}

// Filter processes a batch in order and returns the accepted candidates.
// Accepted titles are recorded so later candidates in the same batch, and
// later batches, see them.
func (d *Deduplicator) Filter(ctx context.Context, candidates []Candidate) ([]Accepted, Stats) {
	stats := Stats{Total: len(candidates)}
	now := d.now()
	window := d.loadWindow(ctx)

	var (
		accepted []Accepted
		batch    []string
	)
	for _, c := range candidates {
		v, vec := d.check(ctx, c, now, batch, window)
		if v.Duplicate {
			stats.add(v.Reason)
			d.logger().Debug("duplicate", "reason", v.Reason, "title", c.Title, "match", v.Match, "score", v.Score)
			continue
		}

		a := Accepted{Candidate: c, TitleNorm: v.TitleNorm, SourceID: c.SourceID()}
		if err := d.History.RecordTitle(ctx, a.TitleNorm, c.Source, now); err != nil {
			d.logger().Warn("recording title failed", "title", c.Title, "error", err)
		}
		if vec != nil {
			rec := database.EmbeddingRecord{ID: a.SourceID, Source: c.Source, Title: c.Title, Vector: vec, CreatedAt: now}
			if err := d.Index.UpsertEmbedding(ctx, rec); err != nil {
				d.logger().Warn("storing embedding failed", "title", c.Title, "error", err)
			}
		}
		batch = append(batch, a.TitleNorm)
		accepted = append(accepted, a)
	}
	stats.Accepted = len(accepted)

	if d.Window != nil && len(batch) > 0 {
		if err := d.Window.AppendRecentTitles(ctx, batch, d.Opts.RecentWindow); err != nil {
			d.logger().Warn("updating recent title window failed", "error", err)
		}
	}

	d.logger().Info("dedup complete",
		"total", stats.Total, "accepted", stats.Accepted,
		"exact", stats.Exact, "fuzzy", stats.Fuzzy, "semantic", stats.Semantic, "empty", stats.Empty)
	return accepted, stats
}

func (d *Deduplicator) loadWindow(ctx context.Context) []string {
	if d.Window == nil {
		return nil
	}
	titles, err := d.Window.RecentTitles(ctx)
	if err != nil {
		d.logger().Warn("recent title window unavailable", "error", err)
		return nil
	}
	return titles
}

// check runs the checks in cost order. It returns the candidate's vector
// when one was computed so the caller can index it on acceptance.
func (d *Deduplicator) check(ctx context.Context, c Candidate, now time.Time, batch, window []string) (Verdict, []float64) {
	norm := Normalize(c.Title)
	if norm == "" {
		return Verdict{Duplicate: true, Reason: ReasonEmpty}, nil
	}
	v := Verdict{TitleNorm: norm}

	since := now.AddDate(0, 0, -d.Opts.WindowDays)
	found, err := d.History.HasTitleSince(ctx, norm, since)
	if err != nil {
		d.logger().Warn("exact dedup check unavailable", "error", err)
	} else if found {
		v.Duplicate, v.Reason, v.Match, v.Score = true, ReasonExact, norm, 1
		return v, nil
	}

	if d.Opts.FuzzyThreshold > 0 {
		if score, match := bestRatio(norm, batch, window); score >= d.Opts.FuzzyThreshold {
			v.Duplicate, v.Reason, v.Match, v.Score = true, ReasonFuzzy, match, score
			return v, nil
		}
	}

	if !d.SemanticEnabled() {
		return v, nil
	}
	vec := d.embed(ctx, c)
	if vec == nil {
		return v, nil
	}
	semSince := now.AddDate(0, 0, -d.Opts.SemanticWindowDays)
	matches, err := d.Index.NearestEmbeddings(ctx, vec, semSince, d.Opts.SemanticTopK)
	if err != nil {
		d.logger().Warn("vector index unavailable", "error", err)
		return v, vec
	}
	if len(matches) > 0 && matches[0].Score >= d.Opts.SemanticThreshold {
		v.Duplicate, v.Reason, v.Match, v.Score = true, ReasonSemantic, matches[0].Title, matches[0].Score
		return v, nil
	}
	return v, vec
}

func (d *Deduplicator) embed(ctx context.Context, c Candidate) []float64 {
	text := c.Title
	if body := []rune(c.Body); len(body) > 0 {
		if len(body) > embedBodyRunes {
			body = body[:embedBodyRunes]
		}
		text += "\n\n" + string(body)
	}
	vecs, err := d.Embedder.Embed(ctx, []string{text})
	if err != nil {
		d.logger().Warn("embedding unavailable", "error", err)
		return nil
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil
	}
	return vecs[0]
}
