package analyze

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/llm"
)

const enrichPrompt = `You are a China tech intelligence analyst. For each article below:
1. Translate the title to English (keep it unchanged if it is already English)
2. Categorize it as one of: funding, m_and_a, product, regulation, breakthrough, personnel, market, other
3. Score its relevance to enterprise technology and AI from 1 to 5 (5 = critical, 1 = irrelevant)

Return a JSON array. Each element: {"index": N, "english_title": "...", "category": "...", "relevance": N}

ARTICLES:
%s

Respond with a valid JSON array only.`

// Categories are the stage 1 labels. Anything else is stored as "other".
var Categories = []string{"funding", "m_and_a", "product", "regulation", "breakthrough", "personnel", "market", "other"}

type enrichedArticle struct {
	database.Article
	EnglishTitle string
	Category     string
	Relevance    int
}

type enrichItem struct {
	Index        int    `json:"index"`
	EnglishTitle string `json:"english_title"`
	Category     string `json:"category"`
	Relevance    score  `json:"relevance"`
}

// score accepts a JSON number or a quoted number.
type score int

func (s *score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("relevance %q: %w", raw, err)
	}
	*s = score(f)
	return nil
}

// enrich runs stage 1 over pending articles in batches. Articles the model
// returns are stored as analyzed; the rest are marked enrichment_failed.
func (a *Analyzer) enrich(ctx context.Context, pending []database.Article, opts Options) ([]enrichedArticle, error) {
	var (
		enriched []enrichedArticle
		failed   []string
	)
	total := (len(pending) + opts.BatchSize - 1) / opts.BatchSize

	for start := 0; start < len(pending); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(pending))
		batch := pending[start:end]
		log := a.Logger.With("batch", start/opts.BatchSize+1, "batches", total)

		items, err := a.enrichBatch(ctx, batch, opts.MaxTokens)
		if err != nil {
			log.Warn("stage 1 batch failed", "articles", len(batch), "error", err)
		}

		got := make(map[int]enrichItem, len(items))
		for _, it := range items {
			if it.Index < 0 || it.Index >= len(batch) {
				continue
			}
			if _, dup := got[it.Index]; !dup {
				got[it.Index] = it
			}
		}

		for i, art := range batch {
			it, ok := got[i]
			if !ok {
				failed = append(failed, art.ID)
				continue
			}
			e := enrichedArticle{
				Article:      art,
				EnglishTitle: strings.TrimSpace(it.EnglishTitle),
				Category:     normalizeCategory(it.Category),
				Relevance:    clampRelevance(int(it.Relevance)),
			}
			if e.EnglishTitle == "" {
				e.EnglishTitle = art.Title
			}
			if err := a.Store.UpdateArticleEnrichment(ctx, art.ID, e.EnglishTitle, e.Category, e.Relevance); err != nil {
				failed = append(failed, art.ID)
				if merr := a.markFailed(ctx, failed); merr != nil {
					log.Error("marking enrichment failures", "error", merr)
				}
				return nil, fmt.Errorf("storing enrichment for %s: %w", art.ID, err)
			}
			enriched = append(enriched, e)
		}
		log.Info("stage 1 batch complete", "articles", len(batch), "enriched", len(got))
	}

	if err := a.markFailed(ctx, failed); err != nil {
		return nil, fmt.Errorf("marking enrichment failures: %w", err)
	}
	return enriched, nil
}

func (a *Analyzer) markFailed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := a.Store.MarkArticlesStatus(ctx, ids, database.ArticleEnrichmentFailed); err != nil {
		return err
	}
	a.Logger.Warn("articles without enrichment", "count", len(ids))
	return nil
}

func (a *Analyzer) enrichBatch(ctx context.Context, batch []database.Article, maxTokens int) ([]enrichItem, error) {
	lines := make([]string, len(batch))
	for j, art := range batch {
		lines[j] = fmt.Sprintf("[%d] SOURCE: %s | TITLE: %s | SUMMARY: %s",
			j, art.Source, truncate(art.Title, 200), truncate(oneLine(art.Body), 300))
	}
	prompt := fmt.Sprintf(enrichPrompt, strings.Join(lines, "\n"))

	text, err := a.Provider.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}
	var items []enrichItem
	if err := llm.ParseJSON(text, &items); err != nil {
		return nil, fmt.Errorf("parsing stage 1 response: %w", err)
	}
	return items, nil
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	c = strings.NewReplacer(" ", "_", "-", "_", "&", "_and_").Replace(c)
	c = strings.ReplaceAll(c, "__", "_")
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return "other"
}

func clampRelevance(n int) int {
	return max(1, min(5, n))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
