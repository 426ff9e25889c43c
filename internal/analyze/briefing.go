package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/lex/internal/llm"
	"github.com/TobiSchelling/lex/internal/queue"
)

const briefingPrompt = `Analyze these categorized China tech articles and produce TWO outputs:

1. MORNING BRIEFING (300-500 words, Bloomberg style, markdown):
   LEAD (biggest story), then PATTERNS (cross-source themes), SIGNALS (emerging trends), WATCHLIST (developing stories) and DATA (key numbers).

2. POST DRAFTS for the 3-5 most notable items. Each draft has a post for a global audience in English and a post for a China-focused audience in Chinese.

When several sources report the same theme, treat it as a signal.

CATEGORIZED ARTICLES:
%s

Return JSON:
{"briefing": "markdown text", "drafts": [{"english_title": "...", "summary": "...", "urgency": "high|medium|low", "global_post": {"text": "..."}, "china_post": {"text": "..."}}]}
Respond with valid JSON only.`

const leadRunes = 500

type post struct {
	Text string `json:"text"`
}

type draft struct {
	EnglishTitle string `json:"english_title"`
	Summary      string `json:"summary"`
	Urgency      string `json:"urgency"`
	GlobalPost   *post  `json:"global_post"`
	ChinaPost    *post  `json:"china_post"`
	GlobalDraft  *post  `json:"global_draft"`
	ChinaDraft   *post  `json:"china_draft"`
}

func (d draft) globalText() string {
	return firstText(d.GlobalPost, d.GlobalDraft)
}

func (d draft) chinaText() string {
	return firstText(d.ChinaPost, d.ChinaDraft)
}

func firstText(posts ...*post) string {
	for _, p := range posts {
		if p != nil && strings.TrimSpace(p.Text) != "" {
			return p.Text
		}
	}
	return ""
}

type briefingOutput struct {
	Briefing string  `json:"briefing"`
	Drafts   []draft `json:"drafts"`
}

// brief runs stage 2. A failed or unparseable response yields an empty
// briefing and no drafts.
func (a *Analyzer) brief(ctx context.Context, relevant []enrichedArticle, opts Options) briefingOutput {
	prompt := fmt.Sprintf(briefingPrompt, formatByCategory(relevant))

	text, err := a.Provider.Generate(ctx, prompt, opts.BriefingMaxTokens)
	if err != nil {
		a.Logger.Error("stage 2 failed", "error", err)
		return briefingOutput{}
	}
	var out briefingOutput
	if err := llm.ParseJSON(text, &out); err != nil {
		a.Logger.Warn("stage 2 response could not be parsed", "error", err)
		return briefingOutput{}
	}
	out.Briefing = strings.TrimSpace(out.Briefing)
	a.Logger.Info("stage 2 complete", "chars", len(out.Briefing), "drafts", len(out.Drafts))
	return out
}

func formatByCategory(articles []enrichedArticle) string {
	byCategory := make(map[string][]enrichedArticle)
	for _, e := range articles {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}
	cats := make([]string, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var b strings.Builder
	for _, c := range cats {
		items := byCategory[c]
		fmt.Fprintf(&b, "\n## %s (%d articles)\n", strings.ToUpper(c), len(items))
		for _, e := range items {
			fmt.Fprintf(&b, "- [%s] (relevance:%d) %s\n", e.Source, e.Relevance, e.EnglishTitle)
			if summary := truncate(oneLine(e.Body), 200); summary != "" {
				fmt.Fprintf(&b, "  Summary: %s\n", summary)
			}
		}
	}
	return b.String()
}

// ExtractLead returns the first paragraph of a briefing that is not a
// heading, capped at 500 runes. It falls back to the start of the text.
func ExtractLead(briefing string) string {
	if strings.TrimSpace(briefing) == "" {
		return ""
	}
	for _, section := range strings.Split(briefing, "\n\n") {
		section = strings.TrimSpace(section)
		if section != "" && !strings.HasPrefix(section, "#") {
			return truncate(section, leadRunes)
		}
	}
	return truncate(strings.TrimSpace(briefing), leadRunes)
}

// enqueueDrafts queues each draft's global post to linkedin and devto and
// its China post to linkedin in Chinese. It returns the number queued.
func (a *Analyzer) enqueueDrafts(ctx context.Context, out briefingOutput, briefingID string) int {
	if a.Queue == nil {
		return 0
	}
	lead := ExtractLead(out.Briefing)
	queued := 0

	add := func(req queue.EnqueueRequest) {
		req.FallbackBody = lead
		req.BriefingID = briefingID
		if _, err := a.Queue.Enqueue(ctx, req); err != nil {
			a.Logger.Error("enqueueing draft", "platform", req.Platform, "error", err)
			return
		}
		queued++
	}

	for _, d := range out.Drafts {
		urgency := normalizeUrgency(d.Urgency)
		if text := d.globalText(); text != "" {
			title := strings.TrimSpace(d.EnglishTitle)
			if title == "" {
				title = strings.TrimSpace(d.Summary)
			}
			add(queue.EnqueueRequest{Platform: "linkedin", Body: text, Language: "en", Urgency: urgency})
			add(queue.EnqueueRequest{Platform: "devto", Title: title, Body: text, Language: "en", Urgency: urgency})
		}
		if text := d.chinaText(); text != "" {
			add(queue.EnqueueRequest{Platform: "linkedin", Body: text, Language: "zh", Urgency: urgency})
		}
	}
	a.Logger.Info("queued posts for publishing", "count", queued)
	return queued
}

func normalizeUrgency(u string) queue.Urgency {
	switch v := queue.Urgency(strings.ToLower(strings.TrimSpace(u))); v {
	case queue.UrgencyHigh, queue.UrgencyLow:
		return v
	default:
		return queue.UrgencyMedium
	}
}
