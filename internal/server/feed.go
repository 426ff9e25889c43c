package server

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"github.com/TobiSchelling/lex/internal/analyze"
	"github.com/TobiSchelling/lex/internal/database"
)

const feedItems = 20

// briefingFeed renders briefings as RSS 2.0.
func briefingFeed(briefings []database.Briefing, base string, now time.Time) (string, error) {
	feed := &feeds.Feed{
		Title:       "lex briefings",
		Link:        &feeds.Link{Href: base + "/briefings"},
		Description: "Daily China tech and AI briefings",
		Created:     now,
	}
	if len(briefings) > 0 {
		feed.Updated = briefings[0].CreatedAt
	}

	feed.Items = make([]*feeds.Item, 0, len(briefings))
	for _, b := range briefings {
		link := fmt.Sprintf("%s/briefings/%s", base, b.ID)
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       "Briefing " + b.CreatedAt.Format("2006-01-02"),
			Link:        &feeds.Link{Href: link},
			Id:          link,
			Description: analyze.ExtractLead(b.BriefingText),
			Content:     string(renderMarkdown(b.BriefingText)),
			Created:     b.CreatedAt,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to generate RSS: %w", err)
	}
	return rss, nil
}
