package collect

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/lex/internal/dedup"
)

const maxPerFeed = 20

// FeedSource reads an RSS, Atom or JSON feed.
type FeedSource struct {
	name   string
	url    string
	parser *gofeed.Parser
}

// NewFeedSource creates a feed source. An empty name is derived from the URL.
func NewFeedSource(name, feedURL string, client *http.Client) *FeedSource {
	if name == "" {
		name = extractSourceName(feedURL)
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &FeedSource{name: name, url: feedURL, parser: parser}
}

func (f *FeedSource) Name() string { return f.name }

// Fetch returns at most 20 items from the feed.
func (f *FeedSource) Fetch(ctx context.Context) ([]dedup.Candidate, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, err
	}

	var out []dedup.Candidate
	for _, item := range feed.Items {
		if len(out) >= maxPerFeed {
			break
		}
		if c, ok := parseItem(item, f.name); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func parseItem(item *gofeed.Item, source string) (dedup.Candidate, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return dedup.Candidate{}, false
	}

	c := dedup.Candidate{Source: source, Title: title, URL: link}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		c.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		c.PublishedAt = &t
	default:
		c.PublishedAt = dedup.ParsePublished(item.Published)
	}

	if item.Content != "" {
		c.Body = stripHTML(item.Content)
	} else if item.Description != "" {
		c.Body = stripHTML(item.Description)
	}
	return c, true
}

// stripHTML returns the visible text of an HTML fragment with whitespace
// collapsed.
func stripHTML(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
