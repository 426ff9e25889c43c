package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/dedup"
)

// SiteSource scrapes an HTML listing page with CSS selectors.
type SiteSource struct {
	cfg    config.Site
	client *http.Client
}

// NewSiteSource creates a listing-page source.
func NewSiteSource(cfg config.Site, client *http.Client) *SiteSource {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = maxPerFeed
	}
	if cfg.Name == "" {
		cfg.Name = extractSourceName(cfg.URL)
	}
	return &SiteSource{cfg: cfg, client: client}
}

func (s *SiteSource) Name() string { return s.cfg.Name }

func (s *SiteSource) Fetch(ctx context.Context) ([]dedup.Candidate, error) {
	base, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing site url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s returned %d", s.cfg.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.cfg.URL, err)
	}

	sel := s.cfg.Selectors
	var out []dedup.Candidate
	doc.Find(sel.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		title := collapse(pick(item, sel.Title).Text())
		if title == "" {
			return true
		}
		c := dedup.Candidate{Source: s.cfg.Name, Title: title}

		if href, ok := pick(item, sel.Link).Attr("href"); ok {
			if u, err := base.Parse(strings.TrimSpace(href)); err == nil {
				c.URL = u.String()
			}
		}
		if sel.Summary != "" {
			c.Body = collapse(item.Find(sel.Summary).Text())
		}
		if sel.Date != "" {
			d := item.Find(sel.Date).First()
			raw, ok := d.Attr("datetime")
			if !ok {
				raw = d.Text()
			}
			c.PublishedAt = dedup.ParsePublished(raw)
		}

		out = append(out, c)
		return len(out) < s.cfg.MaxItems
	})
	return out, nil
}

// pick returns the first match of selector within item, or item itself when
// selector is empty.
func pick(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return item
	}
	return item.Find(selector).First()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
