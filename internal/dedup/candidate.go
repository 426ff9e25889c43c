package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Candidate is an ingested item that has not yet been persisted.
type Candidate struct {
	Source      string
	Title       string
	URL         string
	Body        string
	PublishedAt *time.Time
}

// SourceID is the stable key for a candidate: the first 16 hex characters
// of sha256(source:url), or of sha256(source:title) when there is no URL.
func (c Candidate) SourceID() string {
	key := c.URL
	if key == "" {
		key = c.Title
	}
	sum := sha256.Sum256([]byte(c.Source + ":" + key))
	return hex.EncodeToString(sum[:])[:16]
}

// ParsePublished parses a feed or page date. Blank or unrecognised input
// yields nil.
func ParsePublished(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
