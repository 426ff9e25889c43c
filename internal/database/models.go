package database

import "time"

// ArticleStatus is the analysis lifecycle state of an article.
type ArticleStatus string

const (
	ArticlePending          ArticleStatus = "pending"
	ArticleAnalyzed         ArticleStatus = "analyzed"
	ArticleEnrichmentFailed ArticleStatus = "enrichment_failed"
	ArticleArchived         ArticleStatus = "archived"
)

// Article is a persisted, deduplicated news item.
type Article struct {
	ID           string
	Source       string
	SourceID     string
	Title        string
	TitleNorm    string
	URL          *string
	Body         string
	BodyFetched  bool
	PublishedAt  *time.Time
	ScrapedAt    time.Time
	Status       ArticleStatus
	EnglishTitle *string
	Category     *string
	Relevance    *int
	ScrapeRunID  *string
}

// Briefing is a generated cross-source briefing.
type Briefing struct {
	ID           string
	BriefingText string
	ArticleCount int
	ModelUsed    *string
	ScrapeRunID  *string
	EmailSent    bool
	EmailSentAt  *time.Time
	CreatedAt    time.Time
}

// ScrapeRun records one invocation of a pipeline stage.
type ScrapeRun struct {
	ID            string
	Mode          string
	StartedAt     time.Time
	FinishedAt    *time.Time
	DurationS     *float64
	ArticlesFound int
	ArticlesNew   int
	SourcesOK     []string
	SourcesFailed []string
	Error         *string
}

// RunStats is the outcome recorded when a run finishes.
type RunStats struct {
	ArticlesFound int
	ArticlesNew   int
	SourcesOK     []string
	SourcesFailed []string
	Error         string
}

// EmbeddingRecord is one vector in the semantic dedup index.
type EmbeddingRecord struct {
	ID        string
	Source    string
	Title     string
	Vector    []float64
	CreatedAt time.Time
}

// EmbeddingMatch is a nearest-neighbour hit.
type EmbeddingMatch struct {
	ID     string
	Score  float64
	Source string
	Title  string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles    int
	Articles         map[ArticleStatus]int
	DedupTitles      int
	Briefings        int
	Queue            map[string]int
	PublishedToday   int
	LastRunStartedAt *time.Time
}
