package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS scrape_runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    duration_s REAL,
    articles_found INTEGER DEFAULT 0,
    articles_new INTEGER DEFAULT 0,
    sources_ok TEXT NOT NULL DEFAULT '[]',
    sources_failed TEXT NOT NULL DEFAULT '[]',
    error TEXT
);

CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    source_id TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    title_norm TEXT NOT NULL,
    url TEXT,
    body TEXT NOT NULL DEFAULT '',
    body_fetched INTEGER NOT NULL DEFAULT 0,
    published_at TEXT,
    scraped_at TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'analyzed', 'enrichment_failed', 'archived')),
    english_title TEXT,
    category TEXT,
    relevance INTEGER CHECK (relevance IS NULL OR relevance BETWEEN 1 AND 5),
    scrape_run_id TEXT REFERENCES scrape_runs(id)
);

CREATE TABLE IF NOT EXISTS dedup_titles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title_norm TEXT NOT NULL,
    source TEXT NOT NULL,
    seen_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recent_titles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title_norm TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS briefings (
    id TEXT PRIMARY KEY,
    briefing_text TEXT NOT NULL,
    article_count INTEGER DEFAULT 0,
    model_used TEXT,
    scrape_run_id TEXT REFERENCES scrape_runs(id),
    email_sent INTEGER NOT NULL DEFAULT 0,
    email_sent_at TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS publish_queue (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    title TEXT,
    body TEXT NOT NULL,
    fallback_body TEXT,
    language TEXT NOT NULL DEFAULT 'en',
    urgency TEXT NOT NULL CHECK (urgency IN ('high', 'medium', 'low')),
    priority INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued'
        CHECK (status IN ('queued', 'retry_queued', 'published', 'failed')),
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    next_retry_at TEXT,
    publish_log TEXT NOT NULL DEFAULT '[]',
    published_at TEXT,
    platform_id TEXT,
    error TEXT,
    briefing_id TEXT REFERENCES briefings(id),
    article_id TEXT REFERENCES articles(id),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_title_norm ON articles(title_norm);
CREATE INDEX IF NOT EXISTS idx_articles_scraped_at ON articles(scraped_at);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_dedup_titles_norm_seen ON dedup_titles(title_norm, seen_at);
CREATE INDEX IF NOT EXISTS idx_dedup_titles_seen ON dedup_titles(seen_at);
CREATE INDEX IF NOT EXISTS idx_queue_retry ON publish_queue(status, priority, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_queue_fresh ON publish_queue(status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_platform ON publish_queue(platform);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "article embeddings for semantic dedup",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS article_embeddings (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    title TEXT NOT NULL,
    vector TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_article_embeddings_created ON article_embeddings(created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
