package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/lex/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insert(t *testing.T, db *database.DB, sourceID, link string) *database.Article {
	t.Helper()
	a := &database.Article{
		Source:    "test",
		SourceID:  sourceID,
		Title:     "title " + sourceID,
		TitleNorm: "title " + sourceID,
		URL:       &link,
		ScrapedAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	if _, err := db.InsertArticle(context.Background(), a); err != nil {
		t.Fatalf("inserting article: %v", err)
	}
	return a
}

var articleHTML = `<html><head><title>Story</title></head><body><article><h1>Story</h1><p>` +
	strings.Repeat("The model was trained on a large corpus of text and released openly. ", 10) +
	`</p></article></body></html>`

func TestFetchMissing(t *testing.T) {
	var badHits int
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer bad.Close()

	db := openTestDB(t)
	ctx := context.Background()
	ok := insert(t, db, "a", good.URL+"/story")
	insert(t, db, "b", bad.URL+"/1")
	insert(t, db, "c", bad.URL+"/2")

	f := NewContentFetcher(db, time.Second, nil)
	r, err := f.FetchMissing(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fetched != 1 || r.Failed != 2 {
		t.Errorf("expected 1 fetched and 2 failed, got %d and %d", r.Fetched, r.Failed)
	}
	if badHits != 1 {
		t.Errorf("expected failing domain to be contacted once, got %d", badHits)
	}

	got, err := db.GetArticle(ctx, ok.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got.Body, "trained on a large corpus") {
		t.Errorf("expected extracted body, got %q", got.Body)
	}

	remaining, err := db.GetArticlesNeedingFetch(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected every article attempted, %d remain", len(remaining))
	}
}

func TestFetchMissingNothingToDo(t *testing.T) {
	f := NewContentFetcher(openTestDB(t), time.Second, nil)
	r, err := f.FetchMissing(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fetched != 0 || r.Failed != 0 {
		t.Errorf("expected empty result, got %+v", r)
	}
}
