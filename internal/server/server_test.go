package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/queue"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T) (*Server, *database.DB, *queue.Store) {
	t.Helper()
	db := openTestDB(t)
	q := queue.NewStore(db, queue.WithClock(clock.NewFake(now)))
	srv, err := New(db, q, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	srv.clock = clock.NewFake(now)
	return srv, db, q
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestIndexRedirects(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/briefings" {
		t.Errorf("expected redirect to /briefings, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestStatsRoute(t *testing.T) {
	srv, db, q := newTestServer(t)
	ctx := context.Background()
	db.InsertArticle(ctx, &database.Article{Source: "s", SourceID: "a", Title: "A", TitleNorm: "a", ScrapedAt: now})
	q.Enqueue(ctx, queue.EnqueueRequest{Platform: "linkedin", Body: "hi"})

	rec := get(t, srv, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if got.TotalArticles != 1 || got.Articles["pending"] != 1 {
		t.Errorf("unexpected article stats %+v", got)
	}
	if got.Queue["queued"] != 1 {
		t.Errorf("expected 1 queued item, got %v", got.Queue)
	}
}

func TestQueueRoutes(t *testing.T) {
	srv, _, q := newTestServer(t)
	ctx := context.Background()
	li, _ := q.Enqueue(ctx, queue.EnqueueRequest{Platform: "linkedin", Body: "one"})
	q.Enqueue(ctx, queue.EnqueueRequest{Platform: "devto", Title: "T", Body: "two"})
	if err := q.MarkPublishFailed(ctx, li.ID, "503 upstream"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := get(t, srv, "/api/queue?platform=devto")
	var items []queue.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decoding queue: %v", err)
	}
	if len(items) != 1 || items[0].Platform != "devto" {
		t.Errorf("expected only the devto item, got %+v", items)
	}

	rec = get(t, srv, "/api/queue?status=retry_queued")
	items = nil
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].ID != li.ID {
		t.Errorf("expected the retry_queued item, got %+v", items)
	}

	rec = get(t, srv, "/api/queue/"+li.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var item queue.Item
	json.Unmarshal(rec.Body.Bytes(), &item)
	if len(item.PublishLog) != 1 || item.PublishLog[0].Error != "503 upstream" {
		t.Errorf("expected publish log with error, got %+v", item.PublishLog)
	}

	if rec := get(t, srv, "/api/queue/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := get(t, srv, "/api/queue?status=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := get(t, srv, "/api/queue?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestEmptyQueueIsArray(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/api/queue")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}
}

func TestArticlesRoute(t *testing.T) {
	srv, db, _ := newTestServer(t)
	ctx := context.Background()
	a := &database.Article{Source: "s", SourceID: "a", Title: "A", TitleNorm: "a", ScrapedAt: now}
	b := &database.Article{Source: "s", SourceID: "b", Title: "B", TitleNorm: "b", ScrapedAt: now}
	db.InsertArticle(ctx, a)
	db.InsertArticle(ctx, b)
	db.UpdateArticleEnrichment(ctx, b.ID, "B en", "market", 4)

	rec := get(t, srv, "/api/articles?status=analyzed")
	var got []articleView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding articles: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID || *got[0].Relevance != 4 {
		t.Errorf("expected the analyzed article, got %+v", got)
	}
}

func TestBriefingRoutes(t *testing.T) {
	srv, db, _ := newTestServer(t)
	ctx := context.Background()
	id, err := db.InsertBriefing(ctx, &database.Briefing{
		BriefingText: "# Morning\n\nDeepSeek leads.\n\n## Patterns\n\n- price cuts",
		ArticleCount: 4,
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := get(t, srv, "/briefings")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/briefings/"+id) {
		t.Errorf("expected briefing link in index, got %d", rec.Code)
	}

	rec = get(t, srv, "/briefings/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>Patterns</h2>") || !strings.Contains(body, "<li>price cuts</li>") {
		t.Errorf("expected rendered markdown, got:\n%s", body)
	}

	if rec := get(t, srv, "/briefings/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestFeedRoute(t *testing.T) {
	srv, db, _ := newTestServer(t)
	id, _ := db.InsertBriefing(context.Background(), &database.Briefing{
		BriefingText: "# Morning\n\nDeepSeek leads.",
		ArticleCount: 1,
		CreatedAt:    now,
	})

	rec := get(t, srv, "/feed.xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<title>Briefing 2026-03-10</title>") {
		t.Errorf("expected item title in feed, got:\n%s", body)
	}
	if !strings.Contains(body, "/briefings/"+id) {
		t.Error("expected briefing link in feed")
	}
	if !strings.Contains(body, "DeepSeek leads.") {
		t.Error("expected lead as description")
	}
}
