package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/database"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestDedup(t *testing.T) (*Deduplicator, *database.DB) {
	t.Helper()
	db := openTestDB(t)
	d := New(db, DefaultOptions())
	d.Window = db
	d.Clock = clock.NewFake(now)
	return d, db
}

// mockEmbedder maps exact input text to a vector.
type mockEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			v = []float64{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

type failingIndex struct{}

func (failingIndex) NearestEmbeddings(context.Context, []float64, time.Time, int) ([]database.EmbeddingMatch, error) {
	return nil, errors.New("index down")
}

func (failingIndex) UpsertEmbedding(context.Context, database.EmbeddingRecord) error {
	return errors.New("index down")
}

type failingHistory struct{}

func (failingHistory) HasTitleSince(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("db locked")
}

func (failingHistory) RecordTitle(context.Context, string, string, time.Time) error {
	return errors.New("db locked")
}

func TestFilterExactDuplicateInBatch(t *testing.T) {
	d, _ := newTestDedup(t)

	accepted, stats := d.Filter(context.Background(), []Candidate{
		{Source: "36kr", Title: "DeepSeek releases new model", URL: "https://a/1"},
		{Source: "huxiu", Title: "DeepSeek Releases New Model!!", URL: "https://b/1"},
	})
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted, got %d", len(accepted))
	}
	if accepted[0].Source != "36kr" {
		t.Errorf("expected first candidate kept, got %s", accepted[0].Source)
	}
	if stats.Exact != 1 {
		t.Errorf("expected second candidate rejected as exact, got %+v", stats)
	}
}

func TestExactWindow(t *testing.T) {
	d, db := newTestDedup(t)
	ctx := context.Background()

	db.RecordTitle(ctx, Normalize("Recent story"), "old", now.AddDate(0, 0, -10))
	db.RecordTitle(ctx, Normalize("Ancient story"), "old", now.AddDate(0, 0, -40))

	if v := d.Check(ctx, Candidate{Source: "x", Title: "Recent story"}); !v.Duplicate || v.Reason != ReasonExact {
		t.Errorf("expected exact duplicate within window, got %+v", v)
	}
	if v := d.Check(ctx, Candidate{Source: "x", Title: "Ancient story"}); v.Duplicate {
		t.Errorf("expected title outside window to be accepted, got %+v", v)
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	d, db := newTestDedup(t)
	ctx := context.Background()

	d.Check(ctx, Candidate{Source: "x", Title: "Only checked"})
	found, _ := db.HasTitleSince(ctx, "only checked", now.AddDate(0, 0, -1))
	if found {
		t.Error("expected Check to leave history untouched")
	}
}

func TestEmptyTitleRejected(t *testing.T) {
	d, _ := newTestDedup(t)
	v := d.Check(context.Background(), Candidate{Source: "x", Title: "?!…"})
	if !v.Duplicate || v.Reason != ReasonEmpty {
		t.Errorf("expected empty rejection, got %+v", v)
	}
}

func TestFuzzyAgainstBatchAndWindow(t *testing.T) {
	d, db := newTestDedup(t)
	ctx := context.Background()

	db.AppendRecentTitles(ctx, []string{Normalize("OpenAI launches GPT-5 for enterprise customers")}, 500)

	accepted, stats := d.Filter(ctx, []Candidate{
		{Source: "a", Title: "OpenAI launches GPT5 for enterprise customers today"},
		{Source: "b", Title: "阿里巴巴发布通义千问新版本"},
		{Source: "c", Title: "阿里巴巴发布通义千问最新版本"},
		{Source: "d", Title: "Robotics startup raises Series B"},
	})
	if stats.Fuzzy != 2 {
		t.Errorf("expected 2 fuzzy rejections, got %+v", stats)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted, got %d", len(accepted))
	}

	window, _ := db.RecentTitles(ctx)
	if len(window) != 3 {
		t.Errorf("expected window of 3 titles, got %v", window)
	}
}

func TestRecentWindowTrimmed(t *testing.T) {
	d, db := newTestDedup(t)
	d.Opts.RecentWindow = 2
	d.Opts.FuzzyThreshold = 0.99
	ctx := context.Background()

	d.Filter(ctx, []Candidate{
		{Source: "a", Title: "alpha one"},
		{Source: "a", Title: "bravo two"},
		{Source: "a", Title: "charlie three"},
	})
	window, _ := db.RecentTitles(ctx)
	if len(window) != 2 || window[0] != "bravo two" || window[1] != "charlie three" {
		t.Errorf("expected newest 2 titles, got %v", window)
	}
}

func TestSemanticDuplicate(t *testing.T) {
	d, db := newTestDedup(t)
	emb := &mockEmbedder{vectors: map[string][]float64{
		"Baidu unveils Ernie 5\n\nBaidu today announced": {1, 0, 0},
		"百度推出文心大模型第五代\n\n百度今天宣布":                         {0.98, 0.05, 0},
	}}
	d.Embedder = emb
	d.Index = db
	ctx := context.Background()

	accepted, stats := d.Filter(ctx, []Candidate{
		{Source: "en", Title: "Baidu unveils Ernie 5", Body: "Baidu today announced"},
		{Source: "zh", Title: "百度推出文心大模型第五代", Body: "百度今天宣布"},
	})
	if len(accepted) != 1 || stats.Semantic != 1 {
		t.Fatalf("expected semantic rejection, got %d accepted, %+v", len(accepted), stats)
	}

	matches, err := db.NearestEmbeddings(ctx, []float64{1, 0, 0}, now.AddDate(0, 0, -1), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != accepted[0].SourceID {
		t.Errorf("expected accepted vector indexed under source id, got %+v", matches)
	}
}

func TestSemanticDegradesOnEmbedderError(t *testing.T) {
	d, db := newTestDedup(t)
	d.Embedder = &mockEmbedder{err: errors.New("connection refused")}
	d.Index = db

	accepted, stats := d.Filter(context.Background(), []Candidate{
		{Source: "a", Title: "First headline"},
		{Source: "b", Title: "Completely unrelated news"},
	})
	if len(accepted) != 2 {
		t.Errorf("expected all accepted when embedder is down, got %d (%+v)", len(accepted), stats)
	}
}

func TestSemanticDegradesOnIndexError(t *testing.T) {
	d, _ := newTestDedup(t)
	d.Embedder = &mockEmbedder{}
	d.Index = failingIndex{}

	accepted, _ := d.Filter(context.Background(), []Candidate{{Source: "a", Title: "Any headline"}})
	if len(accepted) != 1 {
		t.Errorf("expected candidate accepted when index is down, got %d", len(accepted))
	}
}

func TestExactDegradesOnHistoryError(t *testing.T) {
	d := New(failingHistory{}, DefaultOptions())
	accepted, _ := d.Filter(context.Background(), []Candidate{{Source: "a", Title: "Headline"}})
	if len(accepted) != 1 {
		t.Errorf("expected candidate accepted when history is down, got %d", len(accepted))
	}
}

func TestSemanticSkippedWithoutEmbedder(t *testing.T) {
	d, _ := newTestDedup(t)
	if d.SemanticEnabled() {
		t.Error("expected semantic check disabled without embedder")
	}
	emb := &mockEmbedder{}
	d.Embedder = emb
	d.Filter(context.Background(), []Candidate{{Source: "a", Title: "Headline"}})
	if emb.calls != 0 {
		t.Errorf("expected no embed calls without an index, got %d", emb.calls)
	}
}
