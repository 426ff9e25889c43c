package dedup

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const windowKey = "lex:recent_titles"

func newTestRedisWindow(t *testing.T) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisWindow(rdb, windowKey), mr
}

func TestRedisWindowOldestFirstWithoutTrim(t *testing.T) {
	w, _ := newTestRedisWindow(t)
	ctx := context.Background()

	if err := w.AppendRecentTitles(ctx, []string{"alpha", "bravo"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendRecentTitles(ctx, []string{"charlie"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendRecentTitles(ctx, nil, 1); err != nil {
		t.Fatal(err)
	}

	got, err := w.RecentTitles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "alpha" || got[1] != "bravo" || got[2] != "charlie" {
		t.Errorf("expected [alpha bravo charlie], got %v", got)
	}
}

func TestRedisWindowEmpty(t *testing.T) {
	w, _ := newTestRedisWindow(t)
	got, err := w.RecentTitles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty window, got %v", got)
	}
}

func TestRedisWindowTrimmed(t *testing.T) {
	w, mr := newTestRedisWindow(t)
	d, _ := newTestDedup(t)
	d.Window = w
	d.Opts.RecentWindow = 2
	d.Opts.FuzzyThreshold = 0.99
	ctx := context.Background()

	d.Filter(ctx, []Candidate{
		{Source: "a", Title: "alpha one"},
		{Source: "a", Title: "bravo two"},
		{Source: "a", Title: "charlie three"},
	})

	window, err := mr.List(windowKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 2 || window[0] != "bravo two" || window[1] != "charlie three" {
		t.Errorf("expected newest 2 titles, got %v", window)
	}
}

func TestRedisWindowFeedsFuzzyCheck(t *testing.T) {
	w, mr := newTestRedisWindow(t)
	d, _ := newTestDedup(t)
	d.Window = w
	ctx := context.Background()

	mr.RPush(windowKey, "deepseek releases new model v3")

	accepted, stats := d.Filter(ctx, []Candidate{
		{Source: "36kr", Title: "DeepSeek releases new model V3!"},
		{Source: "36kr", Title: "Moonshot opens Kimi API to developers"},
	})
	if len(accepted) != 1 || stats.Fuzzy != 1 {
		t.Fatalf("expected one fuzzy rejection, got %d accepted, %+v", len(accepted), stats)
	}
	if accepted[0].Title != "Moonshot opens Kimi API to developers" {
		t.Errorf("unexpected accepted title %q", accepted[0].Title)
	}
}

func TestRedisDownFilterStillAccepts(t *testing.T) {
	w, mr := newTestRedisWindow(t)
	d, _ := newTestDedup(t)
	d.Window = w
	ctx := context.Background()

	mr.Close()

	if _, err := w.RecentTitles(ctx); err == nil {
		t.Error("expected an error reading from a stopped server")
	}

	accepted, stats := d.Filter(ctx, []Candidate{
		{Source: "36kr", Title: "Baidu unveils Ernie 5"},
		{Source: "huxiu", Title: "ByteDance ships Doubao update"},
	})
	if len(accepted) != 2 || stats.Accepted != 2 {
		t.Errorf("expected both accepted with redis down, got %d, %+v", len(accepted), stats)
	}
}
