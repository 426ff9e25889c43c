package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/queue"
)

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*queue.Store, *clock.Fake) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clk := clock.NewFake(start)
	return queue.NewStore(db, queue.WithClock(clk)), clk
}

// mockPublisher fails for the first failures calls, or for any body listed
// in failBodies, and succeeds otherwise.
type mockPublisher struct {
	platform   string
	configured bool
	failures   int
	failBodies map[string]bool
	calls      []string
}

func (m *mockPublisher) Platform() string { return m.platform }
func (m *mockPublisher) Configured() bool { return m.configured }

func (m *mockPublisher) Publish(_ context.Context, _ string, body string) (string, error) {
	m.calls = append(m.calls, body)
	if m.failBodies[body] {
		return "", fmt.Errorf("rejected %q", body)
	}
	if m.failures > 0 {
		m.failures--
		return "", errors.New("rate limited")
	}
	return fmt.Sprintf("post-%d", len(m.calls)), nil
}

type recordingNotifier struct {
	failed []string
}

func (r *recordingNotifier) NotifyPublishFailed(_ context.Context, platform, id, _ string) error {
	r.failed = append(r.failed, platform+":"+id)
	return nil
}

func enqueue(t *testing.T, s *queue.Store, req queue.EnqueueRequest) *queue.Item {
	t.Helper()
	item, err := s.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return item
}

func get(t *testing.T, s *queue.Store, id string) *queue.Item {
	t.Helper()
	item, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return item
}

func TestDrainPublishesPrimary(t *testing.T) {
	s, _ := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true}
	item := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "full text", FallbackBody: "short"})

	res, err := NewDrainer(s, NewRegistry(pub), nil).Drain(context.Background(), queue.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Published != 1 || res.Failed != 0 || res.Skipped != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(pub.calls) != 1 || pub.calls[0] != "full text" {
		t.Errorf("expected only the primary body sent, got %v", pub.calls)
	}
	if got := get(t, s, item.ID); got.Status != queue.StatusPublished {
		t.Errorf("expected published, got %s", got.Status)
	}
}

func TestDrainFallbackGuarantee(t *testing.T) {
	s, _ := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true, failBodies: map[string]bool{"full text": true}}
	item := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "full text", FallbackBody: "short text"})

	res, _ := NewDrainer(s, NewRegistry(pub), nil).Drain(context.Background(), queue.Filter{})
	if res.Published != 1 {
		t.Errorf("expected fallback publish to count, got %+v", res)
	}

	got := get(t, s, item.ID)
	if got.Status != queue.StatusPublished {
		t.Errorf("expected published, got %s", got.Status)
	}
	if got.Error != nil {
		t.Errorf("expected error cleared, got %q", *got.Error)
	}
	if len(pub.calls) != 2 || pub.calls[1] != "short text" {
		t.Errorf("expected fallback attempted second, got %v", pub.calls)
	}
}

func TestDrainNoFallbackFailure(t *testing.T) {
	s, _ := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true, failures: 1}
	item := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "full text"})

	res, _ := NewDrainer(s, NewRegistry(pub), nil).Drain(context.Background(), queue.Filter{})
	if res.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", res)
	}

	got := get(t, s, item.ID)
	if got.Status != queue.StatusRetryQueued {
		t.Errorf("expected retry_queued, got %s", got.Status)
	}
	if got.Error == nil || *got.Error != "rate limited" {
		t.Errorf("expected raised error recorded, got %v", got.Error)
	}
}

func TestDrainBothFailCombinesErrors(t *testing.T) {
	s, _ := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true, failures: 2}
	item := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "a", FallbackBody: "b"})

	NewDrainer(s, NewRegistry(pub), nil).Drain(context.Background(), queue.Filter{})

	got := get(t, s, item.ID)
	want := "Primary: rate limited | Fallback: rate limited"
	if got.Error == nil || *got.Error != want {
		t.Errorf("expected %q, got %v", want, got.Error)
	}
}

func TestDrainSkipDoesNotConsumeRetry(t *testing.T) {
	s, _ := openTestStore(t)
	unconfigured := &mockPublisher{platform: "demo", configured: false}
	a := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "x"})
	b := enqueue(t, s, queue.EnqueueRequest{Platform: "nowhere", Body: "y"})

	res, _ := NewDrainer(s, NewRegistry(unconfigured), nil).Drain(context.Background(), queue.Filter{})
	if res.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %+v", res)
	}
	if len(unconfigured.calls) != 0 {
		t.Errorf("expected no publish attempts, got %v", unconfigured.calls)
	}
	for _, id := range []string{a.ID, b.ID} {
		got := get(t, s, id)
		if got.Status != queue.StatusQueued || got.RetryCount != 0 || len(got.PublishLog) != 0 {
			t.Errorf("expected %s untouched, got %s/%d/%d", id, got.Status, got.RetryCount, len(got.PublishLog))
		}
	}
}

func TestDrainEndToEndRetryThenPublish(t *testing.T) {
	s, clk := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true, failBodies: map[string]bool{"short text": true}, failures: 2}
	d := NewDrainer(s, NewRegistry(pub), nil)
	ctx := context.Background()

	item := enqueue(t, s, queue.EnqueueRequest{
		Platform:     "demo",
		Urgency:      queue.UrgencyHigh,
		Body:         "full text",
		FallbackBody: "short text",
		MaxRetries:   queue.Retries(3),
	})

	for cycle, wantCount := range []int{1, 2} {
		res, err := d.Drain(ctx, queue.Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if res.Failed != 1 {
			t.Fatalf("cycle %d: expected failure, got %+v", cycle+1, res)
		}
		got := get(t, s, item.ID)
		if got.Status != queue.StatusRetryQueued || got.RetryCount != wantCount {
			t.Fatalf("cycle %d: expected retry_queued/%d, got %s/%d", cycle+1, wantCount, got.Status, got.RetryCount)
		}

		// Nothing is publishable until the backoff elapses.
		if res, _ := d.Drain(ctx, queue.Filter{}); res != (Result{}) {
			t.Fatalf("cycle %d: expected idle drain before backoff, got %+v", cycle+1, res)
		}
		clk.Set(*got.NextRetryAt)
	}

	res, _ := d.Drain(ctx, queue.Filter{})
	if res.Published != 1 {
		t.Fatalf("cycle 3: expected publish, got %+v", res)
	}
	got := get(t, s, item.ID)
	if got.Status != queue.StatusPublished {
		t.Errorf("expected published, got %s", got.Status)
	}
	if len(got.PublishLog) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(got.PublishLog))
	}
	for i, want := range []string{"failed", "failed", "published"} {
		if got.PublishLog[i].Status != want {
			t.Errorf("log entry %d: expected %s, got %s", i, want, got.PublishLog[i].Status)
		}
	}
}

func TestDrainNotifiesOnExhaustion(t *testing.T) {
	s, _ := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true, failures: 10}
	notifier := &recordingNotifier{}
	d := NewDrainer(s, NewRegistry(pub), nil)
	d.Notifier = notifier

	item := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "x", MaxRetries: queue.Retries(1)})
	d.Drain(context.Background(), queue.Filter{})

	if got := get(t, s, item.ID); got.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if len(notifier.failed) != 1 || notifier.failed[0] != "demo:"+item.ID {
		t.Errorf("expected one failure notification, got %v", notifier.failed)
	}
}

type brokenQueue struct{ Queue }

func (brokenQueue) GetPublishable(context.Context, queue.Filter) ([]queue.Item, error) {
	return nil, errors.New("database is locked")
}

func TestDrainReturnsBatchError(t *testing.T) {
	_, err := NewDrainer(brokenQueue{}, NewRegistry(), nil).Drain(context.Background(), queue.Filter{})
	if err == nil {
		t.Error("expected error when the batch cannot be loaded")
	}
}

// unrecordedQueue publishes through a real store but cannot record success.
type unrecordedQueue struct{ *queue.Store }

func (unrecordedQueue) MarkPublished(context.Context, string, string) error {
	return errors.New("disk I/O error")
}

func TestDrainCountsUnrecordedPublish(t *testing.T) {
	s, _ := openTestStore(t)
	pub := &mockPublisher{platform: "demo", configured: true}
	item := enqueue(t, s, queue.EnqueueRequest{Platform: "demo", Body: "full text"})

	res, err := NewDrainer(unrecordedQueue{s}, NewRegistry(pub), nil).Drain(context.Background(), queue.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected one publish call, got %d", len(pub.calls))
	}
	if res.Errors != 1 || res.Published != 0 || res.Failed != 0 || res.Skipped != 0 {
		t.Errorf("expected the unrecorded publish counted as an error, got %+v", res)
	}
	if got := get(t, s, item.ID); got.Status != queue.StatusQueued {
		t.Errorf("expected item left queued, got %s", got.Status)
	}
}

func TestDrainLock(t *testing.T) {
	path := LockPath(t.TempDir())
	first, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := AcquireLock(path); !errors.Is(err, ErrDrainRunning) {
		t.Errorf("expected ErrDrainRunning, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	second, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	second.Release()
}

func TestTitleOrDefault(t *testing.T) {
	if got := titleOrDefault("Given", "body"); got != "Given" {
		t.Errorf("expected Given, got %q", got)
	}
	body := "这是一段很长的中文正文，用来测试标题默认截取为前六十个字符的行为是否按字符而不是按字节进行，确保不会截断到半个字符的中间位置造成乱码"
	got := titleOrDefault("  ", body)
	if n := len([]rune(got)); n != 60 {
		t.Errorf("expected 60 runes, got %d", n)
	}
}
