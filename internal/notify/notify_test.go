package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/notify"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notify.NewService(config.Notifications{})
	if err := svc.NotifyPublishFailed(context.Background(), "devto", "1", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title, tags, priority, body string
}

func newCapture(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		got.body = string(b)
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestNtfyFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notify.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "publish failed",
			send: func(s notify.Service) error {
				return s.NotifyPublishFailed(context.Background(), "linkedin", "abc", "Exhausted 3 retries. Last: 429")
			},
			expectTitle:    "lex - Publish Failed",
			expectMessage:  "linkedin item abc gave up: Exhausted 3 retries. Last: 429",
			expectTags:     "lex,publish,failed",
			expectPriority: "high",
		},
		{
			name: "drain completed",
			send: func(s notify.Service) error {
				return s.NotifyDrainCompleted(context.Background(), 3, 0, 1, 2500*time.Millisecond)
			},
			expectTitle:   "lex - Drain Complete",
			expectMessage: "3 published, 0 failed, 1 skipped in 3s",
			expectTags:    "lex,publish,completed",
		},
		{
			name: "error",
			send: func(s notify.Service) error {
				return s.NotifyError(context.Background(), errors.New("disk full"), "scrape")
			},
			expectTitle:    "lex - Error",
			expectMessage:  "Error in scrape: disk full",
			expectTags:     "lex,error",
			expectPriority: "high",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newCapture(t, http.StatusOK)
			svc := notify.NewService(config.Notifications{NtfyTopic: srv.URL + "/lex"})
			if err := tt.send(svc); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.title != tt.expectTitle {
				t.Errorf("expected title %q, got %q", tt.expectTitle, got.title)
			}
			if got.body != tt.expectMessage {
				t.Errorf("expected message %q, got %q", tt.expectMessage, got.body)
			}
			if got.tags != tt.expectTags {
				t.Errorf("expected tags %q, got %q", tt.expectTags, got.tags)
			}
			if got.priority != tt.expectPriority {
				t.Errorf("expected priority %q, got %q", tt.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyReportsHTTPError(t *testing.T) {
	srv, _ := newCapture(t, http.StatusForbidden)
	svc := notify.NewService(config.Notifications{NtfyTopic: srv.URL})
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected 403 error, got %v", err)
	}
}
