package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)

	c.Advance(20 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(20 * time.Minute)) {
		t.Errorf("expected %v, got %v", start.Add(20*time.Minute), got)
	}

	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("expected %v after Set, got %v", start, got)
	}
}

func TestSystemIsUTC(t *testing.T) {
	if loc := System().Now().Location(); loc != time.UTC {
		t.Errorf("expected UTC, got %v", loc)
	}
}
