package dedup

import (
	"strings"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"  Spaces\tand\n\nnewlines  ", "spaces and newlines"},
		{"ＤｅｅｐＳｅｅｋ　Ｒ１", "deepseek r1"},
		{"snake_case stays", "snake_case stays"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestNormalizeKeepsChinese(t *testing.T) {
	got := Normalize("DeepSeek发布新模型")
	if !strings.Contains(got, "发布") {
		t.Errorf("expected Chinese characters preserved, got %q", got)
	}
	if got != "deepseek发布新模型" {
		t.Errorf("expected deepseek发布新模型, got %q", got)
	}
	if got := Normalize("阿里巴巴，发布「通义」！"); got != "阿里巴巴发布通义" {
		t.Errorf("expected CJK punctuation stripped, got %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	titles := []string{
		"Hello, World!",
		"DeepSeek Releases New Model!!",
		"ＯｐｅｎＡＩ　推出 GPT-5 ——  重大更新",
		"Ünïcödé   café ﬁnance",
		"  多个   空格\t制表符 ",
		"e!\u0301",
		"a.\u0308b",
		"x - \u0301y",
	}
	for _, title := range titles {
		once := Normalize(title)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", title, once, twice)
		}
	}
}

func TestNormalizeRecomposesAfterStripping(t *testing.T) {
	if got := Normalize("e!\u0301"); got != "\u00e9" {
		t.Errorf("expected composed e-acute, got %q", got)
	}
	if got := Normalize("a.\u0308b"); got != "\u00e4b" {
		t.Errorf("expected composed a-umlaut, got %q", got)
	}
}

func TestSourceID(t *testing.T) {
	a := Candidate{Source: "36kr", URL: "https://36kr.com/p/1", Title: "A"}
	b := Candidate{Source: "36kr", URL: "https://36kr.com/p/1", Title: "B"}
	c := Candidate{Source: "huxiu", URL: "https://36kr.com/p/1", Title: "A"}

	if len(a.SourceID()) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a.SourceID())
	}
	if a.SourceID() != b.SourceID() {
		t.Error("expected same source and url to share an id")
	}
	if a.SourceID() == c.SourceID() {
		t.Error("expected different sources to differ")
	}

	noURL := Candidate{Source: "36kr", Title: "A"}
	if noURL.SourceID() == a.SourceID() {
		t.Error("expected title fallback to produce a different id")
	}
}

func TestParsePublished(t *testing.T) {
	got := ParsePublished("Mon, 02 Mar 2026 10:30:00 +0800")
	if got == nil {
		t.Fatal("expected RFC 2822 date to parse")
	}
	want := time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
	if ParsePublished("2026-03-02T10:30:00Z") == nil {
		t.Error("expected ISO 8601 date to parse")
	}
	if ParsePublished("   ") != nil {
		t.Error("expected blank to be nil")
	}
	if ParsePublished("yesterday-ish") != nil {
		t.Error("expected garbage to be nil")
	}
}

func TestRatio(t *testing.T) {
	if r := Ratio("abc", "abc"); r != 1 {
		t.Errorf("expected 1, got %f", r)
	}
	if r := Ratio("abcd", "wxyz"); r != 0 {
		t.Errorf("expected 0, got %f", r)
	}
	// 2*M/T with M=3 and T=8.
	if r := Ratio("abcd", "bcde"); r != 0.75 {
		t.Errorf("expected 0.75, got %f", r)
	}
	r := Ratio("阿里发布通义千问", "阿里巴巴发布通义千问")
	if r < 0.65 {
		t.Errorf("expected CJK near-duplicate above threshold, got %f", r)
	}
}
