package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/newsfeed/internal/classify"
	"github.com/abelbrown/newsfeed/internal/model"
)

func TestBandOf(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  time.Duration
		want TimeBand
	}{
		{10 * time.Minute, BandJustNow},
		{5 * time.Hour, BandToday},
		{30 * time.Hour, BandYesterday},
		{4 * 24 * time.Hour, BandThisWeek},
		{30 * 24 * time.Hour, BandOlder},
	}
	for _, tt := range tests {
		if got := bandOf(now.Add(-tt.age), now); got != tt.want {
			t.Errorf("age %v: got %s, want %s", tt.age, got, tt.want)
		}
	}
	if got := bandOf(time.Time{}, now); got != BandUndated {
		t.Errorf("zero time: got %s", got)
	}
}

func TestCalcScrollOffset(t *testing.T) {
	tests := []struct {
		cursor, total, height, want int
	}{
		{0, 5, 10, 0},
		{0, 50, 10, 0},
		{20, 50, 10, 15},
		{49, 50, 10, 40},
		{3, 50, 0, 0},
	}
	for _, tt := range tests {
		if got := calcScrollOffset(tt.cursor, tt.total, tt.height); got != tt.want {
			t.Errorf("calcScrollOffset(%d, %d, %d) = %d, want %d",
				tt.cursor, tt.total, tt.height, got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 10); got != "héllo" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncateRunes("héllo world", 5); got != "héll…" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("abc", 1); got != "a" {
		t.Errorf("got %q", got)
	}
}

func TestRenderStreamEmpty(t *testing.T) {
	if out := RenderStream(StreamView{}); !strings.Contains(out, "No articles") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRenderStreamHeight(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	items := make([]model.Article, 40)
	for i := range items {
		items[i] = model.Article{
			Title:       "Item",
			URL:         "u" + string(rune('a'+i)),
			PublishedAt: now.Add(-time.Duration(i) * 6 * time.Hour),
		}
	}
	out := RenderStream(StreamView{Items: items, Cursor: 20, Width: 80, Height: 12, Now: now})
	if lines := strings.Count(out, "\n") + 1; lines > 12 {
		t.Errorf("expected at most 12 lines, got %d", lines)
	}
	if !strings.Contains(out, "This Week") && !strings.Contains(out, "Older") {
		t.Errorf("expected a band header in:\n%s", out)
	}
}

func TestRenderStreamFirstRowHasHeader(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	items := make([]model.Article, 30)
	for i := range items {
		items[i] = model.Article{Title: "Item", URL: "u" + string(rune('a'+i)), PublishedAt: now.Add(-3 * 24 * time.Hour)}
	}
	out := RenderStream(StreamView{Items: items, Cursor: 25, Width: 80, Height: 6, Now: now})
	first := strings.SplitN(out, "\n", 2)[0]
	if !strings.Contains(first, "This Week") {
		t.Errorf("scrolled view should open with a band header, got %q", first)
	}
}

func TestRenderItemTitleRoomUsesCellWidth(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	a := model.Article{
		Source:      model.Source{Name: "Wire"},
		Title:       strings.Repeat("x", 100),
		PublishedAt: now.Add(-3 * time.Hour),
	}
	// meta is "3 hours ago · Unknown": 21 cells, 22 bytes.
	out := renderItem(a, classify.Label{}, false, 80, now)
	want := strings.Repeat("x", 80-4-21-8-1) + "…"
	if !strings.Contains(out, want) || strings.Contains(out, strings.Repeat("x", 80-4-21-8)) {
		t.Errorf("unexpected title truncation in %q", out)
	}
}
