package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/newsfeed/internal/classify"
	"github.com/abelbrown/newsfeed/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// TimeBand groups articles by recency.
type TimeBand int

const (
	BandJustNow TimeBand = iota
	BandToday
	BandYesterday
	BandThisWeek
	BandOlder
	BandUndated
)

func (b TimeBand) String() string {
	switch b {
	case BandJustNow:
		return "Just Now"
	case BandToday:
		return "Today"
	case BandYesterday:
		return "Yesterday"
	case BandThisWeek:
		return "This Week"
	case BandOlder:
		return "Older"
	default:
		return "Undated"
	}
}

// bandOf returns the band for t relative to now.
func bandOf(t, now time.Time) TimeBand {
	if t.IsZero() {
		return BandUndated
	}
	age := now.Sub(t)
	switch {
	case age < time.Hour:
		return BandJustNow
	case age < 24*time.Hour:
		return BandToday
	case age < 48*time.Hour:
		return BandYesterday
	case age < 7*24*time.Hour:
		return BandThisWeek
	default:
		return BandOlder
	}
}

// StreamView holds what RenderStream needs for one frame.
type StreamView struct {
	Items  []model.Article
	Labels map[string]classify.Label
	Cursor int
	Width  int
	Height int
	Now    time.Time
}

// RenderStream renders at most Height lines of the article list. The first
// visible row always gets its band header, and a new header starts wherever
// the recency band changes.
func RenderStream(v StreamView) string {
	if len(v.Items) == 0 {
		return HelpStyle.Render("No articles yet.")
	}
	if v.Height < 1 {
		v.Height = 1
	}
	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}

	offset := calcScrollOffset(v.Cursor, len(v.Items), v.Height)

	var b strings.Builder
	band := TimeBand(-1)
	lines := 0
	for i := offset; i < len(v.Items) && lines < v.Height; i++ {
		a := v.Items[i]
		if nb := bandOf(a.PublishedAt, now); nb != band {
			band = nb
			b.WriteString(TimeBandHeader.Render(band.String()))
			b.WriteString("\n")
			if lines++; lines >= v.Height {
				break
			}
		}
		lines++
		b.WriteString(renderItem(a, v.Labels[a.Identity()], i == v.Cursor, v.Width, now))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderItem(a model.Article, label classify.Label, selected bool, width int, now time.Time) string {
	source := a.Source.Name
	if source == "" {
		source = a.Source.ID
	}
	if source == "" {
		source = "?"
	}

	age := "undated"
	if !a.PublishedAt.IsZero() {
		age = humanize.RelTime(a.PublishedAt, now, "ago", "from now")
	}

	meta := fmt.Sprintf("%s · %s", age, label)
	title := a.Title
	if title == "" {
		title = "(untitled)"
	}
	if width > 0 {
		room := width - lipgloss.Width(source) - lipgloss.Width(meta) - 8
		if room < 10 {
			room = 10
		}
		title = truncateRunes(title, room)
	}

	style := NormalItem
	if selected {
		style = SelectedItem
	}
	return SourceBadge.Render(source) + style.Render(title) + " " + labelStyle(label).Render(meta)
}

func labelStyle(l classify.Label) lipgloss.Style {
	switch l.Category {
	case classify.Positive:
		return LabelPositive
	case classify.Negative:
		return LabelNegative
	case classify.Neutral:
		return LabelNeutral
	default:
		return MetaItem
	}
}

// calcScrollOffset returns the first visible row so that cursor stays
// roughly centered once the list is longer than the window.
func calcScrollOffset(cursor, total, height int) int {
	if total <= height || height <= 0 {
		return 0
	}
	offset := cursor - height/2
	if offset < 0 {
		offset = 0
	}
	if last := total - height; offset > last {
		offset = last
	}
	return offset
}

// truncateRunes shortens s to at most n runes, ending in "…" when cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
