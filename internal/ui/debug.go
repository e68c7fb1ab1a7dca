package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/newsfeed/internal/otel"
	"github.com/abelbrown/newsfeed/internal/paging"
)

const debugEventLines = 15

// debugOverlay renders recent engine events and counters from the ring
// buffer.
func debugOverlay(ring *otel.RingBuffer, snap *paging.Snapshot, width int, now time.Time) string {
	var b strings.Builder

	b.WriteString(DebugHeaderStyle.Render("Session"))
	b.WriteString("\n")
	if snap == nil {
		b.WriteString("  no snapshot\n")
	} else {
		fmt.Fprintf(&b, "  query   %s\n", snap.Query)
		fmt.Fprintf(&b, "  status  %s\n", snap.Status)
		fmt.Fprintf(&b, "  version %d  gen %d\n", snap.Version, snap.Generation)
		fmt.Fprintf(&b, "  pages   %d  items %d\n", snap.Pages, len(snap.Items))
		fmt.Fprintf(&b, "  ends    back=%t fwd=%t\n", snap.BackwardEnd, snap.ForwardEnd)
	}

	if ring == nil {
		return DebugPanel.Render(strings.TrimRight(b.String(), "\n"))
	}

	stats := ring.Stats()
	b.WriteString("\n")
	b.WriteString(DebugHeaderStyle.Render("Counters"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  pages %d  errors %d  retries %d  discarded %d\n",
		stats[otel.KindPageComplete], stats[otel.KindPageError],
		stats[otel.KindPageRetry], stats[otel.KindPageDiscard])
	fmt.Fprintf(&b, "  subscribes %d  evictions %d\n",
		stats[otel.KindCacheSubscribe], stats[otel.KindCacheEvict])

	b.WriteString("\n")
	b.WriteString(DebugHeaderStyle.Render(fmt.Sprintf("Events (%d/%d)", ring.Len(), ring.Cap())))
	b.WriteString("\n")
	events := ring.Last(debugEventLines)
	if len(events) == 0 {
		b.WriteString("  none\n")
	}
	for _, e := range events {
		b.WriteString("  ")
		b.WriteString(formatEvent(e, width-6, now))
		b.WriteString("\n")
	}

	return DebugPanel.Render(strings.TrimRight(b.String(), "\n"))
}

func formatEvent(e otel.Event, width int, now time.Time) string {
	line := fmt.Sprintf("%-5s %-17s", formatAge(now.Sub(e.Time)), e.Kind)
	if e.Query != "" {
		line += " " + e.Query
	}
	if e.Direction != "" {
		line += fmt.Sprintf(" %s@%d", e.Direction, e.Key)
	}
	if e.Dur > 0 {
		line += fmt.Sprintf(" %dms", e.Dur.Milliseconds())
	}
	if e.Err != "" {
		line += " err=" + e.Err
	} else if e.Msg != "" {
		line += " " + e.Msg
	}
	if width > 0 {
		line = truncateRunes(line, width)
	}
	return line
}

// formatAge renders a short age like "3s", "4m" or "2h".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

// debugStatusBar is the one-line summary shown under the list while the
// overlay is hidden.
func debugStatusBar(ring *otel.RingBuffer) string {
	if ring == nil {
		return ""
	}
	stats := ring.Stats()
	return fmt.Sprintf("ev %d · err %d · retry %d · drop %d",
		ring.Len(), stats[otel.KindPageError], stats[otel.KindPageRetry], stats[otel.KindPageDiscard])
}
