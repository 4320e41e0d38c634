package cli

import (
	"fmt"
	"time"
)

// formatDuration renders an elapsed time the way the dashboard shows it:
// "<1s", "42s", "3m 5s", "1h 2m".
func formatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	switch {
	case secs < 1:
		return "<1s"
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func formatCount(n int, total *int) string {
	if total == nil {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d/%d", n, *total)
}

// formatETA renders a remaining-time estimate in whole seconds; unknown or
// non-positive estimates render as a dash.
func formatETA(seconds int, known bool) string {
	switch {
	case !known || seconds <= 0:
		return "—"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
}
