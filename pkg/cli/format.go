package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration to a short human readable string
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs -= float64(mins * 60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatScore renders a score with its cutoff, e.g. "0.912 (≥ 0.850)".
func FormatScore(score, cutoff float64, atLeast bool) string {
	op := "<"
	if atLeast {
		op = "≥"
	}
	return fmt.Sprintf("%.3f (%s %.3f)", score, op, cutoff)
}
