package model

import (
	"fmt"
	"math"
)

// FormatDuration renders an execution duration for list and detail views:
// "-" for zero, then "Ns", "Mm Ss" and "Hh Mm".
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "-"
	}
	secs := int64(math.Floor(seconds))
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	minutes := secs / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, secs%60)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
