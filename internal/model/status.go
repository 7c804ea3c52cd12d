package model

import "strings"

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// DefaultListStatuses is the status set queried when a caller gives none.
var DefaultListStatuses = []string{
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusPending,
}

var knownStatuses = map[string]bool{
	StatusPending:   true,
	StatusRunning:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

func NormalizeStatus(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func IsKnownStatus(status string) bool {
	return knownStatuses[NormalizeStatus(status)]
}

// IsTerminal reports whether polling for an execution in this status must
// stop. Cancelled executions are still polled.
func IsTerminal(status string) bool {
	switch NormalizeStatus(status) {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseStatusList splits comma-separated values, drops blanks and
// duplicates, and keeps first-seen order.
func ParseStatusList(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			s := NormalizeStatus(part)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
