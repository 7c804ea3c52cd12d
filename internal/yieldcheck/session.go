package yieldcheck

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Session is one review pass over a result list. Indexes are 0-based; the
// report lists flagged items 1-based.
type Session struct {
	items    Items
	index    int
	flagged  map[int]bool
	seenLast bool
}

func NewSession(items Items) *Session {
	s := &Session{items: items, flagged: map[int]bool{}}
	s.markSeen()
	return s
}

func (s *Session) Items() Items { return s.items }
func (s *Session) Len() int     { return len(s.items) }
func (s *Session) Index() int   { return s.index }

func (s *Session) Current() (Item, bool) {
	if len(s.items) == 0 {
		return Item{}, false
	}
	return s.items[s.index], true
}

func (s *Session) Next() { s.Goto(s.index + 1) }
func (s *Session) Prev() { s.Goto(s.index - 1) }

// Goto moves to i, clamped to the list.
func (s *Session) Goto(i int) {
	if len(s.items) == 0 {
		return
	}
	s.index = min(max(i, 0), len(s.items)-1)
	s.markSeen()
}

func (s *Session) markSeen() {
	if len(s.items) > 0 && s.index == len(s.items)-1 {
		s.seenLast = true
	}
}

func (s *Session) ToggleFlag(i int) {
	if i < 0 || i >= len(s.items) {
		return
	}
	if s.flagged[i] {
		delete(s.flagged, i)
		return
	}
	s.flagged[i] = true
}

func (s *Session) IsFlagged(i int) bool { return s.flagged[i] }

func (s *Session) Flagged() []int {
	out := make([]int, 0, len(s.flagged))
	for i := range s.flagged {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (s *Session) SeenLast() bool { return s.seenLast }

// Ready reports whether the report may be produced.
func (s *Session) Ready() bool {
	return s.seenLast || len(s.items) == 0
}

type Summary struct {
	Total          int     `json:"total"`
	MultipleChoice int     `json:"multiple_choice"`
	Subjective     int     `json:"subjective"`
	Eligible       int     `json:"eligible"`
	Ineligible     []int   `json:"ineligible"`
	YieldPercent   int     `json:"yield_percent"`
	ExecutionTag   string  `json:"execution_tag"`
	Duration       string  `json:"duration"`
	Seconds        float64 `json:"duration_seconds"`
}

func (s *Session) Summarize(executionID string, durationSeconds float64) Summary {
	total := len(s.items)
	multiple := 0
	for _, it := range s.items {
		if it.Analysis.MultipleChoice() {
			multiple++
		}
	}
	flagged := s.Flagged()
	ineligible := make([]int, len(flagged))
	for i, idx := range flagged {
		ineligible[i] = idx + 1
	}
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(total-len(flagged)) / float64(total) * 100))
	}
	return Summary{
		Total:          total,
		MultipleChoice: multiple,
		Subjective:     total - multiple,
		Eligible:       total - len(flagged),
		Ineligible:     ineligible,
		YieldPercent:   pct,
		ExecutionTag:   executionTag(executionID, s.items),
		Duration:       reportDuration(durationSeconds),
		Seconds:        durationSeconds,
	}
}

// Report renders the summary text shared after a review.
func (s *Session) Report(now time.Time, executionID string, durationSeconds float64) string {
	sum := s.Summarize(executionID, durationSeconds)
	list := "-"
	if len(sum.Ineligible) > 0 {
		parts := make([]string, len(sum.Ineligible))
		for i, n := range sum.Ineligible {
			parts[i] = strconv.Itoa(n)
		}
		list = strings.Join(parts, ",")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", now.Format("2006-01-02,15:04"))
	fmt.Fprintf(&b, "%s 수율 체크\n", sum.ExecutionTag)
	fmt.Fprintf(&b, "1) 전체 문항 %d문항 (객관식 %d, 서술형 %d)\n", sum.Total, sum.MultipleChoice, sum.Subjective)
	fmt.Fprintf(&b, "2) 적합 문항 %d문항\n", sum.Eligible)
	fmt.Fprintf(&b, "3) 부적합 문항 %d문항(%s)\n", len(sum.Ineligible), list)
	fmt.Fprintf(&b, "4) 수율 %d%%\n", sum.YieldPercent)
	fmt.Fprintf(&b, "5) 소요시간: %s", sum.Duration)
	return b.String()
}

func executionTag(executionID string, items Items) string {
	if executionID != "" {
		return truncate(executionID, 8)
	}
	first := ""
	for _, it := range items {
		if it.StorageKey != "" {
			first = it.StorageKey
			break
		}
	}
	for _, seg := range strings.Split(first, "/") {
		if len(seg) >= 8 {
			return seg[:8]
		}
	}
	return "--------"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func reportDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "[소요시간]"
	}
	total := int(math.Floor(seconds))
	h, m, s := total/3600, (total%3600)/60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
