package aggregate

import (
	"math"

	"pipeline-monitor/internal/model"
)

type Stats struct {
	Total              int     `json:"total" yaml:"total"`
	Running            int     `json:"running" yaml:"running"`
	Completed          int     `json:"completed" yaml:"completed"`
	Failed             int     `json:"failed" yaml:"failed"`
	Pending            int     `json:"pending" yaml:"pending"`
	SuccessRate        int     `json:"success_rate" yaml:"success_rate"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds" yaml:"avg_duration_seconds"`
}

func ComputeStats(rows []model.Execution) Stats {
	s := Stats{Total: len(rows)}
	var sum float64
	var n int
	for _, r := range rows {
		switch model.NormalizeStatus(r.Status) {
		case model.StatusRunning:
			s.Running++
		case model.StatusCompleted:
			s.Completed++
		case model.StatusFailed:
			s.Failed++
		case model.StatusPending:
			s.Pending++
		}
		if r.DurationSeconds != 0 {
			sum += r.DurationSeconds
			n++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	if n > 0 {
		s.AvgDurationSeconds = sum / float64(n)
	}
	return s
}
