package aggregate

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"pipeline-monitor/internal/model"
)

const (
	queueConcurrency      = 2
	fallbackQueueDuration = 600.0
	minQueueDuration      = 60.0
)

var seoul = loadSeoul()

func loadSeoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// KST is the zone queue ETAs are reported in.
func KST() *time.Location {
	return seoul
}

type hostQueue struct {
	running int
	sum     float64
	count   int
	avg     float64
	pending []model.Execution
}

// EstimateStarts predicts when each pending row will start, keyed by row id.
// Each host runs two executions at a time and a pending row waits for the
// running ones plus the pending rows created before it.
func EstimateStarts(rows []model.Execution, now time.Time, loc *time.Location) map[string]string {
	if loc == nil {
		loc = seoul
	}
	queues := make(map[string]*hostQueue)
	var order []string
	var globalSum float64
	var globalCount int

	for _, r := range rows {
		key := r.HostID
		if key == "" {
			key = r.HostLabel
		}
		q, ok := queues[key]
		if !ok {
			q = &hostQueue{}
			queues[key] = q
			order = append(order, key)
		}
		switch model.NormalizeStatus(r.Status) {
		case model.StatusRunning:
			q.running++
		case model.StatusPending:
			q.pending = append(q.pending, r)
		case model.StatusCompleted:
			if r.DurationSeconds > 0 {
				q.sum += r.DurationSeconds
				q.count++
				globalSum += r.DurationSeconds
				globalCount++
			}
		}
	}

	globalAvg := fallbackQueueDuration
	if globalCount > 0 {
		globalAvg = math.Round(globalSum / float64(globalCount))
	}

	out := make(map[string]string)
	for _, key := range order {
		q := queues[key]
		if len(q.pending) == 0 {
			continue
		}
		if q.count > 0 {
			q.avg = math.Round(q.sum / float64(q.count))
		} else {
			q.avg = globalAvg
		}
		avg := math.Max(minQueueDuration, q.avg)
		slots := max(0, queueConcurrency-q.running)

		slices.SortStableFunc(q.pending, func(x, y model.Execution) int {
			return x.Created().Compare(y.Created())
		})
		for idx, r := range q.pending {
			if idx < slots {
				out[r.RowID()] = now.In(loc).Format("15:04") + " KST (≈now)"
				continue
			}
			batches := (idx-slots)/queueConcurrency + 1
			wait := float64(batches) * avg
			eta := now.Add(time.Duration(wait * float64(time.Second)))
			out[r.RowID()] = fmt.Sprintf("%s KST (≈%dm)", eta.In(loc).Format("15:04"), int(math.Round(wait/60)))
		}
	}
	return out
}

// ETA returns the estimate for row, or "-" when it has none.
func ETA(estimates map[string]string, row model.Execution) string {
	if v := strings.TrimSpace(estimates[row.RowID()]); v != "" {
		return v
	}
	return "-"
}
