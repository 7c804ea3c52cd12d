package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipeline-monitor/internal/model"
)

func TestComputeStats(t *testing.T) {
	rows := []model.Execution{
		{Status: "completed", DurationSeconds: 100},
		{Status: "completed", DurationSeconds: 300},
		{Status: "failed"},
		{Status: "running", DurationSeconds: 20},
		{Status: "pending"},
		{Status: "cancelled"},
	}
	s := ComputeStats(rows)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 33, s.SuccessRate)
	assert.InDelta(t, 140.0, s.AvgDurationSeconds, 0.001)

	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestFilterApply(t *testing.T) {
	rows := []model.Execution{
		{ExecutionID: "abc", Name: "Exam Batch", Status: "running", HostID: "a"},
		{ExecutionID: "def", Name: "other", Status: "failed", HostID: "b"},
		{ExecutionID: "ghi", Name: "exam retry", Status: "failed", HostID: "a"},
	}
	got := Filter{Query: "EXAM"}.Apply(rows)
	assert.Len(t, got, 2)

	got = Filter{Query: "exam", Statuses: []string{"failed"}}.Apply(rows)
	assert.Len(t, got, 1)
	assert.Equal(t, "ghi", got[0].ExecutionID)

	got = Filter{HostIDs: []string{"b"}}.Apply(rows)
	assert.Len(t, got, 1)
	assert.Equal(t, "def", got[0].ExecutionID)

	assert.Len(t, Filter{}.Apply(rows), 3)
}
