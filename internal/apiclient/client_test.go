package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline-monitor/internal/hostconfig"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveRequest(host, endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, host+"/"+endpoint+"/"+outcome)
}

func testHost(url string) hostconfig.HostConfig {
	return hostconfig.HostConfig{
		ID:         "paid",
		Label:      "Production(paid)",
		APIBaseURL: url + "/api/v1",
		Enabled:    true,
		Headers:    map[string]string{"X-Plan": "paid"},
	}
}

func TestListActiveSendsQueryAndHeaders(t *testing.T) {
	var gotPath, gotQuery, gotPlan string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotPlan = r.Header.Get("X-Plan")
		_, _ = w.Write([]byte(`[{"execution_id":"e1","name":"n","status":"running","created_at":"2024-01-01T00:00:00Z","steps":[]}]`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(testHost(srv.URL), WithObserver(obs))
	include := true
	rows, err := c.ListActive(context.Background(), ListOptions{Limit: 50, IncludeCompletedRecent: &include, StatusFilter: "running"})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/composite-pipelines/executions/active", gotPath)
	assert.Equal(t, "include_completed_recent=true&limit=50&status_filter=running", gotQuery)
	assert.Equal(t, "paid", gotPlan)

	require.Len(t, rows, 1)
	assert.Equal(t, "paid", rows[0].HostID)
	assert.Equal(t, "Production(paid)", rows[0].HostLabel)
	assert.Equal(t, srv.URL+"/api/v1", rows[0].HostAPIBaseURL)
	assert.Equal(t, srv.URL+"/api/v1", rows[0].HostFileBaseURL)
	assert.Equal(t, "paid:e1", rows[0].RowID())
	assert.Equal(t, []string{"paid/list_active/ok"}, obs.calls)
}

func TestDefaultClientDoesNotTagProvenance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"execution_id":"e1"}]`))
	}))
	defer srv.Close()

	c := New(hostconfig.HostConfig{APIBaseURL: srv.URL})
	rows, err := c.ListActive(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasProvenance())
	assert.Equal(t, "e1", rows[0].RowID())
}

func TestRealtimeStatusEmptyIDsSkipsRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["execution_ids"])
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(testHost(srv.URL))
	rows, err := c.RealtimeStatus(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 0, hits)

	_, err = c.RealtimeStatus(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestExecutionStatusNon2xxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/composite-pipelines/e404/status", r.URL.Path)
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New(testHost(srv.URL), WithObserver(obs))
	_, err := c.ExecutionStatus(context.Background(), "e404")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "not found")
	assert.Equal(t, []string{"paid/execution_status/status_error"}, obs.calls)
}

func TestExecutionStatusTagsDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution_id":"e1","status":"completed","steps":[{"step_id":"s1","output_keys":["a/b.pdf"]}]}`))
	}))
	defer srv.Close()

	c := New(testHost(srv.URL))
	d, err := c.ExecutionStatus(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "paid", d.HostID)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, []string{"a/b.pdf"}, d.Steps[0].OutputKeys)
}

func TestDecodeErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New(testHost(srv.URL)).ListActive(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode list_active response")
}

func TestTimeoutIsEnforced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(testHost(srv.URL), WithTimeout(50*time.Millisecond))
	_, err := c.ListActive(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Equal(t, DefaultTimeout, New(testHost(srv.URL)).http.Timeout)
}
