package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/poller"
	"pipeline-monitor/internal/slogx"
)

var (
	_ apiclient.Observer  = (*Metrics)(nil)
	_ poller.TickObserver = (*Metrics)(nil)
	_ export.Observer     = (*Metrics)(nil)
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metrics:
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestObserversCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("prod", "list_active", "ok", 120*time.Millisecond)
	m.ObserveRequest("prod", "list_active", "ok", 80*time.Millisecond)
	m.ObserveRequest("dev", "list_active", "error", time.Second)
	m.ObservePoll("list", "ok")
	m.ObserveExport("images", "cancelled")

	assert.Equal(t, 2.0, counterValue(t, reg, "pipeline_monitor_backend_requests_total",
		map[string]string{"host": "prod", "endpoint": "list_active", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pipeline_monitor_backend_requests_total",
		map[string]string{"host": "dev", "endpoint": "list_active", "outcome": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pipeline_monitor_poll_ticks_total",
		map[string]string{"slot": "list", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pipeline_monitor_exports_total",
		map[string]string{"mode": "images", "outcome": "cancelled"}))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ObservePoll("detail", "done")

	srv := httptest.NewServer(Handler(reg, slogx.NewTestLogger(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pipeline_monitor_poll_ticks_total{outcome="done",slot="detail"} 1`)

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
