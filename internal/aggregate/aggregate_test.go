package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/slogx"
)

type staticSource hostconfig.RuntimeConfig

func (s staticSource) Snapshot() hostconfig.RuntimeConfig {
	return hostconfig.RuntimeConfig(s).Clone()
}

type fakeBackend struct {
	mu       sync.Mutex
	byHost   map[string][]model.Execution
	failHost map[string]bool
	requests []string
}

func (b *fakeBackend) factory(tag bool) ClientFactory {
	return func(h hostconfig.HostConfig) Client {
		return &fakeClient{backend: b, host: h, tag: tag}
	}
}

func (b *fakeBackend) record(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, s)
}

type fakeClient struct {
	backend *fakeBackend
	host    hostconfig.HostConfig
	tag     bool
}

func hostKey(h hostconfig.HostConfig) string {
	if h.ID == "" {
		return "default"
	}
	return h.ID
}

func (c *fakeClient) ListActive(_ context.Context, opts apiclient.ListOptions) ([]model.Execution, error) {
	key := hostKey(c.host)
	c.backend.record(fmt.Sprintf("%s:%s:%t", key, opts.StatusFilter, *opts.IncludeCompletedRecent))
	if c.backend.failHost[key] {
		return nil, errors.New("connection refused")
	}
	var out []model.Execution
	for _, e := range c.backend.byHost[key] {
		if e.Status != opts.StatusFilter {
			continue
		}
		if c.tag && c.host.ID != "" {
			e.Tag(c.host.Provenance())
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *fakeClient) ExecutionStatus(_ context.Context, id string) (model.Execution, error) {
	key := hostKey(c.host)
	c.backend.record("detail:" + key + ":" + id)
	if c.backend.failHost[key] {
		return model.Execution{}, errors.New("connection refused")
	}
	for _, e := range c.backend.byHost[key] {
		if e.ExecutionID == id {
			if c.tag && c.host.ID != "" {
				e.Tag(c.host.Provenance())
			}
			return e, nil
		}
	}
	return model.Execution{}, &apiclient.StatusError{StatusCode: 404}
}

func exec(id, status, created string) model.Execution {
	return model.Execution{ExecutionID: id, Status: status, CreatedAt: created}
}

func twoHosts() staticSource {
	return staticSource{
		APIBaseURL: "https://default.test",
		Hosts: []hostconfig.HostConfig{
			{ID: "a", Label: "A", APIBaseURL: "https://a.test", Enabled: true},
			{ID: "b", Label: "B", APIBaseURL: "https://b.test", Enabled: true},
			{ID: "off", Label: "Off", APIBaseURL: "https://off.test", Enabled: false},
		},
	}
}

func TestListFansOutPerHostAndStatus(t *testing.T) {
	backend := &fakeBackend{byHost: map[string][]model.Execution{
		"a": {exec("x1", "running", "2024-01-01T10:00:00Z"), exec("x2", "completed", "2024-01-01T09:00:00Z")},
		"b": {exec("x1", "running", "2024-01-01T11:00:00Z")},
	}}
	agg := New(twoHosts(), backend.factory(true), WithLogger(slogx.NewTestLogger(t)))

	res, err := agg.List(context.Background(), ListQuery{})
	require.NoError(t, err)

	assert.Equal(t, 8, res.Calls)
	assert.Equal(t, 0, res.FailedCalls)
	assert.False(t, res.FellBackToDefault)
	require.Len(t, res.Executions, 3)
	assert.Equal(t, "b:x1", res.Executions[0].RowID())
	assert.Equal(t, "a:x1", res.Executions[1].RowID())
	assert.Equal(t, "a:x2", res.Executions[2].RowID())
	assert.NotContains(t, backend.requests, "off:running:true")
	assert.Contains(t, backend.requests, "a:pending:true")
}

func TestListIncludeCompletedRecentFollowsStatuses(t *testing.T) {
	backend := &fakeBackend{}
	agg := New(twoHosts(), backend.factory(true))

	_, err := agg.List(context.Background(), ListQuery{Statuses: []string{"running,pending"}})
	require.NoError(t, err)
	require.NotEmpty(t, backend.requests)
	for _, r := range backend.requests {
		assert.True(t, strings.HasSuffix(r, ":false"), "expected include_completed_recent=false in %q", r)
		assert.NotContains(t, r, ":completed:")
	}
}

func TestListPartialFailureContributesEmpty(t *testing.T) {
	backend := &fakeBackend{
		byHost:   map[string][]model.Execution{"a": {exec("x1", "running", "2024-01-01T10:00:00Z")}},
		failHost: map[string]bool{"b": true},
	}
	agg := New(twoHosts(), backend.factory(true), WithLogger(slogx.NewTestLogger(t)))

	res, err := agg.List(context.Background(), ListQuery{Statuses: []string{"running"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, 1, res.FailedCalls)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].HostID)
	require.Len(t, res.Executions, 1)
	assert.Equal(t, "a:x1", res.Executions[0].RowID())
}

func TestListFallsBackToDefaultWhenHostsReturnNothing(t *testing.T) {
	backend := &fakeBackend{
		byHost:   map[string][]model.Execution{"default": {exec("d1", "failed", "2024-01-01T10:00:00Z")}},
		failHost: map[string]bool{"a": true, "b": true},
	}
	agg := New(twoHosts(), backend.factory(true), WithLogger(slogx.NewTestLogger(t)))

	res, err := agg.List(context.Background(), ListQuery{Statuses: []string{"failed"}})
	require.NoError(t, err)
	assert.True(t, res.FellBackToDefault)
	assert.Equal(t, 2, res.FailedCalls)
	require.Len(t, res.Executions, 1)
	assert.Equal(t, "d1", res.Executions[0].RowID())
}

func TestListZeroHostsUsesDefaultPerStatus(t *testing.T) {
	backend := &fakeBackend{byHost: map[string][]model.Execution{
		"default": {exec("d1", "running", "2024-01-01T10:00:00Z"), exec("d2", "pending", "2024-01-01T12:00:00Z")},
	}}
	src := staticSource{APIBaseURL: "https://default.test"}
	agg := New(src, backend.factory(true))

	res, err := agg.List(context.Background(), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Calls)
	require.Len(t, res.Executions, 2)
	assert.Equal(t, "d2", res.Executions[0].ExecutionID)
}

func TestListZeroHostsErrorIsReturned(t *testing.T) {
	backend := &fakeBackend{failHost: map[string]bool{"default": true}}
	agg := New(staticSource{APIBaseURL: "https://default.test"}, backend.factory(true))

	res, err := agg.List(context.Background(), ListQuery{Statuses: []string{"running"}})
	require.Error(t, err)
	assert.Empty(t, res.Executions)
	assert.Equal(t, 1, res.FailedCalls)
}

func TestListSingleHostBackfillsProvenance(t *testing.T) {
	backend := &fakeBackend{byHost: map[string][]model.Execution{
		"a": {exec("x1", "running", "2024-01-01T10:00:00Z")},
	}}
	src := staticSource{Hosts: []hostconfig.HostConfig{{ID: "a", Label: "A", APIBaseURL: "https://a.test", Enabled: true}}}
	agg := New(src, backend.factory(false))

	res, err := agg.List(context.Background(), ListQuery{Statuses: []string{"running"}})
	require.NoError(t, err)
	require.Len(t, res.Executions, 1)
	assert.Equal(t, "a", res.Executions[0].HostID)
	assert.Equal(t, "https://a.test", res.Executions[0].HostFileBaseURL)
}

func TestListDropsDuplicatePairsAndUnrequestedStatuses(t *testing.T) {
	rows := []model.Execution{
		{ExecutionID: "x", Status: "running", HostID: "a", CreatedAt: "2024-01-01T10:00:00Z"},
		{ExecutionID: "x", Status: "running", HostID: "a", CreatedAt: "2024-01-01T10:00:00Z"},
		{ExecutionID: "x", Status: "running", HostID: "b", CreatedAt: "2024-01-01T10:00:00Z"},
		{ExecutionID: "y", Status: "cancelled", HostID: "a", CreatedAt: "2024-01-01T10:00:00Z"},
	}
	out := finalize(rows, []string{"running"})
	require.Len(t, out, 2)
	assert.Equal(t, "a:x", out[0].RowID())
	assert.Equal(t, "b:x", out[1].RowID())
}

func TestDetailQueriesOwnerHostDirectly(t *testing.T) {
	backend := &fakeBackend{byHost: map[string][]model.Execution{
		"a": {exec("x1", "running", "")},
		"b": {exec("x1", "completed", "")},
	}}
	agg := New(twoHosts(), backend.factory(true))

	d, err := agg.Detail(context.Background(), DetailRefFromRowID("b:x1"))
	require.NoError(t, err)
	assert.Equal(t, "completed", d.Status)
	assert.Equal(t, []string{"detail:b:x1"}, backend.requests)
}

func TestDetailProbesHostsThenDefault(t *testing.T) {
	backend := &fakeBackend{byHost: map[string][]model.Execution{
		"b":       {exec("x2", "failed", "")},
		"default": {exec("x3", "completed", "")},
	}}
	agg := New(twoHosts(), backend.factory(true), WithLogger(slogx.NewTestLogger(t)))

	d, err := agg.Detail(context.Background(), DetailRef{ExecutionID: "x2"})
	require.NoError(t, err)
	assert.Equal(t, "b", d.HostID)
	assert.Equal(t, []string{"detail:a:x2", "detail:b:x2"}, backend.requests)

	backend.requests = nil
	d, err = agg.Detail(context.Background(), DetailRef{HostID: "gone", ExecutionID: "x3"})
	require.NoError(t, err)
	assert.Equal(t, "x3", d.ExecutionID)
	assert.Equal(t, []string{"detail:a:x3", "detail:b:x3", "detail:default:x3"}, backend.requests)

	_, err = agg.Detail(context.Background(), DetailRef{ExecutionID: "nope"})
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestHostForUsesRegistryThenProvenance(t *testing.T) {
	snap := hostconfig.RuntimeConfig(twoHosts())

	h := HostFor(snap, model.Execution{HostID: "a"})
	assert.Equal(t, "https://a.test", h.APIBaseURL)

	h = HostFor(snap, model.Execution{HostID: "removed", HostAPIBaseURL: "https://r.test", HostFileBaseURL: "https://rf.test"})
	assert.Equal(t, "removed", h.ID)
	assert.Equal(t, "https://rf.test", h.EffectiveFileBase())

	h = HostFor(snap, model.Execution{})
	assert.Equal(t, "https://default.test", h.APIBaseURL)
}
