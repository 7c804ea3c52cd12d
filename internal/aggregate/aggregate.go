// Package aggregate merges execution lists and details across every enabled
// backend host.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/slogx"
)

const (
	DefaultLimit       = 50
	DefaultFanoutLimit = 8
)

var ErrNoResult = errors.New("no host returned a result")

// Client is the subset of the API client the aggregator needs.
type Client interface {
	ListActive(ctx context.Context, opts apiclient.ListOptions) ([]model.Execution, error)
	ExecutionStatus(ctx context.Context, executionID string) (model.Execution, error)
}

type ClientFactory func(host hostconfig.HostConfig) Client

// APIClientFactory builds real API clients with shared options.
func APIClientFactory(opts ...apiclient.Option) ClientFactory {
	return func(host hostconfig.HostConfig) Client {
		return apiclient.New(host, opts...)
	}
}

type Aggregator struct {
	source      hostconfig.Source
	newClient   ClientFactory
	logger      *slog.Logger
	fanoutLimit int
}

type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithFanoutLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.fanoutLimit = n
		}
	}
}

func New(source hostconfig.Source, factory ClientFactory, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:      source,
		newClient:   factory,
		logger:      slogx.Discard(),
		fanoutLimit: DefaultFanoutLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type ListQuery struct {
	Limit                  int
	Statuses               []string
	IncludeCompletedRecent *bool
}

type CallFailure struct {
	HostID string
	Status string
	Err    error
}

type ListResult struct {
	Executions        []model.Execution
	Calls             int
	FailedCalls       int
	Failures          []CallFailure
	FellBackToDefault bool
}

type call struct {
	host   hostconfig.HostConfig
	status string
}

type callResult struct {
	rows []model.Execution
	err  error
}

// List fans out one request per (host, status) pair and merges the
// settled results. Individual failures contribute nothing; an error is only
// returned when the host-less default request fails as well.
func (a *Aggregator) List(ctx context.Context, q ListQuery) (ListResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	statuses := model.ParseStatusList(q.Statuses...)
	if len(statuses) == 0 {
		statuses = slices.Clone(model.DefaultListStatuses)
	}
	include := slices.Contains(statuses, model.StatusCompleted)
	if q.IncludeCompletedRecent != nil {
		include = *q.IncludeCompletedRecent
	}

	snap := a.source.Snapshot()
	hosts := snap.EnabledHosts()

	if len(hosts) == 0 {
		return a.listDefault(ctx, snap, statuses, limit, include)
	}

	calls := make([]call, 0, len(hosts)*len(statuses))
	for _, h := range hosts {
		for _, s := range statuses {
			calls = append(calls, call{host: h, status: s})
		}
	}
	results := a.fanout(ctx, calls, limit, include)

	res := ListResult{Calls: len(calls)}
	merged := make([]model.Execution, 0)
	for i, r := range results {
		if r.err != nil {
			res.FailedCalls++
			res.Failures = append(res.Failures, CallFailure{HostID: calls[i].host.ID, Status: calls[i].status, Err: r.err})
			continue
		}
		rows := r.rows
		if len(hosts) == 1 {
			backfill(rows, calls[i].host)
		}
		merged = append(merged, rows...)
	}
	res.Executions = finalize(merged, statuses)

	if len(res.Executions) > 0 {
		return res, nil
	}

	a.logger.InfoContext(ctx, "no host returned executions, falling back to default endpoint",
		slog.Int("calls", res.Calls), slog.Int("failed", res.FailedCalls))
	fallback, err := a.listDefault(ctx, snap, statuses, limit, include)
	fallback.Calls += res.Calls
	fallback.FailedCalls += res.FailedCalls
	fallback.Failures = append(res.Failures, fallback.Failures...)
	fallback.FellBackToDefault = true
	return fallback, err
}

func (a *Aggregator) listDefault(ctx context.Context, snap hostconfig.RuntimeConfig, statuses []string, limit int, include bool) (ListResult, error) {
	def := snap.DefaultHost()
	calls := make([]call, 0, len(statuses))
	for _, s := range statuses {
		calls = append(calls, call{host: def, status: s})
	}
	results := a.fanout(ctx, calls, limit, include)

	res := ListResult{Calls: len(calls)}
	merged := make([]model.Execution, 0)
	var errs []error
	for i, r := range results {
		if r.err != nil {
			res.FailedCalls++
			res.Failures = append(res.Failures, CallFailure{Status: calls[i].status, Err: r.err})
			errs = append(errs, r.err)
			continue
		}
		merged = append(merged, r.rows...)
	}
	res.Executions = finalize(merged, statuses)
	if len(errs) == len(calls) && len(calls) > 0 {
		return res, fmt.Errorf("list executions from default endpoint: %w", errors.Join(errs...))
	}
	return res, nil
}

// fanout runs calls concurrently and returns their results in call order.
func (a *Aggregator) fanout(ctx context.Context, calls []call, limit int, include bool) []callResult {
	results := make([]callResult, len(calls))
	clients := make(map[string]Client)
	var mu sync.Mutex
	clientFor := func(h hostconfig.HostConfig) Client {
		mu.Lock()
		defer mu.Unlock()
		if c, ok := clients[h.ID]; ok {
			return c
		}
		c := a.newClient(h)
		clients[h.ID] = c
		return c
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanoutLimit)
	for i, c := range calls {
		g.Go(func() error {
			rows, err := clientFor(c.host).ListActive(gctx, apiclient.ListOptions{
				Limit:                  limit,
				IncludeCompletedRecent: &include,
				StatusFilter:           c.status,
			})
			if err != nil {
				a.logger.WarnContext(ctx, "list executions failed",
					slog.String("host", hostName(c.host)),
					slog.String("status", c.status),
					slogx.Error(err),
				)
			}
			results[i] = callResult{rows: rows, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func backfill(rows []model.Execution, host hostconfig.HostConfig) {
	if host.ID == "" {
		return
	}
	p := host.Provenance()
	for i := range rows {
		if !rows[i].HasProvenance() {
			rows[i].Tag(p)
		}
	}
}

// finalize keeps rows whose status was requested, drops repeated
// (host, execution) pairs and orders by creation time, newest first.
func finalize(rows []model.Execution, statuses []string) []model.Execution {
	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	out := make([]model.Execution, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if !wanted[model.NormalizeStatus(r.Status)] {
			continue
		}
		id := r.RowID()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(x, y model.Execution) int {
		return y.Created().Compare(x.Created())
	})
	return out
}

func hostName(h hostconfig.HostConfig) string {
	if h.ID == "" {
		return "default"
	}
	return h.ID
}

// DetailRef names an execution and, when known, the host that owns it.
type DetailRef struct {
	HostID      string
	ExecutionID string
}

func DetailRefFromRowID(rowID string) DetailRef {
	host, exec := model.ParseRowID(rowID)
	return DetailRef{HostID: host, ExecutionID: exec}
}

// Detail fetches one execution. A ref naming an enabled host queries only
// that host. Otherwise enabled hosts are probed in order and the host-less
// default endpoint is the last resort.
func (a *Aggregator) Detail(ctx context.Context, ref DetailRef) (model.Execution, error) {
	execID := strings.TrimSpace(ref.ExecutionID)
	if execID == "" {
		return model.Execution{}, errors.New("execution id is required")
	}
	snap := a.source.Snapshot()
	hosts := snap.EnabledHosts()

	if ref.HostID != "" {
		for _, h := range hosts {
			if h.ID == ref.HostID {
				return a.newClient(h).ExecutionStatus(ctx, execID)
			}
		}
	}

	for _, h := range hosts {
		d, err := a.newClient(h).ExecutionStatus(ctx, execID)
		if err == nil {
			return d, nil
		}
		a.logger.DebugContext(ctx, "detail probe failed",
			slog.String("host", h.ID), slog.String("execution_id", execID), slogx.Error(err))
	}

	if len(hosts) > 0 {
		a.logger.InfoContext(ctx, "no host knows execution, falling back to default endpoint",
			slog.String("execution_id", execID))
	}
	d, err := a.newClient(snap.DefaultHost()).ExecutionStatus(ctx, execID)
	if err != nil {
		return model.Execution{}, fmt.Errorf("%w: %s: %w", ErrNoResult, execID, err)
	}
	return d, nil
}

// HostFor resolves the host an execution came from. Hosts no longer in the
// registry are rebuilt from the provenance fields; rows without provenance
// map to the default endpoint.
func HostFor(snap hostconfig.RuntimeConfig, e model.Execution) hostconfig.HostConfig {
	if e.HostID != "" {
		if h, ok := snap.Host(e.HostID); ok {
			return h
		}
		if e.HostAPIBaseURL != "" {
			return hostconfig.HostConfig{
				ID:                  e.HostID,
				Label:               e.HostLabel,
				APIBaseURL:          e.HostAPIBaseURL,
				FileDownloadBaseURL: e.HostFileBaseURL,
				Enabled:             true,
			}
		}
	}
	return snap.DefaultHost()
}
