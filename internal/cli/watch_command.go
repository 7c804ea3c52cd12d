package cli

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/metrics"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/poller"
	"pipeline-monitor/internal/slogx"
)

// watchBackend is what the watch screen needs from the outside world.
type watchBackend struct {
	list        func(ctx context.Context) (aggregate.ListResult, error)
	detail      func(ctx context.Context, rowID string) (model.Execution, error)
	startExport func(ctx context.Context, rowID string) (*export.Task, error)
	saveExport  func(ctx context.Context, task *export.Task) (string, error)
	interval    time.Duration
	retry       poller.Retry
}

func runWatch(a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", a.conf.Polling.RefreshInterval, "refresh interval")
	var statuses, hosts stringList
	fs.Var(&statuses, "status", "status filter, repeatable or comma-separated")
	fs.Var(&hosts, "host", "only show rows from this host id (repeatable)")
	limit := fs.Int("limit", aggregate.DefaultLimit, "rows requested per host and status")
	metricsAddr := fs.String("metrics-addr", a.conf.MetricsAddr, "serve Prometheus metrics on this address while watching (empty disables)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() || !stdoutIsTTY() {
		return errors.New("watch requires an interactive terminal (TTY); use list for scripts")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.gatherer, a.logger); err != nil {
				a.logger.Warn("metrics server stopped", slog.String("addr", addr), slogx.Error(err))
			}
		}()
	}

	ctrl := poller.NewController(ctx, a.metrics)
	defer ctrl.Close()

	m := newWatchModel(ctx, ctrl, a.watchBackend(*interval, *limit, statuses), aggregate.Filter{HostIDs: hosts})
	finalModel, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	}
	if fm, ok := finalModel.(watchModel); ok && fm.task != nil {
		fm.task.Cancel()
	}
	return nil
}

func (a *app) watchBackend(interval time.Duration, limit int, statuses []string) watchBackend {
	agg := a.aggregator()
	return watchBackend{
		list: func(ctx context.Context) (aggregate.ListResult, error) {
			return agg.List(ctx, aggregate.ListQuery{Limit: limit, Statuses: statuses})
		},
		detail: func(ctx context.Context, rowID string) (model.Execution, error) {
			return agg.Detail(ctx, aggregate.DetailRefFromRowID(rowID))
		},
		startExport: func(ctx context.Context, rowID string) (*export.Task, error) {
			sources, err := collectSources(ctx, a, []string{rowID})
			if err != nil {
				return nil, err
			}
			return a.exporter().Start(ctx, export.Request{
				Mode:          export.ModeBundle,
				Sources:       sources,
				ConverterBase: a.registry.Snapshot().ConverterBaseURL,
			}), nil
		},
		saveExport: func(ctx context.Context, task *export.Task) (string, error) {
			res, err := task.Wait(ctx)
			if err != nil {
				return "", err
			}
			data, err := archiveBytes(ctx, a, res)
			if err != nil {
				return "", err
			}
			return export.FileSink{}.Put(ctx, export.ArchiveName(task.Mode, time.Now()), data)
		},
		interval: interval,
		retry:    a.retry(),
	}
}
