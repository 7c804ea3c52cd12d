package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/config"
	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/metrics"
	"pipeline-monitor/internal/objstore"
	"pipeline-monitor/internal/pdfraster"
	"pipeline-monitor/internal/poller"
	"pipeline-monitor/internal/slogx"
	"pipeline-monitor/internal/store"
)

type globalOptions struct {
	StateDir string
	LogLevel string
}

// app holds everything one command invocation shares.
type app struct {
	conf     *config.Config
	stateDir string
	logger   *slog.Logger
	registry *hostconfig.Registry
	gatherer *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(opts globalOptions) (*app, error) {
	conf, err := config.Parse()
	if err != nil {
		return nil, err
	}

	level := conf.Logger.Level
	if v := strings.TrimSpace(opts.LogLevel); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid --log-level %q", v)
		}
	}
	logger := slogx.New(os.Stderr, level, conf.Logger.Format)

	explicit := strings.TrimSpace(opts.StateDir)
	if explicit == "" {
		explicit = conf.StateDir
	}
	dir, err := store.DefaultDir(explicit)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	return &app{
		conf:     conf,
		stateDir: dir,
		logger:   logger,
		registry: hostconfig.Open(store.New(dir), hostconfig.Defaults(conf), hostconfig.WithLogger(logger)),
		gatherer: reg,
		metrics:  metrics.New(reg),
	}, nil
}

func (a *app) clientOptions() []apiclient.Option {
	return []apiclient.Option{
		apiclient.WithTimeout(a.conf.HTTP.RequestTimeout),
		apiclient.WithObserver(a.metrics),
		apiclient.WithLogger(a.logger),
	}
}

func (a *app) client(host hostconfig.HostConfig) *apiclient.Client {
	return apiclient.New(host, a.clientOptions()...)
}

func (a *app) aggregator() *aggregate.Aggregator {
	return aggregate.New(
		a.registry,
		aggregate.APIClientFactory(a.clientOptions()...),
		aggregate.WithLogger(a.logger),
		aggregate.WithFanoutLimit(a.conf.HTTP.FanoutLimit),
	)
}

// exporter fetches sources through a host-less client: export sources
// carry absolute URLs and their own headers.
func (a *app) exporter() *export.Exporter {
	fetcher := a.client(a.registry.Snapshot().DefaultHost())
	return export.NewExporter(
		fetcher,
		pdfraster.Poppler{},
		export.WithLogger(a.logger),
		export.WithObserver(a.metrics),
		export.WithConverterClient(&http.Client{Timeout: a.conf.HTTP.RequestTimeout}),
	)
}

func (a *app) sink(upload bool, out string) (export.Sink, error) {
	if !upload {
		return export.FileSink{Path: out}, nil
	}
	if !a.conf.S3.Configured() {
		return nil, fmt.Errorf("--upload needs %sS3_ENDPOINT, %sS3_ACCESS_KEY and %sS3_SECRET_KEY", config.Prefix, config.Prefix, config.Prefix)
	}
	return objstore.New(a.conf.S3, objstore.WithLogger(a.logger))
}

func (a *app) retry() poller.Retry {
	return poller.Retry{Attempts: a.conf.Polling.RetryAttempts, Delay: a.conf.Polling.RetryDelay}
}
