package export

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pipeline-monitor/internal/slogx"
)

const (
	UsedBundle = "bundle"
	UsedServer = "server"
	UsedLocal  = "local"
)

const DefaultPollInterval = time.Second

type Observer interface {
	ObserveExport(mode, outcome string)
}

type Request struct {
	Mode          Mode
	Sources       []Source
	ConverterBase string
	OnProgress    ProgressFunc
}

// Result holds either the archive bytes or a URL the converter serves the
// archive from.
type Result struct {
	Archive     []byte `json:"-"`
	DownloadURL string `json:"download_url,omitempty"`
	UsedMode    string `json:"used_mode"`
	TaskID      string `json:"task_id,omitempty"`
}

type Exporter struct {
	fetcher      Fetcher
	rasterizer   PdfRasterizer
	http         *http.Client
	logger       *slog.Logger
	observer     Observer
	pollInterval time.Duration
}

type ExporterOption func(*Exporter)

func WithLogger(logger *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(o Observer) ExporterOption {
	return func(e *Exporter) {
		e.observer = o
	}
}

// WithConverterClient sets the HTTP client used to talk to the converter.
func WithConverterClient(hc *http.Client) ExporterOption {
	return func(e *Exporter) {
		e.http = hc
	}
}

func WithPollInterval(d time.Duration) ExporterOption {
	return func(e *Exporter) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

func NewExporter(f Fetcher, r PdfRasterizer, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		fetcher:      f,
		rasterizer:   r,
		logger:       slogx.Discard(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) Run(ctx context.Context, req Request) (Result, error) {
	res, err := e.run(ctx, req)
	if e.observer != nil {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrCancelled):
			outcome = "cancelled"
		case err != nil:
			outcome = "error"
		}
		e.observer.ObserveExport(string(req.Mode), outcome)
	}
	return res, err
}

func (e *Exporter) run(ctx context.Context, req Request) (Result, error) {
	if len(req.Sources) == 0 {
		return Result{}, ErrNoSources
	}
	ctx = slogx.WithAttrs(ctx, slog.String("export_mode", string(req.Mode)), slog.Int("sources", len(req.Sources)))

	switch req.Mode {
	case ModeImages:
	case ModeBundle, "":
		data, err := Bundle(ctx, e.fetcher, req.Sources, req.OnProgress)
		if err != nil {
			return Result{}, err
		}
		return Result{Archive: data, UsedMode: UsedBundle}, nil
	default:
		_, err := ParseMode(string(req.Mode))
		return Result{}, err
	}

	if ValidBaseURL(req.ConverterBase) {
		res, err := e.runServer(ctx, req)
		if err == nil || errors.Is(err, ErrCancelled) {
			return res, err
		}
		e.logger.InfoContext(ctx, "converter unavailable, rasterizing locally", slogx.Error(err))
	} else {
		e.logger.InfoContext(ctx, "no converter configured, rasterizing locally")
	}
	return e.runLocal(ctx, req)
}

func (e *Exporter) runLocal(ctx context.Context, req Request) (Result, error) {
	if e.rasterizer == nil {
		return Result{}, errors.New("no local PDF rasterizer available")
	}
	data, err := rasterize(ctx, e.fetcher, e.rasterizer, req.Sources, req.OnProgress, e.logger)
	if err != nil {
		return Result{}, err
	}
	return Result{Archive: data, UsedMode: UsedLocal}, nil
}

func (e *Exporter) runServer(ctx context.Context, req Request) (Result, error) {
	conv, err := NewConverter(req.ConverterBase, e.http)
	if err != nil {
		return Result{}, err
	}
	urls := make([]string, 0, len(req.Sources))
	for _, src := range req.Sources {
		urls = append(urls, src.URL)
	}

	started, err := conv.Start(ctx, urls)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ErrCancelled
		}
		return Result{}, err
	}
	if started.DownloadURL != "" {
		return Result{DownloadURL: started.DownloadURL, UsedMode: UsedServer, TaskID: started.TaskID}, nil
	}

	ctx = slogx.WithAttrs(ctx, slog.String("converter_task", started.TaskID))
	e.logger.DebugContext(ctx, "conversion task started")

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.cancelTask(conv, started.TaskID)
			return Result{}, ErrCancelled
		case <-ticker.C:
		}

		st, err := conv.Status(ctx, started.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				e.cancelTask(conv, started.TaskID)
				return Result{}, ErrCancelled
			}
			return Result{}, err
		}
		if st.Total > 0 {
			req.OnProgress.report(st.Total, st.Completed)
		}
		switch st.Status {
		case TaskFailed, TaskError, TaskCancelled:
			return Result{}, errors.New("conversion task " + st.Status + ": " + st.Error)
		case TaskCompleted:
			if st.DownloadURL != "" {
				return Result{DownloadURL: st.DownloadURL, UsedMode: UsedServer, TaskID: started.TaskID}, nil
			}
		}
	}
}

// cancelTask notifies the converter on a fresh context since ctx is
// already done.
func (e *Exporter) cancelTask(conv *Converter, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conv.Cancel(ctx, taskID); err != nil {
		e.logger.Warn("cancel conversion task failed", slog.String("converter_task", taskID), slogx.Error(err))
	}
}
