package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sloghttp "github.com/samber/slog-http"

	"pipeline-monitor/internal/slogx"
)

// Handler serves /metrics for gatherer with request logging and panic
// recovery.
func Handler(gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slogx.Discard()
	}
	mux := &http.ServeMux{}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	handler := sloghttp.Recovery(mux)
	handler = sloghttp.NewWithConfig(logger, sloghttp.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	})(handler)
	return handler
}

// Serve blocks until ctx is done or the listener fails.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slogx.Discard()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Close(); err != nil {
			logger.ErrorContext(ctx, "could not close metrics server", slogx.Error(errors.WithStack(err)))
		}
	}()

	logger.InfoContext(ctx, "serving metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}
	return nil
}
