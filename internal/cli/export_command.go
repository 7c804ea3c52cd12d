package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/slogx"
)

type exportOutput struct {
	Mode        export.Mode     `json:"mode"`
	UsedMode    string          `json:"used_mode"`
	Sources     []export.Source `json:"sources"`
	Location    string          `json:"location,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	Bytes       int             `json:"bytes,omitempty"`
}

func runExport(a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	modeRaw := fs.String("mode", "pdf", "archive content: pdf (files as-is) or images (one PNG per page)")
	out := fs.String("out", "", "archive path (default executions-<mode>-<unix ms>.zip)")
	upload := fs.Bool("upload", false, "upload the archive to the configured S3 bucket instead of writing a file")
	dryRun := fs.Bool("dry-run", false, "list the PDFs that would be exported")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	mode, err := export.ParseMode(*modeRaw)
	if err != nil {
		return err
	}
	if len(fs.Args()) == 0 {
		return errors.New("at least one row id or execution id is required")
	}
	if *upload && strings.TrimSpace(*out) != "" {
		return errors.New("--out and --upload are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sources, err := collectSources(ctx, a, fs.Args())
	if err != nil {
		return err
	}
	if *dryRun {
		if *jsonOut {
			return printJSON(exportOutput{Mode: mode, Sources: sources})
		}
		for _, s := range sources {
			fmt.Printf("%s\t%s\n", s.Name, s.URL)
		}
		fmt.Printf("%d files\n", len(sources))
		return nil
	}

	sink, err := a.sink(*upload, *out)
	if err != nil {
		return err
	}

	progress := export.NewLineProgress(os.Stderr, !*jsonOut && isCharDevice(os.Stderr), "export "+string(mode))
	progress.Start()
	res, err := a.exporter().Run(ctx, export.Request{
		Mode:          mode,
		Sources:       sources,
		ConverterBase: a.registry.Snapshot().ConverterBaseURL,
		OnProgress:    progress.Update,
	})
	if err != nil {
		progress.Stop("export failed")
		return err
	}
	progress.Stop(fmt.Sprintf("export %s: done (%s)", mode, res.UsedMode))

	data, err := archiveBytes(ctx, a, res)
	if err != nil {
		return err
	}
	location, err := sink.Put(ctx, export.ArchiveName(mode, time.Now()), data)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(exportOutput{
			Mode:        mode,
			UsedMode:    res.UsedMode,
			Sources:     sources,
			Location:    location,
			DownloadURL: res.DownloadURL,
			Bytes:       len(data),
		})
	}
	fmt.Printf("exported %d files (%s) to %s (%d bytes)\n", len(sources), res.UsedMode, location, len(data))
	return nil
}

// collectSources resolves each id to an execution on its owning host and
// gathers its PDFs. Repeated ids are exported once and ids that cannot be
// resolved are skipped.
func collectSources(ctx context.Context, a *app, ids []string) ([]export.Source, error) {
	agg := a.aggregator()
	snap := a.registry.Snapshot()
	seen := make(map[string]bool, len(ids))
	var sources []export.Source
	for _, id := range ids {
		exec, err := agg.Detail(ctx, aggregate.DetailRefFromRowID(id))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("skipping execution", slog.String("id", id), slogx.Error(err))
			continue
		}
		if seen[exec.RowID()] {
			continue
		}
		seen[exec.RowID()] = true
		sources = append(sources, sourcesFor(a, snap, exec)...)
	}
	if len(sources) == 0 {
		return nil, export.ErrNoSources
	}
	return sources, nil
}

func sourcesFor(a *app, snap hostconfig.RuntimeConfig, exec model.Execution) []export.Source {
	return aggregate.CollectPDFSources(exec, a.client(aggregate.HostFor(snap, exec)))
}

// archiveBytes returns the archive of res, downloading it from the
// converter when the server built it.
func archiveBytes(ctx context.Context, a *app, res export.Result) ([]byte, error) {
	if res.DownloadURL == "" {
		return res.Archive, nil
	}
	return downloadConverted(ctx, a, res.DownloadURL)
}

func downloadConverted(ctx context.Context, a *app, downloadURL string) ([]byte, error) {
	conv, err := export.NewConverter(a.registry.Snapshot().ConverterBaseURL, &http.Client{Timeout: 5 * time.Minute})
	if err != nil {
		return nil, err
	}
	return conv.Download(ctx, downloadURL)
}
