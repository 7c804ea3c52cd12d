// Package doctor runs preflight checks for the local environment and the
// configured hosts.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/export"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/pdfraster"
	"pipeline-monitor/internal/store"
)

type Options struct {
	StateDir string
	Source   hostconfig.Source
	// Probe sends one ListActive(limit=1) request per enabled host.
	Probe     bool
	NewClient aggregate.ClientFactory
	Timeout   time.Duration
}

type Result struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks"`
}

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func Run(ctx context.Context, opts Options) Result {
	checks := make([]Check, 0, 6)

	dep := pdfraster.DependencyStatus()
	checks = append(checks,
		Check{Name: "dependency:pdfinfo", OK: dep.PdfinfoFound, Message: dependencyMessage(dep.PdfinfoFound, dep.PdfinfoPath, "pdfinfo")},
		Check{Name: "dependency:pdftoppm", OK: dep.PdftoppmFound, Message: dependencyMessage(dep.PdftoppmFound, dep.PdftoppmPath, "pdftoppm")},
	)

	dirOK, dirMessage := ensureWritableDir(opts.StateDir)
	checks = append(checks, Check{Name: "directory:state", OK: dirOK, Message: dirMessage})

	if opts.Source == nil {
		return finish(checks)
	}
	snap := opts.Source.Snapshot()

	converter := strings.TrimSpace(snap.ConverterBaseURL)
	switch {
	case converter == "":
		checks = append(checks, Check{Name: "converter", OK: true, Message: "not configured; image exports rasterize locally"})
	case export.ValidBaseURL(converter):
		checks = append(checks, Check{Name: "converter", OK: true, Message: converter})
	default:
		checks = append(checks, Check{Name: "converter", OK: false, Message: fmt.Sprintf("invalid base URL %q", converter)})
	}

	hosts := snap.EnabledHosts()
	if len(hosts) == 0 {
		def := snap.DefaultHost()
		ok := hostconfig.ValidURL(def.APIBaseURL)
		msg := "no hosts enabled; using default " + def.APIBaseURL
		if !ok {
			msg = "no hosts enabled and no default API base URL configured"
		}
		checks = append(checks, Check{Name: "hosts", OK: ok, Message: msg})
	} else {
		checks = append(checks, Check{Name: "hosts", OK: true, Message: fmt.Sprintf("%d enabled", len(hosts))})
	}

	if opts.Probe {
		targets := hosts
		if len(targets) == 0 {
			targets = []hostconfig.HostConfig{snap.DefaultHost()}
		}
		checks = append(checks, probe(ctx, opts, targets)...)
	}
	return finish(checks)
}

func probe(ctx context.Context, opts Options, hosts []hostconfig.HostConfig) []Check {
	newClient := opts.NewClient
	if newClient == nil {
		newClient = aggregate.APIClientFactory()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = apiclient.DefaultTimeout
	}

	out := make([]Check, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hosts {
		g.Go(func() error {
			name := "probe:" + h.ID
			if h.ID == "" {
				name = "probe:default"
			}
			cctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			start := time.Now()
			rows, err := newClient(h).ListActive(cctx, apiclient.ListOptions{Limit: 1})
			if err != nil {
				out[i] = Check{Name: name, OK: false, Message: err.Error()}
				return nil
			}
			out[i] = Check{
				Name:    name,
				OK:      true,
				Message: fmt.Sprintf("%s responded in %s (%d rows)", h.APIBaseURL, time.Since(start).Round(time.Millisecond), len(rows)),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func finish(checks []Check) Result {
	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return Result{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH (install poppler-utils for local image exports)"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := store.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "pipeline-monitor-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
