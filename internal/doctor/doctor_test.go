package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/apiclient"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/model"
)

type staticSource hostconfig.RuntimeConfig

func (s staticSource) Snapshot() hostconfig.RuntimeConfig { return hostconfig.RuntimeConfig(s) }

type probeClient struct {
	err error
}

func (c probeClient) ListActive(context.Context, apiclient.ListOptions) ([]model.Execution, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []model.Execution{{ExecutionID: "e1"}}, nil
}

func (c probeClient) ExecutionStatus(context.Context, string) (model.Execution, error) {
	return model.Execution{}, errors.New("unused")
}

func findCheck(t *testing.T, res Result, name string) Check {
	t.Helper()
	for _, c := range res.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("expected check %q in %+v", name, res.Checks)
	return Check{}
}

func withFakePoppler(t *testing.T) {
	t.Helper()
	bin := t.TempDir()
	for _, name := range []string{"pdfinfo", "pdftoppm"} {
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRunReportsEverythingOK(t *testing.T) {
	withFakePoppler(t)
	src := staticSource{
		ConverterBaseURL: "https://conv.test",
		Hosts: []hostconfig.HostConfig{
			{ID: "a", Label: "A", APIBaseURL: "https://a.test", Enabled: true},
			{ID: "b", Label: "B", APIBaseURL: "https://b.test", Enabled: false},
		},
	}
	res := Run(context.Background(), Options{
		StateDir: filepath.Join(t.TempDir(), "state"),
		Source:   src,
		Probe:    true,
		NewClient: func(hostconfig.HostConfig) aggregate.Client {
			return probeClient{}
		},
	})
	if !res.OK {
		t.Fatalf("expected doctor to pass, got %+v", res.Checks)
	}
	if c := findCheck(t, res, "hosts"); c.Message != "1 enabled" {
		t.Fatalf("unexpected hosts message %q", c.Message)
	}
	if c := findCheck(t, res, "probe:a"); !c.OK {
		t.Fatalf("expected probe to pass, got %+v", c)
	}
}

func TestRunFlagsBadConverterAndFailedProbe(t *testing.T) {
	withFakePoppler(t)
	src := staticSource{
		APIBaseURL:       "https://default.test",
		ConverterBaseURL: "conv.test",
	}
	res := Run(context.Background(), Options{
		StateDir: t.TempDir(),
		Source:   src,
		Probe:    true,
		NewClient: func(hostconfig.HostConfig) aggregate.Client {
			return probeClient{err: errors.New("connection refused")}
		},
	})
	if res.OK {
		t.Fatalf("expected doctor to fail")
	}
	if c := findCheck(t, res, "converter"); c.OK {
		t.Fatalf("expected invalid converter to fail, got %+v", c)
	}
	if c := findCheck(t, res, "hosts"); !c.OK {
		t.Fatalf("expected default host to satisfy hosts check, got %+v", c)
	}
	if c := findCheck(t, res, "probe:default"); c.OK || c.Message != "connection refused" {
		t.Fatalf("expected failed default probe, got %+v", c)
	}
}

func TestRunWithoutHostsOrDefault(t *testing.T) {
	withFakePoppler(t)
	res := Run(context.Background(), Options{StateDir: t.TempDir(), Source: staticSource{}})
	if c := findCheck(t, res, "hosts"); c.OK {
		t.Fatalf("expected hosts check to fail without any base URL, got %+v", c)
	}
	if c := findCheck(t, res, "converter"); !c.OK {
		t.Fatalf("expected unset converter to be fine, got %+v", c)
	}
}
