package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"pipeline-monitor/internal/filekey"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/store"
)

func runFile(a *app, args []string) error {
	if len(args) == 0 {
		printFileUsage()
		return nil
	}
	switch args[0] {
	case "url":
		return runFileURL(a, args[1:])
	case "get":
		return runFileGet(a, args[1:])
	case "help", "-h", "--help":
		printFileUsage()
		return nil
	default:
		printFileUsage()
		return fmt.Errorf("unknown file subcommand %q", args[0])
	}
}

func runFileURL(a *app, args []string) error {
	fs := flag.NewFlagSet("file url", flag.ContinueOnError)
	hostID := fs.String("host", "", "host id (default: the host-less default endpoint)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	key, err := firstArg(fs.Args(), "file key")
	if err != nil {
		return err
	}
	host, err := lookupHost(a, *hostID)
	if err != nil {
		return err
	}

	url := a.client(host).FileURL(key)
	if *jsonOut {
		return printJSON(map[string]any{
			"key":              key,
			"kind":             filekey.Classify(key),
			"url":              url,
			"requires_headers": host.HasHeaders(),
		})
	}
	fmt.Println(url)
	if host.HasHeaders() {
		fmt.Fprintln(os.Stderr, "note: this host needs custom headers; use `file get` to download")
	}
	return nil
}

func runFileGet(a *app, args []string) error {
	fs := flag.NewFlagSet("file get", flag.ContinueOnError)
	hostID := fs.String("host", "", "host id (default: the host-less default endpoint)")
	out := fs.String("out", "", "output path, - for stdout (default: file name in the current directory)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	key, err := firstArg(fs.Args(), "file key")
	if err != nil {
		return err
	}
	host, err := lookupHost(a, *hostID)
	if err != nil {
		return err
	}

	ref, err := a.client(host).FetchFile(context.Background(), key)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(*out)
	if target == "-" {
		_, err := os.Stdout.Write(ref.Data)
		return err
	}
	if target == "" {
		target = filekey.DisplayName(key)
	}
	if err := store.WriteFile(target, ref.Data, store.OutputFileMode); err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"key":          key,
			"path":         target,
			"bytes":        len(ref.Data),
			"content_type": ref.ContentType,
		})
	}
	fmt.Printf("saved %s (%d bytes, %s)\n", target, len(ref.Data), ref.ContentType)
	return nil
}

func lookupHost(a *app, id string) (hostconfig.HostConfig, error) {
	snap := a.registry.Snapshot()
	if strings.TrimSpace(id) == "" {
		return snap.DefaultHost(), nil
	}
	host, ok := snap.Host(id)
	if !ok {
		return hostconfig.HostConfig{}, fmt.Errorf("%w: %s", hostconfig.ErrHostNotFound, id)
	}
	return host, nil
}

func printFileUsage() {
	fmt.Println("file commands:")
	fmt.Println("  pipeline-monitor file url <key> [--host <id>] [--json]")
	fmt.Println("  pipeline-monitor file get <key> [--host <id>] [--out <path|->] [--json]")
}
