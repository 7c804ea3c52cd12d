package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/store"
)

func runHosts(a *app, args []string) error {
	if len(args) == 0 {
		printHostsUsage()
		return nil
	}
	switch args[0] {
	case "list":
		return runHostsList(a, args[1:])
	case "add":
		return runHostsAdd(a, args[1:])
	case "update":
		return runHostsUpdate(a, args[1:])
	case "remove":
		return runHostsRemove(a, args[1:])
	case "enable":
		return runHostsToggle(a, args[1:], true)
	case "disable":
		return runHostsToggle(a, args[1:], false)
	case "reset":
		return runHostsReset(a, args[1:])
	case "export":
		return runHostsExport(a, args[1:])
	case "import":
		return runHostsImport(a, args[1:])
	case "help", "-h", "--help":
		printHostsUsage()
		return nil
	default:
		printHostsUsage()
		return fmt.Errorf("unknown hosts subcommand %q", args[0])
	}
}

func runHostsList(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts list", flag.ContinueOnError)
	enabledOnly := fs.Bool("enabled", false, "only list enabled hosts")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap := a.registry.Snapshot()
	hosts := snap.Hosts
	if *enabledOnly {
		hosts = snap.EnabledHosts()
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"state_dir": a.stateDir,
			"hosts":     hosts,
		})
	}

	if len(hosts) == 0 {
		fmt.Println("no hosts configured")
		return nil
	}
	for _, h := range hosts {
		fmt.Printf("%s\t%s\tenabled=%s\tapi=%s\tfiles=%s\n", h.ID, h.Label, yesNo(h.Enabled), h.APIBaseURL, h.EffectiveFileBase())
		if h.HasHeaders() {
			fmt.Printf("  headers: %s\n", hostconfig.FormatHeaders(maskHeaders(h.Headers)))
		}
	}
	return nil
}

func runHostsAdd(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts add", flag.ContinueOnError)
	label := fs.String("label", "", "display label (required)")
	apiBase := fs.String("api-base", "", "API base URL (required)")
	fileBase := fs.String("file-base", "", "file download base URL (default: API base)")
	apiPath := fs.String("api-path", "", "API path (default "+hostconfig.DefaultAPIPath+")")
	filePath := fs.String("file-path", "", "file download path (default "+hostconfig.DefaultFileDownloadPath+")")
	disabled := fs.Bool("disabled", false, "add the host disabled")
	var headers stringList
	fs.Var(&headers, "header", "custom header Key=Value (repeatable)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, err := hostconfig.ParseHeaderPairs(headers)
	if err != nil {
		return err
	}
	host, err := a.registry.AddHost(hostconfig.HostInput{
		Label:               *label,
		APIBaseURL:          *apiBase,
		FileDownloadBaseURL: *fileBase,
		Enabled:             boolPtr(!*disabled),
		APIPath:             *apiPath,
		FileDownloadPath:    *filePath,
		Headers:             parsed,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(host)
	}
	fmt.Printf("added host %s (%s)\n", host.ID, host.Label)
	return nil
}

func runHostsUpdate(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts update", flag.ContinueOnError)
	label := fs.String("label", "", "display label")
	apiBase := fs.String("api-base", "", "API base URL")
	fileBase := fs.String("file-base", "", "file download base URL (empty falls back to API base)")
	apiPath := fs.String("api-path", "", "API path")
	filePath := fs.String("file-path", "", "file download path")
	enabled := fs.Bool("enabled", true, "enable or disable the host")
	var headers stringList
	fs.Var(&headers, "header", "custom header Key=Value (repeatable, replaces all headers)")
	clearHeaders := fs.Bool("clear-headers", false, "remove all custom headers")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	id, err := firstArg(fs.Args(), "host id")
	if err != nil {
		return err
	}

	var patch hostconfig.HostPatch
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "label":
			patch.Label = label
		case "api-base":
			patch.APIBaseURL = apiBase
		case "file-base":
			patch.FileDownloadBaseURL = fileBase
		case "api-path":
			patch.APIPath = apiPath
		case "file-path":
			patch.FileDownloadPath = filePath
		case "enabled":
			patch.Enabled = enabled
		case "header":
			patch.Headers, parseErr = hostconfig.ParseHeaderPairs(headers)
		}
	})
	if parseErr != nil {
		return parseErr
	}
	if *clearHeaders {
		if patch.Headers != nil {
			return errors.New("--header and --clear-headers are mutually exclusive")
		}
		patch.Headers = map[string]string{}
	}
	if patch.IsEmpty() {
		return errors.New("nothing to update (set at least one flag)")
	}

	found, err := a.registry.UpdateHost(id, patch)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", hostconfig.ErrHostNotFound, id)
	}
	host, _ := a.registry.Snapshot().Host(id)
	if *jsonOut {
		return printJSON(host)
	}
	fmt.Printf("updated host %s (%s)\n", host.ID, host.Label)
	return nil
}

func runHostsRemove(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts remove", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	id, err := firstArg(fs.Args(), "host id")
	if err != nil {
		return err
	}

	host, ok := a.registry.Snapshot().Host(id)
	if !ok {
		return fmt.Errorf("%w: %s", hostconfig.ErrHostNotFound, id)
	}
	if !*yes {
		confirmed, err := promptConfirm(fmt.Sprintf("remove host %s (%s)? [y/N]: ", host.ID, host.Label))
		if err != nil {
			return err
		}
		if !confirmed {
			return errors.New("aborted")
		}
	}

	removed, err := a.registry.RemoveHost(id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"id": id, "removed": removed})
	}
	fmt.Printf("removed host %s\n", id)
	return nil
}

func runHostsToggle(a *app, args []string, enabled bool) error {
	name := "hosts disable"
	if enabled {
		name = "hosts enable"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	if len(fs.Args()) == 0 {
		return errors.New("at least one host id is required")
	}

	changed := make([]string, 0, len(fs.Args()))
	for _, id := range fs.Args() {
		found, err := a.registry.SetEnabled(id, enabled)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", hostconfig.ErrHostNotFound, id)
		}
		changed = append(changed, id)
	}
	if *jsonOut {
		return printJSON(map[string]any{"ids": changed, "enabled": enabled})
	}
	for _, id := range changed {
		fmt.Printf("%s: enabled=%s\n", id, yesNo(enabled))
	}
	return nil
}

func runHostsReset(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts reset", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		confirmed, err := promptConfirm("replace every host and endpoint with the defaults? [y/N]: ")
		if err != nil {
			return err
		}
		if !confirmed {
			return errors.New("aborted")
		}
	}
	if err := a.registry.ResetToDefaults(); err != nil {
		return err
	}
	fmt.Printf("reset to defaults (%d hosts)\n", len(a.registry.Snapshot().Hosts))
	return nil
}

func runHostsExport(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts export", flag.ContinueOnError)
	format := fs.String("format", hostconfig.FormatYAML, "output format: yaml|json")
	out := fs.String("out", "", "write to file instead of stdout")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := a.registry.ExportHosts(*format)
	if err != nil {
		return err
	}
	if path := strings.TrimSpace(*out); path != "" {
		if err := store.WriteFile(path, data, store.OutputFileMode); err != nil {
			return err
		}
		fmt.Printf("exported %d hosts to %s\n", len(a.registry.Snapshot().Hosts), path)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runHostsImport(a *app, args []string) error {
	fs := flag.NewFlagSet("hosts import", flag.ContinueOnError)
	file := fs.String("file", "", "YAML or JSON host list (- for stdin)")
	replace := fs.Bool("replace", false, "replace the whole host list")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		return errors.New("--file is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	res, err := a.registry.ImportHosts(data, *replace)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"added": res.Added, "replaced": res.Replaced, "replace_all": *replace})
	}
	fmt.Printf("imported hosts: added=%d replaced=%d\n", res.Added, res.Replaced)
	return nil
}

func printHostsUsage() {
	fmt.Println("hosts commands:")
	fmt.Println("  pipeline-monitor hosts list [--enabled] [--json]")
	fmt.Println("  pipeline-monitor hosts add --label <name> --api-base <url> [--file-base <url>] [--header K=V ...] [--disabled]")
	fmt.Println("  pipeline-monitor hosts update <id> [--label ...] [--api-base ...] [--file-base ...] [--enabled=false] [--header K=V ...|--clear-headers]")
	fmt.Println("  pipeline-monitor hosts remove <id> [--yes]")
	fmt.Println("  pipeline-monitor hosts enable|disable <id...>")
	fmt.Println("  pipeline-monitor hosts reset [--yes]")
	fmt.Println("  pipeline-monitor hosts export [--format yaml|json] [--out <file>]")
	fmt.Println("  pipeline-monitor hosts import --file <file|-> [--replace]")
}

func maskHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 4 {
			v = v[:2] + strings.Repeat("*", len(v)-4) + v[len(v)-2:]
		}
		out[k] = v
	}
	return out
}
