package cli

import (
	"flag"
	"fmt"
)

func Run(args []string) error {
	opts, rest, err := parseGlobals(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		printRootUsage()
		return nil
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	}

	run, ok := commands[cmd]
	if !ok {
		printRootUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	return run(a, cmdArgs)
}

var commands = map[string]func(*app, []string) error{
	"hosts":    runHosts,
	"settings": runSettings,
	"list":     runList,
	"show":     runShow,
	"file":     runFile,
	"export":   runExport,
	"yield":    runYield,
	"watch":    runWatch,
	"manage":   runManage,
	"doctor":   runDoctor,
	"init":     runInit,
}

// parseGlobals consumes the options that precede the command name.
func parseGlobals(args []string) (globalOptions, []string, error) {
	var opts globalOptions
	fs := flag.NewFlagSet("pipeline-monitor", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	fs.StringVar(&opts.StateDir, "state-dir", "", "state directory (default $PIPELINE_MONITOR_STATE_DIR or user config dir)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.Usage = printRootUsage
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

func printRootUsage() {
	fmt.Println("pipeline-monitor: multi-host pipeline execution monitor")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  pipeline-monitor init")
	fmt.Println("  pipeline-monitor hosts add --label staging --api-base https://api.example.com/api/v1")
	fmt.Println("  pipeline-monitor list --status running,failed")
	fmt.Println("  pipeline-monitor watch")
	fmt.Println()
	fmt.Println("Host Commands:")
	fmt.Println("  init      create the state directory + run environment checks")
	fmt.Println("  doctor    run dependency, directory and host checks")
	fmt.Println("  hosts     list/add/update/remove/enable/disable/reset/export/import hosts")
	fmt.Println("  settings  show/update the default API, file and converter endpoints")
	fmt.Println("  manage    interactive host manager")
	fmt.Println()
	fmt.Println("Execution Commands:")
	fmt.Println("  list      aggregated execution list across enabled hosts")
	fmt.Println("  show      one execution with steps and files")
	fmt.Println("  file      resolve or download a file key on its host")
	fmt.Println("  export    zip the PDFs of executions, as-is or as page images")
	fmt.Println("  yield     review VLM results of an execution and print the yield report")
	fmt.Println("  watch     live dashboard with polling list and detail")
	fmt.Println()
	fmt.Println("Global Options (before the command):")
	fmt.Println("  --state-dir <dir>   state directory")
	fmt.Println("  --log-level <lvl>   debug|info|warn|error (default warn)")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on read commands for machine-readable output")
	fmt.Println("  - Row ids look like <host-id>:<execution-id>; a bare execution id probes every host")
}
