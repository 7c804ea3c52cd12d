package cli

import (
	"errors"
	"flag"
	"fmt"

	"pipeline-monitor/internal/export"
)

func runSettings(a *app, args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(a, args[1:])
	case "set":
		return runSettingsSet(a, args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

type settingsView struct {
	StateDir            string `json:"state_dir"`
	APIBaseURL          string `json:"api_base_url"`
	FileDownloadBaseURL string `json:"file_download_base_url"`
	ConverterBaseURL    string `json:"converter_base_url"`
	Hosts               int    `json:"hosts"`
	EnabledHosts        int    `json:"enabled_hosts"`
}

func currentSettings(a *app) settingsView {
	snap := a.registry.Snapshot()
	return settingsView{
		StateDir:            a.stateDir,
		APIBaseURL:          snap.APIBaseURL,
		FileDownloadBaseURL: snap.FileDownloadBaseURL,
		ConverterBaseURL:    snap.ConverterBaseURL,
		Hosts:               len(snap.Hosts),
		EnabledHosts:        len(snap.EnabledHosts()),
	}
}

func runSettingsShow(a *app, args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	view := currentSettings(a)
	if *jsonOut {
		return printJSON(view)
	}
	printSettings(view)
	return nil
}

func runSettingsSet(a *app, args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	apiBase := fs.String("api-base", "", "default API base URL")
	fileBase := fs.String("file-base", "", "default file download base URL")
	converterBase := fs.String("converter-base", "", "PDF-to-image converter base URL (empty disables it)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if len(set) == 0 || (len(set) == 1 && set["json"]) {
		return errors.New("nothing to update (use --api-base, --file-base or --converter-base)")
	}

	if set["api-base"] {
		if err := a.registry.SetAPIBaseURL(*apiBase); err != nil {
			return err
		}
	}
	if set["file-base"] {
		if err := a.registry.SetFileDownloadBaseURL(*fileBase); err != nil {
			return err
		}
	}
	if set["converter-base"] {
		if err := a.registry.SetConverterBaseURL(*converterBase); err != nil {
			return err
		}
	}

	view := currentSettings(a)
	if *jsonOut {
		return printJSON(view)
	}
	fmt.Println("updated settings")
	printSettings(view)
	if set["converter-base"] && *converterBase != "" && !export.ValidBaseURL(*converterBase) {
		fmt.Println("warning: converter URL is not http(s); image exports will rasterize locally")
	}
	return nil
}

func printSettings(v settingsView) {
	fmt.Printf("state_dir: %s\n", v.StateDir)
	fmt.Printf("api_base_url: %s\n", defaultIfEmpty(v.APIBaseURL, "(first enabled host)"))
	fmt.Printf("file_download_base_url: %s\n", defaultIfEmpty(v.FileDownloadBaseURL, "(API base)"))
	fmt.Printf("converter_base_url: %s\n", defaultIfEmpty(v.ConverterBaseURL, "(local rasterizer)"))
	fmt.Printf("hosts: %d (%d enabled)\n", v.Hosts, v.EnabledHosts)
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  pipeline-monitor settings show [--json]")
	fmt.Println("  pipeline-monitor settings set [--api-base <url>] [--file-base <url>] [--converter-base <url>] [--json]")
}
