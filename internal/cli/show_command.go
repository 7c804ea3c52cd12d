package cli

import (
	"context"
	"flag"
	"fmt"
	"slices"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/filekey"
	"pipeline-monitor/internal/model"
)

type fileEntry struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type showOutput struct {
	RowID     string                       `json:"row_id"`
	Execution model.Execution              `json:"execution"`
	Files     map[filekey.Kind][]fileEntry `json:"files"`
}

func runShow(a *app, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	urls := fs.Bool("urls", false, "print download URLs next to file keys")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	id, err := firstArg(fs.Args(), "row id or execution id")
	if err != nil {
		return err
	}

	ctx := context.Background()
	exec, err := a.aggregator().Detail(ctx, aggregate.DetailRefFromRowID(id))
	if err != nil {
		return err
	}
	out := buildShowOutput(a, exec)
	if *jsonOut {
		return printJSON(out)
	}
	printExecution(out, *urls)
	return nil
}

func buildShowOutput(a *app, exec model.Execution) showOutput {
	client := a.client(aggregate.HostFor(a.registry.Snapshot(), exec))
	groups := filekey.Group(executionKeys(exec))
	files := make(map[filekey.Kind][]fileEntry, len(groups))
	for kind, keys := range groups {
		entries := make([]fileEntry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, fileEntry{Key: k, Name: filekey.DisplayName(k), URL: client.FileURL(k)})
		}
		files[kind] = entries
	}
	return showOutput{RowID: exec.RowID(), Execution: exec, Files: files}
}

// executionKeys lists every input and output key once, in step order.
func executionKeys(exec model.Execution) []string {
	var keys []string
	for _, s := range exec.Steps {
		for _, k := range slices.Concat(s.InputKeys, s.OutputKeys) {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func printExecution(out showOutput, withURLs bool) {
	e := out.Execution
	fmt.Printf("execution: %s\n", e.ExecutionID)
	fmt.Printf("row_id: %s\n", out.RowID)
	fmt.Printf("name: %s\n", defaultIfEmpty(e.Name, "-"))
	fmt.Printf("status: %s (%.0f%%)\n", model.NormalizeStatus(e.Status), e.OverallProgress)
	if e.HostID != "" {
		fmt.Printf("host: %s (%s)\n", defaultIfEmpty(e.HostLabel, e.HostID), e.HostID)
	}
	fmt.Printf("created: %s\n", formatCreated(e))
	if e.StartedAt != "" {
		fmt.Printf("started: %s\n", formatTimestamp(e.StartedAt))
	}
	if e.CompletedAt != "" {
		fmt.Printf("completed: %s\n", formatTimestamp(e.CompletedAt))
	}
	fmt.Printf("duration: %s\n", model.FormatDuration(e.DurationSeconds))
	if e.ErrorMessage != "" {
		fmt.Printf("error: %s\n", e.ErrorMessage)
	}

	if len(e.Steps) == 0 {
		fmt.Println("steps: (none)")
	} else {
		fmt.Println("steps:")
		for i, s := range e.Steps {
			fmt.Printf("  %d. %s [%s] %.0f%% %s\n", i+1, defaultIfEmpty(s.Name, s.StepID), model.NormalizeStatus(s.Status), s.Progress, model.FormatDuration(s.DurationSeconds))
			if s.ErrorMessage != "" {
				fmt.Printf("     error: %s\n", s.ErrorMessage)
			}
		}
	}

	if len(out.Files) == 0 {
		fmt.Println("files: (none)")
		return
	}
	fmt.Println("files:")
	for _, kind := range filekey.Kinds {
		entries := out.Files[kind]
		if len(entries) == 0 {
			continue
		}
		fmt.Printf("  %s (%d):\n", kind, len(entries))
		for _, f := range entries {
			if withURLs {
				fmt.Printf("    %s  %s\n", f.Key, f.URL)
				continue
			}
			fmt.Printf("    %s\n", f.Key)
		}
	}
}

func formatTimestamp(raw string) string {
	t := model.ParseTimestamp(raw)
	if t.IsZero() {
		return raw
	}
	return t.In(aggregate.KST()).Format("2006-01-02 15:04:05")
}
