package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/model"
)

type listRow struct {
	model.Execution `yaml:",inline"`
	RowID           string `json:"row_id" yaml:"row_id"`
	ETA             string `json:"eta,omitempty" yaml:"eta,omitempty"`
}

type listOutput struct {
	Stats             aggregate.Stats `json:"stats" yaml:"stats"`
	Executions        []listRow       `json:"executions" yaml:"executions"`
	Calls             int             `json:"calls" yaml:"calls"`
	FailedCalls       int             `json:"failed_calls" yaml:"failed_calls"`
	FellBackToDefault bool            `json:"fell_back_to_default" yaml:"fell_back_to_default"`
}

func runList(a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var statuses, hosts stringList
	fs.Var(&statuses, "status", "status filter, repeatable or comma-separated (default running,completed,failed,pending)")
	fs.Var(&hosts, "host", "only show rows from this host id (repeatable)")
	limit := fs.Int("limit", aggregate.DefaultLimit, "rows requested per host and status")
	query := fs.String("q", "", "substring match on execution id or name")
	jsonOut := fs.Bool("json", false, "print JSON output")
	yamlOut := fs.Bool("yaml", false, "print YAML output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonOut && *yamlOut {
		return errors.New("--json and --yaml are mutually exclusive")
	}

	ctx := context.Background()
	res, err := a.aggregator().List(ctx, aggregate.ListQuery{Limit: *limit, Statuses: statuses})
	if err != nil {
		return err
	}
	rows := aggregate.Filter{Query: *query, HostIDs: hosts}.Apply(res.Executions)
	out := buildListOutput(res, rows, time.Now())

	switch {
	case *jsonOut:
		return printJSON(out)
	case *yamlOut:
		return printYAML(out)
	}

	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "warning: %s/%s: %v\n", defaultIfEmpty(f.HostID, "default"), f.Status, f.Err)
	}
	if res.FellBackToDefault {
		fmt.Fprintln(os.Stderr, "warning: no host returned executions; showing the default endpoint")
	}
	printStats(out.Stats)
	if len(out.Executions) == 0 {
		fmt.Println("no executions")
		return nil
	}
	fmt.Println()
	printListTable(out.Executions)
	return nil
}

func buildListOutput(res aggregate.ListResult, rows []model.Execution, now time.Time) listOutput {
	estimates := aggregate.EstimateStarts(rows, now, aggregate.KST())
	out := listOutput{
		Stats:             aggregate.ComputeStats(rows),
		Executions:        make([]listRow, 0, len(rows)),
		Calls:             res.Calls,
		FailedCalls:       res.FailedCalls,
		FellBackToDefault: res.FellBackToDefault,
	}
	for _, r := range rows {
		row := listRow{Execution: r, RowID: r.RowID()}
		if model.NormalizeStatus(r.Status) == model.StatusPending {
			row.ETA = aggregate.ETA(estimates, r)
		}
		out.Executions = append(out.Executions, row)
	}
	return out
}

func printStats(s aggregate.Stats) {
	fmt.Printf("total: %d  running: %d  completed: %d  failed: %d  pending: %d\n",
		s.Total, s.Running, s.Completed, s.Failed, s.Pending)
	fmt.Printf("success_rate: %d%%  avg_duration: %s\n", s.SuccessRate, model.FormatDuration(s.AvgDurationSeconds))
}

func printListTable(rows []listRow) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW ID\tHOST\tNAME\tSTATUS\tPROGRESS\tCREATED\tDURATION\tETA")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
			r.RowID,
			defaultIfEmpty(r.HostLabel, "-"),
			truncateRunes(defaultIfEmpty(r.Name, "-"), 40),
			model.NormalizeStatus(r.Status),
			r.OverallProgress,
			formatCreated(r.Execution),
			model.FormatDuration(r.DurationSeconds),
			defaultIfEmpty(r.ETA, "-"),
		)
	}
	_ = tw.Flush()
}

func formatCreated(e model.Execution) string {
	t := e.Created()
	if t.IsZero() {
		return "-"
	}
	return t.In(aggregate.KST()).Format("2006-01-02 15:04")
}
