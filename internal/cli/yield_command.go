package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/model"
	"pipeline-monitor/internal/yieldcheck"
)

type yieldOutput struct {
	RowID  string             `json:"row_id"`
	Key    string             `json:"key"`
	Shape  string             `json:"shape"`
	Report string             `json:"report"`
	Stats  yieldcheck.Summary `json:"summary"`
}

func runYield(a *app, args []string) error {
	fs := flag.NewFlagSet("yield", flag.ContinueOnError)
	key := fs.String("key", "", "JSON result file key (default: picked from the last step's outputs)")
	flags := fs.String("flag", "", "1-based item numbers to mark ineligible, comma-separated (non-interactive)")
	seenAll := fs.Bool("seen-all", false, "confirm every item was reviewed (non-interactive)")
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
	exec, items, resultKey, shape, err := loadYieldItems(ctx, a, id, *key)
	if err != nil {
		return err
	}

	interactive := *flags == "" && !*seenAll && !*jsonOut && stdinIsTTY() && stdoutIsTTY()
	if interactive {
		m := newYieldModel(exec, resultKey, items)
		finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		if err != nil {
			return err
		}
		if fm, ok := finalModel.(yieldModel); ok && fm.reported {
			fmt.Println(fm.report(time.Now()))
		}
		return nil
	}

	session := yieldcheck.NewSession(items)
	picked, err := parseItemNumbers(*flags, session.Len())
	if err != nil {
		return err
	}
	for _, n := range picked {
		session.ToggleFlag(n - 1)
	}
	if *seenAll {
		session.Goto(session.Len() - 1)
	}
	if !session.Ready() {
		return errors.New("every item must be reviewed before the report (pass --seen-all)")
	}

	now := time.Now().In(aggregate.KST())
	report := session.Report(now, exec.ExecutionID, exec.DurationSeconds)
	if *jsonOut {
		return printJSON(yieldOutput{
			RowID:  exec.RowID(),
			Key:    resultKey,
			Shape:  shape.String(),
			Report: report,
			Stats:  session.Summarize(exec.ExecutionID, exec.DurationSeconds),
		})
	}
	fmt.Println(report)
	return nil
}

func loadYieldItems(ctx context.Context, a *app, id, key string) (model.Execution, yieldcheck.Items, string, yieldcheck.Shape, error) {
	exec, err := a.aggregator().Detail(ctx, aggregate.DetailRefFromRowID(id))
	if err != nil {
		return model.Execution{}, nil, "", yieldcheck.ShapeUnknown, err
	}
	resultKey := strings.TrimSpace(key)
	if resultKey == "" {
		var ok bool
		resultKey, ok = yieldcheck.FindResultKey(exec)
		if !ok {
			return exec, nil, "", yieldcheck.ShapeUnknown, fmt.Errorf("execution %s has no JSON result file (pass --key)", exec.ExecutionID)
		}
	}

	client := a.client(aggregate.HostFor(a.registry.Snapshot(), exec))
	ref, err := client.FetchFile(ctx, resultKey)
	if err != nil {
		return exec, nil, resultKey, yieldcheck.ShapeUnknown, err
	}
	items, shape := yieldcheck.Extract(ref.Data)
	if shape == yieldcheck.ShapeUnknown {
		return exec, nil, resultKey, shape, fmt.Errorf("%s has no vlm_results list", resultKey)
	}
	return exec, items, resultKey, shape, nil
}

// parseItemNumbers reads "1,3,5" as 1-based item numbers within [1, n].
func parseItemNumbers(raw string, n int) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 || v > n {
			return nil, fmt.Errorf("--flag: %q is not an item number between 1 and %d", p, n)
		}
		out = append(out, v)
	}
	return out, nil
}
