package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"pipeline-monitor/internal/aggregate"
	"pipeline-monitor/internal/doctor"
	"pipeline-monitor/internal/hostconfig"
	"pipeline-monitor/internal/store"
)

type initResult struct {
	StateDir        string        `json:"state_dir"`
	CreatedDocument bool          `json:"created_document"`
	Hosts           int           `json:"hosts"`
	DoctorResult    doctor.Result `json:"doctor"`
}

func runInit(a *app, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	probe := fs.Bool("probe", false, "also send one list request to every enabled host")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := store.Mkdir(a.stateDir); err != nil {
		return err
	}
	_, exists, err := store.New(a.stateDir).Get(hostconfig.DocumentKey)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.registry.Save(); err != nil {
			return err
		}
	}

	res := initResult{
		StateDir:        a.stateDir,
		CreatedDocument: !exists,
		Hosts:           len(a.registry.Snapshot().Hosts),
		DoctorResult:    runChecks(a, *probe),
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Println("state initialized")
	fmt.Printf("state_dir: %s\n", res.StateDir)
	fmt.Printf("created_config: %t\n", res.CreatedDocument)
	fmt.Printf("hosts: %d\n", res.Hosts)
	fmt.Println("checks:")
	for _, c := range res.DoctorResult.Checks {
		fmt.Printf("  %s: %s (%s)\n", c.Name, checkStatus(c.OK), c.Message)
	}
	if !res.DoctorResult.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("next: pipeline-monitor hosts list")
	return nil
}

func runDoctor(a *app, args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	probe := fs.Bool("probe", false, "also send one list request to every enabled host")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := runChecks(a, *probe)
	if *jsonOut {
		return printJSON(res)
	}

	for _, c := range res.Checks {
		fmt.Printf("%s: %s (%s)\n", c.Name, checkStatus(c.OK), c.Message)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}

func runChecks(a *app, probe bool) doctor.Result {
	return doctor.Run(context.Background(), doctor.Options{
		StateDir:  a.stateDir,
		Source:    a.registry,
		Probe:     probe,
		NewClient: aggregate.APIClientFactory(a.clientOptions()...),
		Timeout:   a.conf.HTTP.RequestTimeout,
	})
}

func checkStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
