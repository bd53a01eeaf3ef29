// Command plan-check validates a sweep plan JSON file against a variable
// catalog and prints every policy violation, for checking plan files before
// they are handed to the measurement engine.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"sweepcore/internal/config"
	"sweepcore/internal/core"
	"sweepcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

// planFile is the on-disk shape accepted by -plan.
type planFile struct {
	Name        string             `json:"name"`
	StartValues domain.StartValues `json:"start_values"`
	Series      *domain.SeriesNode `json:"series,omitempty"`
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var catalogPath, planPath string
	fs.StringVar(&catalogPath, "catalog", "catalog.hcl", "path to the variable catalog (HCL)")
	fs.StringVar(&planPath, "plan", "", "path to the sweep plan file (JSON)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if planPath == "" {
		fmt.Fprintln(stderr, "plan-check: -plan is required")
		return 2
	}

	registry, err := config.LoadCatalog(catalogPath)
	if err != nil {
		fmt.Fprintf(stderr, "plan-check: %v\n", err)
		return 2
	}
	plan, err := readPlan(planPath)
	if err != nil {
		fmt.Fprintf(stderr, "plan-check: %v\n", err)
		return 2
	}

	ok, messages := core.ValidateSeries(registry, plan.StartValues, plan.Series)
	if !ok {
		for _, msg := range messages {
			fmt.Fprintln(stdout, msg)
		}
		fmt.Fprintf(stdout, "Plan %q is invalid: %d problem(s).\n", plan.Name, len(messages))
		return 1
	}

	total, err := core.TotalStepCount(registry, plan.Series)
	if err != nil {
		fmt.Fprintf(stderr, "plan-check: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Plan %q is valid: %d measurement point(s).\n", plan.Name, total)
	return 0
}

func readPlan(path string) (planFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return planFile{}, err
	}
	var plan planFile
	if err := json.Unmarshal(b, &plan); err != nil {
		return planFile{}, fmt.Errorf("decode plan %s: %w", path, err)
	}
	if plan.StartValues == nil {
		plan.StartValues = domain.StartValues{}
	}
	return plan, nil
}
