package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/config"
	"github.com/roach88/fiberclient/internal/fiber"
	"github.com/roach88/fiberclient/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioSummary holds the overall result.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenarios-dir>",
		Short: "Run YAML fiber scenarios against the ledger",
		Long: `Run every scenario file in a directory against the configured ledger.

Each step submits a create, transition or archive and waits for its
expectations on the replica. When <dir>/golden/<name>.golden exists the
run's trace must match it byte for byte; --update rewrites it instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, config, etc.)

Examples:
  fiberctl scenario ./scenarios --config fiberctl.yaml
  fiberctl scenario ./scenarios --filter "door-*"
  fiberctl scenario ./scenarios --update
  fiberctl scenario ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *ScenarioOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}

	summary := ScenarioSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	if len(files) == 0 && opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	for _, file := range files {
		res := runScenarioFile(opts, cfg, file, cmd)
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if opts.Format != "json" {
			outputScenarioText(cmd.OutOrStdout(), res, opts.Update)
		}
	}

	f := opts.Formatter(cmd)
	if summary.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", summary.Failed)
		if opts.Format == "json" {
			return f.Fail(CodeScenario, msg, summary)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nScenario Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
		return NewExitError(ExitFailure, msg)
	}

	if opts.Format == "json" {
		return f.Success(summary)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nScenario Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	fmt.Fprintln(cmd.OutOrStdout(), "✓ All scenarios passed")
	return nil
}

// findScenarioFiles finds all YAML scenario files under dir, skipping the
// golden directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenarioFile loads and runs one scenario with a fresh client, then
// checks or rewrites its golden file.
func runScenarioFile(opts *ScenarioOptions, cfg config.Config, file string, cmd *cobra.Command) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	s, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)}}
	}
	if s.Name != "" {
		name = s.Name
	}

	logger := opts.Logger(cmd)
	client, err := fiber.New(cfg, fiber.WithLogger(logger))
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("create client: %v", err)}}
	}
	defer client.Close()

	runner := harness.NewRunner(client,
		harness.WithLogger(logger),
		harness.WithStepTimeout(cfg.DefaultTimeout),
		harness.WithPollInterval(cfg.PollInterval),
	)
	result, err := runner.Run(cmd.Context(), s)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}

	golden := goldenFilePath(file)
	if opts.Update {
		if err := updateGoldenFile(golden, name, result); err != nil {
			return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to update golden file: %v", err)}}
		}
	} else if _, err := os.Stat(golden); err == nil {
		match, err := compareWithGolden(golden, name, result)
		if err != nil {
			return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("golden comparison failed: %v", err)}}
		}
		if !match {
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{Name: name, Pass: result.Pass, Errors: result.Errors}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// goldenTrace renders the trace without fiber IDs, which a real ledger
// assigns afresh on every run.
func goldenTrace(name string, result *harness.Result) ([]byte, error) {
	return canon.Marshal(harness.TraceSnapshot{ScenarioName: name, Trace: result.Trace})
}

func updateGoldenFile(path, name string, result *harness.Result) error {
	data, err := goldenTrace(name, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func compareWithGolden(path, name string, result *harness.Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := goldenTrace(name, result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal current trace: %w", err)
	}
	return bytes.Equal(bytes.TrimSpace(want), got), nil
}

func outputScenarioText(w io.Writer, res ScenarioResult, updated bool) {
	if !res.Pass {
		fmt.Fprintf(w, "✗ %s\n", res.Name)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}
	if updated {
		fmt.Fprintf(w, "✓ %s (golden updated)\n", res.Name)
		return
	}
	fmt.Fprintf(w, "✓ %s\n", res.Name)
}
