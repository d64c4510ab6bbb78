package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulegraph/internal/harness"
)

type suiteReport struct {
	*harness.SuiteResult
}

func (r suiteReport) String() string {
	var b strings.Builder
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "✗ %s (%s)\n", f.Scenario, f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n    "))
		}
	}
	fmt.Fprintf(&b, "%d scenario(s): %d passed, %d failed", r.Total, r.Passed, r.Failed)
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>...",
		Short: "Replay editing scenarios",
		Long: `Replay scripted editing scenarios through an offline editor session
and check their assertions. Directories contribute their *.yaml and *.yml
files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rulegraph run ./scenarios
  rulegraph run ./scenarios/compare_names.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runScenarios(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	res, err := harness.RunSuite(paths, opts.logger())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	formatter.VerboseLog("Ran %d scenario(s)", res.Total)

	if res.Failed > 0 {
		if opts.Format == "json" {
			return formatter.Fail(ExitFailure, ErrCodeInvalid, fmt.Sprintf("%d scenario(s) failed", res.Failed), res)
		}
		fmt.Fprintln(formatter.Writer, suiteReport{res})
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", res.Failed))
	}
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	return formatter.Success(suiteReport{res})
}
