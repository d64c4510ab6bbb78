package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulegraph/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Nodes  int              `json:"nodes"`
	Issues []compiler.Issue `json:"issues"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("✓ Rule graph valid (%d nodes)", r.Nodes)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✗ Rule graph invalid: %d issue(s)", len(r.Issues))
	for _, is := range r.Issues {
		fmt.Fprintf(&b, "\n  [%s] %s", is.Code, is.Message)
		if len(is.Nodes) > 0 {
			fmt.Fprintf(&b, " (nodes: %s)", strings.Join(is.Nodes, ", "))
		}
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Check a saved rule graph",
		Long: `Run the structural checks of the editor over a saved rule graph:
identifier syntax, single root, cycles and disconnected trees.

Exit codes:
  0 - graph is valid
  1 - graph has errors
  2 - graph file could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	g, err := LoadGraph(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded %d node(s) from %s", g.Len(), path)

	issues := compiler.Validate(g)
	result := ValidationResult{
		Valid:  !compiler.HasErrors(issues),
		Nodes:  g.Len(),
		Issues: issues,
	}
	if result.Issues == nil {
		result.Issues = []compiler.Issue{}
	}

	if !result.Valid {
		if opts.Format == "json" {
			return formatter.Fail(ExitFailure, ErrCodeInvalid, "rule graph is invalid", result)
		}
		fmt.Fprintln(formatter.Writer, result)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: rule graph is invalid", ErrCodeInvalid))
	}
	return formatter.Success(result)
}

// failLoad reports a graph file problem with its load error code.
func failLoad(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return formatter.Fail(ExitCommandError, le.Code, le.Error(), nil)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}
