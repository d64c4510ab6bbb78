package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulegraph/internal/catalog"
	"github.com/roach88/rulegraph/internal/graph"
)

type operatorList []catalog.Operator

func (l operatorList) String() string {
	if len(l) == 0 {
		return "No operators"
	}
	var b strings.Builder
	for i, op := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-10s %s", op.Type, op.ID)
		if len(op.Parameters) > 0 {
			names := make([]string, len(op.Parameters))
			for j, p := range op.Parameters {
				names[j] = fmt.Sprintf("%s=%q", p.Name, p.Default)
			}
			fmt.Fprintf(&b, "  %s", strings.Join(names, " "))
		}
	}
	return b.String()
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the operator palette",
		Long: `List the operators new nodes can be created from, with their default
parameters. The palette is the built-in one unless the configuration names
a CUE catalog directory.

Examples:
  rulegraph catalog
  rulegraph catalog --type Compare --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			pal := catalog.Default()
			if dir := rootOpts.config().Catalog; dir != "" {
				var err error
				if pal, err = catalog.Load(dir); err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeParse, err.Error(), nil)
				}
			}

			ops := pal.Operators()
			if typeName != "" {
				t, err := graph.ParseOperatorType(typeName)
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
				}
				ops = pal.OfType(t)
			}
			return formatter.Success(operatorList(ops))
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "only operators of this type (Source, Target, Transform, Compare, Aggregate)")
	return cmd
}
