package commands

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/flatquery/internal/cli/ui"
	"github.com/conduit-lang/flatquery/internal/engine"
)

type outputOptions struct {
	json    bool
	showSQL bool
}

func newQueryCommand(a *app) *cobra.Command {
	var (
		where, orderBy  string
		first, maxDepth int
		output          outputOptions
	)

	cmd := &cobra.Command{
		Use:   "query <entity> <field>...",
		Short: "Run a query and print flat rows",
		Long: `Run a query against the configured database.

Fields are paths relative to the entity. A path ending in a collection
fans out into one row per element; "*" and "nav.*" expand every scalar
within the depth limit.`,
		Example: `  flatquery query Employee firstName lastName department.name
  flatquery query Employee firstName certifications.name --where "certifications.issuer = 'ACME'"
  flatquery query Organisation name 'departments.*' --order-by -name --first 10 --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.Request{
				Entity:  args[0],
				Fields:  args[1:],
				Where:   where,
				OrderBy: orderBy,
			}
			if cmd.Flags().Changed("first") {
				req.First = engine.Int(first)
			}
			if cmd.Flags().Changed("max-depth") {
				req.MaxDepth = engine.Int(maxDepth)
			}
			return a.runQuery(cmd, req, output)
		},
	}

	cmd.Flags().StringVarP(&where, "where", "w", "", "filter expression, replaces the entity's default filter")
	cmd.Flags().StringVarP(&orderBy, "order-by", "o", "", "comma-separated sort paths, '-' prefix for descending")
	cmd.Flags().IntVarP(&first, "first", "n", 0, fmt.Sprintf("maximum number of rows (at most %d)", engine.MaxFirst))
	cmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 0, "maximum path depth (1-5, default from config)")
	cmd.Flags().BoolVar(&output.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&output.showSQL, "sql", false, "print the executed statement")

	return cmd
}

// runQuery executes req against the configured database and prints the result
func (a *app) runQuery(cmd *cobra.Command, req engine.Request, output outputOptions) error {
	sess, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.engine.Execute(cmd.Context(), req)
	if err != nil {
		return a.reportQueryError(cmd.ErrOrStderr(), sess.registry, req, err)
	}

	out := cmd.OutOrStdout()
	if output.json {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	ui.RenderRows(out, res.Fields, res.Rows, a.noColor)
	if output.showSQL && res.Diagnostics != nil {
		gray := color.New(color.FgHiBlack)
		if a.noColor {
			gray.DisableColor()
		}
		gray.Fprintln(out, res.Diagnostics.Statement)
	}
	return nil
}
