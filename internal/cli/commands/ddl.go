package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/flatquery/internal/cli/ui"
	"github.com/conduit-lang/flatquery/internal/orm/codegen"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
)

func newDDLCommand(a *app) *cobra.Command {
	var (
		dialectName string
		drop        bool
	)

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the schema of the catalogue",
		Long: `Print CREATE TABLE and CREATE INDEX statements for every entity and join
table of the catalogue. The dialect defaults to the configured driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := a.registry()
			if err != nil {
				return err
			}

			var dialect sqlstore.Dialect
			if dialectName != "" {
				dialect, err = sqlstore.DialectByName(dialectName)
			} else {
				dialect, err = sqlstore.DialectForDriver(a.cfg.Database.Driver)
			}
			if err != nil {
				return err
			}

			gen := codegen.NewDDLGenerator(dialect)
			out := cmd.OutOrStdout()
			if drop {
				fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("the DROP statements delete every table of the catalogue and its rows", a.noColor))
				stmts, err := gen.GenerateDropTables(registry)
				if err != nil {
					return err
				}
				for _, stmt := range stmts {
					fmt.Fprintln(out, stmt)
				}
				fmt.Fprintln(out)
			}

			ddl, err := gen.GenerateSchema(registry)
			if err != nil {
				return err
			}
			fmt.Fprint(out, ddl)
			return nil
		},
	}

	cmd.Flags().StringVar(&dialectName, "dialect", "", "sqlite, postgres or duckdb")
	cmd.Flags().BoolVar(&drop, "drop", false, "prefix the schema with DROP TABLE statements")
	return cmd
}
