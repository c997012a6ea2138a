package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/flatquery/internal/cli/ui"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

func newEntitiesCommand(a *app) *cobra.Command {
	var export bool

	cmd := &cobra.Command{
		Use:   "entities [name]",
		Short: "List the catalogue or describe one entity",
		Long: `List the catalogue or describe one entity.

--export prints the catalogue as YAML, ready to be edited and referenced
from catalog.file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if export {
				return a.exportCatalog(cmd.OutOrStdout())
			}
			registry, err := a.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				g, err := registry.Graph()
				if err != nil {
					return err
				}
				cycles, err := g.Cycles()
				if err != nil {
					return err
				}
				ui.RenderEntities(out, registry.Entities(), a.noColor)
				ui.RenderCatalogSummary(out, registry.Stats(), cycles, a.noColor)
				return nil
			}

			entity, err := registry.Lookup(args[0])
			if err != nil {
				suggestions := ui.FindSimilar(args[0], registry.Names(), nil)
				fmt.Fprint(cmd.ErrOrStderr(), ui.EntityNotFoundError(args[0], suggestions, a.noColor))
				return errReported
			}
			ui.RenderEntity(out, entity, a.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&export, "export", false, "print the catalogue as YAML")
	return cmd
}

func (a *app) exportCatalog(w io.Writer) error {
	decls, err := a.declarations()
	if err != nil {
		return err
	}
	data, err := schema.MarshalCatalog(decls)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
