package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/flatquery/internal/engine"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// prompter asks the interactive questions of explore
type prompter interface {
	Select(message string, options []string) (string, error)
	MultiSelect(message string, options []string) ([]string, error)
	Input(message, help string) (string, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Select(message string, options []string) (string, error) {
	var answer string
	prompt := &survey.Select{Message: message, Options: options, PageSize: 15}
	err := survey.AskOne(prompt, &answer)
	return answer, err
}

func (surveyPrompter) MultiSelect(message string, options []string) ([]string, error) {
	var answer []string
	prompt := &survey.MultiSelect{Message: message, Options: options, PageSize: 15}
	err := survey.AskOne(prompt, &answer, survey.WithValidator(survey.Required))
	return answer, err
}

func (surveyPrompter) Input(message, help string) (string, error) {
	var answer string
	prompt := &survey.Input{Message: message, Help: help}
	err := survey.AskOne(prompt, &answer)
	return answer, err
}

func newExploreCommand(a *app, p prompter) *cobra.Command {
	var output outputOptions

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Build a query interactively",
		Long: `Pick an entity and its fields from the catalogue, optionally add a
filter, sort and row limit, then run the query. The equivalent query
command is printed so it can be repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := a.registry()
			if err != nil {
				return err
			}
			req, err := askRequest(p, registry)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n\n", commandLine(req))
			return a.runQuery(cmd, req, output)
		},
	}

	cmd.Flags().BoolVar(&output.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&output.showSQL, "sql", false, "print the executed statement")
	return cmd
}

func askRequest(p prompter, registry *schema.Registry) (engine.Request, error) {
	var req engine.Request

	name, err := p.Select("Entity:", registry.Names())
	if err != nil {
		return req, err
	}
	entity, err := registry.Lookup(name)
	if err != nil {
		return req, err
	}
	req.Entity = entity.Name

	if req.Fields, err = p.MultiSelect("Fields:", candidatePaths(registry, entity)); err != nil {
		return req, err
	}
	if req.Where, err = p.Input("Filter (optional):", "e.g. lastName like 'H%' and department.name = 'R&D'"); err != nil {
		return req, err
	}
	if req.OrderBy, err = p.Input("Sort (optional):", "comma-separated paths, '-' prefix for descending"); err != nil {
		return req, err
	}

	first, err := p.Input("Row limit (optional):", "")
	if err != nil {
		return req, err
	}
	if first = strings.TrimSpace(first); first != "" {
		n, err := strconv.Atoi(first)
		if err != nil {
			return req, fmt.Errorf("row limit must be a number, got %q", first)
		}
		req.First = engine.Int(n)
	}
	return req, nil
}

// candidatePaths lists the scalars of entity followed by the scalars one
// navigation away
func candidatePaths(registry *schema.Registry, entity *schema.Entity) []string {
	var paths []string
	for _, p := range entity.Scalars {
		paths = append(paths, p.Name)
	}
	for _, n := range entity.Navigations {
		target, err := registry.Lookup(n.Target)
		if err != nil {
			continue
		}
		for _, p := range target.Scalars {
			paths = append(paths, n.Name+"."+p.Name)
		}
	}
	return paths
}

// commandLine renders req as the equivalent query invocation
func commandLine(req engine.Request) string {
	parts := []string{"flatquery", "query", req.Entity}
	parts = append(parts, req.Fields...)
	if req.Where != "" {
		parts = append(parts, "--where", strconv.Quote(req.Where))
	}
	if req.OrderBy != "" {
		parts = append(parts, "--order-by", req.OrderBy)
	}
	if req.First != nil {
		parts = append(parts, "--first", strconv.Itoa(*req.First))
	}
	return strings.Join(parts, " ")
}
