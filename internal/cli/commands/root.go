package commands

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/flatquery/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

var (
	// errReported marks a failure whose message was already printed
	errReported = errors.New("reported")
	// errConfig marks an unusable configuration file or environment
	errConfig = errors.New("invalid configuration")
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "flatquery",
		Short: "Metadata-driven queries flattened into rows",
		Long: color.CyanString(`flatquery - dynamic queries over a metadata registry

Select fields by path ("firstName", "department.name", "skills.*"),
filter and sort with a small expression language, and get back flat
rows: one per combination of collection elements.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./flatquery.yaml)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&a.createSchema, "create-schema", false, "create missing tables for the catalogue before running")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if a.noColor {
			color.NoColor = true
		}
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newQueryCommand(a))
	rootCmd.AddCommand(newExploreCommand(a, surveyPrompter{}))
	rootCmd.AddCommand(newEntitiesCommand(a))
	rootCmd.AddCommand(newDDLCommand(a))
	rootCmd.AddCommand(newServeCommand(a))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			title := color.New(color.FgCyan, color.Bold)
			for _, line := range [][2]string{
				{"flatquery version: ", Version},
				{"Git commit: ", GitCommit},
				{"Build date: ", BuildDate},
				{"Go version: ", goVer},
			} {
				title.Fprint(out, line[0])
				fmt.Fprintln(out, line[1])
			}
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

// reportError prints err unless a command already did
func reportError(w io.Writer, err error) {
	switch {
	case errors.Is(err, errReported):
	case errors.Is(err, errConfig):
		fmt.Fprint(w, ui.ConfigError(err.Error(), color.NoColor))
	default:
		color.New(color.FgRed, color.Bold).Fprintf(w, "Error: %v\n", err)
	}
}
