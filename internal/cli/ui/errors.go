package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message with optional suggestions and help commands:
//
//	❌ UNKNOWN ENTITY: Cannot find entity 'Employe'.
//
//	   Did you mean: Employee?
//
//	   → See all entities: flatquery entities
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var header *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		header, symbol = newColor(opts.NoColor, color.FgYellow, color.Bold), "⚠️"
	case ErrorLevelInfo:
		header, symbol = newColor(opts.NoColor, color.FgCyan, color.Bold), "ℹ️"
	default:
		header, symbol = newColor(opts.NoColor, color.FgRed, color.Bold), "❌"
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		newColor(opts.NoColor, color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := newColor(opts.NoColor, color.FgCyan)
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// EntityNotFoundError reports an entity name missing from the registry
func EntityNotFoundError(name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     "unknown entity",
		Problem:     fmt.Sprintf("Cannot find entity '%s'.", name),
		Suggestions: suggestions,
		HelpCommands: []string{
			"See all entities: flatquery entities",
		},
		NoColor: noColor,
	})
}

// QueryError reports a failed query. kind names the failure class.
func QueryError(kind, message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     kind,
		Problem:     message,
		Suggestions: suggestions,
		HelpCommands: []string{
			"Inspect an entity: flatquery entities <name>",
			"Get help: flatquery query --help",
		},
		NoColor: noColor,
	})
}

// ConfigError reports an unusable configuration
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat flatquery.yaml",
			"Get help: flatquery --help",
		},
		NoColor: noColor,
	})
}

// Warning formats a warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}
