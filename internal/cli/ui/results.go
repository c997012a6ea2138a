package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/conduit-lang/flatquery/internal/orm/flatten"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// NullText is how a missing value is shown in tables
const NullText = "NULL"

// RenderRows prints flat rows as a table. Columns follow fields (full paths)
// so an empty result still shows its header.
func RenderRows(w io.Writer, fields []string, rows []*flatten.Row, noColor bool) {
	headers := make([]string, len(fields))
	keys := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f
		keys[i] = strings.ReplaceAll(f, ".", "_")
	}

	table := NewTable(w, headers, &TableOptions{NoColor: noColor})
	for _, row := range rows {
		cells := make([]string, len(keys))
		for i, k := range keys {
			v, _ := row.Get(k)
			cells[i] = FormatValue(v)
		}
		table.AddRow(cells...)
	}
	table.Render()

	gray := newColor(noColor, color.FgHiBlack)
	gray.Fprintf(w, "(%d %s)\n", len(rows), plural(len(rows), "row", "rows"))
}

// FormatValue renders a scalar for display
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return NullText
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// RenderEntities prints one summary line per entity
func RenderEntities(w io.Writer, entities []*schema.Entity, noColor bool) {
	table := NewTable(w, []string{"Entity", "Table", "Scalars", "Navigations", "Default sort"}, &TableOptions{NoColor: noColor})
	for _, e := range entities {
		table.AddRow(
			e.Name,
			e.Table,
			fmt.Sprint(len(e.Scalars)),
			fmt.Sprint(len(e.Navigations)),
			formatSorts(e.DefaultSort),
		)
	}
	table.Render()
}

// RenderCatalogSummary prints registry totals followed by the groups of
// entities that can reach each other through navigations
func RenderCatalogSummary(w io.Writer, stats schema.RegistryStats, cycles [][]string, noColor bool) {
	fmt.Fprintln(w)
	newColor(noColor, color.FgHiBlack).Fprintf(w, "%d %s, %d %s, %d %s (%d %s)\n",
		stats.Entities, plural(stats.Entities, "entity", "entities"),
		stats.Scalars, plural(stats.Scalars, "scalar", "scalars"),
		stats.Navigations, plural(stats.Navigations, "navigation", "navigations"),
		stats.Collections, plural(stats.Collections, "collection", "collections"))
	if len(cycles) == 0 {
		return
	}
	fmt.Fprintln(w)
	Header(w, "Navigation cycles", noColor)
	fmt.Fprintln(w, schema.FormatCycles(cycles))
}

// RenderEntity prints the metadata of a single entity
func RenderEntity(w io.Writer, e *schema.Entity, noColor bool) {
	Header(w, e.Name, noColor)

	kv := NewKeyValueTable(w, noColor)
	kv.AddRow("Table", e.Table)
	kv.AddRow("Default sort", formatSorts(e.DefaultSort))
	if e.DefaultFilter != "" {
		kv.AddRow("Default filter", e.DefaultFilter)
	}
	kv.Render()
	fmt.Fprintln(w)

	scalars := NewTable(w, []string{"Property", "Column", "Type", "Nullable", "Key"}, &TableOptions{NoColor: noColor})
	for _, p := range e.Scalars {
		key := ""
		if p.PrimaryKey {
			key = "PK"
		}
		scalars.AddRow(p.Name, p.Column, p.Type.String(), yesNo(p.Nullable), key)
	}
	scalars.Render()

	if len(e.Navigations) == 0 {
		return
	}
	fmt.Fprintln(w)

	navs := NewTable(w, []string{"Navigation", "Target", "Cardinality", "Keys", "Defaults"}, &TableOptions{NoColor: noColor})
	for _, n := range e.Navigations {
		navs.AddRow(n.Name, n.Target, n.Cardinality.String(), formatKeys(n), formatNavDefaults(n))
	}
	navs.Render()
}

func formatKeys(n *schema.Navigation) string {
	if n.Cardinality == schema.ManyToMany {
		return fmt.Sprintf("%s.%s/%s", n.JoinTable, n.JoinLocalKey, n.JoinRemoteKey)
	}
	return n.LocalKey + " -> " + n.RemoteKey
}

func formatNavDefaults(n *schema.Navigation) string {
	var parts []string
	if len(n.DefaultSort) > 0 {
		parts = append(parts, "sort "+formatSorts(n.DefaultSort))
	}
	if n.DefaultFilter != "" {
		parts = append(parts, "where "+n.DefaultFilter)
	}
	if n.RecursionCap > 0 {
		parts = append(parts, fmt.Sprintf("cap %d", n.RecursionCap))
	}
	return strings.Join(parts, "; ")
}

func formatSorts(specs []schema.SortSpec) string {
	if len(specs) == 0 {
		return "-"
	}
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
