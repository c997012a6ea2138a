package codegen

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/flatquery/internal/orm/schema"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
)

// IndexGenerator generates CREATE INDEX statements for join key columns
type IndexGenerator struct {
	dialect sqlstore.Dialect
}

// NewIndexGenerator creates a new index generator
func NewIndexGenerator(dialect sqlstore.Dialect) *IndexGenerator {
	return &IndexGenerator{dialect: dialect}
}

// Generate returns one index per foreign key column a join condition
// probes: ManyToOne local keys, OneToMany remote keys and the remote side of
// every join table. Primary key columns are skipped.
func (g *IndexGenerator) Generate(reg *schema.Registry) ([]string, error) {
	seen := make(map[string]bool)
	joinSeen := make(map[string]bool)
	var indexes []string

	add := func(e *schema.Entity, tableName, column string) {
		if e != nil && isPrimaryColumn(e, column) {
			return
		}
		indexName := fmt.Sprintf("idx_%s_%s", tableName, column)
		if seen[indexName] {
			return
		}
		seen[indexName] = true
		indexes = append(indexes, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
			g.dialect.Quote(indexName), g.dialect.Quote(tableName), g.dialect.Quote(column)))
	}

	for _, e := range reg.Entities() {
		for _, nav := range e.Navigations {
			target, err := reg.Lookup(nav.Target)
			if err != nil {
				return nil, err
			}
			switch nav.Cardinality {
			case schema.ManyToOne:
				add(e, e.Table, nav.LocalKey)
			case schema.OneToMany:
				add(target, target.Table, nav.RemoteKey)
			case schema.ManyToMany:
				// the join table primary key already leads with the local key
				// of the side that declared it first
				if !joinSeen[nav.JoinTable] {
					joinSeen[nav.JoinTable] = true
					add(nil, nav.JoinTable, nav.JoinRemoteKey)
				}
			}
		}
	}

	// Sort for deterministic output
	sort.Strings(indexes)
	return indexes, nil
}

func isPrimaryColumn(e *schema.Entity, column string) bool {
	for _, p := range e.PrimaryKey() {
		if p.Column == column {
			return true
		}
	}
	return false
}
