package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/schema"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
)

// DDLGenerator generates CREATE TABLE statements for one dialect
type DDLGenerator struct {
	dialect    sqlstore.Dialect
	typeMapper *TypeMapper
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator(dialect sqlstore.Dialect) *DDLGenerator {
	return &DDLGenerator{
		dialect:    dialect,
		typeMapper: NewTypeMapper(dialect.Name()),
	}
}

// columnDef is one column of a generated table
type columnDef struct {
	name     string
	typ      schema.PrimitiveType
	nullable bool
	primary  bool
}

// table collects the columns of one generated table
type table struct {
	name       string
	columns    []columnDef
	primaryKey []string
}

func (t *table) has(column string) bool {
	for _, c := range t.columns {
		if c.name == column {
			return true
		}
	}
	return false
}

// Generate returns the CREATE TABLE statements for every entity of reg in
// name order, followed by one statement per join table.
func (g *DDLGenerator) Generate(reg *schema.Registry) ([]string, error) {
	tables, err := g.tables(reg)
	if err != nil {
		return nil, err
	}
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmt, err := g.createTable(t)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.name, err)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// GenerateSchema returns the complete DDL script: tables then indexes
func (g *DDLGenerator) GenerateSchema(reg *schema.Registry) (string, error) {
	stmts, err := g.Generate(reg)
	if err != nil {
		return "", err
	}
	indexes, err := NewIndexGenerator(g.dialect).Generate(reg)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.Join(stmts, "\n\n"))
	if len(indexes) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(indexes, "\n"))
	}
	b.WriteString("\n")
	return b.String(), nil
}

// GenerateDropTables returns DROP TABLE statements in reverse creation order
func (g *DDLGenerator) GenerateDropTables(reg *schema.Registry) ([]string, error) {
	tables, err := g.tables(reg)
	if err != nil {
		return nil, err
	}
	stmts := make([]string, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s;", g.dialect.Quote(tables[i].name)))
	}
	return stmts, nil
}

// tables lays out every entity table, adding the key columns navigations
// rely on, then the deduplicated join tables.
func (g *DDLGenerator) tables(reg *schema.Registry) ([]*table, error) {
	byName := make(map[string]*table)
	var ordered []*table
	for _, e := range reg.Entities() {
		t := &table{name: e.Table}
		for _, p := range e.Scalars {
			t.columns = append(t.columns, columnDef{name: p.Column, typ: p.Type, nullable: p.Nullable, primary: p.PrimaryKey})
			if p.PrimaryKey {
				t.primaryKey = append(t.primaryKey, p.Column)
			}
		}
		byName[e.Table] = t
		ordered = append(ordered, t)
	}

	var joins []*table
	joinSeen := make(map[string]bool)
	for _, e := range reg.Entities() {
		for _, nav := range e.Navigations {
			target, err := reg.Lookup(nav.Target)
			if err != nil {
				return nil, err
			}
			switch nav.Cardinality {
			case schema.ManyToOne:
				ref, err := keyProperty(target, nav.RemoteKey)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Name, nav.Name, err)
				}
				addForeignKey(byName[e.Table], nav.LocalKey, ref.Type)

			case schema.OneToMany:
				ref, err := keyProperty(e, nav.LocalKey)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Name, nav.Name, err)
				}
				addForeignKey(byName[target.Table], nav.RemoteKey, ref.Type)

			case schema.ManyToMany:
				if joinSeen[nav.JoinTable] {
					continue
				}
				joinSeen[nav.JoinTable] = true
				local, err := keyProperty(e, nav.LocalKey)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Name, nav.Name, err)
				}
				remote, err := keyProperty(target, nav.RemoteKey)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", e.Name, nav.Name, err)
				}
				joins = append(joins, &table{
					name: nav.JoinTable,
					columns: []columnDef{
						{name: nav.JoinLocalKey, typ: local.Type},
						{name: nav.JoinRemoteKey, typ: remote.Type},
					},
					primaryKey: []string{nav.JoinLocalKey, nav.JoinRemoteKey},
				})
			}
		}
	}

	sort.Slice(joins, func(i, j int) bool { return joins[i].name < joins[j].name })
	return append(ordered, joins...), nil
}

// addForeignKey appends a nullable key column unless the table has it
func addForeignKey(t *table, column string, typ schema.PrimitiveType) {
	if t == nil || t.has(column) {
		return
	}
	t.columns = append(t.columns, columnDef{name: column, typ: typ, nullable: true})
}

func keyProperty(e *schema.Entity, column string) (*schema.Property, error) {
	for _, p := range e.Scalars {
		if p.Column == column {
			return p, nil
		}
	}
	return nil, fmt.Errorf("entity %s has no column %s", e.Name, column)
}

// createTable renders one CREATE TABLE statement
func (g *DDLGenerator) createTable(t *table) (string, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", g.dialect.Quote(t.name)))

	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		def, err := g.columnDefinition(c, len(t.primaryKey) == 1)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", c.name, err)
		}
		defs = append(defs, def)
	}
	if len(t.primaryKey) > 1 {
		quoted := make([]string, len(t.primaryKey))
		for i, k := range t.primaryKey {
			quoted[i] = g.dialect.Quote(k)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String(), nil
}

func (g *DDLGenerator) columnDefinition(c columnDef, inlinePrimary bool) (string, error) {
	columnType, err := g.typeMapper.MapType(c.typ)
	if err != nil {
		return "", fmt.Errorf("mapping type: %w", err)
	}
	parts := []string{g.dialect.Quote(c.name), columnType, g.typeMapper.MapNullability(c.nullable)}
	if c.primary && inlinePrimary {
		parts = append(parts, "PRIMARY KEY")
	}
	return strings.Join(parts, " "), nil
}
