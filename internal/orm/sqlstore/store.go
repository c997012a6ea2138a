package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/orm/query"
)

// Querier is the subset of *sql.DB and *sql.Tx the store needs
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Store renders plans into SQL for one dialect and runs them on a Querier
type Store struct {
	db      Querier
	dialect Dialect
	logger  *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for statement tracing
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store
func New(db Querier, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the store's dialect
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Prepare renders plan into a single SELECT statement
func (s *Store) Prepare(plan *query.Plan) (query.Statement, error) {
	r := newRenderer(s.dialect)
	text, err := r.render(plan)
	if err != nil {
		return nil, err
	}

	targets := make([][]step, len(plan.Columns))
	for i, col := range plan.Columns {
		chain := col.Relation.Chain()
		path := make([]step, 0, len(chain)+1)
		for _, rel := range chain {
			path = append(path, step{name: rel.Navigation.Name, collection: rel.IsCollection()})
		}
		path = append(path, step{name: col.Property.Name})
		targets[i] = path
	}

	return &Statement{
		store:   s,
		sql:     text,
		args:    r.args,
		targets: targets,
	}, nil
}

// step is one segment of the record path a column value is stored under
type step struct {
	name       string
	collection bool
}

// Statement is a rendered SELECT bound to its store
type Statement struct {
	store   *Store
	sql     string
	args    []interface{}
	targets [][]step
}

// SQL returns the statement text
func (st *Statement) SQL() string {
	return st.sql
}

// Args returns the bind arguments in placeholder order
func (st *Statement) Args() []interface{} {
	return st.args
}

// String returns the statement text
func (st *Statement) String() string {
	return st.sql
}

// Query runs the statement and returns one record per result row. Rows are
// never grouped: every collection in a record holds exactly one element.
func (st *Statement) Query(ctx context.Context) ([]query.Record, error) {
	logger := st.store.logger
	start := time.Now()
	logger.Debug("executing statement",
		zap.String("dialect", st.store.dialect.Name()),
		zap.String("sql", st.sql),
		zap.Int("args", len(st.args)))

	rows, err := st.store.db.QueryContext(ctx, st.sql, st.args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	records := []query.Record{}
	for rows.Next() {
		values := make([]interface{}, len(st.targets))
		ptrs := make([]interface{}, len(st.targets))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, ConvertDBError(err)
		}
		records = append(records, st.reshape(values))
	}
	if err := rows.Err(); err != nil {
		return nil, ConvertDBError(err)
	}

	logger.Debug("statement finished",
		zap.Int("rows", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return records, nil
}

// reshape nests one row of column values along their record paths
func (st *Statement) reshape(values []interface{}) query.Record {
	rec := query.Record{}
	for i, path := range st.targets {
		cur := rec
		for _, s := range path[:len(path)-1] {
			cur = descend(cur, s)
		}
		cur[path[len(path)-1].name] = normalize(values[i])
	}
	return rec
}

func descend(rec query.Record, s step) query.Record {
	if s.collection {
		if elems, ok := rec[s.name].([]query.Record); ok {
			return elems[0]
		}
		sub := query.Record{}
		rec[s.name] = []query.Record{sub}
		return sub
	}
	if sub, ok := rec[s.name].(query.Record); ok {
		return sub
	}
	sub := query.Record{}
	rec[s.name] = sub
	return sub
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
