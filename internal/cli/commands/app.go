package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/cli/config"
	"github.com/conduit-lang/flatquery/internal/cli/ui"
	"github.com/conduit-lang/flatquery/internal/domain"
	"github.com/conduit-lang/flatquery/internal/engine"
	"github.com/conduit-lang/flatquery/internal/logging"
	"github.com/conduit-lang/flatquery/internal/orm/codegen"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
	"github.com/conduit-lang/flatquery/internal/orm/sqlstore"
)

// app carries the state shared by every subcommand
type app struct {
	configPath   string
	noColor      bool
	createSchema bool

	cfg    *config.Config
	logger *zap.Logger
}

// session is an open engine plus the resources behind it
type session struct {
	engine   *engine.Engine
	registry *schema.Registry
	db       *sql.DB
}

func (s *session) Close() error {
	return s.db.Close()
}

// load reads the configuration and builds the logger once
func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// registry returns the configured catalogue, or the built-in sample domain
func (a *app) registry() (*schema.Registry, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	if a.cfg.Catalog.File != "" {
		return schema.LoadFile(a.cfg.Catalog.File)
	}
	return domain.Registry()
}

// declarations returns the entity declarations behind registry
func (a *app) declarations() ([]schema.EntityDecl, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	if a.cfg.Catalog.File == "" {
		return domain.Declarations(), nil
	}
	data, err := os.ReadFile(a.cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", a.cfg.Catalog.File, err)
	}
	return schema.ParseCatalog(data)
}

// open connects to the configured database and builds an engine over it
func (a *app) open(ctx context.Context, opts ...engine.Option) (*session, error) {
	registry, err := a.registry()
	if err != nil {
		return nil, err
	}

	db, dialect, err := sqlstore.Open(ctx, a.cfg.Database.Driver, a.cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}

	if a.createSchema {
		ddl, err := codegen.NewDDLGenerator(dialect).GenerateSchema(registry)
		if err == nil {
			_, err = db.ExecContext(ctx, ddl)
		}
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
		a.logger.Debug("schema created", zap.String("dialect", dialect.Name()))
	}

	opts = append([]engine.Option{
		engine.WithLogger(a.logger),
		engine.WithDefaultDepth(a.cfg.Query.DefaultMaxDepth),
		engine.WithDiagnostics(a.cfg.Query.Diagnostics),
	}, opts...)
	store := sqlstore.New(db, dialect, sqlstore.WithLogger(a.logger))
	eng, err := engine.New(registry, store, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &session{engine: eng, registry: registry, db: db}, nil
}

// reportQueryError prints a failed request with suggestions for misspelt
// entity or member names
func (a *app) reportQueryError(w io.Writer, registry *schema.Registry, req engine.Request, err error) error {
	kind := engine.KindOf(err)

	var suggestions []string
	switch kind {
	case engine.KindUnknownEntity:
		suggestions = ui.FindSimilar(req.Entity, registry.Names(), nil)
	case engine.KindUnknownProperty:
		if entity, lerr := registry.Lookup(req.Entity); lerr == nil {
			suggestions = suggestMembers(entity, req.Fields)
		}
	}

	fmt.Fprint(w, ui.QueryError(kind.String(), err.Error(), suggestions, a.noColor))
	return errReported
}

// suggestMembers offers the closest member name for the first segment of
// every field that does not name a member of entity
func suggestMembers(entity *schema.Entity, fields []string) []string {
	members := make([]string, 0, len(entity.Scalars)+len(entity.Navigations))
	for _, p := range entity.Scalars {
		members = append(members, p.Name)
	}
	for _, n := range entity.Navigations {
		members = append(members, n.Name)
	}

	var out []string
	for _, f := range fields {
		head := strings.SplitN(strings.TrimSpace(f), ".", 2)[0]
		if head == "" || head == "*" || entity.HasProperty(head) {
			continue
		}
		if match := ui.FindBestMatch(head, members, nil); match != "" {
			out = append(out, match)
		}
	}
	return out
}
