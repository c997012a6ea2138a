// Package engine is the boundary of flatquery: it validates requests, runs
// them through parsing, composition, execution and flattening, and reports
// every failure as a classified error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/orm/fieldspec"
	"github.com/conduit-lang/flatquery/internal/orm/flatten"
	"github.com/conduit-lang/flatquery/internal/orm/query"
	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// MaxFirst is the largest row limit a request may ask for; larger values
// are clamped
const MaxFirst = 1000

const (
	outcomeOK     = "ok"
	unknownEntity = "_unknown"
)

// Engine executes requests against one registry and store. It is safe for
// concurrent use.
type Engine struct {
	registry     *schema.Registry
	parser       *fieldspec.Parser
	composer     *query.Composer
	logger       *zap.Logger
	metrics      *Metrics
	diagnostics  bool
	defaultDepth int
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its stages
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records every query in m
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDiagnostics controls whether results carry clause text
func WithDiagnostics(enabled bool) Option {
	return func(e *Engine) {
		e.diagnostics = enabled
	}
}

// WithDefaultDepth sets the depth used when a request has none. The value is
// clamped to the supported range.
func WithDefaultDepth(depth int) Option {
	return func(e *Engine) {
		e.defaultDepth = fieldspec.ClampDepth(depth)
	}
}

// New creates an engine. Every declared default filter and sort is checked
// against the registry up front.
func New(registry *schema.Registry, store query.Store, opts ...Option) (*Engine, error) {
	if registry == nil || store == nil {
		return nil, errors.New("engine requires a registry and a store")
	}
	e := &Engine{
		registry:     registry,
		logger:       zap.NewNop(),
		diagnostics:  true,
		defaultDepth: fieldspec.DefaultDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.parser = fieldspec.NewParser(registry, fieldspec.WithLogger(e.logger))
	e.composer = query.NewComposer(registry, store, query.WithLogger(e.logger))

	if err := e.composer.ValidateDefaults(); err != nil {
		return nil, fmt.Errorf("invalid metadata defaults: %w", err)
	}
	return e, nil
}

// Registry returns the registry the engine serves
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Execute runs req. Failures are returned as *Error; a panic in any stage is
// recovered and reported as KindUnexpected.
func (e *Engine) Execute(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	label := e.entityLabel(req.Entity)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("query panicked",
				zap.String("entity", req.Entity),
				zap.Any("panic", r),
				zap.Stack("stack"))
			res, err = nil, newError(KindUnexpected, fmt.Errorf("panic: %v", r))
		}

		outcome, rows := outcomeOK, 0
		if err != nil {
			outcome = KindOf(err).String()
			e.logFailure(req, err)
		} else {
			rows = res.TotalCount
		}
		e.metrics.observe(label, outcome, time.Since(start), rows)
	}()

	return e.execute(ctx, req)
}

// Run is Execute with every failure folded into Result.Error
func (e *Engine) Run(ctx context.Context, req Request) *Result {
	res, err := e.Execute(ctx, req)
	if err != nil {
		var ee *Error
		if !errors.As(err, &ee) {
			ee = newError(KindUnexpected, err)
		}
		return &Result{Error: ee.Error()}
	}
	return res
}

func (e *Engine) execute(ctx context.Context, req Request) (*Result, error) {
	depth, limit, verr := e.validate(req)
	if verr != nil {
		return nil, verr
	}

	sel, err := e.parser.Parse(req.Entity, req.Fields, depth)
	if err != nil {
		return nil, newError(parseKind(err), err)
	}

	plan, err := e.composer.Compose(sel.Entity, sel, req.Where, req.OrderBy, limit)
	if err != nil {
		return nil, newError(KindPlanComposition, err)
	}

	records, err := plan.Statement.Query(ctx)
	if err != nil {
		return nil, newError(KindStoreExecution, err)
	}

	rows, err := flatten.Flatten(sel, records)
	if err != nil {
		return nil, newError(KindUnexpected, err)
	}

	res := &Result{
		Rows:        rows,
		TotalCount:  len(rows),
		Fields:      sel.ScalarPaths(),
		ActualDepth: sel.ActualDepth,
	}
	if e.diagnostics {
		res.Diagnostics = &Diagnostics{
			Projection: plan.ProjectionClause,
			Filter:     plan.FilterClause,
			Sort:       plan.SortClause,
			Statement:  plan.Statement.String(),
		}
	}

	e.logger.Debug("query executed",
		zap.String("entity", sel.Entity),
		zap.Int("records", len(records)),
		zap.Int("rows", len(rows)),
		zap.Int("actual_depth", sel.ActualDepth))
	return res, nil
}

// validate applies the boundary rules and returns the effective depth and
// row limit (zero for none)
func (e *Engine) validate(req Request) (int, int, *Error) {
	if strings.TrimSpace(req.Entity) == "" {
		return 0, 0, inputErrorf("entity is required")
	}
	hasField := false
	for _, f := range req.Fields {
		if strings.TrimSpace(f) != "" {
			hasField = true
			break
		}
	}
	if !hasField {
		return 0, 0, inputErrorf("at least one field is required")
	}

	depth := e.defaultDepth
	if req.MaxDepth != nil {
		if *req.MaxDepth < fieldspec.MinDepth {
			return 0, 0, inputErrorf("maxDepth must be at least %d, got %d", fieldspec.MinDepth, *req.MaxDepth)
		}
		depth = min(*req.MaxDepth, fieldspec.MaxDepth)
	}

	limit := 0
	if req.First != nil {
		if *req.First < 1 {
			return 0, 0, inputErrorf("first must be at least 1, got %d", *req.First)
		}
		limit = min(*req.First, MaxFirst)
	}
	return depth, limit, nil
}

// parseKind classifies a parser failure by the registry sentinel it wraps
func parseKind(err error) Kind {
	switch {
	case errors.Is(err, schema.ErrUnknownEntity):
		return KindUnknownEntity
	case errors.Is(err, schema.ErrNotANavigation):
		return KindNotANavigation
	case errors.Is(err, schema.ErrUnknownProperty):
		return KindUnknownProperty
	default:
		return KindInputValidation
	}
}

func (e *Engine) entityLabel(name string) string {
	if entity, err := e.registry.Lookup(name); err == nil {
		return entity.Name
	}
	return unknownEntity
}

func (e *Engine) logFailure(req Request, err error) {
	kind := KindOf(err)
	fields := []zap.Field{
		zap.String("entity", req.Entity),
		zap.Strings("fields", req.Fields),
		zap.String("kind", kind.String()),
		zap.Error(errors.Unwrap(err)),
	}
	switch kind {
	case KindStoreExecution, KindUnexpected:
		e.logger.Error("query failed", fields...)
	default:
		e.logger.Info("query rejected", fields...)
	}
}
