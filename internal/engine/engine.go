// Package engine wires the query pipeline together: parse, optimize,
// execute. It owns the long-lived collaborators (parse profile, catalog,
// source registry, plan cache, history store) and hands out cursors.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/relstack-labs/relq/internal/state"
	"github.com/relstack-labs/relq/pkg/ast"
	"github.com/relstack-labs/relq/pkg/catalog"
	"github.com/relstack-labs/relq/pkg/exec"
	"github.com/relstack-labs/relq/pkg/parser"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/source"
	"golang.org/x/text/language"
)

// defaultPlanCacheSize bounds the number of cached optimized plans.
const defaultPlanCacheSize = 128

// Config holds engine collaborators and settings.
type Config struct {
	// Profile is the parse profile. Required.
	Profile *parser.Profile
	// Catalog resolves table schemas for the optimizer. If nil, sources
	// that implement catalog.Catalog are consulted instead.
	Catalog catalog.Catalog
	// Registry holds the source providers scans read from. Required.
	Registry *source.Registry
	// Optimizer overrides the built-in reference optimizer.
	Optimizer query.Optimizer
	// DefaultSource and Properties seed the framework configuration.
	DefaultSource string
	Properties    map[string]string
	// History, if set, records executed queries. The engine does not
	// take ownership; callers close it.
	History *state.Store
	// PlanCacheSize caps the plan cache. Zero means the default,
	// negative disables caching.
	PlanCacheSize int
	// Collation orders strings in sorts. Zero value compares code points.
	Collation language.Tag
	// Logger is the structured logger (discard if nil).
	Logger *slog.Logger
}

// Engine is the query pipeline front door. Safe for concurrent use:
// distinct queries share no mutable state beyond the internally locked
// plan cache.
type Engine struct {
	profile   *parser.Profile
	optimizer query.Optimizer
	executor  *exec.Executor
	registry  *source.Registry
	history   *state.Store
	cache     *planCache
	fwcfg     *query.FrameworkConfig
	logger    *slog.Logger

	// ownsHistory marks a store opened by FromConfig, which Close must
	// release along with the registry.
	ownsHistory bool
}

// New assembles an engine from the given collaborators.
func New(cfg Config) (*Engine, error) {
	if cfg.Profile == nil {
		return nil, query.NewError(query.KindConfiguration, "engine requires a parse profile")
	}
	if cfg.Registry == nil {
		return nil, query.NewError(query.KindConfiguration, "engine requires a source registry")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fwcfg := &query.FrameworkConfig{
		DefaultSource: cfg.DefaultSource,
		Properties:    cfg.Properties,
	}

	opt := cfg.Optimizer
	if opt == nil {
		cat := cfg.Catalog
		if cat == nil {
			cat = sourceCatalog{registry: cfg.Registry}
		}
		opt = newReferenceOptimizer(cat, cfg.Profile)
	}

	var cache *planCache
	size := cfg.PlanCacheSize
	if size == 0 {
		size = defaultPlanCacheSize
	}
	if size > 0 {
		cache = newPlanCache(size)
	}

	return &Engine{
		profile:   cfg.Profile,
		optimizer: opt,
		executor:  exec.New(cfg.Registry, exec.WithLogger(logger), exec.WithCollation(cfg.Collation)),
		registry:  cfg.Registry,
		history:   cfg.History,
		cache:     cache,
		fwcfg:     fwcfg,
		logger:    logger,
	}, nil
}

// Close releases the source registry, and the history store when the
// engine opened it itself.
func (e *Engine) Close() error {
	err := e.registry.Close()
	if e.ownsHistory && e.history != nil {
		if herr := e.history.Close(); err == nil {
			err = herr
		}
	}
	return err
}

// History returns the attached history store, or nil.
func (e *Engine) History() *state.Store { return e.history }

// Dialect returns the profile's dialect name.
func (e *Engine) Dialect() string { return e.profile.Dialect.Name }

// Properties returns the optimizer properties in effect, read-only.
func (e *Engine) Properties() map[string]string { return e.fwcfg.Properties }

// Sources returns the registered source provider names.
func (e *Engine) Sources() []string { return e.registry.Names() }

// Parse runs only the parse stage.
func (e *Engine) Parse(q query.LogicalQuery) (*ast.SelectStmt, error) {
	return parser.Parse(q, e.profile)
}

// Plan runs the parse and optimize stages, returning the physical plan
// without executing it. Cached plans are shared and must not be mutated.
func (e *Engine) Plan(ctx context.Context, q query.LogicalQuery) (*plan.Plan, error) {
	_, p, err := e.plan(ctx, q, e.logger)
	return p, err
}

// plan parses and optimizes, consulting the cache for SQL-text queries.
// Returns the parsed tree only on a cache miss.
func (e *Engine) plan(ctx context.Context, q query.LogicalQuery, logger *slog.Logger) (*ast.SelectStmt, *plan.Plan, error) {
	var cacheKey string
	var tree *ast.SelectStmt

	switch q.Kind() {
	case query.KindSQL:
		sql, _ := q.Text()
		if e.cache != nil {
			cacheKey = sql
			if p, ok := e.cache.get(cacheKey); ok {
				logger.Debug("plan cache hit")
				return nil, p, nil
			}
		}

		start := time.Now()
		parsed, err := parser.Parse(q, e.profile)
		if err != nil {
			return nil, nil, err
		}
		tree = parsed
		logger.Debug("stage complete", slog.String("stage", "parse"),
			slog.Duration("elapsed", time.Since(start)))

	case query.KindSyntaxTree:
		// Pre-built trees skip the parse stage entirely.
		prebuilt, _ := q.Tree()
		if prebuilt == nil {
			return nil, nil, query.NewError(query.KindUnsupportedQuery,
				"syntax-tree query carries no tree")
		}
		tree = prebuilt

	default:
		return nil, nil, query.NewError(query.KindUnsupportedQuery,
			"unsupported query kind %q", q.Kind())
	}

	start := time.Now()
	p, err := e.optimizer.Optimize(ctx, tree, e.fwcfg)
	if err != nil {
		if _, typed := query.KindOf(err); !typed {
			err = query.WrapError(query.KindOptimize, err, "optimize query")
		}
		return nil, nil, err
	}
	logger.Debug("stage complete", slog.String("stage", "optimize"),
		slog.Duration("elapsed", time.Since(start)))

	if cacheKey != "" {
		e.cache.put(cacheKey, p)
	}
	return tree, p, nil
}

// Query runs the full pipeline and returns a pull cursor over the result.
// The caller owns the cursor and must close it.
func (e *Engine) Query(ctx context.Context, q query.LogicalQuery) (*exec.Cursor, error) {
	id := uuid.New().String()
	logger := e.logger.With(slog.String("query_id", id))

	_, p, err := e.plan(ctx, q, logger)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cur, err := e.executor.Execute(ctx, p, q.Params()...)
	if err != nil {
		return nil, err
	}
	logger.Debug("stage complete", slog.String("stage", "execute"),
		slog.Duration("elapsed", time.Since(start)))
	return cur, nil
}

// Result is a fully drained query result.
type Result struct {
	QueryID  string
	Schema   plan.Schema
	Rows     []plan.Row
	Stats    exec.ResourceStats
	Duration time.Duration
}

// Columns returns the result column names.
func (r *Result) Columns() []string {
	names := make([]string, len(r.Schema.Columns))
	for i, c := range r.Schema.Columns {
		names[i] = c.Name
	}
	return names
}

// Run executes the query and drains the cursor into a materialized
// result, recording the outcome in the history store if one is attached.
func (e *Engine) Run(ctx context.Context, q query.LogicalQuery) (*Result, error) {
	id := uuid.New().String()
	start := time.Now().UTC()

	res, err := e.run(ctx, id, q)
	e.recordHistory(ctx, id, q, res, start, err)
	return res, err
}

func (e *Engine) run(ctx context.Context, id string, q query.LogicalQuery) (*Result, error) {
	logger := e.logger.With(slog.String("query_id", id))
	start := time.Now()

	_, p, err := e.plan(ctx, q, logger)
	if err != nil {
		return nil, err
	}

	cur, err := e.executor.Execute(ctx, p, q.Params()...)
	if err != nil {
		return nil, err
	}

	rows, err := exec.Collect(cur)
	if err != nil {
		return nil, err
	}

	res := &Result{
		QueryID:  id,
		Schema:   cur.Schema(),
		Rows:     rows,
		Stats:    cur.Stats(),
		Duration: time.Since(start),
	}
	logger.Debug("query complete",
		slog.Int("rows", len(rows)),
		slog.Duration("elapsed", res.Duration))
	return res, nil
}

func (e *Engine) recordHistory(ctx context.Context, id string, q query.LogicalQuery, res *Result, start time.Time, runErr error) {
	if e.history == nil {
		return
	}

	sql, _ := q.Text()
	rec := &state.Record{
		ID:        id,
		SQL:       sql,
		Dialect:   e.profile.Dialect.Name,
		Status:    state.StatusOK,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if runErr != nil {
		rec.Status = state.StatusError
		rec.Error = runErr.Error()
	} else {
		rec.Rows = int64(len(res.Rows))
	}

	if err := e.history.Record(ctx, rec); err != nil {
		e.logger.Warn("recording query history failed", slog.Any("error", err))
	}
}
