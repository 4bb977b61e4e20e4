package engine

import (
	"github.com/relstack-labs/relq/pkg/catalog"
	"github.com/relstack-labs/relq/pkg/optimizer"
	"github.com/relstack-labs/relq/pkg/parser"
	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/source"
)

// sourceCatalog resolves table schemas by asking the registered sources
// in order, default first. Sources that do not implement catalog.Catalog
// are skipped.
type sourceCatalog struct {
	registry *source.Registry
}

func (c sourceCatalog) Resolve(table string) (*plan.Schema, error) {
	names := append([]string{""}, c.registry.Names()...)

	var lastErr error
	for _, name := range names {
		src, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		cat, ok := src.(catalog.Catalog)
		if !ok {
			continue
		}
		schema, err := cat.Resolve(table)
		if err == nil {
			return schema, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, query.NewError(query.KindOptimize, "table %q not found in any source", table)
}

// newReferenceOptimizer builds the in-tree optimizer bound to the
// profile's dialect, so it rejects dialect aggregates it cannot plan with
// their proper names.
func newReferenceOptimizer(cat catalog.Catalog, profile *parser.Profile) query.Optimizer {
	return optimizer.New(cat, optimizer.WithDialect(profile.Dialect))
}
