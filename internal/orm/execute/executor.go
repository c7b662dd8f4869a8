// Package execute runs fetch plans against a row source and stitches the
// results into nested records.
package execute

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/projection"
)

// ParentKeyColumn carries the matched parent key on rows of many-to-many
// steps, which have no column of their own holding it
const ParentKeyColumn = "__parent_key"

// Record is one fetched row keyed by property name. Navigations hold a
// Record or a []Record.
type Record map[string]interface{}

// Source fetches the rows of plan steps
type Source interface {
	// FetchRoot fetches the root step, restricted to keys unless keys is empty
	FetchRoot(ctx context.Context, step *projection.FetchStep, keys []interface{}) ([]Record, error)

	// FetchBatch fetches the rows of a child step matching any of the parent
	// keys in a single call
	FetchBatch(ctx context.Context, step *projection.FetchStep, parentKeys []interface{}) ([]Record, error)
}

// Executor runs fetch plans
type Executor struct {
	logger       *zap.Logger
	keepImplicit bool
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the executor logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithImplicitKeys keeps the keys the planner added for stitching in the results
func WithImplicitKeys(keep bool) Option {
	return func(e *Executor) {
		e.keepImplicit = keep
	}
}

// NewExecutor creates an executor
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes plan with one source call per step. Each child step is
// fed the distinct parent keys of the rows its parent step returned.
func (e *Executor) Run(ctx context.Context, plan *projection.FetchPlan, source Source, rootKeys ...interface{}) ([]Record, error) {
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("fetch plan has no steps")
	}

	results := make([][]Record, len(plan.Steps))

	root, err := source.FetchRoot(ctx, plan.Steps[0], rootKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", plan.Root.Name, err)
	}
	results[0] = root

	for _, step := range plan.Steps[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parents := results[step.Parent]
		keys, err := distinctKeys(parents, step.ParentKey)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Path, err)
		}

		rows, err := source.FetchBatch(ctx, step, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", step.Path, err)
		}
		results[step.Index] = rows

		if err := stitch(parents, rows, step); err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Path, err)
		}

		e.logger.Debug("fetch step executed",
			zap.String("path", step.Path),
			zap.Int("parent_keys", len(keys)),
			zap.Int("rows", len(rows)))
	}

	for _, step := range plan.Steps {
		for _, row := range results[step.Index] {
			delete(row, ParentKeyColumn)
			if e.keepImplicit {
				continue
			}
			for _, name := range step.Implicit {
				delete(row, name)
			}
		}
	}

	if root == nil {
		root = []Record{}
	}
	return root, nil
}

// distinctKeys collects the non-null values of key in first-seen order
func distinctKeys(rows []Record, key string) ([]interface{}, error) {
	seen := make(map[string]bool, len(rows))
	var keys []interface{}
	for _, row := range rows {
		v, ok := row[key]
		if !ok {
			return nil, fmt.Errorf("%w: rows have no %s column", ErrInvalidKey, key)
		}
		if v == nil {
			continue
		}
		id := deletion.KeyString(v)
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, v)
	}
	return keys, nil
}

// stitch attaches child rows to their parents under the step's navigation
// name. Collections are never nil.
func stitch(parents, children []Record, step *projection.FetchStep) error {
	match := step.MatchKey
	if step.Join != nil {
		match = ParentKeyColumn
	}

	grouped := make(map[string][]Record)
	for _, child := range children {
		v, ok := child[match]
		if !ok || v == nil {
			return fmt.Errorf("%w: row of %s has no %s", ErrInvalidKey, step.Entity.Name, match)
		}
		id := deletion.KeyString(v)
		grouped[id] = append(grouped[id], child)
	}

	name := step.Name()
	for _, parent := range parents {
		var related []Record
		if v := parent[step.ParentKey]; v != nil {
			related = grouped[deletion.KeyString(v)]
		}

		if step.Many {
			if related == nil {
				related = []Record{}
			}
			parent[name] = related
			continue
		}

		if len(related) > 0 {
			parent[name] = related[0]
		} else {
			parent[name] = nil
		}
	}
	return nil
}
