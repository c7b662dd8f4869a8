// Package deletion decides what deleting a principal row implies for the
// rows that reference it.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// ErrNilKey is returned when a delete is checked without a key
var ErrNilKey = errors.New("key cannot be nil")

// Kind is the outcome of a delete check
type Kind int

const (
	// Proceed means no dependent row is affected
	Proceed Kind = iota
	// Block means a restrict relationship still has referencing rows
	Block
	// Cascade means dependent rows must be deleted first
	Cascade
	// NullifyThenProceed means dependent foreign keys must be set to null first
	NullifyThenProceed
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Block:
		return "block"
	case Cascade:
		return "cascade"
	case NullifyThenProceed:
		return "nullify_then_proceed"
	default:
		return "unknown"
	}
}

// Reference is a dependent row that points at a principal key
type Reference struct {
	// Key is the dependent row's primary key
	Key any
	// Principal is the referenced principal key
	Principal any
}

// ReferenceSource finds the dependent rows of a relationship whose foreign
// key is one of keys
type ReferenceSource interface {
	Referencing(ctx context.Context, rel *schema.Relationship, keys []any) ([]Reference, error)
}

// Row identifies a row by entity and primary key
type Row struct {
	Entity string
	Key    any
}

// Update sets a dependent row's foreign key to null
type Update struct {
	Row
	Property string
}

// Action is the result of a delete check
type Action struct {
	Kind   Kind
	Target Row

	// Deletes lists dependent rows to delete, deepest first. The target
	// itself is not included.
	Deletes []Row
	Updates []Update

	// BlockedBy and BlockingKeys are set for Block
	BlockedBy    *schema.Relationship
	BlockingKeys []any
}

// String describes the action
func (a *Action) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("delete %s %v: %s\n", a.Target.Entity, a.Target.Key, a.Kind))

	if a.Kind == Block {
		b.WriteString(fmt.Sprintf("  blocked by %s\n", a.BlockedBy))
		b.WriteString(fmt.Sprintf("  referencing %s keys: %v\n", a.BlockedBy.Dependent.Name, a.BlockingKeys))
		return b.String()
	}

	for _, row := range a.Updates {
		b.WriteString(fmt.Sprintf("  set %s.%s = null where key = %v\n", row.Entity, row.Property, row.Key))
	}
	for _, row := range a.Deletes {
		b.WriteString(fmt.Sprintf("  delete %s %v\n", row.Entity, row.Key))
	}
	return b.String()
}

// Engine evaluates delete behavior against a frozen model. It performs no
// I/O of its own and may be shared between goroutines.
type Engine struct {
	model  *schema.FrozenModel
	logger *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a delete-behavior engine for model
func NewEngine(model *schema.FrozenModel, opts ...Option) *Engine {
	e := &Engine{
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type batch struct {
	entity string
	keys   []any
}

// restriction is a restrict relationship with the rows found referencing
// rows of the delete set
type restriction struct {
	rel  *schema.Relationship
	refs []Reference
}

// closure is the set of rows a delete reaches through cascades. Node 0 is
// the target. Edges run from a principal row to the rows referencing it.
type closure struct {
	rows     []Row
	depth    []int
	index    map[string]int
	children map[int][]int
}

func newClosure(target Row) *closure {
	return &closure{
		rows:     []Row{target},
		depth:    []int{0},
		index:    map[string]int{rowID(target): 0},
		children: make(map[int][]int),
	}
}

func (c *closure) contains(row Row) bool {
	_, ok := c.index[rowID(row)]
	return ok
}

// add inserts row at depth and reports whether it was new
func (c *closure) add(row Row, depth int) bool {
	if c.contains(row) {
		return false
	}
	c.index[rowID(row)] = len(c.rows)
	c.rows = append(c.rows, row)
	c.depth = append(c.depth, depth)
	return true
}

// link records that dependent references principal. Links to rows outside
// the closure and links pointing at the target are ignored.
func (c *closure) link(principal, dependent Row) {
	from, ok := c.index[rowID(principal)]
	if !ok {
		return
	}
	to, ok := c.index[rowID(dependent)]
	if !ok || to == 0 || from == to {
		return
	}
	c.children[from] = append(c.children[from], to)
}

// ordered returns the rows of the closure other than the target so that
// every row comes before the rows it references. A row's level is the
// longest reference chain from the target; rows are listed deepest level
// first and in discovery order within a level. Reference cycles are cut
// where they are first closed.
func (c *closure) ordered() []Row {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(c.rows))
	post := make([]int, 0, len(c.rows))

	var visit func(n int)
	visit = func(n int) {
		state[n] = visiting
		for _, child := range c.children[n] {
			if state[child] == unvisited {
				visit(child)
			}
		}
		state[n] = done
		post = append(post, n)
	}
	for n := range c.rows {
		if state[n] == unvisited {
			visit(n)
		}
	}

	pos := make([]int, len(c.rows))
	topo := make([]int, len(post))
	for i := range post {
		n := post[len(post)-1-i]
		topo[i] = n
		pos[n] = i
	}

	level := append([]int(nil), c.depth...)
	for _, n := range topo {
		for _, child := range c.children[n] {
			if pos[child] > pos[n] && level[child] < level[n]+1 {
				level[child] = level[n] + 1
			}
		}
	}

	nodes := make([]int, 0, len(c.rows)-1)
	for n := 1; n < len(c.rows); n++ {
		nodes = append(nodes, n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return level[nodes[i]] > level[nodes[j]]
	})

	rows := make([]Row, len(nodes))
	for i, n := range nodes {
		rows[i] = c.rows[n]
	}
	return rows
}

// CheckDelete determines what deleting the row of entity with key implies.
// Cascades are followed first to find every row the delete reaches. Restrict
// relationships are then evaluated against that set: a reference from a row
// outside it blocks, and the first blocking relationship stops the check
// with no deletes or updates.
func (e *Engine) CheckDelete(ctx context.Context, entity string, key any, refs ReferenceSource) (*Action, error) {
	if _, err := e.model.Lookup(entity); err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrNilKey
	}

	target := Row{Entity: entity, Key: key}
	action := &Action{Target: target}

	set := newClosure(target)
	var restrictions []restriction
	var updates []Update

	frontier := []batch{{entity: entity, keys: []any{key}}}
	for depth := 1; len(frontier) > 0; depth++ {
		next := newBatches()

		for _, current := range frontier {
			for _, rel := range e.dependentRelationships(current.entity) {
				found, err := referencing(ctx, refs, rel, current.keys)
				if err != nil {
					return nil, err
				}

				switch rel.OnDelete {
				case schema.DeleteRestrict:
					if len(found) > 0 {
						restrictions = append(restrictions, restriction{rel: rel, refs: found})
					}
				case schema.DeleteCascade:
					for _, ref := range found {
						row := Row{Entity: rel.Dependent.Name, Key: ref.Key}
						if set.add(row, depth) {
							next.add(row.Entity, row.Key)
						}
						set.link(Row{Entity: rel.Principal.Name, Key: ref.Principal}, row)
					}
				case schema.DeleteSetNull:
					for _, ref := range found {
						updates = append(updates, Update{
							Row:      Row{Entity: rel.Dependent.Name, Key: ref.Key},
							Property: rel.ForeignKey.Name,
						})
					}
				}
			}
		}

		frontier = next.list()
	}

	for _, r := range restrictions {
		var blocking []any
		for _, ref := range r.refs {
			row := Row{Entity: r.rel.Dependent.Name, Key: ref.Key}
			if !set.contains(row) {
				blocking = append(blocking, ref.Key)
				continue
			}
			set.link(Row{Entity: r.rel.Principal.Name, Key: ref.Principal}, row)
		}
		if len(blocking) > 0 {
			action.Kind = Block
			action.BlockedBy = r.rel
			action.BlockingKeys = blocking
			e.logger.Debug("delete blocked",
				zap.String("entity", entity),
				zap.String("relationship", r.rel.String()),
				zap.Int("references", len(blocking)))
			return action, nil
		}
	}

	action.Deletes = set.ordered()

	seen := make(map[string]bool)
	for _, u := range updates {
		id := rowID(u.Row) + "." + u.Property
		if set.contains(u.Row) || seen[id] {
			continue
		}
		seen[id] = true
		action.Updates = append(action.Updates, u)
	}

	switch {
	case len(action.Deletes) > 0:
		action.Kind = Cascade
	case len(action.Updates) > 0:
		action.Kind = NullifyThenProceed
	default:
		action.Kind = Proceed
	}

	e.logger.Debug("delete checked",
		zap.String("entity", entity),
		zap.String("kind", action.Kind.String()),
		zap.Int("deletes", len(action.Deletes)),
		zap.Int("updates", len(action.Updates)))

	return action, nil
}

// dependentRelationships returns the relationships in which entity is the
// principal. Many-to-many links are covered by their join relationships.
func (e *Engine) dependentRelationships(entity string) []*schema.Relationship {
	var rels []*schema.Relationship
	for _, rel := range e.model.PrincipalOf(entity) {
		if rel.Cardinality != schema.ManyToMany {
			rels = append(rels, rel)
		}
	}
	return rels
}

func referencing(ctx context.Context, refs ReferenceSource, rel *schema.Relationship, keys []any) ([]Reference, error) {
	found, err := refs.Referencing(ctx, rel, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load references for %s: %w", rel, err)
	}
	return found, nil
}

// batches groups keys by entity, keeping first-seen entity order
type batches struct {
	order []string
	keys  map[string][]any
}

func newBatches() *batches {
	return &batches{keys: make(map[string][]any)}
}

func (b *batches) add(entity string, key any) {
	if _, ok := b.keys[entity]; !ok {
		b.order = append(b.order, entity)
	}
	b.keys[entity] = append(b.keys[entity], key)
}

func (b *batches) list() []batch {
	result := make([]batch, len(b.order))
	for i, entity := range b.order {
		result[i] = batch{entity: entity, keys: b.keys[entity]}
	}
	return result
}

func rowID(row Row) string {
	return row.Entity + "|" + KeyString(row.Key)
}

// KeyString converts a key to a comparable string
func KeyString(key any) string {
	switch v := key.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case uint:
		return fmt.Sprintf("%d", v)
	case uint64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
