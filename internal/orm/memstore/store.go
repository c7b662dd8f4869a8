// Package memstore holds entity rows in memory. A Store serves fetch plans
// and delete checks without a database, and counts every call it receives.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/execute"
	"github.com/conduit-lang/ormcore/internal/orm/projection"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

var (
	// ErrDuplicateKey is returned when a row with the same primary key exists
	ErrDuplicateKey = errors.New("duplicate primary key")

	// ErrMissingKey is returned when a row has no primary key value
	ErrMissingKey = errors.New("missing primary key")

	// ErrRowNotFound is returned when no row has the given key
	ErrRowNotFound = errors.New("row not found")

	// ErrBlocked is returned when applying a blocked delete action
	ErrBlocked = errors.New("delete blocked")
)

// Calls counts the calls a Store received
type Calls struct {
	Root        int
	Batch       int
	Referencing int
}

// Total returns the number of calls of every kind
func (c Calls) Total() int {
	return c.Root + c.Batch + c.Referencing
}

type table struct {
	entity *schema.Entity
	rows   map[string]execute.Record
	order  []string
}

// Store is an in-memory row store for a frozen model. It is safe for
// concurrent use.
type Store struct {
	model  *schema.FrozenModel
	logger *zap.Logger

	mu     sync.RWMutex
	tables map[string]*table

	rootCalls  atomic.Int64
	batchCalls atomic.Int64
	refCalls   atomic.Int64
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store for model
func New(model *schema.FrozenModel, opts ...Option) *Store {
	s := &Store{
		model:  model,
		logger: zap.NewNop(),
		tables: make(map[string]*table),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert adds a row. Key values are normalized to the property types.
func (s *Store) Insert(entity string, row execute.Record) error {
	e, err := s.model.Lookup(entity)
	if err != nil {
		return err
	}

	normalized := make(execute.Record, len(e.Properties))
	for name, v := range row {
		prop, ok := e.Property(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", schema.ErrUnknownProperty, entity, name)
		}
		nv, err := normalize(prop, v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", entity, name, err)
		}
		normalized[name] = nv
	}
	for _, prop := range e.Properties {
		if _, ok := normalized[prop.Name]; !ok {
			normalized[prop.Name] = nil
		}
	}

	pk := e.PrimaryKey()
	key := normalized[pk.Name]
	if key == nil {
		return fmt.Errorf("%w: %s.%s", ErrMissingKey, entity, pk.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(e)
	id := deletion.KeyString(key)
	if _, exists := t.rows[id]; exists {
		return fmt.Errorf("%w: %s %v", ErrDuplicateKey, entity, key)
	}
	t.rows[id] = normalized
	t.order = append(t.order, id)
	return nil
}

// Get returns a copy of the row with the given key
func (s *Store) Get(entity string, key any) (execute.Record, bool) {
	e, err := s.model.Lookup(entity)
	if err != nil {
		return nil, false
	}
	id, err := keyID(e.PrimaryKey(), key)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[entity]
	if !ok {
		return nil, false
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return copyRecord(row), true
}

// Count returns the number of rows of entity
func (s *Store) Count(entity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[entity]; ok {
		return len(t.rows)
	}
	return 0
}

// Delete removes the row with the given key
func (s *Store) Delete(entity string, key any) error {
	e, err := s.model.Lookup(entity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(e, key)
}

// Apply carries out a delete action: foreign keys are nulled, dependent
// rows deleted in order, then the target itself is deleted. Every row the
// action names is checked before anything changes, so a stale action fails
// without modifying the store.
func (s *Store) Apply(action *deletion.Action) error {
	if action.Kind == deletion.Block {
		return fmt.Errorf("%w by %s", ErrBlocked, action.BlockedBy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type located struct {
		table *table
		id    string
	}

	nulls := make([]execute.Record, 0, len(action.Updates))
	for _, u := range action.Updates {
		e, err := s.model.Lookup(u.Entity)
		if err != nil {
			return err
		}
		if !e.HasProperty(u.Property) {
			return &schema.ModelError{Kind: schema.ErrUnknownProperty, Entity: e.Name, Property: u.Property}
		}
		row, err := s.row(e, u.Key)
		if err != nil {
			return err
		}
		nulls = append(nulls, row)
	}

	rows := append(append([]deletion.Row(nil), action.Deletes...), action.Target)
	deletes := make([]located, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, d := range rows {
		e, err := s.model.Lookup(d.Entity)
		if err != nil {
			return err
		}
		if _, err := s.row(e, d.Key); err != nil {
			return err
		}
		id, _ := keyID(e.PrimaryKey(), d.Key)
		if seen[e.Name+"|"+id] {
			continue
		}
		seen[e.Name+"|"+id] = true
		deletes = append(deletes, located{table: s.tables[e.Name], id: id})
	}

	for i, row := range nulls {
		row[action.Updates[i].Property] = nil
	}
	for _, d := range deletes {
		d.table.remove(d.id)
	}

	s.logger.Debug("delete applied",
		zap.String("entity", action.Target.Entity),
		zap.Int("updates", len(action.Updates)),
		zap.Int("deletes", len(action.Deletes)))
	return nil
}

// FetchRoot returns the root rows, restricted to keys when given
func (s *Store) FetchRoot(ctx context.Context, step *projection.FetchStep, keys []any) ([]execute.Record, error) {
	s.rootCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var want map[string]bool
	if len(keys) > 0 {
		var err error
		want, err = keySet(step.Entity.PrimaryKey(), keys)
		if err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pk := step.Entity.PrimaryKey().Name
	return s.scan(step.Entity.Name, func(row execute.Record) bool {
		return want == nil || want[deletion.KeyString(row[pk])]
	}, func(row execute.Record) execute.Record {
		return project(row, step.Properties)
	}), nil
}

// FetchBatch returns the rows of a child step matching any parent key.
// Rows reached through a join entity carry the matched parent key in
// execute.ParentKeyColumn, once per parent.
func (s *Store) FetchBatch(ctx context.Context, step *projection.FetchStep, parentKeys []any) ([]execute.Record, error) {
	s.batchCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(parentKeys) == 0 {
		return []execute.Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if step.Join == nil {
		match, _ := step.Entity.Property(step.MatchKey)
		want, err := keySet(match, parentKeys)
		if err != nil {
			return nil, err
		}
		return s.scan(step.Entity.Name, func(row execute.Record) bool {
			return want[deletion.KeyString(row[step.MatchKey])]
		}, func(row execute.Record) execute.Record {
			return project(row, step.Properties)
		}), nil
	}

	match, _ := step.Join.Property(step.MatchKey)
	want, err := keySet(match, parentKeys)
	if err != nil {
		return nil, err
	}

	targets := s.tables[step.Entity.Name]
	results := []execute.Record{}
	for _, link := range s.scan(step.Join.Name, func(row execute.Record) bool {
		return want[deletion.KeyString(row[step.MatchKey])]
	}, copyRecord) {
		if targets == nil {
			break
		}
		target, ok := targets.rows[deletion.KeyString(link[step.JoinTargetKey])]
		if !ok {
			continue
		}
		record := project(target, step.Properties)
		record[execute.ParentKeyColumn] = link[step.MatchKey]
		results = append(results, record)
	}
	return results, nil
}

// Referencing returns the dependent rows of rel whose foreign key is one of keys
func (s *Store) Referencing(ctx context.Context, rel *schema.Relationship, keys []any) ([]deletion.Reference, error) {
	s.refCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rel.ForeignKey == nil {
		return nil, fmt.Errorf("relationship %s has no foreign key", rel)
	}

	want, err := keySet(rel.ForeignKey, keys)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pk := rel.Dependent.PrimaryKey().Name
	fk := rel.ForeignKey.Name

	var refs []deletion.Reference
	if t, ok := s.tables[rel.Dependent.Name]; ok {
		for _, id := range t.order {
			row := t.rows[id]
			if v := row[fk]; v != nil && want[deletion.KeyString(v)] {
				refs = append(refs, deletion.Reference{Key: row[pk], Principal: v})
			}
		}
	}
	return refs, nil
}

// Calls returns the calls received since the last reset
func (s *Store) Calls() Calls {
	return Calls{
		Root:        int(s.rootCalls.Load()),
		Batch:       int(s.batchCalls.Load()),
		Referencing: int(s.refCalls.Load()),
	}
}

// ResetCalls zeroes the call counters
func (s *Store) ResetCalls() {
	s.rootCalls.Store(0)
	s.batchCalls.Store(0)
	s.refCalls.Store(0)
}

// table returns the table of e, creating it. Callers hold the write lock.
func (s *Store) table(e *schema.Entity) *table {
	t, ok := s.tables[e.Name]
	if !ok {
		t = &table{entity: e, rows: make(map[string]execute.Record)}
		s.tables[e.Name] = t
	}
	return t
}

func (s *Store) row(e *schema.Entity, key any) (execute.Record, error) {
	id, err := keyID(e.PrimaryKey(), key)
	if err != nil {
		return nil, err
	}
	if t, ok := s.tables[e.Name]; ok {
		if row, ok := t.rows[id]; ok {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %v", ErrRowNotFound, e.Name, key)
}

func (s *Store) delete(e *schema.Entity, key any) error {
	id, err := keyID(e.PrimaryKey(), key)
	if err != nil {
		return err
	}
	t, ok := s.tables[e.Name]
	if !ok {
		return fmt.Errorf("%w: %s %v", ErrRowNotFound, e.Name, key)
	}
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%w: %s %v", ErrRowNotFound, e.Name, key)
	}
	t.remove(id)
	return nil
}

func (t *table) remove(id string) {
	delete(t.rows, id)
	order := t.order[:0]
	for _, existing := range t.order {
		if existing != id {
			order = append(order, existing)
		}
	}
	t.order = order
}

// scan visits the rows of entity in insertion order and returns the
// converted rows that match. Callers hold a lock.
func (s *Store) scan(entity string, match func(execute.Record) bool, convert func(execute.Record) execute.Record) []execute.Record {
	results := []execute.Record{}
	t, ok := s.tables[entity]
	if !ok {
		return results
	}
	for _, id := range t.order {
		row := t.rows[id]
		if match(row) {
			results = append(results, convert(row))
		}
	}
	return results
}

func project(row execute.Record, properties []string) execute.Record {
	record := make(execute.Record, len(properties)+1)
	for _, p := range properties {
		record[p] = row[p]
	}
	return record
}

func copyRecord(row execute.Record) execute.Record {
	record := make(execute.Record, len(row))
	for k, v := range row {
		record[k] = v
	}
	return record
}
