package schema

import (
	"sort"
)

// Direction is the traversal direction of a navigation
type Direction int

const (
	// PrincipalToDependent walks from the "one" side to its dependents
	PrincipalToDependent Direction = iota
	// DependentToPrincipal walks from a dependent to the entity it references
	DependentToPrincipal
)

// String returns the string representation of the direction
func (d Direction) String() string {
	if d == DependentToPrincipal {
		return "dependent_to_principal"
	}
	return "principal_to_dependent"
}

// Route is a navigation name resolved to the relationship it traverses
type Route struct {
	Name         string
	Relationship *Relationship
	Direction    Direction
	Source       *Entity
	Target       *Entity
}

// Many returns true if the route yields a collection per source row
func (r Route) Many() bool {
	switch r.Relationship.Cardinality {
	case ManyToMany:
		return true
	case OneToMany:
		return r.Direction == PrincipalToDependent
	default:
		return false
	}
}

// FrozenModel is the read-only metadata model. It holds no locks: all state
// is written once by Freeze and never mutated afterwards.
type FrozenModel struct {
	entities      map[string]*Entity
	names         []string
	relationships []*Relationship
	principalOf   map[string][]*Relationship
	routes        map[string]map[string]Route
	graph         *RelationshipGraph
}

func newFrozenModel(
	entities map[string]*Entity,
	rels []*Relationship,
	principalOf map[string][]*Relationship,
	routes map[string]map[string]Route,
) *FrozenModel {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	return &FrozenModel{
		entities:      entities,
		names:         names,
		relationships: rels,
		principalOf:   principalOf,
		routes:        routes,
		graph:         NewRelationshipGraph(entities, rels),
	}
}

// Lookup retrieves an entity by name
func (f *FrozenModel) Lookup(name string) (*Entity, error) {
	entity, ok := f.entities[name]
	if !ok {
		return nil, &ModelError{Kind: ErrNotFound, Entity: name}
	}
	return entity, nil
}

// Entities returns all entities sorted by name, join entities included
func (f *FrozenModel) Entities() []*Entity {
	result := make([]*Entity, len(f.names))
	for i, name := range f.names {
		result[i] = f.entities[name]
	}
	return result
}

// Relationships returns all relationships sorted by principal, dependent and name
func (f *FrozenModel) Relationships() []*Relationship {
	return append([]*Relationship(nil), f.relationships...)
}

// PrincipalOf returns the relationships in which the entity is the principal
func (f *FrozenModel) PrincipalOf(entity string) []*Relationship {
	return append([]*Relationship(nil), f.principalOf[entity]...)
}

// Navigate resolves a navigation name on an entity
func (f *FrozenModel) Navigate(entity, name string) (Route, error) {
	if _, ok := f.entities[entity]; !ok {
		return Route{}, &ModelError{Kind: ErrNotFound, Entity: entity}
	}
	route, ok := f.routes[entity][name]
	if !ok {
		return Route{}, &ModelError{
			Kind:         ErrUnknownRelationship,
			Entity:       entity,
			Relationship: name,
		}
	}
	return route, nil
}

// Routes returns every navigation of an entity sorted by name
func (f *FrozenModel) Routes(entity string) []Route {
	byName := f.routes[entity]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Route, len(names))
	for i, name := range names {
		result[i] = byName[name]
	}
	return result
}

// DependencyOrder returns entity names with principals before their dependents
func (f *FrozenModel) DependencyOrder() ([]string, error) {
	return f.graph.TopologicalSort()
}

// Cycles returns the dependency cycles between entities, ignoring self references
func (f *FrozenModel) Cycles() [][]string {
	return f.graph.DetectCycles()
}

// Graph returns the dependency graph of the model
func (f *FrozenModel) Graph() *RelationshipGraph {
	return f.graph
}
