package schema

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Model collects entity registrations and resolved relationships during the
// startup build phase. Freeze turns it into a read-only FrozenModel.
type Model struct {
	entities      map[string]*Entity
	order         []string
	relationships map[RelationshipKey]*Relationship
	relOrder      []RelationshipKey
	validator     *SchemaValidator
	frozen        *FrozenModel
	logger        *zap.Logger
	mu            sync.Mutex
}

// ModelOption configures a Model
type ModelOption func(*Model)

// WithLogger sets the logger used during the build phase
func WithLogger(logger *zap.Logger) ModelOption {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewModel creates an empty model
func NewModel(opts ...ModelOption) *Model {
	m := &Model{
		entities:      make(map[string]*Entity),
		relationships: make(map[RelationshipKey]*Relationship),
		validator:     NewSchemaValidator(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register registers a new entity type
func (m *Model) Register(spec EntitySpec) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen != nil {
		return nil, &ModelError{Kind: ErrModelFrozen, Entity: spec.Name, Message: "cannot register entities after freeze"}
	}

	if _, exists := m.entities[spec.Name]; exists {
		return nil, &ModelError{
			Kind:    ErrDuplicateEntity,
			Entity:  spec.Name,
			Message: "entity is already registered",
		}
	}

	entity := newEntity(spec)
	if err := m.validator.ValidateStructural(entity); err != nil {
		return nil, err
	}

	m.entities[entity.Name] = entity
	m.order = append(m.order, entity.Name)

	m.logger.Debug("entity registered",
		zap.String("entity", entity.Name),
		zap.String("table", entity.TableName),
		zap.Int("properties", len(entity.Properties)))

	return entity, nil
}

// Lookup retrieves a registered entity by name
func (m *Model) Lookup(name string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entity, exists := m.entities[name]
	if !exists {
		return nil, &ModelError{Kind: ErrNotFound, Entity: name}
	}
	return entity, nil
}

// Entities returns registered entities in registration order
func (m *Model) Entities() []*Entity {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Entity, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, m.entities[name])
	}
	return result
}

// Count returns the number of registered entities
func (m *Model) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

// AddRelationship stores a resolved relationship and marks its foreign key
// property. A relationship with the same key replaces the previous one in
// place.
func (m *Model) AddRelationship(rel *Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen != nil {
		return &ModelError{Kind: ErrModelFrozen, Relationship: rel.Name, Message: "cannot add relationships after freeze"}
	}
	if rel.Principal == nil || rel.Dependent == nil {
		return &ModelError{
			Kind:         ErrUnresolvedRelationship,
			Relationship: rel.Name,
			Message:      "relationship must reference a principal and a dependent entity",
		}
	}

	key := rel.Key()
	if _, exists := m.relationships[key]; exists {
		m.logger.Debug("replacing relationship", zap.String("relationship", rel.String()))
	} else {
		m.relOrder = append(m.relOrder, key)
	}
	m.relationships[key] = rel
	if rel.ForeignKey != nil {
		rel.ForeignKey.ForeignKey = true
	}
	return nil
}

// Relationships returns the relationships added so far, in insertion order
func (m *Model) Relationships() []*Relationship {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Relationship, 0, len(m.relOrder))
	for _, key := range m.relOrder {
		result = append(result, m.relationships[key])
	}
	return result
}

// IsFrozen returns true once Freeze has succeeded
func (m *Model) IsFrozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen != nil
}

// Freeze validates the model and returns its read-only form. It is the
// only synchronization point: the returned FrozenModel may be shared by
// any number of goroutines.
func (m *Model) Freeze() (*FrozenModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen != nil {
		return nil, &ModelError{Kind: ErrModelFrozen, Message: "model was already frozen"}
	}

	entities := make(map[string]*Entity, len(m.entities))
	for name, entity := range m.entities {
		entities[name] = entity
	}

	rels := make([]*Relationship, 0, len(m.relOrder))
	for _, key := range m.relOrder {
		rels = append(rels, m.relationships[key])
	}

	// Join entities are owned by their many-to-many relationship
	for _, rel := range rels {
		if rel.Cardinality != ManyToMany || rel.Join == nil {
			continue
		}
		if existing, ok := entities[rel.Join.Name]; ok && existing != rel.Join {
			return nil, &ModelError{
				Kind:    ErrDuplicateEntity,
				Entity:  rel.Join.Name,
				Message: fmt.Sprintf("join entity of %s collides with a registered entity", rel),
			}
		}
		entities[rel.Join.Name] = rel.Join
	}

	if err := checkReferences(entities, rels); err != nil {
		return nil, err
	}
	if err := checkForeignKeys(rels); err != nil {
		return nil, err
	}

	routes, err := buildRoutes(entities, rels)
	if err != nil {
		return nil, err
	}

	sortRelationships(rels)

	perEntity := make(map[string][]*Relationship, len(entities))
	principalOf := make(map[string][]*Relationship, len(entities))
	for _, rel := range rels {
		principalOf[rel.Principal.Name] = append(principalOf[rel.Principal.Name], rel)
		perEntity[rel.Principal.Name] = append(perEntity[rel.Principal.Name], rel)
		if !rel.SelfReferencing() {
			perEntity[rel.Dependent.Name] = append(perEntity[rel.Dependent.Name], rel)
		}
		if rel.Join != nil {
			perEntity[rel.Join.Name] = append(perEntity[rel.Join.Name], rel)
		}
	}
	for name, entity := range entities {
		entity.Relationships = perEntity[name]
	}

	frozen := newFrozenModel(entities, rels, principalOf, routes)
	m.frozen = frozen

	m.logger.Info("model frozen",
		zap.Int("entities", len(entities)),
		zap.Int("relationships", len(rels)))

	return frozen, nil
}

// checkReferences ensures every relationship and navigation points at a
// registered entity
func checkReferences(entities map[string]*Entity, rels []*Relationship) error {
	for _, rel := range rels {
		for _, side := range []*Entity{rel.Principal, rel.Dependent, rel.Join} {
			if side == nil {
				continue
			}
			if registered, ok := entities[side.Name]; !ok || registered != side {
				return &ModelError{
					Kind:         ErrUnresolvedRelationship,
					Entity:       rel.Dependent.Name,
					Relationship: rel.InverseName,
					Message:      fmt.Sprintf("%s references entity %s which was never registered", rel, side.Name),
				}
			}
		}
		if rel.Cardinality == ManyToMany && rel.Join == nil {
			return &ModelError{
				Kind:         ErrUnresolvedRelationship,
				Entity:       rel.Principal.Name,
				Relationship: rel.Name,
				Message:      "many-to-many relationship has no join entity",
			}
		}
		if rel.Cardinality != ManyToMany && rel.ForeignKey == nil {
			return &ModelError{
				Kind:         ErrUnresolvedRelationship,
				Entity:       rel.Dependent.Name,
				Relationship: rel.InverseName,
				Message:      "relationship has no foreign key",
			}
		}
	}

	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, nav := range entities[name].Navigations {
			if _, ok := entities[nav.Target]; !ok {
				return &ModelError{
					Kind:         ErrUnresolvedRelationship,
					Entity:       name,
					Relationship: nav.Name,
					Message:      fmt.Sprintf("navigation targets unknown entity %s", nav.Target),
				}
			}
		}
	}
	return nil
}

// checkForeignKeys enforces key type agreement and set_null nullability
func checkForeignKeys(rels []*Relationship) error {
	for _, rel := range rels {
		if rel.ForeignKey == nil {
			continue
		}

		pk := rel.Principal.PrimaryKey()
		if pk == nil || pk.Type != rel.ForeignKey.Type {
			pkType := "none"
			if pk != nil {
				pkType = pk.Type.String()
			}
			return &ModelError{
				Kind:     ErrTypeMismatch,
				Entity:   rel.Dependent.Name,
				Property: rel.ForeignKey.Name,
				Message: fmt.Sprintf("%s does not match primary key type %s of %s",
					rel.ForeignKey.Type, pkType, rel.Principal.Name),
			}
		}

		if rel.OnDelete == DeleteSetNull && !rel.ForeignKey.Nullable {
			return &ModelError{
				Kind:     ErrSetNullOnNonNullable,
				Entity:   rel.Dependent.Name,
				Property: rel.ForeignKey.Name,
				Message:  fmt.Sprintf("relationship to %s uses set_null on a required foreign key", rel.Principal.Name),
				Hint:     "Make the foreign key nullable or use cascade/restrict",
			}
		}
	}
	return nil
}

// buildRoutes indexes every navigation name to the relationship it traverses
func buildRoutes(entities map[string]*Entity, rels []*Relationship) (map[string]map[string]Route, error) {
	routes := make(map[string]map[string]Route, len(entities))

	add := func(from *Entity, name string, route Route) error {
		if name == "" {
			return nil
		}
		if from.HasProperty(name) {
			return &ModelError{
				Kind:         ErrNavigationConflict,
				Entity:       from.Name,
				Relationship: name,
				Message:      fmt.Sprintf("navigation of %s shadows a property", route.Relationship),
			}
		}
		if routes[from.Name] == nil {
			routes[from.Name] = make(map[string]Route)
		}
		if existing, taken := routes[from.Name][name]; taken {
			return &ModelError{
				Kind:         ErrNavigationConflict,
				Entity:       from.Name,
				Relationship: name,
				Message:      fmt.Sprintf("claimed by both %s and %s", existing.Relationship, route.Relationship),
				Hint:         "Give one of the relationships an explicit navigation name",
			}
		}
		routes[from.Name][name] = route
		return nil
	}

	for _, rel := range rels {
		forward := Route{
			Name:         rel.Name,
			Relationship: rel,
			Direction:    PrincipalToDependent,
			Source:       rel.Principal,
			Target:       rel.Dependent,
		}
		if err := add(rel.Principal, rel.Name, forward); err != nil {
			return nil, err
		}

		inverse := Route{
			Name:         rel.InverseName,
			Relationship: rel,
			Direction:    DependentToPrincipal,
			Source:       rel.Dependent,
			Target:       rel.Principal,
		}
		if err := add(rel.Dependent, rel.InverseName, inverse); err != nil {
			return nil, err
		}
	}

	// Declared navigations must be backed by a relationship
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entity := entities[name]
		for _, nav := range entity.Navigations {
			route, ok := routes[entity.Name][nav.Name]
			if ok && route.Target.Name == nav.Target && route.Many() == nav.Collection {
				continue
			}
			return nil, &ModelError{
				Kind:         ErrUnresolvedRelationship,
				Entity:       entity.Name,
				Relationship: nav.Name,
				Message:      fmt.Sprintf("navigation to %s is not backed by a relationship", nav.Target),
				Hint:         "Add a foreign key property or configure the relationship explicitly",
			}
		}
	}

	return routes, nil
}

func sortRelationships(rels []*Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.Principal.Name != b.Principal.Name {
			return a.Principal.Name < b.Principal.Name
		}
		if a.Dependent.Name != b.Dependent.Name {
			return a.Dependent.Name < b.Dependent.Name
		}
		return a.Name < b.Name
	})
}
