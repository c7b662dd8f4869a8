// Package schema provides the metadata model of the ORM core. It defines
// entity descriptors, their properties and navigations, and the
// relationships resolved between them. A Model is built once at startup and
// frozen into a read-only FrozenModel shared by planners and delete checks.
package schema

import (
	"fmt"
	"strings"
)

// PrimitiveType represents the semantic type of a property
type PrimitiveType int

const (
	// Text types
	TypeString PrimitiveType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate

	// Unique identifiers
	TypeUUID

	// JSON
	TypeJSON
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "uuid":
		return TypeUUID, nil
	case "json":
		return TypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// IsInteger returns true for integer-valued types
func (p PrimitiveType) IsInteger() bool {
	return p == TypeInt || p == TypeBigInt
}

// Property describes a single scalar property of an entity
type Property struct {
	Name       string
	Type       PrimitiveType
	Nullable   bool
	PrimaryKey bool
	Unique     bool

	// ForeignKey is set by the relationship resolver
	ForeignKey bool
}

// String renders the property as "Name type!" or "Name type?"
func (p Property) String() string {
	marker := "!"
	if p.Nullable {
		marker = "?"
	}
	s := fmt.Sprintf("%s %s%s", p.Name, p.Type, marker)
	if p.PrimaryKey {
		s += " @primary"
	}
	if p.Unique {
		s += " @unique"
	}
	if p.ForeignKey {
		s += " @fk"
	}
	return s
}

// Navigation is a declared, named pointer from one entity to another.
// Collection navigations point at many target rows.
type Navigation struct {
	Name       string
	Target     string
	Collection bool
}

// EntitySpec is the registration input for an entity type
type EntitySpec struct {
	Name        string
	TableName   string
	Properties  []Property
	Navigations []Navigation
}

// Entity describes a registered entity type. Entities are read-only once
// the owning model is frozen.
type Entity struct {
	Name        string
	TableName   string
	Properties  []Property
	Navigations []Navigation

	// Relationships holds every relationship this entity takes part in,
	// on either side. Populated by Freeze.
	Relationships []*Relationship

	// Synthesized marks join entities created for many-to-many relationships
	Synthesized bool

	index map[string]int
}

func newEntity(spec EntitySpec) *Entity {
	e := &Entity{
		Name:        spec.Name,
		TableName:   spec.TableName,
		Properties:  append([]Property(nil), spec.Properties...),
		Navigations: append([]Navigation(nil), spec.Navigations...),
	}
	if e.TableName == "" {
		e.TableName = TableNameFor(spec.Name)
	}
	e.reindex()
	return e
}

// NewJoinEntity builds the join entity of a many-to-many relationship. It is
// registered by Freeze together with the relationship that owns it.
func NewJoinEntity(spec EntitySpec) *Entity {
	e := newEntity(spec)
	e.Synthesized = true
	return e
}

func (e *Entity) reindex() {
	e.index = make(map[string]int, len(e.Properties))
	for i, p := range e.Properties {
		e.index[p.Name] = i
	}
}

// Property returns the property with the given (case-sensitive) name
func (e *Entity) Property(name string) (*Property, bool) {
	i, ok := e.index[name]
	if !ok {
		return nil, false
	}
	return &e.Properties[i], true
}

// HasProperty returns true if the entity declares the property
func (e *Entity) HasProperty(name string) bool {
	_, ok := e.index[name]
	return ok
}

// PrimaryKey returns the primary key property
func (e *Entity) PrimaryKey() *Property {
	for i := range e.Properties {
		if e.Properties[i].PrimaryKey {
			return &e.Properties[i]
		}
	}
	return nil
}

// PropertyNames returns all property names in declaration order
func (e *Entity) PropertyNames() []string {
	names := make([]string, len(e.Properties))
	for i, p := range e.Properties {
		names[i] = p.Name
	}
	return names
}

// NavigationTo returns the first declared navigation targeting the named entity
func (e *Entity) NavigationTo(target string, collection bool) (Navigation, bool) {
	for _, nav := range e.Navigations {
		if nav.Target == target && nav.Collection == collection {
			return nav, true
		}
	}
	return Navigation{}, false
}

// Cardinality represents relationship multiplicity
type Cardinality int

const (
	OneToMany Cardinality = iota
	OneToOne
	ManyToMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case OneToMany:
		return "one_to_many"
	case OneToOne:
		return "one_to_one"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ParseCardinality converts a string to a Cardinality
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "one_to_many":
		return OneToMany, nil
	case "one_to_one":
		return OneToOne, nil
	case "many_to_many":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown cardinality: %s", s)
	}
}

// DeleteBehavior is the action taken on dependents when a principal is deleted
type DeleteBehavior int

const (
	DeleteRestrict DeleteBehavior = iota
	DeleteCascade
	DeleteSetNull
)

// String returns the string representation of the delete behavior
func (d DeleteBehavior) String() string {
	switch d {
	case DeleteRestrict:
		return "restrict"
	case DeleteCascade:
		return "cascade"
	case DeleteSetNull:
		return "set_null"
	default:
		return "unknown"
	}
}

// ParseDeleteBehavior converts a string to a DeleteBehavior
func ParseDeleteBehavior(s string) (DeleteBehavior, error) {
	switch s {
	case "restrict":
		return DeleteRestrict, nil
	case "cascade":
		return DeleteCascade, nil
	case "set_null":
		return DeleteSetNull, nil
	default:
		return 0, fmt.Errorf("unknown delete behavior: %s", s)
	}
}

// Relationship links a principal entity to a dependent entity
type Relationship struct {
	// Name is the navigation on the principal, InverseName the one on the dependent
	Name        string
	InverseName string

	Cardinality Cardinality
	Principal   *Entity
	Dependent   *Entity

	// ForeignKey lives on the dependent. Nil for many-to-many.
	ForeignKey *Property
	OnDelete   DeleteBehavior

	// Join is the synthesized join entity of a many-to-many relationship.
	// JoinPrincipalKey references the principal, JoinDependentKey the dependent.
	Join             *Entity
	JoinPrincipalKey *Property
	JoinDependentKey *Property

	// Convention is true when no explicit configuration contributed
	Convention bool
}

// RelationshipKey identifies a relationship within a model
type RelationshipKey struct {
	Dependent  string
	Principal  string
	ForeignKey string
}

// Key returns the (dependent, principal, foreign key) triple. Many-to-many
// relationships are keyed by their join entity, which does not depend on
// the order the two sides were resolved in.
func (r *Relationship) Key() RelationshipKey {
	if r.Cardinality == ManyToMany && r.Join != nil {
		return RelationshipKey{Dependent: r.Join.Name, Principal: r.Join.Name}
	}
	key := RelationshipKey{}
	if r.Dependent != nil {
		key.Dependent = r.Dependent.Name
	}
	if r.Principal != nil {
		key.Principal = r.Principal.Name
	}
	if r.ForeignKey != nil {
		key.ForeignKey = r.ForeignKey.Name
	}
	return key
}

// Required returns true if every dependent must reference a principal
func (r *Relationship) Required() bool {
	return r.ForeignKey != nil && !r.ForeignKey.Nullable
}

// SelfReferencing returns true if principal and dependent are the same entity
func (r *Relationship) SelfReferencing() bool {
	return r.Principal != nil && r.Principal == r.Dependent
}

// String returns a one-line description of the relationship
func (r *Relationship) String() string {
	if r.Cardinality == ManyToMany {
		join := "?"
		if r.Join != nil {
			join = r.Join.Name
		}
		return fmt.Sprintf("%s.%s <-> %s.%s (%s via %s)",
			r.Principal.Name, r.Name, r.Dependent.Name, r.InverseName, r.Cardinality, join)
	}
	fk := "?"
	if r.ForeignKey != nil {
		fk = r.ForeignKey.Name
	}
	return fmt.Sprintf("%s.%s -> %s (%s, on delete %s)",
		r.Dependent.Name, fk, r.Principal.Name, r.Cardinality, r.OnDelete)
}
