// Package relationships resolves relationships between registered entities
// from naming conventions and explicit configuration.
package relationships

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// Config overrides conventions field by field. Zero fields keep the
// conventional value.
type Config struct {
	// Name is the navigation on the principal, InverseName the one on the dependent
	Name        string
	InverseName string

	// ForeignKey names a property of the dependent
	ForeignKey string

	OnDelete    *schema.DeleteBehavior
	Cardinality *schema.Cardinality
}

func (c *Config) empty() bool {
	return c.Name == "" && c.InverseName == "" && c.ForeignKey == "" &&
		c.OnDelete == nil && c.Cardinality == nil
}

// Resolver resolves relationships into a model under construction
type Resolver struct {
	model  *schema.Model
	logger *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver that adds relationships to model
func NewResolver(model *schema.Model, opts ...Option) *Resolver {
	r := &Resolver{
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the relationship between dependent and principal and
// adds it to the model. Resolving the same pair and foreign key again
// replaces the earlier relationship. cfg may be nil.
func (r *Resolver) Resolve(dependent, principal *schema.Entity, cfg *Config) (*schema.Relationship, error) {
	if dependent == nil || principal == nil {
		return nil, &schema.ModelError{
			Kind:    schema.ErrUnresolvedRelationship,
			Message: "both sides of a relationship must be registered entities",
		}
	}
	if r.model.IsFrozen() {
		return nil, &schema.ModelError{
			Kind:         schema.ErrModelFrozen,
			Entity:       dependent.Name,
			Relationship: principal.Name,
			Message:      "cannot resolve relationships after freeze",
		}
	}
	if cfg == nil {
		cfg = &Config{}
	}
	convention := cfg.empty()

	if cfg.Cardinality != nil && *cfg.Cardinality == schema.ManyToMany {
		return r.resolveManyToMany(dependent, principal, cfg, convention)
	}

	var fk *schema.Property
	var err error
	if cfg.ForeignKey != "" {
		fk, err = explicitForeignKey(dependent, principal, cfg.ForeignKey)
	} else {
		fk, err = findForeignKey(dependent, principal)
	}
	if err != nil {
		return nil, err
	}

	if fk == nil {
		if dependent == principal && len(selfCollections(dependent)) > 0 ||
			dependent != principal && mutualCollections(dependent, principal) {
			return r.resolveManyToMany(dependent, principal, cfg, convention)
		}
		return nil, &schema.ModelError{
			Kind:         schema.ErrAmbiguousRelationship,
			Entity:       dependent.Name,
			Relationship: principal.Name,
			Message:      fmt.Sprintf("no foreign key to %s and no collection navigations on both sides", principal.Name),
			Hint:         fmt.Sprintf("Add %s%s to %s or configure the relationship explicitly", principal.Name, keySuffix, dependent.Name),
		}
	}

	return r.resolveForeignKey(dependent, principal, fk, cfg, convention)
}

// ResolveAll resolves by convention every relationship the registered
// entities imply and that was not resolved yet: each "...Id" property that
// names a registered entity, and each pair of entities with collection
// navigations toward each other. Entities are visited in name order.
func (r *Resolver) ResolveAll() error {
	if r.model.IsFrozen() {
		return &schema.ModelError{Kind: schema.ErrModelFrozen, Message: "cannot resolve relationships after freeze"}
	}

	entities := sortedByName(r.model.Entities())

	covered := make(map[string]bool)
	linked := make(map[[2]string]bool)
	for _, rel := range r.model.Relationships() {
		cover(covered, linked, rel)
	}

	for _, dependent := range entities {
		for i := range dependent.Properties {
			p := &dependent.Properties[i]
			if covered[dependent.Name+"."+p.Name] {
				continue
			}
			principal := principalFor(p, dependent, entities)
			if principal == nil {
				continue
			}
			if err := checkKeyType(dependent, principal, p); err != nil {
				return err
			}
			rel, err := r.resolveForeignKey(dependent, principal, p, &Config{}, true)
			if err != nil {
				return fmt.Errorf("failed to resolve %s.%s: %w", dependent.Name, p.Name, err)
			}
			cover(covered, linked, rel)
		}
	}

	for i, a := range entities {
		for _, b := range entities[i+1:] {
			if linked[pairKey(a, b)] || !mutualCollections(a, b) {
				continue
			}
			rel, err := r.resolveManyToMany(a, b, &Config{}, true)
			if err != nil {
				return fmt.Errorf("failed to resolve %s <-> %s: %w", a.Name, b.Name, err)
			}
			cover(covered, linked, rel)
		}
	}

	return nil
}

func (r *Resolver) resolveForeignKey(
	dependent, principal *schema.Entity,
	fk *schema.Property,
	cfg *Config,
	convention bool,
) (*schema.Relationship, error) {
	cardinality := schema.OneToMany
	if _, ok := principal.NavigationTo(dependent.Name, true); !ok && (fk.PrimaryKey || fk.Unique) {
		cardinality = schema.OneToOne
	}
	if cfg.Cardinality != nil {
		cardinality = *cfg.Cardinality
	}

	onDelete := schema.DeleteCascade
	if fk.Nullable {
		onDelete = schema.DeleteSetNull
	}
	if cfg.OnDelete != nil {
		onDelete = *cfg.OnDelete
	}

	name := cfg.Name
	if name == "" {
		if nav, ok := principal.NavigationTo(dependent.Name, cardinality == schema.OneToMany); ok {
			name = nav.Name
		} else if cardinality == schema.OneToMany {
			name = schema.Pluralize(dependent.Name)
		} else {
			name = dependent.Name
		}
	}

	inverse := cfg.InverseName
	if inverse == "" {
		if nav, ok := dependent.NavigationTo(principal.Name, false); ok && nav.Name != name {
			inverse = nav.Name
		} else {
			inverse = inverseNameFor(fk)
		}
	}

	rel := &schema.Relationship{
		Name:        name,
		InverseName: inverse,
		Cardinality: cardinality,
		Principal:   principal,
		Dependent:   dependent,
		ForeignKey:  fk,
		OnDelete:    onDelete,
		Convention:  convention,
	}
	if err := r.model.AddRelationship(rel); err != nil {
		return nil, err
	}

	r.logger.Debug("relationship resolved",
		zap.String("relationship", rel.String()),
		zap.Bool("convention", convention))

	return rel, nil
}

// resolveManyToMany synthesizes the join entity of a many-to-many
// relationship together with a cascading one-to-many relationship from
// each side to it
func (r *Resolver) resolveManyToMany(
	dependent, principal *schema.Entity,
	cfg *Config,
	convention bool,
) (*schema.Relationship, error) {
	first, second := orderPair(dependent, principal)
	firstPK, secondPK := first.PrimaryKey(), second.PrimaryKey()
	if firstPK == nil || secondPK == nil {
		return nil, &schema.ModelError{
			Kind:         schema.ErrUnresolvedRelationship,
			Entity:       first.Name,
			Relationship: second.Name,
			Message:      "many-to-many sides must have primary keys",
		}
	}

	self := first == second
	joinName := first.Name + second.Name
	firstKey := first.Name + keySuffix
	secondKey := second.Name + keySuffix
	if self {
		secondKey = "Related" + secondKey
	}

	join := schema.NewJoinEntity(schema.EntitySpec{
		Name: joinName,
		Properties: []schema.Property{
			{Name: "Id", Type: schema.TypeBigInt, PrimaryKey: true},
			{Name: firstKey, Type: firstPK.Type, ForeignKey: true},
			{Name: secondKey, Type: secondPK.Type, ForeignKey: true},
		},
	})
	joinFirst, _ := join.Property(firstKey)
	joinSecond, _ := join.Property(secondKey)

	name, inverse := manyToManyNames(first, second)
	// Explicit names are given from the caller's principal side
	explicitName, explicitInverse := cfg.Name, cfg.InverseName
	if principal != first {
		explicitName, explicitInverse = explicitInverse, explicitName
	}
	if explicitName != "" {
		name = explicitName
	}
	if explicitInverse != "" {
		inverse = explicitInverse
	}

	rel := &schema.Relationship{
		Name:             name,
		InverseName:      inverse,
		Cardinality:      schema.ManyToMany,
		Principal:        first,
		Dependent:        second,
		OnDelete:         schema.DeleteCascade,
		Join:             join,
		JoinPrincipalKey: joinFirst,
		JoinDependentKey: joinSecond,
		Convention:       convention,
	}

	linkName := schema.Pluralize(joinName)
	links := []*schema.Relationship{
		joinLink(first, join, joinFirst, linkName, convention),
		joinLink(second, join, joinSecond, linkName, convention),
	}
	if self {
		links[1].Name = "Related" + linkName
	}

	if err := r.model.AddRelationship(rel); err != nil {
		return nil, err
	}
	for _, link := range links {
		if err := r.model.AddRelationship(link); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("many-to-many relationship resolved",
		zap.String("relationship", rel.String()),
		zap.String("join_table", join.TableName),
		zap.Bool("convention", convention))

	return rel, nil
}

func joinLink(side, join *schema.Entity, key *schema.Property, name string, convention bool) *schema.Relationship {
	return &schema.Relationship{
		Name:        name,
		InverseName: inverseNameFor(key),
		Cardinality: schema.OneToMany,
		Principal:   side,
		Dependent:   join,
		ForeignKey:  key,
		OnDelete:    schema.DeleteCascade,
		Convention:  convention,
	}
}

func manyToManyNames(first, second *schema.Entity) (string, string) {
	if first == second {
		navs := selfCollections(first)
		name := schema.Pluralize(first.Name)
		if len(navs) > 0 {
			name = navs[0].Name
		}
		inverse := "Related" + name
		if len(navs) > 1 {
			inverse = navs[1].Name
		}
		return name, inverse
	}

	name := schema.Pluralize(second.Name)
	if nav, ok := first.NavigationTo(second.Name, true); ok {
		name = nav.Name
	}
	inverse := schema.Pluralize(first.Name)
	if nav, ok := second.NavigationTo(first.Name, true); ok {
		inverse = nav.Name
	}
	return name, inverse
}

// selfCollections returns the collection navigations of an entity to itself
func selfCollections(e *schema.Entity) []schema.Navigation {
	var navs []schema.Navigation
	for _, nav := range e.Navigations {
		if nav.Collection && nav.Target == e.Name {
			navs = append(navs, nav)
		}
	}
	return navs
}

func explicitForeignKey(dependent, principal *schema.Entity, name string) (*schema.Property, error) {
	fk, ok := dependent.Property(name)
	if !ok {
		for i := range dependent.Properties {
			if strings.EqualFold(dependent.Properties[i].Name, name) {
				fk, ok = &dependent.Properties[i], true
				break
			}
		}
	}
	if !ok {
		return nil, &schema.ModelError{
			Kind:     schema.ErrUnknownProperty,
			Entity:   dependent.Name,
			Property: name,
			Message:  fmt.Sprintf("configured foreign key to %s does not exist", principal.Name),
		}
	}
	if err := checkKeyType(dependent, principal, fk); err != nil {
		return nil, err
	}
	return fk, nil
}

func cover(covered map[string]bool, linked map[[2]string]bool, rel *schema.Relationship) {
	if rel.ForeignKey != nil && rel.Cardinality != schema.ManyToMany {
		covered[rel.Dependent.Name+"."+rel.ForeignKey.Name] = true
	}
	linked[pairKey(rel.Principal, rel.Dependent)] = true
}

func pairKey(a, b *schema.Entity) [2]string {
	if a.Name < b.Name {
		return [2]string{a.Name, b.Name}
	}
	return [2]string{b.Name, a.Name}
}
