// Package modelfile loads entity models from YAML files
//
// A model file lists entities and, optionally, relationships that need
// explicit configuration. Every other relationship is found by convention
// when the document is built.
//
//	entities:
//	  - name: Category
//	    properties:
//	      - {name: Id, type: int, primary_key: true}
//	      - {name: Name, type: string}
//	    navigations:
//	      - {name: Products, target: Product, collection: true}
//	relationships:
//	  - dependent: Product
//	    principal: Category
//	    on_delete: restrict
package modelfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/ormcore/internal/orm/relationships"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// ErrInvalidDocument is returned when a model file cannot be interpreted
var ErrInvalidDocument = errors.New("invalid model file")

// Document is the parsed content of a model file
type Document struct {
	Entities      []EntityDecl       `yaml:"entities"`
	Relationships []RelationshipDecl `yaml:"relationships"`
}

// EntityDecl declares an entity
type EntityDecl struct {
	Name        string           `yaml:"name"`
	Table       string           `yaml:"table"`
	Properties  []PropertyDecl   `yaml:"properties"`
	Navigations []NavigationDecl `yaml:"navigations"`
}

// PropertyDecl declares a scalar property
type PropertyDecl struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
	Unique     bool   `yaml:"unique"`
}

// NavigationDecl declares a navigation
type NavigationDecl struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	Collection bool   `yaml:"collection"`
}

// RelationshipDecl configures a relationship explicitly. Empty fields fall
// back to conventions.
type RelationshipDecl struct {
	Dependent   string `yaml:"dependent"`
	Principal   string `yaml:"principal"`
	ForeignKey  string `yaml:"foreign_key"`
	Name        string `yaml:"name"`
	Inverse     string `yaml:"inverse"`
	OnDelete    string `yaml:"on_delete"`
	Cardinality string `yaml:"cardinality"`
}

// Load reads and parses a model file
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse parses model file content
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("%w: no entities declared", ErrInvalidDocument)
	}
	return &doc, nil
}

// BuildOptions configures Build
type BuildOptions struct {
	Logger *zap.Logger
}

// Build registers the declared entities, applies the explicit
// relationships, resolves the rest by convention and freezes the model
func (d *Document) Build(opts BuildOptions) (*schema.FrozenModel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	model := schema.NewModel(schema.WithLogger(logger))

	var errs []error
	for _, decl := range d.Entities {
		spec, err := decl.spec()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := model.Register(spec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	resolver := relationships.NewResolver(model, relationships.WithLogger(logger))
	for i, decl := range d.Relationships {
		if err := decl.apply(model, resolver); err != nil {
			return nil, fmt.Errorf("relationship %d (%s -> %s): %w", i+1, decl.Dependent, decl.Principal, err)
		}
	}

	if err := resolver.ResolveAll(); err != nil {
		return nil, err
	}

	frozen, err := model.Freeze()
	if err != nil {
		return nil, err
	}

	logger.Info("model built",
		zap.Int("entities", len(frozen.Entities())),
		zap.Int("relationships", len(frozen.Relationships())))
	return frozen, nil
}

// Build loads the model file at path and builds it
func Build(path string, opts BuildOptions) (*schema.FrozenModel, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return doc.Build(opts)
}

func (e EntityDecl) spec() (schema.EntitySpec, error) {
	spec := schema.EntitySpec{
		Name:      e.Name,
		TableName: e.Table,
	}

	for _, p := range e.Properties {
		typ, err := schema.ParsePrimitiveType(p.Type)
		if err != nil {
			return schema.EntitySpec{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidDocument, e.Name, p.Name, err)
		}
		spec.Properties = append(spec.Properties, schema.Property{
			Name:       p.Name,
			Type:       typ,
			Nullable:   p.Nullable,
			PrimaryKey: p.PrimaryKey,
			Unique:     p.Unique,
		})
	}

	for _, n := range e.Navigations {
		spec.Navigations = append(spec.Navigations, schema.Navigation{
			Name:       n.Name,
			Target:     n.Target,
			Collection: n.Collection,
		})
	}

	return spec, nil
}

func (r RelationshipDecl) apply(model *schema.Model, resolver *relationships.Resolver) error {
	dependent, err := model.Lookup(r.Dependent)
	if err != nil {
		return err
	}
	principal, err := model.Lookup(r.Principal)
	if err != nil {
		return err
	}

	cfg := &relationships.Config{
		Name:        r.Name,
		InverseName: r.Inverse,
		ForeignKey:  r.ForeignKey,
	}

	if r.OnDelete != "" {
		behavior, err := schema.ParseDeleteBehavior(strings.ToLower(r.OnDelete))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		cfg.OnDelete = &behavior
	}

	if r.Cardinality != "" {
		cardinality, err := schema.ParseCardinality(strings.ToLower(r.Cardinality))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		cfg.Cardinality = &cardinality
	}

	_, err = resolver.Resolve(dependent, principal, cfg)
	return err
}
