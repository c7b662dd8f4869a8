package schema

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaValidator performs structural validation of a single entity
type SchemaValidator struct {
	errors []error
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// ValidateStructural validates an entity without cross-entity checks.
// Navigation targets may reference entities registered later; they are
// checked at freeze time.
func (v *SchemaValidator) ValidateStructural(entity *Entity) error {
	v.errors = v.errors[:0]

	v.validateName(entity)
	v.validateProperties(entity)
	v.validatePrimaryKey(entity)
	v.validateNavigations(entity)

	switch len(v.errors) {
	case 0:
		return nil
	case 1:
		return v.errors[0]
	default:
		return fmt.Errorf("entity %s failed validation with %d errors:\n%w",
			entity.Name, len(v.errors), errors.Join(v.errors...))
	}
}

// Errors returns the errors collected by the last validation
func (v *SchemaValidator) Errors() []error {
	return v.errors
}

func (v *SchemaValidator) fail(entity, property, message, hint string) {
	v.errors = append(v.errors, &ModelError{
		Kind:     ErrInvalidEntity,
		Entity:   entity,
		Property: property,
		Message:  message,
		Hint:     hint,
	})
}

func (v *SchemaValidator) validateName(entity *Entity) {
	if entity.Name == "" {
		v.fail("", "", "entity name cannot be empty", "")
		return
	}
	if !isIdentifier(entity.Name) {
		v.fail(entity.Name, "", fmt.Sprintf("entity name %q is not a valid identifier", entity.Name),
			"Use letters, digits and underscores, starting with a letter")
	}
}

// validateProperties rejects empty and duplicate property names. Duplicates
// are compared case-insensitively since naming conventions match that way.
func (v *SchemaValidator) validateProperties(entity *Entity) {
	if len(entity.Properties) == 0 {
		v.fail(entity.Name, "", "entity must declare at least one property", "")
		return
	}

	seen := make(map[string]string, len(entity.Properties))
	for _, p := range entity.Properties {
		if p.Name == "" {
			v.fail(entity.Name, "", "property name cannot be empty", "")
			continue
		}
		if !isIdentifier(p.Name) {
			v.fail(entity.Name, p.Name, fmt.Sprintf("property name %q is not a valid identifier", p.Name), "")
			continue
		}
		folded := strings.ToLower(p.Name)
		if prev, dup := seen[folded]; dup {
			v.fail(entity.Name, p.Name, fmt.Sprintf("duplicate property (conflicts with %s)", prev),
				"Property names must be unique ignoring case")
			continue
		}
		seen[folded] = p.Name
	}
}

// validatePrimaryKey ensures the entity has exactly one non-nullable primary key
func (v *SchemaValidator) validatePrimaryKey(entity *Entity) {
	var keys []Property
	for _, p := range entity.Properties {
		if p.PrimaryKey {
			keys = append(keys, p)
		}
	}

	switch {
	case len(keys) == 0:
		v.fail(entity.Name, "", "entity must have a primary key",
			"Mark one property as primary, e.g. Id int @primary")
	case len(keys) > 1:
		v.fail(entity.Name, "", fmt.Sprintf("entity has %d primary keys, expected 1", len(keys)),
			"Composite primary keys are not supported")
	case keys[0].Nullable:
		v.fail(entity.Name, keys[0].Name, "primary key must be non-nullable",
			fmt.Sprintf("Change %s: %s? to %s: %s!", keys[0].Name, keys[0].Type, keys[0].Name, keys[0].Type))
	}
}

func (v *SchemaValidator) validateNavigations(entity *Entity) {
	seen := make(map[string]bool, len(entity.Navigations))
	for _, nav := range entity.Navigations {
		if nav.Name == "" {
			v.fail(entity.Name, "", "navigation name cannot be empty", "")
			continue
		}
		if nav.Target == "" {
			v.fail(entity.Name, nav.Name, "navigation has no target entity", "")
		}
		if entity.HasProperty(nav.Name) {
			v.fail(entity.Name, nav.Name, "navigation shadows a property of the same name", "")
		}
		if seen[nav.Name] {
			v.fail(entity.Name, nav.Name, "duplicate navigation", "")
		}
		seen[nav.Name] = true
	}
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_' || r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}
