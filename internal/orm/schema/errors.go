package schema

import (
	"errors"
	"strings"
)

// Model build and query errors. Callers match them with errors.Is.
var (
	// ErrDuplicateEntity is returned when an entity name is registered twice
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrUnresolvedRelationship is returned when a relationship or navigation
	// references an entity that was never registered
	ErrUnresolvedRelationship = errors.New("unresolved relationship")

	// ErrAmbiguousRelationship is returned when conventions cannot decide a relationship
	ErrAmbiguousRelationship = errors.New("ambiguous relationship")

	// ErrTypeMismatch is returned when a foreign key type differs from the principal key type
	ErrTypeMismatch = errors.New("foreign key type mismatch")

	// ErrUnknownProperty is returned when a property does not exist on an entity
	ErrUnknownProperty = errors.New("unknown property")

	// ErrUnknownRelationship is returned when a navigation name does not exist on an entity
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrNotFound is returned when an entity is not registered
	ErrNotFound = errors.New("entity not found")

	// ErrSetNullOnNonNullable is returned when set_null is configured on a required foreign key
	ErrSetNullOnNonNullable = errors.New("set null on non-nullable foreign key")

	// ErrInvalidEntity is returned when an entity fails structural validation
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrModelFrozen is returned when a frozen model is modified
	ErrModelFrozen = errors.New("model is frozen")

	// ErrNavigationConflict is returned when two relationships claim one navigation name
	ErrNavigationConflict = errors.New("navigation name conflict")
)

// ModelError carries the context of a model error
type ModelError struct {
	Kind         error
	Entity       string
	Property     string
	Relationship string
	Message      string
	Hint         string
}

// Error implements the error interface
func (e *ModelError) Error() string {
	var b strings.Builder

	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.Property != "" {
			b.WriteString(".")
			b.WriteString(e.Property)
		} else if e.Relationship != "" {
			b.WriteString(".")
			b.WriteString(e.Relationship)
		}
		b.WriteString(": ")
	}

	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Message != "" {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Message)
	}

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Unwrap returns the error kind
func (e *ModelError) Unwrap() error {
	return e.Kind
}
