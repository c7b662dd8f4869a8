package schema

import (
	"errors"
	"testing"
)

func TestValidateStructural(t *testing.T) {
	tests := []struct {
		name    string
		spec    EntitySpec
		wantErr bool
		errors  int
	}{
		{
			name: "valid entity",
			spec: EntitySpec{
				Name: "Tag",
				Properties: []Property{
					{Name: "Id", Type: TypeInt, PrimaryKey: true},
					{Name: "Label", Type: TypeString},
				},
			},
		},
		{
			name:    "empty name",
			spec:    EntitySpec{Properties: []Property{{Name: "Id", Type: TypeInt, PrimaryKey: true}}},
			wantErr: true,
			errors:  1,
		},
		{
			name: "invalid identifier",
			spec: EntitySpec{
				Name:       "1Tag",
				Properties: []Property{{Name: "Id", Type: TypeInt, PrimaryKey: true}},
			},
			wantErr: true,
			errors:  1,
		},
		{
			name:    "no properties",
			spec:    EntitySpec{Name: "Tag"},
			wantErr: true,
			errors:  2,
		},
		{
			name: "nullable primary key",
			spec: EntitySpec{
				Name:       "Tag",
				Properties: []Property{{Name: "Id", Type: TypeInt, PrimaryKey: true, Nullable: true}},
			},
			wantErr: true,
			errors:  1,
		},
		{
			name: "navigation shadows property",
			spec: EntitySpec{
				Name: "Product",
				Properties: []Property{
					{Name: "Id", Type: TypeInt, PrimaryKey: true},
					{Name: "Category", Type: TypeString},
				},
				Navigations: []Navigation{{Name: "Category", Target: "Category"}},
			},
			wantErr: true,
			errors:  1,
		},
		{
			name: "duplicate navigation",
			spec: EntitySpec{
				Name:       "Category",
				Properties: []Property{{Name: "Id", Type: TypeInt, PrimaryKey: true}},
				Navigations: []Navigation{
					{Name: "Products", Target: "Product", Collection: true},
					{Name: "Products", Target: "Product", Collection: true},
				},
			},
			wantErr: true,
			errors:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewSchemaValidator()
			err := v.ValidateStructural(newEntity(tt.spec))

			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidEntity) {
				t.Fatalf("expected ErrInvalidEntity, got %v", err)
			}
			if got := len(v.Errors()); got != tt.errors {
				t.Errorf("expected %d errors, got %d: %v", tt.errors, got, err)
			}
		})
	}
}

func TestModelErrorFormatting(t *testing.T) {
	err := &ModelError{
		Kind:     ErrSetNullOnNonNullable,
		Entity:   "Product",
		Property: "CategoryId",
		Message:  "relationship to Category uses set_null on a required foreign key",
		Hint:     "Make the foreign key nullable",
	}

	expected := "Product.CategoryId: set null on non-nullable foreign key: " +
		"relationship to Category uses set_null on a required foreign key\n" +
		"  hint: Make the foreign key nullable"
	if err.Error() != expected {
		t.Errorf("unexpected message:\n%s", err.Error())
	}
	if !errors.Is(err, ErrSetNullOnNonNullable) {
		t.Error("error should unwrap to its kind")
	}
}
