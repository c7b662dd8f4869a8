package schema

import (
	"testing"
)

func TestPrimitiveTypeString(t *testing.T) {
	tests := []struct {
		name     string
		typeVal  PrimitiveType
		expected string
	}{
		{"TypeString", TypeString, "string"},
		{"TypeText", TypeText, "text"},
		{"TypeInt", TypeInt, "int"},
		{"TypeBigInt", TypeBigInt, "bigint"},
		{"TypeBool", TypeBool, "bool"},
		{"TypeUUID", TypeUUID, "uuid"},
		{"TypeTimestamp", TypeTimestamp, "timestamp"},
		{"unknown", PrimitiveType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.typeVal.String()
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestParsePrimitiveType(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  PrimitiveType
		expectErr bool
	}{
		{"valid string", "string", TypeString, false},
		{"valid int", "int", TypeInt, false},
		{"mixed case uuid", "UUID", TypeUUID, false},
		{"padded decimal", " decimal ", TypeDecimal, false},
		{"invalid type", "email", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePrimitiveType(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestParseDeleteBehavior(t *testing.T) {
	for _, behavior := range []DeleteBehavior{DeleteRestrict, DeleteCascade, DeleteSetNull} {
		parsed, err := ParseDeleteBehavior(behavior.String())
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", behavior, err)
		}
		if parsed != behavior {
			t.Errorf("expected %s, got %s", behavior, parsed)
		}
	}

	if _, err := ParseDeleteBehavior("no_action"); err == nil {
		t.Error("expected error for unsupported behavior")
	}
}

func TestParseCardinality(t *testing.T) {
	for _, c := range []Cardinality{OneToMany, OneToOne, ManyToMany} {
		parsed, err := ParseCardinality(c.String())
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", c, err)
		}
		if parsed != c {
			t.Errorf("expected %s, got %s", c, parsed)
		}
	}

	if _, err := ParseCardinality("belongs_to"); err == nil {
		t.Error("expected error for unknown cardinality")
	}
}

func TestPropertyString(t *testing.T) {
	p := Property{Name: "CategoryId", Type: TypeInt, Nullable: true, ForeignKey: true}
	if got := p.String(); got != "CategoryId int? @fk" {
		t.Errorf("unexpected rendering: %q", got)
	}

	pk := Property{Name: "Id", Type: TypeUUID, PrimaryKey: true}
	if got := pk.String(); got != "Id uuid! @primary" {
		t.Errorf("unexpected rendering: %q", got)
	}
}

func TestEntityAccessors(t *testing.T) {
	entity := newEntity(EntitySpec{
		Name: "Product",
		Properties: []Property{
			{Name: "Id", Type: TypeInt, PrimaryKey: true},
			{Name: "Name", Type: TypeString},
			{Name: "CategoryId", Type: TypeInt},
		},
		Navigations: []Navigation{
			{Name: "Category", Target: "Category"},
			{Name: "Tags", Target: "Tag", Collection: true},
		},
	})

	if entity.TableName != "products" {
		t.Errorf("expected table products, got %s", entity.TableName)
	}
	if pk := entity.PrimaryKey(); pk == nil || pk.Name != "Id" {
		t.Errorf("expected primary key Id, got %v", pk)
	}
	if _, ok := entity.Property("name"); ok {
		t.Error("property lookup should be case-sensitive")
	}
	if p, ok := entity.Property("CategoryId"); !ok || p.Type != TypeInt {
		t.Errorf("expected CategoryId int, got %v", p)
	}

	names := entity.PropertyNames()
	if len(names) != 3 || names[0] != "Id" || names[2] != "CategoryId" {
		t.Errorf("unexpected property order: %v", names)
	}

	if nav, ok := entity.NavigationTo("Tag", true); !ok || nav.Name != "Tags" {
		t.Errorf("expected Tags navigation, got %v", nav)
	}
	if _, ok := entity.NavigationTo("Tag", false); ok {
		t.Error("Tags is a collection navigation")
	}
}

func TestNaming(t *testing.T) {
	tests := []struct {
		input    string
		snake    string
		table    string
	}{
		{"Category", "category", "categories"},
		{"Product", "product", "products"},
		{"CourseStudent", "course_student", "course_students"},
		{"HTTPServer", "http_server", "http_servers"},
		{"Address", "address", "addresses"},
		{"Day", "day", "days"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ToSnakeCase(tt.input); got != tt.snake {
				t.Errorf("ToSnakeCase(%s) = %s, want %s", tt.input, got, tt.snake)
			}
			if got := TableNameFor(tt.input); got != tt.table {
				t.Errorf("TableNameFor(%s) = %s, want %s", tt.input, got, tt.table)
			}
		})
	}

	if got := ColumnName("ParentCategoryId"); got != "parent_category_id" {
		t.Errorf("unexpected column name %s", got)
	}
	if got := Pluralize("Category"); got != "Categories" {
		t.Errorf("unexpected plural %s", got)
	}
}
