package schema

import (
	"reflect"
	"strings"
	"testing"
)

func graphFixture(names ...string) map[string]*Entity {
	entities := make(map[string]*Entity, len(names))
	for _, name := range names {
		entities[name] = newEntity(EntitySpec{
			Name:       name,
			Properties: []Property{{Name: "Id", Type: TypeInt, PrimaryKey: true}},
		})
	}
	return entities
}

func edge(entities map[string]*Entity, dependent, principal string) *Relationship {
	return &Relationship{
		Cardinality: OneToMany,
		Principal:   entities[principal],
		Dependent:   entities[dependent],
	}
}

func TestRelationshipGraphTopologicalSort(t *testing.T) {
	entities := graphFixture("Order", "Customer", "LineItem", "Product", "Category")
	rels := []*Relationship{
		edge(entities, "Order", "Customer"),
		edge(entities, "LineItem", "Order"),
		edge(entities, "LineItem", "Product"),
		edge(entities, "Product", "Category"),
	}

	graph := NewRelationshipGraph(entities, rels)
	order, err := graph.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"Category", "Customer", "Product", "Order", "LineItem"}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}

	if deps := graph.GetDependencies("LineItem"); !reflect.DeepEqual(deps, []string{"Order", "Product"}) {
		t.Errorf("unexpected dependencies %v", deps)
	}
	if dependents := graph.GetDependents("Category"); !reflect.DeepEqual(dependents, []string{"Product"}) {
		t.Errorf("unexpected dependents %v", dependents)
	}
}

func TestRelationshipGraphSelfReference(t *testing.T) {
	entities := graphFixture("Category")
	rels := []*Relationship{edge(entities, "Category", "Category")}

	graph := NewRelationshipGraph(entities, rels)
	if cycles := graph.DetectCycles(); len(cycles) != 0 {
		t.Errorf("self references should not count as cycles, got %v", cycles)
	}
	if _, err := graph.TopologicalSort(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRelationshipGraphCycles(t *testing.T) {
	entities := graphFixture("Author", "Book")
	rels := []*Relationship{
		edge(entities, "Book", "Author"),
		edge(entities, "Author", "Book"),
	}

	graph := NewRelationshipGraph(entities, rels)
	cycles := graph.DetectCycles()
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %v", cycles)
	}

	_, err := graph.TopologicalSort()
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
	if !strings.Contains(err.Error(), "Cycle 1") {
		t.Errorf("expected cycle listing, got %v", err)
	}

	report := graph.Analyze()
	if len(report.Cycles) != 1 || report.Order != nil {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestAnalyze(t *testing.T) {
	entities := graphFixture("Category", "Product")
	graph := NewRelationshipGraph(entities, []*Relationship{edge(entities, "Product", "Category")})

	report := graph.Analyze()
	if !reflect.DeepEqual(report.Order, []string{"Category", "Product"}) {
		t.Errorf("unexpected order %v", report.Order)
	}
	if !reflect.DeepEqual(report.Dependencies["Product"], []string{"Category"}) {
		t.Errorf("unexpected dependencies %v", report.Dependencies)
	}
	if !reflect.DeepEqual(report.Dependents["Category"], []string{"Product"}) {
		t.Errorf("unexpected dependents %v", report.Dependents)
	}
	if len(report.Dependencies["Category"]) != 0 || len(report.Cycles) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRelationshipGraphSkipsManyToMany(t *testing.T) {
	entities := graphFixture("Course", "Student")
	rel := edge(entities, "Student", "Course")
	rel.Cardinality = ManyToMany

	graph := NewRelationshipGraph(entities, []*Relationship{rel})
	if deps := graph.GetDependencies("Student"); len(deps) != 0 {
		t.Errorf("many-to-many should add no edges, got %v", deps)
	}
}
