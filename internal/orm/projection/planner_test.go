package projection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/ormcore/internal/orm/relationships"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

func setupCatalog(t *testing.T) *schema.FrozenModel {
	t.Helper()

	m := schema.NewModel()
	specs := []schema.EntitySpec{
		{
			Name: "Category",
			Properties: []schema.Property{
				{Name: "Id", Type: schema.TypeInt, PrimaryKey: true},
				{Name: "Name", Type: schema.TypeString},
			},
			Navigations: []schema.Navigation{{Name: "Products", Target: "Product", Collection: true}},
		},
		{
			Name: "Product",
			Properties: []schema.Property{
				{Name: "Id", Type: schema.TypeInt, PrimaryKey: true},
				{Name: "Name", Type: schema.TypeString},
				{Name: "Price", Type: schema.TypeDecimal},
				{Name: "CategoryId", Type: schema.TypeInt},
			},
			Navigations: []schema.Navigation{
				{Name: "Category", Target: "Category"},
				{Name: "Tags", Target: "Tag", Collection: true},
			},
		},
		{
			Name: "Tag",
			Properties: []schema.Property{
				{Name: "Id", Type: schema.TypeInt, PrimaryKey: true},
				{Name: "Label", Type: schema.TypeString},
			},
			Navigations: []schema.Navigation{{Name: "Products", Target: "Product", Collection: true}},
		},
	}
	for _, spec := range specs {
		_, err := m.Register(spec)
		require.NoError(t, err)
	}

	require.NoError(t, relationships.NewResolver(m).ResolveAll())

	frozen, err := m.Freeze()
	require.NoError(t, err)
	return frozen
}

func mustParse(t *testing.T, expr string) *Shape {
	t.Helper()
	shape, err := ParseShape(expr)
	require.NoError(t, err)
	return shape
}

func paths(plan *FetchPlan) []string {
	result := make([]string, len(plan.Steps))
	for i, step := range plan.Steps {
		result[i] = step.Path
	}
	return result
}

func TestPlanCategoryProductsTags(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	plan, err := planner.Plan("Category", mustParse(t, "Name,Products{Name,Price,Tags}"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []string{"", "Products", "Products.Tags"}, paths(plan))

	root := plan.Steps[0]
	assert.True(t, root.IsRoot())
	assert.Equal(t, []string{"Name", "Id"}, root.Properties)
	assert.Equal(t, []string{"Id"}, root.Implicit)

	products := plan.Steps[1]
	assert.Equal(t, "Product", products.Entity.Name)
	assert.Equal(t, 0, products.Parent)
	assert.True(t, products.Many)
	assert.Equal(t, "Id", products.ParentKey)
	assert.Equal(t, "CategoryId", products.MatchKey)
	assert.Equal(t, []string{"Name", "Price", "CategoryId", "Id"}, products.Properties)
	assert.Equal(t, []string{"CategoryId", "Id"}, products.Implicit)

	tags := plan.Steps[2]
	assert.Equal(t, "Tag", tags.Entity.Name)
	assert.Equal(t, 1, tags.Parent)
	assert.True(t, tags.Many)
	require.NotNil(t, tags.Join)
	assert.Equal(t, "TagProduct", tags.Join.Name)
	assert.Equal(t, "Id", tags.ParentKey)
	assert.Equal(t, "ProductId", tags.MatchKey)
	assert.Equal(t, "TagId", tags.JoinTargetKey)
	assert.Equal(t, "Id", tags.TargetKey)
	assert.Equal(t, []string{"Id", "Label"}, tags.Properties)
	assert.Empty(t, tags.Implicit)
}

func TestPlanBreadthFirst(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	plan, err := planner.Plan("Product", mustParse(t, "Category{Products},Tags{Products}"))
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Category", "Tags", "Category.Products", "Tags.Products"}, paths(plan))
	for _, step := range plan.Steps[1:] {
		parent := plan.Steps[step.Parent]
		assert.Less(t, parent.Index, step.Index, "parent of %s must come first", step.Path)
		assert.Equal(t, parent.Depth+1, step.Depth)
	}

	children := plan.Children(0)
	require.Len(t, children, 2)
	assert.Equal(t, "Category", children[0].Path)
	assert.Equal(t, "Tags", children[1].Path)
}

func TestPlanOneStepPerPath(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	plan, err := planner.Plan("Category", mustParse(t, "Products{Name},Products{Price}"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	step, ok := plan.Step("Products")
	require.True(t, ok)
	assert.Equal(t, []string{"Name", "Price", "CategoryId"}, step.Properties)
}

func TestPlanEmptySelectionFetchesAllProperties(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	plan, err := planner.Plan("Category", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, []string{"Id", "Name"}, plan.Steps[0].Properties)
	assert.Empty(t, plan.Steps[0].Implicit)

	plan, err = planner.Plan("Category", mustParse(t, "Products"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, []string{"Id", "Name"}, plan.Steps[0].Properties)
	assert.Equal(t, []string{"Id", "Name", "Price", "CategoryId"}, plan.Steps[1].Properties)
	assert.Empty(t, plan.Steps[1].Implicit)
}

func TestPlanDependentToPrincipal(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	plan, err := planner.Plan("Product", mustParse(t, "Name,Category{Name}"))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	root := plan.Steps[0]
	assert.Equal(t, []string{"Name", "CategoryId"}, root.Properties)
	assert.True(t, root.IsImplicit("CategoryId"))

	category := plan.Steps[1]
	assert.False(t, category.Many)
	assert.Equal(t, schema.DependentToPrincipal, category.Direction)
	assert.Equal(t, "CategoryId", category.ParentKey)
	assert.Equal(t, "Id", category.MatchKey)
	assert.Equal(t, []string{"Name", "Id"}, category.Properties)
}

func TestPlanErrors(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	tests := []struct {
		name  string
		root  string
		shape string
		err   error
	}{
		{"unknown root", "Supplier", "Name", schema.ErrNotFound},
		{"unknown property", "Category", "Name,Color", schema.ErrUnknownProperty},
		{"unknown nested property", "Category", "Products{Weight}", schema.ErrUnknownProperty},
		{"unknown relationship", "Category", "Suppliers{Name}", schema.ErrUnknownRelationship},
		{"property used as navigation", "Category", "Name{Id}", schema.ErrUnknownRelationship},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planner.Plan(tt.root, mustParse(t, tt.shape))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestPlanMaxDepth(t *testing.T) {
	model := setupCatalog(t)
	shape := mustParse(t, "Products{Tags}")

	_, err := NewPlanner(model, WithMaxDepth(1)).Plan("Category", shape)
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)

	plan, err := NewPlanner(model, WithMaxDepth(2)).Plan("Category", shape)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 3)
}

func TestFetchPlanString(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))

	plan, err := planner.Plan("Category", mustParse(t, "Name,Products{Name,Tags}"))
	require.NoError(t, err)

	out := plan.String()
	assert.Contains(t, out, "Fetch plan for Category (3 steps)")
	assert.Contains(t, out, "1. categories [Name, +Id]")
	assert.Contains(t, out, "2. Products -> Product [Name, +CategoryId, +Id] where products.CategoryId in categories.Id (many)")
	assert.Contains(t, out, "via tag_products.ProductId in products.Id (many)")
}

func TestPlannerConcurrentUse(t *testing.T) {
	planner := NewPlanner(setupCatalog(t))
	shape := mustParse(t, "Name,Products{Name,Tags{Label}}")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				plan, err := planner.Plan("Category", shape)
				if err != nil {
					t.Error(err)
					return
				}
				if len(plan.Steps) != 3 {
					t.Errorf("expected 3 steps, got %d", len(plan.Steps))
					return
				}
			}
		}()
	}
	wg.Wait()
}
