package modelfile

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestBuildShop(t *testing.T) {
	model, err := Build(filepath.Join("testdata", "shop.yml"), BuildOptions{})
	require.NoError(t, err)

	order, err := model.Lookup("Order")
	require.NoError(t, err)
	assert.Equal(t, "purchase_orders", order.TableName)

	customer, err := model.Lookup("Customer")
	require.NoError(t, err)
	assert.Equal(t, schema.TypeUUID, customer.PrimaryKey().Type)

	join, err := model.Lookup("TagProduct")
	require.NoError(t, err)
	assert.True(t, join.Synthesized)
	assert.Equal(t, "tag_products", join.TableName)

	assert.Len(t, model.Relationships(), 6)

	route, err := model.Navigate("Customer", "Orders")
	require.NoError(t, err)
	assert.Equal(t, schema.DeleteRestrict, route.Relationship.OnDelete)
	assert.False(t, route.Relationship.Convention)

	route, err = model.Navigate("Order", "Lines")
	require.NoError(t, err)
	assert.Equal(t, "LineItem", route.Target.Name)
	assert.Equal(t, schema.DeleteCascade, route.Relationship.OnDelete)

	route, err = model.Navigate("LineItem", "Product")
	require.NoError(t, err)
	assert.Equal(t, schema.DeleteSetNull, route.Relationship.OnDelete)
	assert.True(t, route.Relationship.Convention)

	order2, err := model.DependencyOrder()
	require.NoError(t, err)
	assert.Less(t, indexOf(order2, "Customer"), indexOf(order2, "Order"))
	assert.Less(t, indexOf(order2, "Order"), indexOf(order2, "LineItem"))
	assert.Less(t, indexOf(order2, "Product"), indexOf(order2, "TagProduct"))
}

func TestParseExplicitCardinality(t *testing.T) {
	doc, err := Parse([]byte(`
entities:
  - name: Person
    properties:
      - {name: Id, type: int, primary_key: true}
    navigations:
      - {name: Friends, target: Person, collection: true}
relationships:
  - dependent: Person
    principal: Person
    cardinality: many_to_many
`))
	require.NoError(t, err)
	require.Len(t, doc.Relationships, 1)

	model, err := doc.Build(BuildOptions{})
	require.NoError(t, err)

	route, err := model.Navigate("Person", "Friends")
	require.NoError(t, err)
	assert.Equal(t, schema.ManyToMany, route.Relationship.Cardinality)
	assert.Equal(t, "PersonPerson", route.Relationship.Join.Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "malformed yaml",
			content: "entities: [",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "no entities",
			content: "relationships: []",
			wantErr: ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  error
		contains string
	}{
		{
			name: "unknown property type",
			content: `
entities:
  - name: Item
    properties:
      - {name: Id, type: money, primary_key: true}
`,
			wantErr:  ErrInvalidDocument,
			contains: "Item.Id",
		},
		{
			name: "every invalid entity is reported",
			content: `
entities:
  - name: First
    properties:
      - {name: Name, type: string}
  - name: Second
    properties:
      - {name: Name, type: string}
`,
			wantErr:  schema.ErrInvalidEntity,
			contains: "Second",
		},
		{
			name: "unknown principal",
			content: `
entities:
  - name: Item
    properties:
      - {name: Id, type: int, primary_key: true}
relationships:
  - dependent: Item
    principal: Box
`,
			wantErr:  schema.ErrNotFound,
			contains: "relationship 1",
		},
		{
			name: "unknown delete behavior",
			content: `
entities:
  - name: Box
    properties:
      - {name: Id, type: int, primary_key: true}
  - name: Item
    properties:
      - {name: Id, type: int, primary_key: true}
      - {name: BoxId, type: int}
relationships:
  - dependent: Item
    principal: Box
    on_delete: explode
`,
			wantErr: ErrInvalidDocument,
		},
		{
			name: "unresolved navigation",
			content: `
entities:
  - name: Box
    properties:
      - {name: Id, type: int, primary_key: true}
    navigations:
      - {name: Items, target: Item, collection: true}
  - name: Item
    properties:
      - {name: Id, type: int, primary_key: true}
`,
			wantErr: schema.ErrUnresolvedRelationship,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.content))
			require.NoError(t, err)

			_, err = doc.Build(BuildOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yml")
	require.NoError(t, os.WriteFile(path, []byte("entities: {"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), path))
}
