package relationships

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// keySuffix is the naming convention for foreign key properties
const keySuffix = "Id"

// findForeignKey searches the dependent for a property named after the
// principal: "<Principal>Id" first, then any property ending in it such as
// "ParentCategoryId". Matching ignores case. A nil property and nil error
// means no candidate exists.
func findForeignKey(dependent, principal *schema.Entity) (*schema.Property, error) {
	want := strings.ToLower(principal.Name + keySuffix)

	var exact *schema.Property
	var suffix []*schema.Property
	for i := range dependent.Properties {
		p := &dependent.Properties[i]
		if p.PrimaryKey && dependent == principal {
			continue
		}
		name := strings.ToLower(p.Name)
		switch {
		case name == want:
			exact = p
		case strings.HasSuffix(name, want):
			suffix = append(suffix, p)
		}
	}

	candidate := exact
	if candidate == nil {
		switch len(suffix) {
		case 0:
			return nil, nil
		case 1:
			candidate = suffix[0]
		default:
			names := make([]string, len(suffix))
			for i, p := range suffix {
				names[i] = p.Name
			}
			return nil, &schema.ModelError{
				Kind:         schema.ErrAmbiguousRelationship,
				Entity:       dependent.Name,
				Relationship: principal.Name,
				Message:      fmt.Sprintf("several properties could reference %s: %s", principal.Name, strings.Join(names, ", ")),
				Hint:         "Configure the foreign key explicitly",
			}
		}
	}

	if err := checkKeyType(dependent, principal, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// checkKeyType requires a foreign key to have the principal key's type
func checkKeyType(dependent, principal *schema.Entity, fk *schema.Property) error {
	pk := principal.PrimaryKey()
	if pk != nil && fk.Type == pk.Type {
		return nil
	}
	pkType := "none"
	if pk != nil {
		pkType = pk.Type.String()
	}
	return &schema.ModelError{
		Kind:     schema.ErrTypeMismatch,
		Entity:   dependent.Name,
		Property: fk.Name,
		Message: fmt.Sprintf("%s does not match primary key type %s of %s",
			fk.Type, pkType, principal.Name),
		Hint: fmt.Sprintf("Change %s to %s", fk.Name, pkType),
	}
}

// principalFor finds the registered entity a "...Id" property names. The
// longest matching entity name wins, so "ProductCategoryId" prefers
// ProductCategory over Category.
func principalFor(p *schema.Property, owner *schema.Entity, entities []*schema.Entity) *schema.Entity {
	name := strings.ToLower(p.Name)
	if !strings.HasSuffix(name, strings.ToLower(keySuffix)) || len(name) <= len(keySuffix) {
		return nil
	}

	var best *schema.Entity
	for _, e := range entities {
		if e == owner && p.PrimaryKey {
			continue
		}
		if !strings.HasSuffix(name, strings.ToLower(e.Name+keySuffix)) {
			continue
		}
		if best == nil || len(e.Name) > len(best.Name) {
			best = e
		}
	}
	return best
}

// orderPair orders the two sides of a many-to-many relationship: shorter
// name first, then alphabetical. The result does not depend on the order
// the caller passed them in.
func orderPair(a, b *schema.Entity) (*schema.Entity, *schema.Entity) {
	if len(a.Name) != len(b.Name) {
		if len(a.Name) < len(b.Name) {
			return a, b
		}
		return b, a
	}
	if a.Name <= b.Name {
		return a, b
	}
	return b, a
}

// inverseNameFor derives a dependent-side navigation name from its foreign key
func inverseNameFor(fk *schema.Property) string {
	if len(fk.Name) > len(keySuffix) && strings.EqualFold(fk.Name[len(fk.Name)-len(keySuffix):], keySuffix) {
		return fk.Name[:len(fk.Name)-len(keySuffix)]
	}
	return fk.Name + "Ref"
}

// mutualCollections returns true if both entities declare a collection
// navigation toward each other
func mutualCollections(a, b *schema.Entity) bool {
	_, ab := a.NavigationTo(b.Name, true)
	_, ba := b.NavigationTo(a.Name, true)
	return ab && ba
}

func sortedByName(entities []*schema.Entity) []*schema.Entity {
	sorted := append([]*schema.Entity(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}
