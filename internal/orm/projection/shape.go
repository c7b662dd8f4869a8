// Package projection turns a requested object-graph shape into a batched,
// breadth-first fetch plan.
package projection

import (
	"strings"
)

// Shape is a nested selection: property names plus child shapes for
// navigations. A plain name that is not a property of the entity is
// planned as a navigation with an empty selection.
type Shape struct {
	entries []entry
}

type entry struct {
	name  string
	child *Shape // nil for a plain name
}

// NewShape creates a shape selecting the given names
func NewShape(names ...string) *Shape {
	s := &Shape{}
	return s.Select(names...)
}

// Select adds plain names to the shape. Repeated names are ignored.
func (s *Shape) Select(names ...string) *Shape {
	for _, name := range names {
		if s.index(name) < 0 {
			s.entries = append(s.entries, entry{name: name})
		}
	}
	return s
}

// Include adds a navigation with its own shape. Including the same
// navigation twice merges the two shapes. A nil child selects all
// properties of the target.
func (s *Shape) Include(name string, child *Shape) *Shape {
	if child == nil {
		child = &Shape{}
	}
	if i := s.index(name); i >= 0 {
		if s.entries[i].child == nil {
			s.entries[i].child = &Shape{}
		}
		s.entries[i].child.merge(child)
		return s
	}
	s.entries = append(s.entries, entry{name: name, child: child.Clone()})
	return s
}

// Names returns every selected name in selection order
func (s *Shape) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Child returns the shape included for a navigation
func (s *Shape) Child(name string) (*Shape, bool) {
	if i := s.index(name); i >= 0 && s.entries[i].child != nil {
		return s.entries[i].child, true
	}
	return nil, false
}

// Empty returns true if nothing is selected
func (s *Shape) Empty() bool {
	return s == nil || len(s.entries) == 0
}

// Clone returns a deep copy of the shape
func (s *Shape) Clone() *Shape {
	clone := &Shape{entries: make([]entry, len(s.entries))}
	for i, e := range s.entries {
		clone.entries[i] = entry{name: e.name}
		if e.child != nil {
			clone.entries[i].child = e.child.Clone()
		}
	}
	return clone
}

// String renders the shape in the syntax accepted by ParseShape
func (s *Shape) String() string {
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s *Shape) write(b *strings.Builder) {
	for i, e := range s.entries {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(e.name)
		if e.child != nil {
			b.WriteString("{")
			e.child.write(b)
			b.WriteString("}")
		}
	}
}

func (s *Shape) merge(other *Shape) {
	for _, e := range other.entries {
		if e.child == nil {
			s.Select(e.name)
			continue
		}
		s.Include(e.name, e.child)
	}
}

func (s *Shape) index(name string) int {
	for i, e := range s.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}
