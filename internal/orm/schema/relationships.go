package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph is the dependency graph between entities. An edge runs
// from a dependent to the principal it references.
type RelationshipGraph struct {
	nodes []string
	edges map[string][]string // entity -> principals it depends on
}

// NewRelationshipGraph creates a graph from entities and their relationships.
// Self references and many-to-many links add no edges; join entities depend
// on both sides through their own one-to-many relationships.
func NewRelationshipGraph(entities map[string]*Entity, rels []*Relationship) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: make([]string, 0, len(entities)),
		edges: make(map[string][]string),
	}
	for name := range entities {
		graph.nodes = append(graph.nodes, name)
	}
	sort.Strings(graph.nodes)

	seen := make(map[[2]string]bool)
	for _, rel := range rels {
		if rel.Cardinality == ManyToMany || rel.SelfReferencing() {
			continue
		}
		edge := [2]string{rel.Dependent.Name, rel.Principal.Name}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		graph.edges[edge[0]] = append(graph.edges[edge[0]], edge[1])
	}
	for _, deps := range graph.edges {
		sort.Strings(deps)
	}

	return graph
}

// DetectCycles detects circular dependencies in the graph
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				dfs(neighbor, path)
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		recursionStack[node] = false
	}

	for _, node := range g.nodes {
		if !visited[node] {
			dfs(node, nil)
		}
	}

	return cycles
}

// TopologicalSort returns entities in dependency order (principals first).
// Ties are broken by name so the order is stable.
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int, len(g.nodes))
	reverseEdges := make(map[string][]string)
	for _, node := range g.nodes {
		outDegree[node] = len(g.edges[node])
		for _, target := range g.edges[node] {
			reverseEdges[target] = append(reverseEdges[target], node)
		}
	}

	var queue []string
	for _, node := range g.nodes {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		var ready []string
		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(g.nodes) {
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected:\n%s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// GetDependencies returns the principals an entity directly depends on
func (g *RelationshipGraph) GetDependencies(entity string) []string {
	deps, exists := g.edges[entity]
	if !exists {
		return []string{}
	}
	return append([]string(nil), deps...)
}

// GetDependents returns the entities that directly depend on the given one
func (g *RelationshipGraph) GetDependents(entity string) []string {
	dependents := []string{}
	for _, node := range g.nodes {
		for _, dep := range g.edges[node] {
			if dep == entity {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// Analyze reports the direct dependencies and dependents of every entity
// along with the cycles, or the insert order when there are none
func (g *RelationshipGraph) Analyze() *DependencyReport {
	report := &DependencyReport{
		Dependencies: make(map[string][]string, len(g.nodes)),
		Dependents:   make(map[string][]string, len(g.nodes)),
	}

	for _, name := range g.nodes {
		report.Dependencies[name] = g.GetDependencies(name)
		report.Dependents[name] = g.GetDependents(name)
	}

	report.Cycles = g.DetectCycles()
	if len(report.Cycles) == 0 {
		report.Order, _ = g.TopologicalSort()
	}

	return report
}

// DependencyReport is the result of Analyze
type DependencyReport struct {
	Dependencies map[string][]string // entity -> direct principals
	Dependents   map[string][]string // entity -> direct dependents
	Cycles       [][]string
	Order        []string
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
