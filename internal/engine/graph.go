package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/landform-io/landform/internal/ir"
)

// Graph is the directed acyclic dependency graph of the enabled resources
// in one configuration. It is immutable after BuildGraph returns.
type Graph struct {
	nodes    map[ir.Key]*graphNode
	order    []ir.Key
	revOrder []ir.Key
}

type graphNode struct {
	key      ir.Key
	res      *ir.Resource
	attrs    map[string]ir.Value
	edges    []ir.Key // keys this node depends on
	revEdges []ir.Key // keys depending on this node
}

// BuildGraph validates the declarations and constructs the desired graph.
// Disabled resources are filtered out before any edge is resolved; an
// enabled resource referencing a missing or disabled key fails construction
// eagerly, before providers or state are touched.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	if err := validateResources(resources); err != nil {
		return nil, err
	}

	g := &Graph{nodes: make(map[ir.Key]*graphNode)}

	disabled := make(map[ir.Key]bool)
	for _, res := range resources {
		if !res.IsEnabled() {
			disabled[res.Key()] = true
			continue
		}
		attrs, err := ir.ParseAttrs(res.Attrs)
		if err != nil {
			return nil, NewInvalidDeclaration("invalid attribute", err).WithKey(res.Key())
		}
		g.nodes[res.Key()] = &graphNode{key: res.Key(), res: res, attrs: attrs}
	}

	for _, node := range g.nodes {
		seen := make(map[ir.Key]bool)
		addEdge := func(dep ir.Key, via string) error {
			if _, ok := g.nodes[dep]; !ok {
				reason := "not declared"
				if disabled[dep] {
					reason = "disabled"
				}
				return NewUnresolvedReference(
					fmt.Sprintf("%s references %s via %s, which is %s", node.key, dep, via, reason), nil,
				).WithKey(node.key)
			}
			if !seen[dep] {
				seen[dep] = true
				node.edges = append(node.edges, dep)
			}
			return nil
		}

		for _, raw := range node.res.DependsOn {
			dep, err := ir.ParseKey(raw)
			if err != nil {
				return nil, NewInvalidDeclaration("invalid dependsOn entry", err).WithKey(node.key)
			}
			if err := addEdge(dep, "dependsOn"); err != nil {
				return nil, err
			}
		}
		for _, ref := range ir.AttrRefs(node.attrs) {
			if err := addEdge(ref.Key(), ref.String()); err != nil {
				return nil, err
			}
		}
		sort.Slice(node.edges, func(i, j int) bool { return node.edges[i].Less(node.edges[j]) })
	}

	for key, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, key)
		}
	}
	for _, node := range g.nodes {
		sort.Slice(node.revEdges, func(i, j int) bool { return node.revEdges[i].Less(node.revEdges[j]) })
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, NewCyclicDependency(cycle)
	}

	g.order = g.topoSort()
	g.revOrder = make([]ir.Key, len(g.order))
	for i, key := range g.order {
		g.revOrder[len(g.order)-1-i] = key
	}

	return g, nil
}

// BuildRecordGraph reconstructs a graph from state records using the
// dependency keys captured at apply time. Unknown dependency targets get
// placeholder nodes so deletion ordering still holds between survivors.
func BuildRecordGraph(records map[ir.Key]*ir.Record) (*Graph, error) {
	g := &Graph{nodes: make(map[ir.Key]*graphNode)}

	for key := range records {
		g.nodes[key] = &graphNode{key: key}
	}
	for key, rec := range records {
		node := g.nodes[key]
		seen := make(map[ir.Key]bool)
		for _, raw := range rec.Dependencies {
			dep, err := ir.ParseKey(raw)
			if err != nil {
				return nil, NewStateError("corrupt dependency key in state", err).WithKey(key)
			}
			if _, ok := g.nodes[dep]; !ok {
				g.nodes[dep] = &graphNode{key: dep}
			}
			if !seen[dep] {
				seen[dep] = true
				node.edges = append(node.edges, dep)
			}
		}
		sort.Slice(node.edges, func(i, j int) bool { return node.edges[i].Less(node.edges[j]) })
	}

	for key, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, key)
		}
	}

	// State written by a completed run is acyclic; a cycle here means the
	// store was edited by hand.
	if cycle := g.findCycle(); cycle != nil {
		return nil, NewStateError("state records form a dependency cycle", NewCyclicDependency(cycle))
	}

	g.order = g.topoSort()
	g.revOrder = make([]ir.Key, len(g.order))
	for i, key := range g.order {
		g.revOrder[len(g.order)-1-i] = key
	}

	return g, nil
}

// Order returns keys in topological order: dependencies before dependents,
// ties broken lexicographically by (kind, name).
func (g *Graph) Order() []ir.Key {
	return g.order
}

// ReverseOrder returns the deletion-safe reverse of Order.
func (g *Graph) ReverseOrder() []ir.Key {
	return g.revOrder
}

// Has reports whether key is an enabled node of the graph.
func (g *Graph) Has(key ir.Key) bool {
	_, ok := g.nodes[key]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Resource returns the declaration behind key, nil for placeholder nodes.
func (g *Graph) Resource(key ir.Key) *ir.Resource {
	if node, ok := g.nodes[key]; ok {
		return node.res
	}
	return nil
}

// Attrs returns the parsed attribute values of key.
func (g *Graph) Attrs(key ir.Key) map[string]ir.Value {
	if node, ok := g.nodes[key]; ok {
		return node.attrs
	}
	return nil
}

// Dependencies returns the keys key depends on, sorted.
func (g *Graph) Dependencies(key ir.Key) []ir.Key {
	if node, ok := g.nodes[key]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the keys depending on key, sorted.
func (g *Graph) Dependents(key ir.Key) []ir.Key {
	if node, ok := g.nodes[key]; ok {
		return node.revEdges
	}
	return nil
}

// findCycle runs a DFS with an explicit recursion stack and returns the
// distinct keys of the first cycle found, in walk order. Nil means acyclic.
func (g *Graph) findCycle() []ir.Key {
	const (
		white = iota // unvisited
		gray         // on the recursion stack
		black        // done
	)
	color := make(map[ir.Key]int, len(g.nodes))
	var stack []ir.Key

	var visit func(key ir.Key) []ir.Key
	visit = func(key ir.Key) []ir.Key {
		color[key] = gray
		stack = append(stack, key)
		for _, dep := range g.nodes[key].edges {
			switch color[dep] {
			case gray:
				// Cycle: slice the stack from dep's position onward.
				for i, k := range stack {
					if k == dep {
						return append([]ir.Key(nil), stack[i:]...)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[key] = black
		return nil
	}

	for _, key := range g.sortedKeys() {
		if color[key] == white {
			if cycle := visit(key); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// topoSort runs Kahn's algorithm with the ready set kept sorted so equal
// inputs always yield the same order. Must run after findCycle.
func (g *Graph) topoSort() []ir.Key {
	inDegree := make(map[ir.Key]int, len(g.nodes))
	for key, node := range g.nodes {
		inDegree[key] = len(node.edges)
	}

	var ready []ir.Key
	for _, key := range g.sortedKeys() {
		if inDegree[key] == 0 {
			ready = append(ready, key)
		}
	}

	order := make([]ir.Key, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Less(ready[j]) })
		key := ready[0]
		ready = ready[1:]
		order = append(order, key)

		for _, dependent := range g.nodes[key].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return order
}

func (g *Graph) sortedKeys() []ir.Key {
	keys := make([]ir.Key, 0, len(g.nodes))
	for key := range g.nodes {
		keys = append(keys, key)
	}
	ir.SortKeys(keys)
	return keys
}

// DOT renders the graph in Graphviz format.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph resources {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")
	for _, key := range g.order {
		fmt.Fprintf(&b, "  %q;\n", key.String())
	}
	for _, key := range g.order {
		for _, dep := range g.nodes[key].edges {
			fmt.Fprintf(&b, "  %q -> %q;\n", key.String(), dep.String())
		}
	}
	b.WriteString("}\n")
	return b.String()
}
