package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationCycle is a set of entity types that reach each other through
// relation attributes.
//
// Cycles are informational, not errors: bidirectional relations such as
// Author.books / Book.author are the common case, and a selection is
// always finite, so the batcher never follows a cycle on its own.
type RelationCycle struct {
	Entities []string `json:"entities"` // members, sorted by name
	Path     []string `json:"path"`     // one traversal: ["Author", "Book", "Author"]
	Message  string   `json:"message"`
}

// RelationCycles finds the strongly connected components of the relation
// graph. Each component with more than one member, or a self-referencing
// type, is reported once. Results are sorted by their first member.
//
// The algorithm:
//  1. Build entity → target edges from to-one and to-many attributes
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Walk each component from its smallest member to produce a path
func RelationCycles(s *Schema) []RelationCycle {
	graph := relationGraph(s)

	var cycles []RelationCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		sort.Strings(scc)
		path := cyclePath(scc, graph)
		cycles = append(cycles, RelationCycle{
			Entities: scc,
			Path:     path,
			Message:  fmt.Sprintf("relation cycle: %s", strings.Join(path, " → ")),
		})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Entities[0] < cycles[j].Entities[0]
	})
	return cycles
}

// relationGraph maps entity name → distinct relation targets, in
// attribute declaration order.
type relationGraphMap map[string][]string

func relationGraph(s *Schema) relationGraphMap {
	graph := make(relationGraphMap)
	for _, e := range s.Entities() {
		seen := make(map[string]bool)
		graph[e.Name] = []string{}
		for _, a := range e.Attributes {
			if !a.Kind.IsRelation() || seen[a.Target] {
				continue
			}
			seen[a.Target] = true
			graph[e.Name] = append(graph[e.Name], a.Target)
		}
	}
	return graph
}

func hasSelfLoop(node string, graph relationGraphMap) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in name order so the result is deterministic.
func tarjanSCC(graph relationGraphMap) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component; pop it.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath follows edges inside scc from its first member until it
// returns to that member.
func cyclePath(scc []string, graph relationGraphMap) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
