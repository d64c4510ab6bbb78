package compiler

import (
	"slices"

	"github.com/roach88/rulegraph/internal/graph"
)

// feedGraph maps node id -> ids of the nodes it feeds (its consumers).
type feedGraph map[string][]string

func buildFeedGraph(g *graph.Graph) (feedGraph, []string) {
	nodes := g.Nodes()
	order := make([]string, len(nodes))
	fg := make(feedGraph, len(nodes))
	for i, n := range nodes {
		order[i] = n.ID
		fg[n.ID] = nil
	}
	for _, c := range g.Connections() {
		fg[c.SourceNodeID] = append(fg[c.SourceNodeID], c.TargetNodeID)
	}
	return fg, order
}

// findCycles returns every strongly connected component with more than one
// node, each ordered as a closed walk starting at its earliest-created node
// (a -> b -> c -> a). Self connections are rejected by the graph, so
// single-node components are never cycles.
func findCycles(fg feedGraph, order []string) [][]string {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(fg, order) {
		if len(scc) < 2 {
			continue
		}
		slices.SortFunc(scc, func(a, b string) int { return rank[a] - rank[b] })
		cycles = append(cycles, reconstructCyclePath(scc, fg))
	}
	slices.SortFunc(cycles, func(a, b []string) int { return rank[a[0]] - rank[b[0]] })
	return cycles
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Roots are visited in the given order so the result is deterministic.
func tarjanSCC(fg feedGraph, order []string) [][]string {
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

		for _, w := range fg[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

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

	for _, v := range order {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// reconstructCyclePath walks feed edges inside the component from its first
// member until it returns to the start.
func reconstructCyclePath(scc []string, fg feedGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		var next string
		for _, w := range fg[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
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
		visited[next] = true
		current = next
	}
	return path
}
