package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/rulegraph/internal/graph"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidIdentifier reports whether s may be used as an operator label.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Validate runs the structural checks over g and returns the issues in
// report order. It never mutates g.
//
// The passes short-circuit: identifier errors suppress the structural passes.
//  1. identifiers: one E110 per node with an invalid label
//  2. roots: nodes without an outgoing connection are root candidates;
//     none gives E121, several give E122 with every candidate flagged
//  3. structure: one E123 per cycle anywhere in the graph; with a single root,
//     nodes not reached from it give E124; with several roots E124 is
//     reported as well since the canvas holds more than one tree
//
// An empty graph is valid.
func Validate(g *graph.Graph) []Issue {
	issues := validateIdentifiers(g)
	if len(issues) > 0 {
		return issues
	}
	if g.Len() == 0 {
		return nil
	}

	roots := RootCandidates(g)
	switch {
	case len(roots) == 0:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     ErrNoRoot,
			Message:  "Error: No root element found.",
		})
	case len(roots) > 1:
		issues = append(issues, multipleRootsIssue(g, roots))
	}

	fg, order := buildFeedGraph(g)
	for _, cycle := range findCycles(fg, order) {
		issues = append(issues, cycleIssue(g, cycle))
	}

	switch {
	case len(roots) == 1:
		if unreached := unreachedFrom(g, roots[0], order); len(unreached) > 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     ErrForest,
				Nodes:    unreached,
				Message:  "Error: Multiple linkage rules found.",
			})
		}
	case len(roots) > 1:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     ErrForest,
			Message:  "Error: Multiple linkage rules found.",
		})
	}
	return issues
}

func validateIdentifiers(g *graph.Graph) []Issue {
	var issues []Issue
	for _, n := range g.Nodes() {
		if ValidIdentifier(n.Label) {
			continue
		}
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     ErrInvalidIdentifier,
			Nodes:    []string{n.ID},
			Message: fmt.Sprintf("Error in element with id '%s': An identifier may only contain the following "+
				"characters (a - z, A - Z, 0 - 9, _, -). The following identifier is not valid: '%s'.", n.Label, n.Label),
		})
	}
	return issues
}

// RootCandidates returns the ids of nodes that feed nothing, in creation order.
func RootCandidates(g *graph.Graph) []string {
	var roots []string
	for _, n := range g.Nodes() {
		if len(g.ConnectionsOf(n.ID, graph.Outgoing)) == 0 {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

func multipleRootsIssue(g *graph.Graph, roots []string) Issue {
	quoted := make([]string, len(roots))
	for i, id := range roots {
		quoted[i] = "'" + labelOf(g, id) + "'"
	}
	return Issue{
		Severity: SeverityError,
		Code:     ErrMultipleRoots,
		Nodes:    roots,
		Message:  fmt.Sprintf("Error: Multiple root elements found: %s.", strings.Join(quoted, ", ")),
	}
}

func cycleIssue(g *graph.Graph, cycle []string) Issue {
	labels := make([]string, len(cycle))
	for i, id := range cycle {
		labels[i] = labelOf(g, id)
	}
	members := cycle
	if len(cycle) > 1 && cycle[0] == cycle[len(cycle)-1] {
		members = cycle[:len(cycle)-1]
	}
	return Issue{
		Severity: SeverityError,
		Code:     ErrCycle,
		Nodes:    members,
		Message:  fmt.Sprintf("Error: A cycle was found in the linkage rule: %s.", strings.Join(labels, " → ")),
	}
}

// unreachedFrom walks child edges from root with an explicit visited set and
// returns the nodes it never reached, in creation order.
func unreachedFrom(g *graph.Graph, root string, order []string) []string {
	visited := map[string]bool{root: true}
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.ConnectionsOf(id, graph.Incoming) {
			if !visited[c.SourceNodeID] {
				visited[c.SourceNodeID] = true
				stack = append(stack, c.SourceNodeID)
			}
		}
	}

	var unreached []string
	for _, id := range order {
		if !visited[id] {
			unreached = append(unreached, id)
		}
	}
	return unreached
}

func labelOf(g *graph.Graph, id string) string {
	if n, ok := g.Node(id); ok {
		return n.Label
	}
	return id
}
