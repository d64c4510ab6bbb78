package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rulegraph/internal/graph"
)

// GraphBuilder builds rule graphs in tests. Nodes are addressed by their
// label, which is also used as alias.
type GraphBuilder struct {
	t testing.TB
	G *graph.Graph
}

// NewGraph returns a builder over an empty graph.
func NewGraph(t testing.TB) *GraphBuilder {
	t.Helper()
	return &GraphBuilder{t: t, G: graph.New()}
}

// Add creates a node labelled label. params are name/value pairs.
func (b *GraphBuilder) Add(label string, typ graph.OperatorType, plugin string, params ...string) *GraphBuilder {
	b.t.Helper()
	n := b.G.AddNode(typ, plugin, label, graph.Point{})
	require.Equal(b.t, label, n.Label, "label %q already taken", label)
	for i := 0; i+1 < len(params); i += 2 {
		require.NoError(b.t, b.G.SetParameter(n.ID, params[i], params[i+1]))
	}
	return b
}

// Source adds a Source node reading path.
func (b *GraphBuilder) Source(label, path string) *GraphBuilder {
	b.t.Helper()
	return b.Add(label, graph.Source, "", "path", path)
}

// Target adds a Target node reading path.
func (b *GraphBuilder) Target(label, path string) *GraphBuilder {
	b.t.Helper()
	return b.Add(label, graph.Target, "", "path", path)
}

// Link connects child's output to the first open input of parent.
func (b *GraphBuilder) Link(child, parent string) *GraphBuilder {
	b.t.Helper()
	out, ok := b.G.OutputOf(b.ID(child))
	require.True(b.t, ok, "%s has no output", child)
	in, ok := b.G.OpenInput(b.ID(parent))
	require.True(b.t, ok, "%s has no open input", parent)
	_, err := b.G.Connect(out.ID, in.ID)
	require.NoError(b.t, err)
	return b
}

// LinkSlot connects child's output to input slot of parent.
func (b *GraphBuilder) LinkSlot(child, parent string, slot int) *GraphBuilder {
	b.t.Helper()
	out, ok := b.G.OutputOf(b.ID(child))
	require.True(b.t, ok, "%s has no output", child)
	inputs := b.G.InputsOf(b.ID(parent))
	require.Less(b.t, slot, len(inputs), "%s has no slot %d", parent, slot)
	_, err := b.G.Connect(out.ID, inputs[slot].ID)
	require.NoError(b.t, err)
	return b
}

// ID returns the node id for a label.
func (b *GraphBuilder) ID(label string) string {
	b.t.Helper()
	n, ok := b.G.NodeByLabel(label)
	require.True(b.t, ok, "no node labelled %q", label)
	return n.ID
}

// IDs maps labels to node ids.
func (b *GraphBuilder) IDs(labels ...string) []string {
	b.t.Helper()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = b.ID(l)
	}
	return out
}

// Linkage builds a small valid linkage rule:
//
//	agg (average)
//	├── name (levenshtein): srcName, lower(tgtName)  wired target side first
//	└── year (equality): srcYear, tgtYear
func Linkage(t testing.TB) *GraphBuilder {
	t.Helper()
	return NewGraph(t).
		Add("agg", graph.Aggregate, "average", "required", "false", "weight", "1").
		Add("name", graph.Compare, "levenshtein", "required", "false", "threshold", "2", "weight", "1", "minChar", "").
		Add("lower", graph.Transform, "lowerCase").
		Source("srcName", "?a/rdfs:label").
		Target("tgtName", "?b/rdfs:label").
		Add("year", graph.Compare, "equality", "threshold", "0").
		Source("srcYear", "?a/year").
		Target("tgtYear", "?b/year").
		Link("tgtName", "lower").
		Link("lower", "name").
		Link("srcName", "name").
		Link("srcYear", "year").
		Link("tgtYear", "year").
		Link("name", "agg").
		Link("year", "agg")
}
