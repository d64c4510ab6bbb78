package compiler

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulegraph/internal/graph"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/testutil"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

var linkageOptions = RuleOptions{Kind: ir.LinkageRule, LinkType: "owl:sameAs", Limit: 1}

func TestCompile_LinkageGolden(t *testing.T) {
	b := testutil.Linkage(t)

	doc, err := Compile(b.G, linkageOptions)
	require.NoError(t, err)

	xmlBytes, err := doc.EncodeXML()
	require.NoError(t, err)
	canonical, err := doc.CanonicalJSON()
	require.NoError(t, err)

	g := newGolden(t)
	g.Assert(t, "linkage_xml", xmlBytes)
	g.Assert(t, "linkage_json", canonical)
}

func TestCompile_TransformGolden(t *testing.T) {
	b := testutil.NewGraph(t).
		Source("src", "?a/rdfs:label").
		Add("lower", graph.Transform, "lowerCase").
		Link("src", "lower")

	doc, err := Compile(b.G, RuleOptions{
		Kind:      ir.TransformRule,
		Name:      "label",
		Label:     "Label",
		TargetURI: "rdfs:label",
		ValueType: "StringValueType",
	})
	require.NoError(t, err)

	canonical, err := doc.CanonicalJSON()
	require.NoError(t, err)
	newGolden(t).Assert(t, "transform_json", canonical)
}

func TestCompile_CompareOrderIndependentOfWiring(t *testing.T) {
	build := func(t *testing.T, targetFirst bool) *ir.Compare {
		b := testutil.NewGraph(t).
			Add("cmp", graph.Compare, "equality").
			Source("src", "?a/name").
			Target("tgt", "?b/name")
		if targetFirst {
			b.Link("tgt", "cmp").Link("src", "cmp")
		} else {
			b.Link("src", "cmp").Link("tgt", "cmp")
		}
		doc, err := Compile(b.G, linkageOptions)
		require.NoError(t, err)
		cmp, ok := doc.Root.(*ir.Compare)
		require.True(t, ok, "root is %T", doc.Root)
		return cmp
	}

	for _, targetFirst := range []bool{true, false} {
		cmp := build(t, targetFirst)
		require.Len(t, cmp.Inputs, 2)
		assert.Equal(t, "src", cmp.Inputs[0].OperatorID(), "targetFirst=%v", targetFirst)
		assert.Equal(t, "tgt", cmp.Inputs[1].OperatorID(), "targetFirst=%v", targetFirst)
	}
}

func TestCompile_CompareOrderFollowsTransformOrigin(t *testing.T) {
	b := testutil.NewGraph(t).
		Add("cmp", graph.Compare, "jaccard").
		Target("tgt", "?b/name").
		Add("tokenize", graph.Transform, "tokenize").
		Source("src", "?a/name").
		Add("lower", graph.Transform, "lowerCase").
		Link("tgt", "tokenize").
		Link("src", "lower").
		LinkSlot("tokenize", "cmp", 0).
		LinkSlot("lower", "cmp", 1)

	doc, err := Compile(b.G, linkageOptions)
	require.NoError(t, err)

	cmp := doc.Root.(*ir.Compare)
	assert.Equal(t, []string{"lower", "tokenize"}, []string{cmp.Inputs[0].OperatorID(), cmp.Inputs[1].OperatorID()})
}

func TestCompile_Parameters(t *testing.T) {
	b := testutil.NewGraph(t).
		Add("agg", graph.Aggregate, "max", "required", "on", "threshold", "0.3", "weight", "2", "extra", "").
		Add("cmp", graph.Compare, "levenshtein", "required", "nonsense", "minChar", "", "q", "2").
		Source("src", "?a/x").
		Target("tgt", "?b/x").
		Link("src", "cmp").
		Link("tgt", "cmp").
		Link("cmp", "agg")

	doc, err := Compile(b.G, linkageOptions)
	require.NoError(t, err)

	agg := doc.Root.(*ir.Aggregate)
	assert.Equal(t, "max", agg.Type)
	assert.Equal(t, "true", agg.Required)
	assert.Equal(t, "0.3", agg.Threshold)
	assert.Equal(t, "2", agg.Weight)
	assert.Equal(t, []ir.Param{{Name: "extra", Value: ""}}, agg.Params)

	cmp := agg.Inputs[0].(*ir.Compare)
	assert.Equal(t, "false", cmp.Required)
	assert.Empty(t, cmp.Threshold)
	assert.Equal(t, []ir.Param{{Name: "q", Value: "2"}}, cmp.Params, "empty compare params are skipped")
}

func TestCompile_TransformPromotesAttributes(t *testing.T) {
	b := testutil.NewGraph(t).
		Add("repl", graph.Transform, "replace", "search", " ", "replace", "", "weight", "3", "required", "yes").
		Source("src", "?a/x").
		Link("src", "repl")

	doc, err := Compile(b.G, linkageOptions)
	require.NoError(t, err)

	tr := doc.Root.(*ir.TransformInput)
	assert.Equal(t, "true", tr.Required)
	assert.Empty(t, tr.Threshold)
	assert.Equal(t, "3", tr.Weight)
	assert.Equal(t, []ir.Param{{Name: "search", Value: " "}, {Name: "replace", Value: ""}}, tr.Params, "empty transform params are kept")

	out, err := doc.EncodeXML()
	require.NoError(t, err)
	assert.Contains(t, string(out), `<TransformInput function="replace" id="repl" required="true" weight="3">`)
}

func TestCompile_EmptyGraph(t *testing.T) {
	doc, err := Compile(graph.New(), linkageOptions)
	require.NoError(t, err)
	assert.Nil(t, doc.Root)
	assert.Equal(t, "owl:sameAs", doc.LinkType)
}

func TestCompile_UnknownKind(t *testing.T) {
	_, err := Compile(graph.New(), RuleOptions{Kind: "mapping"})
	assert.Error(t, err)
}

func TestCompile_Deterministic(t *testing.T) {
	first, err := Compile(testutil.Linkage(t).G, linkageOptions)
	require.NoError(t, err)
	second, err := Compile(testutil.Linkage(t).G, linkageOptions)
	require.NoError(t, err)

	h1, err := ir.DocumentHash(first)
	require.NoError(t, err)
	h2, err := ir.DocumentHash(second)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
