package backend

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/store"
)

func parse(t *testing.T, doc string) *ir.Element {
	t.Helper()
	root, err := ir.ParseXML(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

const validLinkage = `
<LinkageRule linkType="owl:sameAs">
  <Compare metric="equality" id="same" threshold="0.5" weight="2" required="true">
    <Input path="?a/name" id="a"/>
    <TransformInput function="lowerCase" id="lower">
      <Input path="?b/name" id="b"/>
    </TransformInput>
  </Compare>
  <Filter limit="10"/>
</LinkageRule>`

func TestCheck_Valid(t *testing.T) {
	assert.Empty(t, Check(parse(t, validLinkage)))

	transform := `
<TransformRule name="t">
  <MetaData><Label>l</Label></MetaData>
  <TransformInput function="trim" id="trim"><Input path="name" id="in"/></TransformInput>
  <MappingTarget uri="urn:x"><ValueType nodeType="StringValueType"/></MappingTarget>
</TransformRule>`
	assert.Empty(t, Check(parse(t, transform)))

	assert.Empty(t, Check(parse(t, `<LinkageRule linkType="owl:sameAs"/>`)))
}

func TestNewValidator_CustomTags(t *testing.T) {
	var v *validator.Validate
	require.NotPanics(t, func() { v = newValidator() })

	assert.NoError(t, v.Struct(operatorAttrs{ID: "name_1", Impl: "equality", Weight: "2"}))

	err := v.Struct(operatorAttrs{ID: "bad id", Impl: "equality", Weight: "0"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	tags := map[string]string{}
	for _, fe := range verrs {
		tags[fe.Field()] = fe.Tag()
	}
	assert.Equal(t, map[string]string{"ID": "identifier", "Weight": "positive"}, tags)
}

func TestCheck_Issues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []store.Issue
	}{
		{
			name: "unknown root",
			doc:  `<Mapping/>`,
			want: []store.Issue{{Message: "Unknown rule element 'Mapping'."}},
		},
		{
			name: "two roots",
			doc:  `<LinkageRule><Input path="a" id="a"/><Input path="b" id="b"/></LinkageRule>`,
			want: []store.Issue{{Message: "A rule has at most one root operator, found 2."}},
		},
		{
			name: "missing id",
			doc:  `<LinkageRule><Input path="a"/></LinkageRule>`,
			want: []store.Issue{{Message: "Input without an id."}},
		},
		{
			name: "bad identifier",
			doc:  `<LinkageRule><Input path="a" id="a b"/></LinkageRule>`,
			want: []store.Issue{{ID: "a b", Message: "An identifier may only contain the following characters (a - z, A - Z, 0 - 9, _, -). The following identifier is not valid: 'a b'."}},
		},
		{
			name: "missing path",
			doc:  `<LinkageRule><Input id="in"/></LinkageRule>`,
			want: []store.Issue{{ID: "in", Message: "Input needs a 'path' attribute."}},
		},
		{
			name: "compare arity",
			doc:  `<LinkageRule><Compare metric="equality" id="cmp"><Input path="a" id="a"/></Compare></LinkageRule>`,
			want: []store.Issue{{ID: "cmp", Message: "A comparison needs exactly two inputs, found 1."}},
		},
		{
			name: "aggregate without inputs",
			doc:  `<LinkageRule><Aggregate type="min" id="agg"/></LinkageRule>`,
			want: []store.Issue{{ID: "agg", Message: "'agg' has no inputs."}},
		},
		{
			name: "duplicate id",
			doc:  `<LinkageRule><Compare metric="equality" id="x"><Input path="a" id="x"/><Input path="b" id="b"/></Compare></LinkageRule>`,
			want: []store.Issue{{ID: "x", Message: "The identifier 'x' is used by more than one operator."}},
		},
		{
			name: "bad numbers",
			doc:  `<LinkageRule><Aggregate type="min" id="agg" weight="0"><Compare metric="equality" id="cmp" threshold="high" required="yes"><Input path="a" id="a"/><Input path="b" id="b"/></Compare></Aggregate></LinkageRule>`,
			want: []store.Issue{
				{ID: "agg", Message: "The weight must be a positive integer, got '0'."},
				{ID: "cmp", Message: "'required' must be true or false, got 'yes'."},
				{ID: "cmp", Message: "The threshold must be a number, got 'high'."},
			},
		},
		{
			name: "bad filter",
			doc:  `<LinkageRule><Filter limit="-1"/></LinkageRule>`,
			want: []store.Issue{{Message: "Filter limit must be a positive integer, got '-1'."}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(parse(t, tt.doc)))
		})
	}
}
