package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rulegraph/internal/graph"
	"github.com/roach88/rulegraph/internal/ir"
)

// Parameter names promoted to attributes instead of Param elements.
const (
	ParamPath      = "path"
	ParamRequired  = "required"
	ParamThreshold = "threshold"
	ParamWeight    = "weight"
)

// RuleOptions carries the document wrapping that does not live in the graph.
type RuleOptions struct {
	Kind ir.RuleKind `yaml:"kind" validate:"required,oneof=linkage transform"`

	// LinkageRule
	LinkType string `yaml:"link_type"`
	Limit    int    `yaml:"limit" validate:"gte=0"`

	// TransformRule
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	TargetURI   string `yaml:"target_uri"`
	ValueType   string `yaml:"value_type"`
}

// Compile validates g and serializes it into a rule document by recursive
// descent from the unique root. Structural errors are returned as a
// *CompileError. An empty graph compiles to a document without operator.
func Compile(g *graph.Graph, opts RuleOptions) (*ir.Document, error) {
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("compile: unknown rule kind %q", opts.Kind)
	}
	if issues := Validate(g); HasErrors(issues) {
		return nil, &CompileError{Issues: issues}
	}

	doc := &ir.Document{
		Kind:     opts.Kind,
		LinkType: opts.LinkType,
		Limit:    opts.Limit,
		Name:     opts.Name,
		Meta:     ir.MetaData{Label: opts.Label, Description: opts.Description},
		Target:   ir.MappingTarget{URI: opts.TargetURI, ValueType: opts.ValueType},
	}

	roots := RootCandidates(g)
	if len(roots) == 0 {
		return doc, nil
	}
	root, err := compileOperator(g, roots[0])
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	doc.Root = root.op
	return doc, nil
}

// compiled is an operator subtree plus the entity side it reads from.
type compiled struct {
	op     ir.Operator
	origin ir.Origin
}

func compileOperator(g *graph.Graph, id string) (compiled, error) {
	n, ok := g.Node(id)
	if !ok {
		return compiled{}, fmt.Errorf("operator %s: %w", id, graph.ErrUnknownNode)
	}

	if n.Type == graph.Source || n.Type == graph.Target {
		path, _ := n.Param(ParamPath)
		origin := ir.FromSource
		if n.Type == graph.Target {
			origin = ir.FromTarget
		}
		return compiled{op: &ir.Input{ID: n.Label, Path: path}, origin: origin}, nil
	}

	children, err := compileChildren(g, id)
	if err != nil {
		return compiled{}, err
	}
	attrs, params := splitParams(n)

	switch n.Type {
	case graph.Transform:
		origin := ir.FromSource
		if len(children) > 0 {
			origin = children[0].origin
		}
		return compiled{
			op: &ir.TransformInput{
				ID:        n.Label,
				Function:  n.Plugin,
				Required:  attrs.required,
				Threshold: attrs.threshold,
				Weight:    attrs.weight,
				Inputs:    operators(children),
				Params:    params,
			},
			origin: origin,
		}, nil

	case graph.Compare:
		// Source side first, whatever order the wires were drawn in.
		slices.SortStableFunc(children, func(a, b compiled) int { return int(a.origin) - int(b.origin) })
		return compiled{
			op: &ir.Compare{
				ID:        n.Label,
				Metric:    n.Plugin,
				Required:  attrs.required,
				Threshold: attrs.threshold,
				Weight:    attrs.weight,
				Inputs:    operators(children),
				Params:    withoutEmpty(params),
			},
			origin: ir.FromSource,
		}, nil

	case graph.Aggregate:
		return compiled{
			op: &ir.Aggregate{
				ID:        n.Label,
				Type:      n.Plugin,
				Required:  attrs.required,
				Threshold: attrs.threshold,
				Weight:    attrs.weight,
				Inputs:    operators(children),
				Params:    params,
			},
			origin: ir.FromSource,
		}, nil

	default:
		return compiled{}, fmt.Errorf("operator %s: unsupported type %s", id, n.Type)
	}
}

func compileChildren(g *graph.Graph, id string) ([]compiled, error) {
	conns := g.ConnectionsOf(id, graph.Incoming)
	children := make([]compiled, 0, len(conns))
	for _, c := range conns {
		child, err := compileOperator(g, c.SourceNodeID)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

type promoted struct {
	required, threshold, weight string
}

// splitParams separates the operator attributes (required, threshold, weight)
// from plain parameters.
func splitParams(n graph.Node) (promoted, []ir.Param) {
	var attrs promoted
	var params []ir.Param
	for _, p := range n.Parameters {
		switch p.Name {
		case ParamRequired:
			attrs.required = normalizeBool(p.Value)
		case ParamThreshold:
			attrs.threshold = p.Value
		case ParamWeight:
			attrs.weight = p.Value
		default:
			params = append(params, ir.Param{Name: p.Name, Value: p.Value})
		}
	}
	return attrs, params
}

func normalizeBool(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "checked":
		return "true"
	default:
		return "false"
	}
}

func withoutEmpty(params []ir.Param) []ir.Param {
	return slices.DeleteFunc(params, func(p ir.Param) bool { return p.Value == "" })
}

func operators(cs []compiled) []ir.Operator {
	if len(cs) == 0 {
		return nil
	}
	out := make([]ir.Operator, len(cs))
	for i, c := range cs {
		out[i] = c.op
	}
	return out
}
