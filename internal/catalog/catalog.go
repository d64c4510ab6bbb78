// Package catalog loads the operator palette: which plugins exist for each
// operator type and which parameters a freshly dropped node starts with.
//
// Catalogs are CUE documents of the form
//
//	operators: {
//		levenshtein: {
//			type: "Compare"
//			label: "Levenshtein distance"
//			parameters: { required: "false", threshold: "0", weight: "1" }
//		}
//	}
//
// Parameter order is the declaration order.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/rulegraph/internal/graph"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.cue
var defaultSource []byte

// Error codes for LoadError.
const (
	ErrCodeNotFound   = "catalog_not_found"
	ErrCodeLoadFailed = "catalog_load_failed"
	ErrCodeInvalid    = "catalog_invalid"
)

// LoadError reports a catalog that could not be loaded.
type LoadError struct {
	Code    string
	Source  string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, e.Message)
}

// Parameter is a parameter with its default value.
type Parameter struct {
	Name    string `json:"name"`
	Default string `json:"default"`
}

// Operator is one palette entry.
type Operator struct {
	ID          string             `json:"id"`
	Type        graph.OperatorType `json:"type"`
	Label       string             `json:"label,omitempty"`
	Description string             `json:"description,omitempty"`
	Parameters  []Parameter        `json:"parameters"`
}

// DefaultParameters returns the node parameters a dropped node starts with.
func (o Operator) DefaultParameters() []graph.Parameter {
	out := make([]graph.Parameter, len(o.Parameters))
	for i, p := range o.Parameters {
		out[i] = graph.Parameter{Name: p.Name, Value: p.Default}
	}
	return out
}

// Catalog is an immutable set of operators.
type Catalog struct {
	ops  []Operator // sorted by type, then id
	byID map[string]Operator
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := LoadSource("default.cue", defaultSource)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// LoadSource compiles a single CUE document.
func LoadSource(name string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(name))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Source: name, Message: err.Error()}
	}
	return build(ctx, name, value)
}

// Load reads every CUE file of the package in dir.
func Load(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Source: dir, Message: err.Error()}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Source: dir, Message: "not a directory"}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Source: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Source: dir, Message: inst.Err.Error()}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Source: dir, Message: err.Error()}
	}
	return build(ctx, dir, value)
}

func build(ctx *cue.Context, source string, value cue.Value) (*Catalog, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Source: source, Message: err.Error()}
	}

	c := &Catalog{byID: make(map[string]Operator)}
	iter, err := value.LookupPath(cue.ParsePath("operators")).Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Source: source, Message: err.Error()}
	}
	for iter.Next() {
		op, err := decodeOperator(iter.Label(), iter.Value())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalid, Source: source, Message: err.Error()}
		}
		c.ops = append(c.ops, op)
		c.byID[op.ID] = op
	}

	slices.SortFunc(c.ops, func(a, b Operator) int {
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return c, nil
}

func decodeOperator(id string, v cue.Value) (Operator, error) {
	op := Operator{ID: id}

	typeName, err := v.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		return op, fmt.Errorf("operators.%s.type: %w", id, err)
	}
	if op.Type, err = graph.ParseOperatorType(typeName); err != nil {
		return op, fmt.Errorf("operators.%s.type: %w", id, err)
	}

	if label := v.LookupPath(cue.ParsePath("label")); label.Exists() {
		op.Label, _ = label.String()
	}
	if desc := v.LookupPath(cue.ParsePath("description")); desc.Exists() {
		op.Description, _ = desc.String()
	}

	params, err := v.LookupPath(cue.ParsePath("parameters")).Fields()
	if err != nil {
		return op, fmt.Errorf("operators.%s.parameters: %w", id, err)
	}
	for params.Next() {
		def, err := params.Value().String()
		if err != nil {
			return op, fmt.Errorf("operators.%s.parameters.%s: %w", id, params.Label(), err)
		}
		op.Parameters = append(op.Parameters, Parameter{Name: params.Label(), Default: def})
	}
	return op, nil
}

// Lookup returns an operator by id.
func (c *Catalog) Lookup(id string) (Operator, bool) {
	op, ok := c.byID[id]
	return op, ok
}

// Operators returns all operators ordered by type, then id.
func (c *Catalog) Operators() []Operator {
	return slices.Clone(c.ops)
}

// OfType returns the operators of one type, ordered by id.
func (c *Catalog) OfType(t graph.OperatorType) []Operator {
	var out []Operator
	for _, op := range c.ops {
		if op.Type == t {
			out = append(out, op)
		}
	}
	return out
}

// ErrTypeMismatch is returned by Resolve when a plugin belongs to another
// operator type.
var ErrTypeMismatch = errors.New("plugin belongs to another operator type")

// Resolve finds the palette entry for a node about to be dropped. Source and
// Target nodes have no plugin and resolve through their lower-cased type
// name. Unknown plugins resolve to an empty entry so hosts may use plugins
// the catalog does not list.
func (c *Catalog) Resolve(t graph.OperatorType, plugin string) (Operator, error) {
	key := plugin
	if key == "" {
		key = strings.ToLower(t.String())
	}
	op, ok := c.byID[key]
	if !ok {
		return Operator{ID: plugin, Type: t}, nil
	}
	if op.Type != t {
		return Operator{}, fmt.Errorf("%s is a %s, not a %s: %w", key, op.Type, t, ErrTypeMismatch)
	}
	return op, nil
}
