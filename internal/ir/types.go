package ir

// Origin tells whether an operator subtree reads from the source or the
// target entity. Compare orders its inputs by it.
type Origin int

const (
	FromSource Origin = iota + 1
	FromTarget
)

func (o Origin) String() string {
	switch o {
	case FromSource:
		return "Source"
	case FromTarget:
		return "Target"
	default:
		return "unknown"
	}
}

// Operator is the sealed sum of rule operators. Serializers switch over the
// concrete types exhaustively.
type Operator interface {
	OperatorID() string
	operator()
}

// Param is a plain operator parameter.
type Param struct {
	Name  string
	Value string
}

// Input reads a value path from one entity.
type Input struct {
	ID   string
	Path string
}

// TransformInput applies a function to its inputs.
type TransformInput struct {
	ID        string
	Function  string
	Required  string
	Threshold string
	Weight    string
	Inputs    []Operator
	Params    []Param
}

// Compare computes a similarity between a source-side and a target-side
// value. Inputs[0] is the source side.
type Compare struct {
	ID        string
	Metric    string
	Required  string // "", "true" or "false"
	Threshold string
	Weight    string
	Inputs    []Operator
	Params    []Param
}

// Aggregate combines similarities.
type Aggregate struct {
	ID        string
	Type      string
	Required  string
	Threshold string
	Weight    string
	Inputs    []Operator
	Params    []Param
}

func (o *Input) OperatorID() string          { return o.ID }
func (o *TransformInput) OperatorID() string { return o.ID }
func (o *Compare) OperatorID() string        { return o.ID }
func (o *Aggregate) OperatorID() string      { return o.ID }

func (*Input) operator()          {}
func (*TransformInput) operator() {}
func (*Compare) operator()        {}
func (*Aggregate) operator()      {}

// RuleKind selects the document wrapping.
type RuleKind string

const (
	LinkageRule   RuleKind = "linkage"
	TransformRule RuleKind = "transform"
)

// Valid reports whether k is a known rule kind.
func (k RuleKind) Valid() bool {
	return k == LinkageRule || k == TransformRule
}

// MetaData describes a transformation rule.
type MetaData struct {
	Label       string
	Description string
}

// MappingTarget is the property a transformation rule writes.
type MappingTarget struct {
	URI       string
	ValueType string
}

// Document is a complete rule. Root is nil for an empty rule.
type Document struct {
	Kind RuleKind
	Root Operator

	// LinkageRule wrapping.
	LinkType string
	Limit    int // 0 means unlimited; no limit attribute is written

	// TransformRule wrapping.
	Name   string
	Meta   MetaData
	Target MappingTarget
}
