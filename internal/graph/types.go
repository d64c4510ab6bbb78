package graph

import (
	"fmt"
	"strings"
)

// OperatorType is the kind of a rule operator.
type OperatorType int

const (
	// Source reads a value path from the source entity.
	Source OperatorType = iota + 1
	// Target reads a value path from the target entity.
	Target
	// Transform applies a function to its value input.
	Transform
	// Compare computes a similarity from two value inputs.
	Compare
	// Aggregate combines any number of similarity inputs.
	Aggregate
)

var operatorNames = map[OperatorType]string{
	Source:    "Source",
	Target:    "Target",
	Transform: "Transform",
	Compare:   "Compare",
	Aggregate: "Aggregate",
}

// String returns the canonical operator name ("Source", "Compare", ...).
func (t OperatorType) String() string {
	if name, ok := operatorNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OperatorType(%d)", int(t))
}

// ParseOperatorType parses an operator name case-insensitively.
func ParseOperatorType(s string) (OperatorType, error) {
	for t, name := range operatorNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown operator type %q", s)
}

// MarshalText implements encoding.TextMarshaler (used by YAML and JSON).
func (t OperatorType) MarshalText() ([]byte, error) {
	if _, ok := operatorNames[t]; !ok {
		return nil, fmt.Errorf("invalid operator type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *OperatorType) UnmarshalText(b []byte) error {
	parsed, err := ParseOperatorType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Role says on which side of a node an endpoint sits.
type Role int

const (
	Input Role = iota + 1
	Output
)

func (r Role) String() string {
	switch r {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Scope is the kind of data a connection carries.
type Scope int

const (
	// Value connections carry raw values (Source/Target/Transform chains into Compare).
	Value Scope = iota + 1
	// Similarity connections carry scores (Compare/Aggregate into Aggregate).
	Similarity
)

func (s Scope) String() string {
	switch s {
	case Value:
		return "value"
	case Similarity:
		return "similarity"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if s != Value && s != Similarity {
		return nil, fmt.Errorf("invalid scope %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "value":
		*s = Value
	case "similarity":
		*s = Similarity
	default:
		return fmt.Errorf("unknown scope %q", string(b))
	}
	return nil
}

// Direction selects connections relative to a node.
type Direction int

const (
	// Incoming connections have the node as target (they come from its children).
	Incoming Direction = iota + 1
	// Outgoing connections have the node as source (they go to its parent).
	Outgoing
)

// Point is a canvas position.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Parameter is one named operator parameter. Parameters keep their order.
type Parameter struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Node is one operator box on the canvas.
type Node struct {
	ID         string       `json:"id"`
	Type       OperatorType `json:"type"`
	Plugin     string       `json:"plugin,omitempty"` // function, metric or aggregator name
	Label      string       `json:"label"`
	Parameters []Parameter  `json:"parameters,omitempty"`
	Position   Point        `json:"position"`
}

// Param returns the value of the named parameter.
func (n Node) Param(name string) (string, bool) {
	for _, p := range n.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (n Node) clone() Node {
	c := n
	if n.Parameters != nil {
		c.Parameters = make([]Parameter, len(n.Parameters))
		copy(c.Parameters, n.Parameters)
	}
	return c
}

// Endpoint is a connection point on a node.
type Endpoint struct {
	ID      string `json:"id"`
	NodeID  string `json:"node_id"`
	Role    Role   `json:"role"`
	Scope   Scope  `json:"scope"`
	Dynamic bool   `json:"dynamic"`

	// Slot is the index of the endpoint on its edge. For Compare inputs,
	// slot 0 is the left (source side) input and slot 1 the right one.
	Slot int `json:"slot"`

	// Anchor is the fractional position along the node edge, in [0,1].
	Anchor float64 `json:"anchor"`
}

// Connection joins a child's output endpoint to a parent's input endpoint.
type Connection struct {
	ID               string `json:"id"`
	SourceNodeID     string `json:"source_node_id"`
	SourceEndpointID string `json:"source_endpoint_id"`
	TargetNodeID     string `json:"target_node_id"`
	TargetEndpointID string `json:"target_endpoint_id"`
	Scope            Scope  `json:"scope"`
}
