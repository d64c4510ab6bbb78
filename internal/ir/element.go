package ir

import (
	"fmt"
	"strconv"
)

// Attr is one element attribute. Attribute order is preserved.
type Attr struct {
	Name  string
	Value string
}

// Element is the neutral tree both wire forms are written from.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// NewElement returns an element with the given name and attribute pairs
// (name, value, name, value, ...).
func NewElement(name string, attrs ...string) *Element {
	el := &Element{Name: name}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attrs = append(el.Attrs, Attr{Name: attrs[i], Value: attrs[i+1]})
	}
	return el
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or appends an attribute.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Append adds children and returns e.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// ChildrenNamed returns the direct children with the given name.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Value converts the element to its canonical JSON shape:
//
//	{"tag": name, "attrs": {...}, "children": [...], "text": "..."}
//
// attrs, children and text are omitted when empty.
func (e *Element) Value() Value {
	obj := Object{"tag": String(e.Name)}
	if len(e.Attrs) > 0 {
		attrs := make(Object, len(e.Attrs))
		for _, a := range e.Attrs {
			attrs[a.Name] = String(a.Value)
		}
		obj["attrs"] = attrs
	}
	if len(e.Children) > 0 {
		children := make(Array, len(e.Children))
		for i, c := range e.Children {
			children[i] = c.Value()
		}
		obj["children"] = children
	}
	if e.Text != "" {
		obj["text"] = String(e.Text)
	}
	return obj
}

// Element encodes the document into its element tree.
func (d *Document) Element() (*Element, error) {
	var root *Element
	switch d.Kind {
	case LinkageRule:
		root = NewElement("LinkageRule", "linkType", d.LinkType)
		if err := appendOperator(root, d.Root); err != nil {
			return nil, err
		}
		filter := NewElement("Filter")
		if d.Limit > 0 {
			filter.SetAttr("limit", strconv.Itoa(d.Limit))
		}
		root.Append(filter)

	case TransformRule:
		root = NewElement("TransformRule", "name", d.Name)
		if d.Meta != (MetaData{}) {
			meta := NewElement("MetaData")
			if d.Meta.Label != "" {
				meta.Append(&Element{Name: "Label", Text: d.Meta.Label})
			}
			if d.Meta.Description != "" {
				meta.Append(&Element{Name: "Description", Text: d.Meta.Description})
			}
			root.Append(meta)
		}
		if err := appendOperator(root, d.Root); err != nil {
			return nil, err
		}
		target := NewElement("MappingTarget", "uri", d.Target.URI)
		target.Append(NewElement("ValueType", "nodeType", d.Target.ValueType))
		root.Append(target)

	default:
		return nil, fmt.Errorf("unknown rule kind %q", d.Kind)
	}
	return root, nil
}

func appendOperator(parent *Element, op Operator) error {
	if op == nil {
		return nil
	}
	el, err := EncodeOperator(op)
	if err != nil {
		return err
	}
	parent.Append(el)
	return nil
}

// EncodeOperator encodes an operator subtree. The implementation attribute
// comes first, then id, then the promoted attributes; children precede Param
// elements.
func EncodeOperator(op Operator) (*Element, error) {
	switch o := op.(type) {
	case *Input:
		return NewElement("Input", "path", o.Path, "id", o.ID), nil

	case *TransformInput:
		el := NewElement("TransformInput", "function", o.Function, "id", o.ID)
		setOptional(el, "required", o.Required)
		setOptional(el, "threshold", o.Threshold)
		setOptional(el, "weight", o.Weight)
		return finishOperator(el, o.Inputs, o.Params)

	case *Compare:
		el := NewElement("Compare", "metric", o.Metric, "id", o.ID)
		setOptional(el, "required", o.Required)
		setOptional(el, "threshold", o.Threshold)
		setOptional(el, "weight", o.Weight)
		return finishOperator(el, o.Inputs, o.Params)

	case *Aggregate:
		el := NewElement("Aggregate", "type", o.Type, "id", o.ID)
		setOptional(el, "required", o.Required)
		setOptional(el, "threshold", o.Threshold)
		setOptional(el, "weight", o.Weight)
		return finishOperator(el, o.Inputs, o.Params)

	case nil:
		return nil, fmt.Errorf("nil operator")
	default:
		return nil, fmt.Errorf("unknown operator %T", op)
	}
}

func setOptional(el *Element, name, value string) {
	if value != "" {
		el.SetAttr(name, value)
	}
}

func finishOperator(el *Element, inputs []Operator, params []Param) (*Element, error) {
	for _, in := range inputs {
		child, err := EncodeOperator(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", el.Name, elementID(el), err)
		}
		el.Append(child)
	}
	for _, p := range params {
		el.Append(NewElement("Param", "name", p.Name, "value", p.Value))
	}
	return el, nil
}

func elementID(el *Element) string {
	id, _ := el.Attr("id")
	return id
}

// CanonicalJSON returns the canonical JSON form of the document.
func (d *Document) CanonicalJSON() ([]byte, error) {
	el, err := d.Element()
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(el.Value())
}
