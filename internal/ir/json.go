package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type jsonElement struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []jsonElement     `json:"children,omitempty"`
	Text     string            `json:"text,omitempty"`
}

// ParseJSON reads an element tree in the canonical JSON shape. Attribute
// order is not carried by JSON; attributes come back sorted by name.
func ParseJSON(data []byte) (*Element, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw jsonElement
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return raw.element()
}

func (j jsonElement) element() (*Element, error) {
	if j.Tag == "" {
		return nil, fmt.Errorf("parse json: element without tag")
	}
	el := &Element{Name: j.Tag, Text: j.Text}

	names := make([]string, 0, len(j.Attrs))
	for name := range j.Attrs {
		names = append(names, name)
	}
	slices.SortFunc(names, strings.Compare)
	for _, name := range names {
		el.Attrs = append(el.Attrs, Attr{Name: name, Value: j.Attrs[name]})
	}

	for _, c := range j.Children {
		child, err := c.element()
		if err != nil {
			return nil, err
		}
		el.Children = append(el.Children, child)
	}
	return el, nil
}
