package graph

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Link records a node's single parent connection.
type Link struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
	Slot   int    `json:"slot"` // input endpoint index on the parent
	Scope  Scope  `json:"scope"`
}

// Snapshot is an immutable structural copy of a graph. Endpoint and
// connection ids are not part of it; they are regenerated on restore.
type Snapshot struct {
	Nodes    []Node `json:"nodes"` // creation order
	Links    []Link `json:"links"` // connection order
	NextNode int    `json:"next_node"`
}

// Equal reports structural equality.
func (s Snapshot) Equal(o Snapshot) bool {
	return reflect.DeepEqual(s, o)
}

// Snapshot captures the current structure.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{
		Nodes:    g.Nodes(),
		NextNode: g.nextNode,
	}
	for _, c := range g.connections {
		s.Links = append(s.Links, Link{
			Child:  c.SourceNodeID,
			Parent: c.TargetNodeID,
			Slot:   g.endpoints[c.TargetEndpointID].Slot,
			Scope:  c.Scope,
		})
	}
	return s
}

// Restore tears the graph down and rebuilds it from s: nodes first, then each
// link in order. Endpoints and anchors are reallocated from scratch. The node
// counter never falls below the highest restored op<n> id, so snapshots with
// a missing or stale NextNode cannot make AddNode reuse an id. On error the
// graph is left unchanged.
func (g *Graph) Restore(s Snapshot) error {
	fresh := &Graph{
		nextNode:        s.NextNode,
		nextEndpoint:    g.nextEndpoint,
		nextConn:        g.nextConn,
		labelProbeLimit: g.labelProbeLimit,
		logger:          g.logger,
	}
	fresh.reset()

	for _, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("restore: node without id")
		}
		if _, dup := fresh.nodes[n.ID]; dup {
			return fmt.Errorf("restore: duplicate node %s", n.ID)
		}
		if _, ok := operatorNames[n.Type]; !ok {
			return fmt.Errorf("restore: node %s has invalid type %d", n.ID, int(n.Type))
		}
		c := n.clone()
		fresh.insertNode(&c)
		if seq, ok := nodeSeq(n.ID); ok && seq > fresh.nextNode {
			fresh.nextNode = seq
		}
	}

	for _, l := range s.Links {
		if err := fresh.relink(l); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}

	*g = *fresh
	return nil
}

// nodeSeq returns n for an id of the form op<n>.
func nodeSeq(id string) (int, bool) {
	digits, ok := strings.CutPrefix(id, "op")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (g *Graph) relink(l Link) error {
	out, ok := g.OutputOf(l.Child)
	if !ok {
		return fmt.Errorf("link %s -> %s: child: %w", l.Child, l.Parent, ErrUnknownNode)
	}
	parent, ok := g.nodes[l.Parent]
	if !ok {
		return fmt.Errorf("link %s -> %s: parent: %w", l.Child, l.Parent, ErrUnknownNode)
	}

	var target Endpoint
	if PolicyFor(parent.Type).Dynamic {
		target, ok = g.OpenInput(parent.ID)
	} else if ids := g.inputs[parent.ID]; l.Slot >= 0 && l.Slot < len(ids) {
		target, ok = *g.endpoints[ids[l.Slot]], true
	} else {
		ok = false
	}
	if !ok {
		return fmt.Errorf("link %s -> %s: no input at slot %d", l.Child, l.Parent, l.Slot)
	}

	_, err := g.Connect(out.ID, target.ID)
	return err
}
