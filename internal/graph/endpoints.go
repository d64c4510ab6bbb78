package graph

import (
	"fmt"
	"slices"
)

// PortPolicy describes the endpoints an operator type exposes.
type PortPolicy struct {
	Inputs      int  // fixed input count; ignored when Dynamic
	Dynamic     bool // unbounded fan-in with one open endpoint
	InputScope  Scope
	OutputScope Scope
}

// PolicyFor returns the port policy of an operator type.
func PolicyFor(t OperatorType) PortPolicy {
	switch t {
	case Source, Target:
		return PortPolicy{OutputScope: Value}
	case Transform:
		return PortPolicy{Inputs: 1, InputScope: Value, OutputScope: Value}
	case Compare:
		return PortPolicy{Inputs: 2, InputScope: Value, OutputScope: Similarity}
	case Aggregate:
		return PortPolicy{Dynamic: true, InputScope: Similarity, OutputScope: Similarity}
	default:
		return PortPolicy{}
	}
}

func (g *Graph) realizeEndpoints(n *Node) {
	pol := PolicyFor(n.Type)
	if pol.Dynamic {
		g.newInput(n.ID, pol.InputScope, true)
	} else {
		for i := 0; i < pol.Inputs; i++ {
			g.newInput(n.ID, pol.InputScope, false)
		}
	}
	if pol.OutputScope != 0 {
		out := g.newEndpoint(n.ID, Output, pol.OutputScope, false)
		out.Anchor = 0.5
		g.outputs[n.ID] = out.ID
	}
	// Fixed inputs get their spacing once here and never move again.
	g.reflow(n.ID)
}

func (g *Graph) newEndpoint(nodeID string, role Role, scope Scope, dynamic bool) *Endpoint {
	g.nextEndpoint++
	ep := &Endpoint{
		ID:      fmt.Sprintf("e%d", g.nextEndpoint),
		NodeID:  nodeID,
		Role:    role,
		Scope:   scope,
		Dynamic: dynamic,
	}
	g.endpoints[ep.ID] = ep
	return ep
}

func (g *Graph) newInput(nodeID string, scope Scope, dynamic bool) *Endpoint {
	ep := g.newEndpoint(nodeID, Input, scope, dynamic)
	g.inputs[nodeID] = append(g.inputs[nodeID], ep.ID)
	return ep
}

// growDynamic runs after a connection landed on a dynamic endpoint: the node
// gets a fresh open endpoint and its input edge is reflowed.
func (g *Graph) growDynamic(nodeID string, scope Scope) {
	g.newInput(nodeID, scope, true)
	g.reflow(nodeID)
}

// shrinkDynamic drops a dynamic endpoint whose connection was detached.
func (g *Graph) shrinkDynamic(ep *Endpoint) {
	g.inputs[ep.NodeID] = slices.DeleteFunc(g.inputs[ep.NodeID], func(id string) bool { return id == ep.ID })
	delete(g.endpoints, ep.ID)
	g.reflow(ep.NodeID)
}

// reflow anchors the i-th of n input endpoints at (i+1)/(n+1).
func (g *Graph) reflow(nodeID string) {
	ids := g.inputs[nodeID]
	n := len(ids)
	for i, id := range ids {
		ep := g.endpoints[id]
		ep.Slot = i
		ep.Anchor = float64(i+1) / float64(n+1)
	}
}

// Endpoint returns the endpoint with the given id.
func (g *Graph) Endpoint(id string) (Endpoint, bool) {
	ep, ok := g.endpoints[id]
	if !ok {
		return Endpoint{}, false
	}
	return *ep, true
}

// EndpointsOf returns a node's input endpoints in edge order, then its output.
func (g *Graph) EndpointsOf(nodeID string) []Endpoint {
	out := g.InputsOf(nodeID)
	if ep, ok := g.OutputOf(nodeID); ok {
		out = append(out, ep)
	}
	return out
}

// InputsOf returns a node's input endpoints in edge order.
func (g *Graph) InputsOf(nodeID string) []Endpoint {
	ids := g.inputs[nodeID]
	out := make([]Endpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.endpoints[id])
	}
	return out
}

// OutputOf returns a node's output endpoint.
func (g *Graph) OutputOf(nodeID string) (Endpoint, bool) {
	id, ok := g.outputs[nodeID]
	if !ok {
		return Endpoint{}, false
	}
	return *g.endpoints[id], true
}

// OpenInput returns the first input endpoint of a node with no connection.
func (g *Graph) OpenInput(nodeID string) (Endpoint, bool) {
	for _, id := range g.inputs[nodeID] {
		if _, used := g.occupied[id]; !used {
			return *g.endpoints[id], true
		}
	}
	return Endpoint{}, false
}

// IsOpen reports whether an endpoint exists and carries no connection.
func (g *Graph) IsOpen(endpointID string) bool {
	if _, ok := g.endpoints[endpointID]; !ok {
		return false
	}
	_, used := g.occupied[endpointID]
	return !used
}
