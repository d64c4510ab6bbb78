package graph

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// DefaultLabelProbeLimit bounds the label1, label2, ... search in AddNode.
const DefaultLabelProbeLimit = 1000

// Graph is the rule graph of one editing session.
//
// Graph is not safe for concurrent use. The engine owns it from a single
// goroutine.
type Graph struct {
	nodes       map[string]*Node
	order       []string // node ids in creation order
	connections []*Connection

	endpoints map[string]*Endpoint
	inputs    map[string][]string // node id -> input endpoint ids, edge order
	outputs   map[string]string   // node id -> output endpoint id
	occupied  map[string]string   // endpoint id -> connection id

	// Node ids are restored from snapshots; endpoint and connection ids are
	// never reused within one Graph.
	nextNode     int
	nextEndpoint int
	nextConn     int

	labelProbeLimit int
	logger          *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLabelProbeLimit sets the number of numbered label candidates tried
// before AddNode gives up on finding a unique label.
func WithLabelProbeLimit(n int) Option {
	return func(g *Graph) {
		if n >= 0 {
			g.labelProbeLimit = n
		}
	}
}

// WithLogger sets the logger used for soft failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		labelProbeLimit: DefaultLabelProbeLimit,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.reset()
	return g
}

func (g *Graph) reset() {
	g.nodes = make(map[string]*Node)
	g.order = nil
	g.connections = nil
	g.endpoints = make(map[string]*Endpoint)
	g.inputs = make(map[string][]string)
	g.outputs = make(map[string]string)
	g.occupied = make(map[string]string)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// AddNode creates a node of type t at pos and realizes its endpoints.
//
// The label is made unique by probing label, label1, label2, ... If every
// candidate is taken the failure is logged and the node keeps the base label;
// the validator then reports the conflict if it matters.
func (g *Graph) AddNode(t OperatorType, plugin, label string, pos Point) Node {
	base := label
	if base == "" {
		base = plugin
	}
	if base == "" {
		base = strings.ToLower(t.String())
	}

	g.nextNode++
	n := &Node{
		ID:       fmt.Sprintf("op%d", g.nextNode),
		Type:     t,
		Plugin:   plugin,
		Label:    g.uniqueLabel(base),
		Position: pos,
	}
	g.insertNode(n)
	return n.clone()
}

func (g *Graph) insertNode(n *Node) {
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	g.realizeEndpoints(n)
}

// RemoveNode detaches every connection of the node, then deletes it together
// with its endpoints.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownNode)
	}

	var attached []string
	for _, c := range g.connections {
		if c.SourceNodeID == id || c.TargetNodeID == id {
			attached = append(attached, c.ID)
		}
	}
	for _, cid := range attached {
		if err := g.Disconnect(cid); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
	}

	for _, eid := range g.inputs[id] {
		delete(g.endpoints, eid)
	}
	delete(g.endpoints, g.outputs[id])
	delete(g.inputs, id)
	delete(g.outputs, id)
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(s string) bool { return s == id })
	return nil
}

// RenameNode changes a node label. The label syntax is not checked here.
func (g *Graph) RenameNode(id, label string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("rename %s: %w", id, ErrUnknownNode)
	}
	if owner, taken := g.labelOwner(label); taken && owner != id {
		return fmt.Errorf("rename %s to %q: %w", id, label, ErrDuplicateLabel)
	}
	n.Label = label
	return nil
}

// SetParameter sets a parameter value, appending it when the name is new.
func (g *Graph) SetParameter(id, name, value string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("set parameter on %s: %w", id, ErrUnknownNode)
	}
	for i := range n.Parameters {
		if n.Parameters[i].Name == name {
			n.Parameters[i].Value = value
			return nil
		}
	}
	n.Parameters = append(n.Parameters, Parameter{Name: name, Value: value})
	return nil
}

// MoveNode updates a node position.
func (g *Graph) MoveNode(id string, pos Point) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrUnknownNode)
	}
	n.Position = pos
	return nil
}

// Connect joins an output endpoint (child side) to an input endpoint (parent
// side). The connection scope is the endpoints' common scope.
func (g *Graph) Connect(sourceEndpointID, targetEndpointID string) (Connection, error) {
	src, ok := g.endpoints[sourceEndpointID]
	if !ok {
		return Connection{}, policyErr(PolicyUnknownEndpoint, "endpoint %q does not exist", sourceEndpointID)
	}
	dst, ok := g.endpoints[targetEndpointID]
	if !ok {
		return Connection{}, policyErr(PolicyUnknownEndpoint, "endpoint %q does not exist", targetEndpointID)
	}
	if src.Role != Output {
		return Connection{}, policyErr(PolicyWrongRole, "source endpoint %s is an %s", src.ID, src.Role)
	}
	if dst.Role != Input {
		return Connection{}, policyErr(PolicyWrongRole, "target endpoint %s is an %s", dst.ID, dst.Role)
	}
	if src.NodeID == dst.NodeID {
		return Connection{}, policyErr(PolicySelfConnection, "node %s cannot feed itself", src.NodeID)
	}
	if src.Scope != dst.Scope {
		return Connection{}, policyErr(PolicyScopeMismatch, "cannot connect %s output of %s to %s input of %s",
			src.Scope, src.NodeID, dst.Scope, dst.NodeID)
	}
	if cid, used := g.occupied[dst.ID]; used {
		return Connection{}, policyErr(PolicyEndpointInUse, "endpoint %s already carries %s", dst.ID, cid)
	}
	if cid, used := g.occupied[src.ID]; used {
		return Connection{}, policyErr(PolicyOutputInUse, "output of %s already feeds %s", src.NodeID, cid)
	}

	g.nextConn++
	c := &Connection{
		ID:               fmt.Sprintf("c%d", g.nextConn),
		SourceNodeID:     src.NodeID,
		SourceEndpointID: src.ID,
		TargetNodeID:     dst.NodeID,
		TargetEndpointID: dst.ID,
		Scope:            src.Scope,
	}
	g.connections = append(g.connections, c)
	g.occupied[src.ID] = c.ID
	g.occupied[dst.ID] = c.ID

	if dst.Dynamic {
		g.growDynamic(dst.NodeID, dst.Scope)
	}
	return *c, nil
}

// Disconnect removes a connection. A dynamic endpoint that carried it is
// removed as well; the endpoint at the other end stays.
func (g *Graph) Disconnect(connectionID string) error {
	idx := slices.IndexFunc(g.connections, func(c *Connection) bool { return c.ID == connectionID })
	if idx < 0 {
		return fmt.Errorf("disconnect %s: %w", connectionID, ErrUnknownConnection)
	}
	c := g.connections[idx]
	g.connections = slices.Delete(g.connections, idx, idx+1)
	delete(g.occupied, c.SourceEndpointID)
	delete(g.occupied, c.TargetEndpointID)

	if dst, ok := g.endpoints[c.TargetEndpointID]; ok && dst.Dynamic {
		g.shrinkDynamic(dst)
	}
	return nil
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// NodeByLabel returns the node owning label.
func (g *Graph) NodeByLabel(label string) (Node, bool) {
	id, ok := g.labelOwner(label)
	if !ok {
		return Node{}, false
	}
	return g.nodes[id].clone(), true
}

// Nodes returns copies of all nodes in creation order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Connections returns all connections in the order they were made.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, 0, len(g.connections))
	for _, c := range g.connections {
		out = append(out, *c)
	}
	return out
}

// Connection returns the connection with the given id.
func (g *Graph) Connection(id string) (Connection, bool) {
	for _, c := range g.connections {
		if c.ID == id {
			return *c, true
		}
	}
	return Connection{}, false
}

// ConnectionsOf returns the connections of a node in one direction, in
// connection order. With no scopes given every scope matches.
func (g *Graph) ConnectionsOf(nodeID string, dir Direction, scopes ...Scope) []Connection {
	var out []Connection
	for _, c := range g.connections {
		switch dir {
		case Incoming:
			if c.TargetNodeID != nodeID {
				continue
			}
		case Outgoing:
			if c.SourceNodeID != nodeID {
				continue
			}
		default:
			continue
		}
		if len(scopes) > 0 && !slices.Contains(scopes, c.Scope) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

func (g *Graph) labelOwner(label string) (string, bool) {
	for _, id := range g.order {
		if g.nodes[id].Label == label {
			return id, true
		}
	}
	return "", false
}

func (g *Graph) uniqueLabel(base string) string {
	if _, taken := g.labelOwner(base); !taken {
		return base
	}
	for i := 1; i <= g.labelProbeLimit; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		if _, taken := g.labelOwner(candidate); !taken {
			return candidate
		}
	}
	g.logger.Error("no unique label available",
		"base", base,
		"probe_limit", g.labelProbeLimit)
	return base
}
