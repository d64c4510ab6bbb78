// Package graph holds the in-memory rule graph edited by a session.
//
// The graph is pure data plus query and mutation operations. It knows nothing
// about rendering, timers or the network; the engine package drives it.
//
// MODEL:
//
// Nodes are operators (Source, Target, Transform, Compare, Aggregate). Every
// node owns a set of endpoints derived from its operator type (see PolicyFor).
// A Connection joins the Output endpoint of a child node to an Input endpoint
// of its parent (consumer) node, so edges point from leaves toward the root.
//
// DYNAMIC ENDPOINTS:
//
// Aggregate nodes accept any number of inputs. Their input edge always exposes
// exactly one open endpoint: connecting to it allocates the next one, and
// detaching a connection removes the endpoint that carried it. Anchors on the
// input edge are reflowed to (i+1)/(n+1) after every change.
//
// INVARIANTS (after every completed operation):
//   - each node's realized endpoints match its port policy
//   - an Output endpoint carries at most one connection, so every node has at
//     most one parent
//   - connection scope equals the scope of both of its endpoints
//
// Root cardinality, cycles and forests are NOT enforced here; they are
// reported by the compiler package at validation time.
package graph
