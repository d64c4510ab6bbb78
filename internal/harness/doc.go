// Package harness runs editing scenarios against an offline session.
//
// A scenario is a YAML script of editing commands followed by assertions
// on the validation outcome and the compiled rule:
//
//	name: compare_names
//	description: "Two paths compared by equality form a valid rule"
//	rule:
//	  kind: linkage
//	  link_type: owl:sameAs
//	steps:
//	  - do: add
//	    type: Source
//	    label: src
//	  - do: set
//	    node: src
//	    name: path
//	    value: "?a/name"
//	  - do: add
//	    type: Compare
//	    plugin: equality
//	    as: cmp
//	  - do: connect
//	    from: src
//	    to: cmp
//	  - do: undo
//	assertions:
//	  - type: issue_codes
//	    codes: [E124]
//	  - type: node_count
//	    count: 2
//
// # Steps
//
// Nodes are addressed by alias: the "as" name given when the node was
// added, falling back to its label. connect links the output of "from" to
// the first open input of "to", or to input "slot" when given. A step
// with "fails" must be refused with that error code or port policy code.
//
// # Assertions
//
//   - issue_codes: the codes of the final issue list, in order
//   - issue_on: an issue with the given code highlights exactly the nodes
//   - node_count, connection_count: graph size
//   - compiles: whether the final graph produced a document
//   - status: dirty, can_undo and can_redo flags
//   - operator: an operator of the compiled document carries an attribute
//
// After the last step the harness flushes the session once, so the final
// validation cycle runs without waiting for the debounce timer.
package harness
