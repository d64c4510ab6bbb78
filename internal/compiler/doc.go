// Package compiler turns a rule graph into a rule document.
//
// Validate reports structural problems (identifiers, roots, cycles,
// forests) as Issues. Compile runs Validate and, on a clean graph, walks the
// tree from its root into the ir operator variant.
package compiler
