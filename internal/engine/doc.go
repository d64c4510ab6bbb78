// Package engine runs an editing session over a rule graph.
//
// A Session turns intention events (node dropped, connection made, rename,
// undo, ...) into graph edits, records each edit in the undo history and
// debounces validation: only when no edit arrives for the debounce delay
// does the graph get validated and, if clean, compiled and submitted to the
// rule backend.
//
// Single-Writer Event Loop:
// All graph mutation happens on one owner goroutine. Timer callbacks and
// submission goroutines only enqueue events (timer fired, result arrived);
// the owner handles them in FIFO order, either in Run or through
// ProcessPending/Settle.
//
// Superseded work:
// Every re-arm of the debounce timer bumps a generation; a timer event from
// an older generation is dropped. Every validation cycle bumps a cycle
// number; a submission result from an older cycle is ignored. A result that
// belongs to the current cycle but predates a newer edit updates the issue
// list without clearing the dirty flag.
//
// Error surface:
// Status.Issues is replaced by each cycle: structural issues from the
// validator, or issues returned by the backend mapped onto nodes by label.
// Transport failures go to Status.Alert and leave the graph untouched.
package engine
