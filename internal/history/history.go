// Package history keeps the linear undo/redo stack of graph snapshots.
package history

import "github.com/roach88/rulegraph/internal/graph"

// History is a linear stack of snapshots with a cursor on the current entry.
//
// Pushing while the cursor is not at the top discards the redo tail. When a
// depth limit is set the oldest entries are dropped.
type History struct {
	entries []graph.Snapshot
	cursor  int // index of the current entry, -1 when empty
	limit   int // 0 = unbounded
}

// Option configures a History.
type Option func(*History)

// WithLimit bounds the number of retained snapshots.
func WithLimit(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.limit = n
		}
	}
}

// New returns an empty history.
func New(opts ...Option) *History {
	h := &History{cursor: -1}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Push records s as the current state.
func (h *History) Push(s graph.Snapshot) {
	h.entries = append(h.entries[:h.cursor+1], s)
	if h.limit > 0 && len(h.entries) > h.limit {
		drop := len(h.entries) - h.limit
		h.entries = append([]graph.Snapshot(nil), h.entries[drop:]...)
	}
	h.cursor = len(h.entries) - 1
}

// Undo steps back and returns the snapshot to restore.
func (h *History) Undo() (graph.Snapshot, bool) {
	if !h.CanUndo() {
		return graph.Snapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo steps forward and returns the snapshot to restore.
func (h *History) Redo() (graph.Snapshot, bool) {
	if !h.CanRedo() {
		return graph.Snapshot{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// current returns the snapshot under the cursor.
func (h *History) current() (graph.Snapshot, bool) {
	if h.cursor < 0 {
		return graph.Snapshot{}, false
	}
	return h.entries[h.cursor], true
}

// CanUndo reports whether an earlier snapshot exists.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether a later snapshot exists.
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Len returns the number of retained snapshots.
func (h *History) Len() int { return len(h.entries) }

// Cursor returns the index of the current snapshot, -1 when empty.
func (h *History) Cursor() int { return h.cursor }

// Reset drops every snapshot.
func (h *History) Reset() {
	h.entries = nil
	h.cursor = -1
}
