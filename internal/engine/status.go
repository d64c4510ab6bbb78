package engine

import (
	"slices"

	"github.com/roach88/rulegraph/internal/compiler"
)

// Status is the error surface shown to the user. Issues is replaced, never
// merged, by every validation cycle and every submission result.
type Status struct {
	// Dirty is set by every edit and cleared when the backend accepts a
	// document that reflects the latest edit (or, offline, when a cycle
	// finds the latest graph clean).
	Dirty bool `json:"dirty"`

	// Pending is set while a debounce timer or the current cycle's
	// submission is outstanding.
	Pending bool `json:"pending"`

	Issues []compiler.Issue `json:"issues"`

	// Alert is a transport failure. It blocks the user until the next
	// cycle; the graph is left as it was.
	Alert *compiler.Issue `json:"alert,omitempty"`
}

// ConfirmOnExit reports whether leaving the editor would lose work or leave
// an invalid rule behind.
func (s Status) ConfirmOnExit() bool {
	return s.Dirty || compiler.HasErrors(s.Issues) || s.Alert != nil
}

// Highlighted returns the ids of nodes named by any issue, in first-seen
// order.
func (s Status) Highlighted() []string {
	var out []string
	for _, is := range s.Issues {
		for _, id := range is.Nodes {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func (s Status) clone() Status {
	out := s
	if s.Issues != nil {
		out.Issues = make([]compiler.Issue, len(s.Issues))
		for i, is := range s.Issues {
			is.Nodes = slices.Clone(is.Nodes)
			out.Issues[i] = is
		}
	}
	if s.Alert != nil {
		a := *s.Alert
		out.Alert = &a
	}
	return out
}

// Stats counts session activity.
type Stats struct {
	Commands     int `json:"commands"`
	Validations  int `json:"validations"`
	Submissions  int `json:"submissions"`
	StaleResults int `json:"stale_results"`
}
