package harness

import (
	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/engine"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step int                `json:"step"`
	Do   engine.CommandKind `json:"do"`

	// Node is the node the step addressed, or the created node for add.
	Node string `json:"node,omitempty"`

	// Created is the id of the connection a connect step created.
	Created string `json:"created,omitempty"`

	// Error is the command error code of a refused step; Reason is the
	// port policy code when the graph refused a connection.
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as scripted and every assertion
	// held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Issues is the issue list of the final validation cycle.
	Issues []compiler.Issue `json:"issues"`

	// Document is the compiled rule in its XML form; empty when the final
	// graph did not compile.
	Document string `json:"document,omitempty"`

	Status  engine.Status `json:"status"`
	CanUndo bool          `json:"can_undo"`
	CanRedo bool          `json:"can_redo"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Issues: []compiler.Issue{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
