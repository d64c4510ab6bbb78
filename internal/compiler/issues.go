package compiler

import "fmt"

// Issue codes (E1xx). Structural codes come from Validate; the E13x codes
// are assigned by the session to problems reported by the rule backend.
const (
	ErrInvalidIdentifier = "E110" // label has characters outside [a-zA-Z0-9_-]

	ErrNoRoot        = "E121" // non-empty graph where every node feeds another
	ErrMultipleRoots = "E122" // more than one node without a consumer
	ErrCycle         = "E123" // connection cycle
	ErrForest        = "E124" // more than one disconnected rule tree

	ErrServerIssue = "E130" // issue returned by the rule backend
	ErrTransport   = "E131" // rule backend unreachable or answered garbage
)

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one entry of the error surface shown to the user. Nodes holds the
// ids of the nodes to highlight, if any.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
	Nodes    []string `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Codes returns the issue codes in order.
func Codes(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

// CompileError is returned by Compile when the graph has structural errors.
type CompileError struct {
	Issues []Issue
}

func (e *CompileError) Error() string {
	var errs int
	var first string
	for _, i := range e.Issues {
		if i.Severity != SeverityError {
			continue
		}
		if errs == 0 {
			first = i.Error()
		}
		errs++
	}
	if errs == 1 {
		return fmt.Sprintf("rule is invalid: %s", first)
	}
	return fmt.Sprintf("rule is invalid: %s (and %d more)", first, errs-1)
}
