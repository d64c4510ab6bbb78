package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Issues   []compiler.Issue
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Issues) > 0 {
		fmt.Fprintf(&buf, "\nIssues:\n")
		for _, is := range e.Issues {
			fmt.Fprintf(&buf, "  %s %v %s\n", is.Code, is.Nodes, is.Message)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(h *Harness, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(h, result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return failures
}

func evaluate(h *Harness, result *Result, a Assertion) error {
	switch a.Type {
	case AssertIssueCodes:
		return assertIssueCodes(result, a)
	case AssertIssueOn:
		return assertIssueOn(h, result, a)
	case AssertNodeCount:
		return assertCount(a, h.session.Graph().Len())
	case AssertConnectionCount:
		return assertCount(a, len(h.session.Graph().Connections()))
	case AssertCompiles:
		return assertCompiles(result, a)
	case AssertStatus:
		return assertStatus(result, a)
	case AssertOperator:
		return assertOperator(h, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertIssueCodes(result *Result, a Assertion) error {
	got := compiler.Codes(result.Issues)
	want := a.Codes
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertIssueCodes,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
		Issues:   result.Issues,
	}
}

func assertIssueOn(h *Harness, result *Result, a Assertion) error {
	want := make([]string, len(a.Nodes))
	for i, alias := range a.Nodes {
		want[i] = h.node(alias)
	}
	slices.Sort(want)

	for _, is := range result.Issues {
		if is.Code != a.Code {
			continue
		}
		got := slices.Clone(is.Nodes)
		slices.Sort(got)
		if slices.Equal(got, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertIssueOn,
		Expected: fmt.Sprintf("%s on %v", a.Code, want),
		Actual:   "no matching issue",
		Issues:   result.Issues,
	}
}

func assertCount(a Assertion, got int) error {
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d", *a.Count),
		Actual:   fmt.Sprintf("%d", got),
	}
}

func assertCompiles(result *Result, a Assertion) error {
	got := result.Document != ""
	if got == *a.Want {
		return nil
	}
	return &AssertionError{
		Type:     AssertCompiles,
		Expected: fmt.Sprintf("compiles=%t", *a.Want),
		Actual:   fmt.Sprintf("compiles=%t", got),
		Issues:   result.Issues,
	}
}

func assertStatus(result *Result, a Assertion) error {
	var diffs []string
	check := func(name string, want *bool, got bool) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s=%t (want %t)", name, got, *want))
		}
	}
	check("dirty", a.Dirty, result.Status.Dirty)
	check("can_undo", a.CanUndo, result.CanUndo)
	check("can_redo", a.CanRedo, result.CanRedo)
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatus,
		Expected: "status flags as scripted",
		Actual:   strings.Join(diffs, ", "),
	}
}

// assertOperator looks up an operator element of the compiled document by
// its id and compares one attribute.
func assertOperator(h *Harness, a Assertion) error {
	doc := h.session.Document()
	if doc == nil {
		return &AssertionError{Type: AssertOperator, Expected: "a compiled document", Actual: "none"}
	}
	root, err := doc.Element()
	if err != nil {
		return err
	}
	el := findByID(root, a.Operator)
	if el == nil {
		return &AssertionError{
			Type:     AssertOperator,
			Expected: fmt.Sprintf("operator %q", a.Operator),
			Actual:   "not in document",
		}
	}
	got, ok := el.Attr(a.Attr)
	if ok && got == a.Value {
		return nil
	}
	if !ok {
		got = "<absent>"
	}
	return &AssertionError{
		Type:     AssertOperator,
		Expected: fmt.Sprintf("%s.%s=%q", a.Operator, a.Attr, a.Value),
		Actual:   fmt.Sprintf("%q", got),
	}
}

func findByID(el *ir.Element, id string) *ir.Element {
	if v, ok := el.Attr("id"); ok && v == id {
		return el
	}
	for _, child := range el.Children {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}
