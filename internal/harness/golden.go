package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/ir"
)

// TraceSnapshot captures a scenario run for golden comparison. Issue
// messages are left out so rewording one does not churn every fixture.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Issues       []compiler.Issue
}

func (s *TraceSnapshot) canonicalValue() ir.Value {
	trace := make(ir.Array, len(s.Trace))
	for i, ev := range s.Trace {
		obj := ir.Object{
			"step": ir.Int(ev.Step),
			"do":   ir.String(ev.Do),
		}
		if ev.Node != "" {
			obj["node"] = ir.String(ev.Node)
		}
		if ev.Created != "" {
			obj["created"] = ir.String(ev.Created)
		}
		if ev.Error != "" {
			obj["error"] = ir.String(ev.Error)
		}
		if ev.Reason != "" {
			obj["reason"] = ir.String(ev.Reason)
		}
		trace[i] = obj
	}

	issues := make(ir.Array, len(s.Issues))
	for i, is := range s.Issues {
		nodes := make(ir.Array, len(is.Nodes))
		for j, n := range is.Nodes {
			nodes[j] = ir.String(n)
		}
		issues[i] = ir.Object{
			"code":     ir.String(is.Code),
			"severity": ir.String(is.Severity),
			"nodes":    nodes,
		}
	}

	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
		"issues":        issues,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{name}.golden and, when the final graph compiled, the
// document against testdata/golden/{name}_document.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the golden files.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Issues:       result.Issues,
	}
	traceJSON, err := ir.MarshalCanonical(snapshot.canonicalValue())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	if result.Document != "" {
		g.Assert(t, scenarioName+"_document", []byte(result.Document))
	}
	return nil
}
