package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rulegraph/internal/catalog"
	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/engine"
	"github.com/roach88/rulegraph/internal/graph"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/testutil"
)

// DefaultRule is the wrapping used by scenarios that name no rule.
var DefaultRule = compiler.RuleOptions{Kind: ir.LinkageRule, LinkType: "owl:sameAs"}

// Harness executes scenario steps against one offline session.
type Harness struct {
	session     *engine.Session
	nodes       map[string]string // alias -> node id
	connections map[string]link   // alias -> endpoints by node
	logger      *slog.Logger
}

type link struct {
	source, target string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh session with a manual debounce scheduler,
// so only the final flush validates the graph. The returned error covers
// scenario problems (unknown alias, unloadable catalog); a step or
// assertion that does not hold is reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with the session logging to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	cat := catalog.Default()
	if scenario.Catalog != "" {
		loaded, err := catalog.Load(scenario.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		cat = loaded
	}

	rule := scenario.Rule
	if rule.Kind == "" {
		rule = DefaultRule
	}

	h := &Harness{
		session: engine.New(
			engine.WithCatalog(cat),
			engine.WithRule(rule),
			engine.WithScheduler(testutil.NewManualScheduler().Schedule),
			engine.WithLogger(logger),
		),
		nodes:       make(map[string]string),
		connections: make(map[string]link),
		logger:      logger,
	}
	defer h.session.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Do, err)
		}
	}

	ctx := context.Background()
	if err := h.session.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush session: %w", err)
	}

	status := h.session.Status()
	result.Status = status
	result.CanUndo = h.session.CanUndo()
	result.CanRedo = h.session.CanRedo()
	if status.Issues != nil {
		result.Issues = status.Issues
	}
	if doc := h.session.Document(); doc != nil {
		xml, err := doc.EncodeXML()
		if err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
		result.Document = string(xml)
	}

	for _, msg := range EvaluateAssertions(h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step. Errors returned here abort the scenario; refused
// commands are compared against the step's Fails.
func (h *Harness) execute(n int, step Step, result *Result) error {
	cmd, err := h.command(step)
	if err != nil {
		return err
	}

	event := TraceEvent{Step: n, Do: step.Do, Node: cmd.NodeID}
	id, applyErr := h.session.Apply(cmd)

	if applyErr != nil {
		event.Error, event.Reason = errorCodes(applyErr)
		result.Trace = append(result.Trace, event)
		switch {
		case step.Fails == "":
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", n, step.Do, applyErr))
		case step.Fails != event.Error && step.Fails != event.Reason:
			result.AddError(fmt.Sprintf("step %d (%s): expected failure %s, got %s/%s", n, step.Do, step.Fails, event.Error, event.Reason))
		}
		h.logger.Debug("step refused", "step", n, "do", step.Do, "error", applyErr)
		return nil
	}

	switch step.Do {
	case engine.CmdAddNode:
		event.Node = id
		alias := step.As
		if alias == "" {
			node, _ := h.session.Graph().Node(id)
			alias = node.Label
		}
		h.nodes[alias] = id
	case engine.CmdConnect:
		event.Created = id
		if step.As != "" {
			c, _ := h.session.Graph().Connection(id)
			h.connections[step.As] = link{source: c.SourceNodeID, target: c.TargetNodeID}
		}
	}
	result.Trace = append(result.Trace, event)

	if step.Fails != "" {
		result.AddError(fmt.Sprintf("step %d (%s): expected failure %s, but it succeeded", n, step.Do, step.Fails))
	}
	return nil
}

// command translates a step into a session command, resolving aliases.
func (h *Harness) command(step Step) (engine.Command, error) {
	cmd := engine.Command{
		Kind:   step.Do,
		Plugin: step.Plugin,
		Label:  step.Label,
		Name:   step.Name,
		Value:  step.Value,
	}
	if step.At != nil {
		cmd.Position = *step.At
	}

	switch step.Do {
	case engine.CmdAddNode:
		t, err := graph.ParseOperatorType(step.Type)
		if err != nil {
			return cmd, err
		}
		cmd.Type = t

	case engine.CmdRemoveNode, engine.CmdRenameNode, engine.CmdSetParameter, engine.CmdMoveNode:
		cmd.NodeID = h.node(step.Node)

	case engine.CmdConnect:
		g := h.session.Graph()
		from, to := h.node(step.From), h.node(step.To)
		out, ok := g.OutputOf(from)
		if !ok {
			return cmd, fmt.Errorf("%q has no output", step.From)
		}
		cmd.Source = out.ID
		if step.Slot != nil {
			inputs := g.InputsOf(to)
			if *step.Slot < 0 || *step.Slot >= len(inputs) {
				return cmd, fmt.Errorf("%q has no input slot %d", step.To, *step.Slot)
			}
			cmd.Target = inputs[*step.Slot].ID
		} else {
			in, ok := g.OpenInput(to)
			if !ok {
				// Let the graph refuse a full node with its own policy code.
				if inputs := g.InputsOf(to); len(inputs) > 0 {
					in = inputs[len(inputs)-1]
				}
			}
			cmd.Target = in.ID
		}

	case engine.CmdDisconnect:
		l, ok := h.connections[step.Connection]
		if !ok {
			return cmd, fmt.Errorf("unknown connection alias %q", step.Connection)
		}
		cmd.ConnectionID = h.connectionBetween(l)
	}
	return cmd, nil
}

// node resolves an alias, then a label. Unknown names pass through as ids
// so scripts can address missing nodes on purpose.
func (h *Harness) node(name string) string {
	if id, ok := h.nodes[name]; ok {
		return id
	}
	if n, ok := h.session.Graph().NodeByLabel(name); ok {
		return n.ID
	}
	return name
}

// connectionBetween finds the connection joining the two nodes. Connection
// ids change when history restores a snapshot, node ids do not.
func (h *Harness) connectionBetween(l link) string {
	for _, c := range h.session.Graph().Connections() {
		if c.SourceNodeID == l.source && c.TargetNodeID == l.target {
			return c.ID
		}
	}
	return ""
}

func errorCodes(err error) (code, reason string) {
	var ce *engine.CommandError
	if errors.As(err, &ce) {
		code = string(ce.Code)
	}
	var pe *graph.PolicyError
	if errors.As(err, &pe) {
		reason = string(pe.Code)
	}
	return code, reason
}
