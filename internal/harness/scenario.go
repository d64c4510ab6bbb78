package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/engine"
	"github.com/roach88/rulegraph/internal/graph"
)

// Scenario is an editing script with assertions on its outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden files.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional operator catalog directory, relative to the
	// scenario file. The built-in catalog is used when empty.
	Catalog string `yaml:"catalog,omitempty"`

	// Rule selects the document wrapping. Defaults to a linkage rule.
	Rule compiler.RuleOptions `yaml:"rule,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one editing command.
type Step struct {
	Do engine.CommandKind `yaml:"do"`

	Type   string       `yaml:"type,omitempty"`   // add
	Plugin string       `yaml:"plugin,omitempty"` // add
	Label  string       `yaml:"label,omitempty"`  // add, rename
	At     *graph.Point `yaml:"at,omitempty"`     // add, move

	Node  string `yaml:"node,omitempty"`  // remove, rename, set, move
	Name  string `yaml:"name,omitempty"`  // set
	Value string `yaml:"value,omitempty"` // set

	From string `yaml:"from,omitempty"` // connect
	To   string `yaml:"to,omitempty"`   // connect
	Slot *int   `yaml:"slot,omitempty"` // connect

	// Connection names the connection to remove, by the alias it was
	// created with.
	Connection string `yaml:"connection,omitempty"`

	// As names the created node or connection.
	As string `yaml:"as,omitempty"`

	// Fails is the expected error code when the step must be refused.
	Fails string `yaml:"fails,omitempty"`
}

// Assertion checks the final state of a scenario.
type Assertion struct {
	Type string `yaml:"type"`

	Codes []string `yaml:"codes,omitempty"` // issue_codes
	Code  string   `yaml:"code,omitempty"`  // issue_on
	Nodes []string `yaml:"nodes,omitempty"` // issue_on
	Count *int     `yaml:"count,omitempty"` // node_count, connection_count
	Want  *bool    `yaml:"want,omitempty"`  // compiles

	Dirty   *bool `yaml:"dirty,omitempty"`    // status
	CanUndo *bool `yaml:"can_undo,omitempty"` // status
	CanRedo *bool `yaml:"can_redo,omitempty"` // status

	Operator string `yaml:"operator,omitempty"` // operator: element id
	Attr     string `yaml:"attr,omitempty"`     // operator
	Value    string `yaml:"value,omitempty"`    // operator
}

// Assertion type constants.
const (
	AssertIssueCodes      = "issue_codes"
	AssertIssueOn         = "issue_on"
	AssertNodeCount       = "node_count"
	AssertConnectionCount = "connection_count"
	AssertCompiles        = "compiles"
	AssertStatus          = "status"
	AssertOperator        = "operator"
)

// LoadScenario reads and validates a scenario file. A relative catalog
// path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) {
		s.Catalog = filepath.Join(filepath.Dir(path), s.Catalog)
	}
	return s, nil
}

// ParseScenario decodes a scenario, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Do {
	case engine.CmdAddNode:
		if _, err := graph.ParseOperatorType(st.Type); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case engine.CmdRemoveNode, engine.CmdMoveNode:
		if st.Node == "" {
			return fmt.Errorf("steps[%d]: node is required for %s", index, st.Do)
		}
	case engine.CmdRenameNode:
		if st.Node == "" || st.Label == "" {
			return fmt.Errorf("steps[%d]: node and label are required for rename", index)
		}
	case engine.CmdSetParameter:
		if st.Node == "" || st.Name == "" {
			return fmt.Errorf("steps[%d]: node and name are required for set", index)
		}
	case engine.CmdConnect:
		if st.From == "" || st.To == "" {
			return fmt.Errorf("steps[%d]: from and to are required for connect", index)
		}
	case engine.CmdDisconnect:
		if st.Connection == "" {
			return fmt.Errorf("steps[%d]: connection is required for disconnect", index)
		}
	case engine.CmdUndo, engine.CmdRedo:
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown command %q", index, st.Do)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertIssueCodes:
	case AssertIssueOn:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for issue_on", index)
		}
	case AssertNodeCount, AssertConnectionCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertCompiles:
		if a.Want == nil {
			return fmt.Errorf("assertions[%d]: want is required for compiles", index)
		}
	case AssertStatus:
		if a.Dirty == nil && a.CanUndo == nil && a.CanRedo == nil {
			return fmt.Errorf("assertions[%d]: status needs dirty, can_undo or can_redo", index)
		}
	case AssertOperator:
		if a.Operator == "" || a.Attr == "" {
			return fmt.Errorf("assertions[%d]: operator and attr are required for operator", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
