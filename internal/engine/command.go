package engine

import (
	"fmt"

	"github.com/roach88/rulegraph/internal/graph"
)

// CommandKind names an editing intention.
type CommandKind string

const (
	CmdAddNode      CommandKind = "add"
	CmdRemoveNode   CommandKind = "remove"
	CmdRenameNode   CommandKind = "rename"
	CmdSetParameter CommandKind = "set"
	CmdMoveNode     CommandKind = "move"
	CmdConnect      CommandKind = "connect"
	CmdDisconnect   CommandKind = "disconnect"
	CmdUndo         CommandKind = "undo"
	CmdRedo         CommandKind = "redo"
)

// Command is an intention event from the host UI. Only the fields relevant
// to Kind are read.
type Command struct {
	Kind CommandKind `json:"kind"`

	Type     graph.OperatorType `json:"type,omitempty"`   // add
	Plugin   string             `json:"plugin,omitempty"` // add
	Label    string             `json:"label,omitempty"`  // add, rename
	NodeID   string             `json:"node,omitempty"`   // remove, rename, set, move
	Name     string             `json:"name,omitempty"`   // set
	Value    string             `json:"value,omitempty"`  // set
	Position graph.Point        `json:"position"`         // add, move

	Source       string `json:"source,omitempty"`     // connect: output endpoint id
	Target       string `json:"target,omitempty"`     // connect: input endpoint id
	ConnectionID string `json:"connection,omitempty"` // disconnect
}

// Apply runs cmd on the session. For add and connect it returns the id of
// the created node or connection.
func (s *Session) Apply(cmd Command) (string, error) {
	switch cmd.Kind {
	case CmdAddNode:
		n, err := s.addNode(cmd.Type, cmd.Plugin, cmd.Label, cmd.Position)
		return n.ID, err
	case CmdRemoveNode:
		return "", s.RemoveNode(cmd.NodeID)
	case CmdRenameNode:
		return "", s.RenameNode(cmd.NodeID, cmd.Label)
	case CmdSetParameter:
		return "", s.SetParameter(cmd.NodeID, cmd.Name, cmd.Value)
	case CmdMoveNode:
		return "", s.MoveNode(cmd.NodeID, cmd.Position)
	case CmdConnect:
		c, err := s.Connect(cmd.Source, cmd.Target)
		return c.ID, err
	case CmdDisconnect:
		return "", s.Disconnect(cmd.ConnectionID)
	case CmdUndo:
		_, err := s.Undo()
		return "", err
	case CmdRedo:
		_, err := s.Redo()
		return "", err
	default:
		return "", &CommandError{
			Command: cmd.Kind,
			Code:    ErrCodeInvalidCommand,
			Message: fmt.Sprintf("unknown command kind %q", cmd.Kind),
		}
	}
}
