package engine

import (
	"errors"
	"fmt"
)

// CommandError is an editing command the session refused. The graph and
// history are unchanged when a command fails.
type CommandError struct {
	// Command is the kind of command that failed.
	Command CommandKind

	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes command errors.
type ErrorCode string

const (
	// ErrCodeInvalidCommand indicates a malformed or unknown command.
	ErrCodeInvalidCommand ErrorCode = "INVALID_COMMAND"

	// ErrCodeRejected indicates the graph refused the edit (unknown node,
	// port policy violation).
	ErrCodeRejected ErrorCode = "REJECTED"

	// ErrCodeCatalog indicates the operator could not be resolved in the
	// palette.
	ErrCodeCatalog ErrorCode = "CATALOG"

	// ErrCodeRestore indicates an undo or redo snapshot could not be
	// restored.
	ErrCodeRestore ErrorCode = "RESTORE_FAILED"

	// ErrCodeClosed indicates the session no longer accepts commands.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Code, e.Command, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Code, e.Command, e.Message)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a command the graph refused.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeRejected
	}
	return false
}

func rejected(kind CommandKind, err error) *CommandError {
	return &CommandError{Command: kind, Code: ErrCodeRejected, Message: "edit refused", Err: err}
}
